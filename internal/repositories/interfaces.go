package repositories

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes repository implementations backed by a single persistence layer.
type Registry interface {
	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Shipments() ShipmentRepository
	UnitOfWork
	Close(ctx context.Context) error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repository calls made with
// the ctx passed to fn join that transaction; fn may be retried by backends with optimistic
// concurrency, so it must not have side effects outside the repositories.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOptions tunes batch reads.
type ReadOptions struct {
	// ForUpdate locks the returned rows until the surrounding transaction ends.
	ForUpdate bool
}

// CatalogRepository stores products.
type CatalogRepository interface {
	GetByID(ctx context.Context, productID string) (domain.Product, error)
	// GetByIDs returns the products that exist; unknown ids are omitted.
	GetByIDs(ctx context.Context, productIDs []string, opts ReadOptions) ([]domain.Product, error)
	Save(ctx context.Context, product domain.Product) (domain.Product, error)
	// DecrementStock fails with an InventoryError when stock would go negative.
	DecrementStock(ctx context.Context, productID string, by int) error
	IncrementStock(ctx context.Context, productID string, by int) error
}

// CartRepository stores one cart per user.
type CartRepository interface {
	GetByUserID(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, cartID string) error
}

// OrderRepository upserts orders by id.
type OrderRepository interface {
	Save(ctx context.Context, order domain.Order) (domain.Order, error)
	GetByID(ctx context.Context, orderID string) (domain.Order, error)
}

// PaymentRepository upserts payments by id.
type PaymentRepository interface {
	Save(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	GetByID(ctx context.Context, paymentID string) (domain.Payment, error)
}

// ShipmentRepository upserts shipments by id.
type ShipmentRepository interface {
	Save(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error)
	GetByID(ctx context.Context, shipmentID string) (domain.Shipment, error)
}

package memory

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type catalogRepository struct{ s *Store }

func (r catalogRepository) GetByID(ctx context.Context, productID string) (domain.Product, error) {
	var out domain.Product
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.products[strings.TrimSpace(productID)]
		if !ok {
			return repositories.NewNotFoundError("memory.products.get", "product %s not found", productID)
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r catalogRepository) GetByIDs(ctx context.Context, productIDs []string, _ repositories.ReadOptions) ([]domain.Product, error) {
	var out []domain.Product
	err := r.s.read(ctx, func(st *state) error {
		seen := make(map[string]struct{}, len(productIDs))
		for _, id := range productIDs {
			id = strings.TrimSpace(id)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if p, ok := st.products[id]; ok {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (r catalogRepository) Save(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, fmt.Errorf("memory.products.save: product id is required")
	}
	stored := product.Clone()
	err := r.s.write(ctx, func(st *state) error {
		st.products[stored.ID] = stored
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return stored.Clone(), nil
}

func (r catalogRepository) DecrementStock(ctx context.Context, productID string, by int) error {
	return r.adjust(ctx, "memory.products.decrement_stock", productID, -by, by)
}

func (r catalogRepository) IncrementStock(ctx context.Context, productID string, by int) error {
	return r.adjust(ctx, "memory.products.increment_stock", productID, by, by)
}

func (r catalogRepository) adjust(ctx context.Context, op, productID string, delta, by int) error {
	if by <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, op+": quantity must be positive")
	}
	return r.s.write(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("%s: product %s not found", op, productID))
		}
		if p.Stock+delta < 0 {
			return repositories.NewInsufficientStockError(op, productID, by, p.Stock)
		}
		p = p.Clone()
		p.Stock += delta
		p.UpdatedAt = r.s.now()
		st.products[productID] = p
		return nil
	})
}

type cartRepository struct{ s *Store }

func (r cartRepository) GetByUserID(ctx context.Context, userID string) (domain.Cart, error) {
	var out domain.Cart
	err := r.s.read(ctx, func(st *state) error {
		id, ok := st.cartByUser[strings.TrimSpace(userID)]
		if !ok {
			return repositories.NewNotFoundError("memory.carts.get", "cart for user %s not found", userID)
		}
		out = st.carts[id].Clone()
		return nil
	})
	return out, err
}

func (r cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if strings.TrimSpace(cart.ID) == "" || strings.TrimSpace(cart.UserID) == "" {
		return domain.Cart{}, fmt.Errorf("memory.carts.save: cart id and user id are required")
	}
	stored := cart.Clone()
	err := r.s.write(ctx, func(st *state) error {
		if existing, ok := st.cartByUser[stored.UserID]; ok && existing != stored.ID {
			return repositories.NewConflictError("memory.carts.save", fmt.Errorf("user %s already owns cart %s", stored.UserID, existing))
		}
		if prev, ok := st.carts[stored.ID]; ok && prev.UserID != stored.UserID {
			delete(st.cartByUser, prev.UserID)
		}
		st.carts[stored.ID] = stored
		st.cartByUser[stored.UserID] = stored.ID
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return stored.Clone(), nil
}

func (r cartRepository) Delete(ctx context.Context, cartID string) error {
	return r.s.write(ctx, func(st *state) error {
		cart, ok := st.carts[cartID]
		if !ok {
			return repositories.NewNotFoundError("memory.carts.delete", "cart %s not found", cartID)
		}
		delete(st.carts, cartID)
		delete(st.cartByUser, cart.UserID)
		return nil
	})
}

type orderRepository struct{ s *Store }

func (r orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, fmt.Errorf("memory.orders.save: order id is required")
	}
	stored := order.Clone()
	err := r.s.write(ctx, func(st *state) error {
		st.orders[stored.ID] = stored
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return stored.Clone(), nil
}

func (r orderRepository) GetByID(ctx context.Context, orderID string) (domain.Order, error) {
	var out domain.Order
	err := r.s.read(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return repositories.NewNotFoundError("memory.orders.get", "order %s not found", orderID)
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

type paymentRepository struct{ s *Store }

func (r paymentRepository) Save(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if strings.TrimSpace(payment.ID) == "" {
		return domain.Payment{}, fmt.Errorf("memory.payments.save: payment id is required")
	}
	err := r.s.write(ctx, func(st *state) error {
		st.payments[payment.ID] = payment
		return nil
	})
	return payment, err
}

func (r paymentRepository) GetByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	var out domain.Payment
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.payments[paymentID]
		if !ok {
			return repositories.NewNotFoundError("memory.payments.get", "payment %s not found", paymentID)
		}
		out = p
		return nil
	})
	return out, err
}

type shipmentRepository struct{ s *Store }

func (r shipmentRepository) Save(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error) {
	if strings.TrimSpace(shipment.ID) == "" {
		return domain.Shipment{}, fmt.Errorf("memory.shipments.save: shipment id is required")
	}
	err := r.s.write(ctx, func(st *state) error {
		st.shipments[shipment.ID] = shipment
		return nil
	})
	return shipment, err
}

func (r shipmentRepository) GetByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	var out domain.Shipment
	err := r.s.read(ctx, func(st *state) error {
		s, ok := st.shipments[shipmentID]
		if !ok {
			return repositories.NewNotFoundError("memory.shipments.get", "shipment %s not found", shipmentID)
		}
		out = s
		return nil
	})
	return out, err
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the product payload failed validation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a concurrent product update won.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates the catalog store failed.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps wires the dependencies required by the catalog service.
type CatalogServiceDeps struct {
	Store       repositories.Registry
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	store  repositories.Registry
	now    func() time.Time
	newID  func() string
	logger eventLogger
}

// NewCatalogService constructs a CatalogService validating required dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Store == nil {
		return nil, errors.New("catalog service: repository registry is required")
	}
	return &catalogService{
		store:  deps.Store,
		now:    utcClock(deps.Clock),
		newID:  defaultIDGenerator(deps.IDGenerator),
		logger: defaultLogger(deps.Logger),
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	product, err := domain.NewProduct(input, s.newID(), s.now())
	if err != nil {
		return Product{}, fmt.Errorf("%w: %w", ErrCatalogInvalidInput, err)
	}
	saved, err := s.store.Catalog().Save(ctx, product)
	if err != nil {
		return Product{}, s.translate(err)
	}
	s.logger(ctx, "catalog.product_created", map[string]any{"productId": saved.ID, "stock": saved.Stock})
	return saved, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID, err := requireID(productID, ErrCatalogInvalidInput, "product id")
	if err != nil {
		return Product{}, err
	}
	product, err := s.store.Catalog().GetByID(ctx, productID)
	if err != nil {
		return Product{}, s.translate(err)
	}
	return product, nil
}

// UpdateProduct applies patch and recomputes the tax-inclusive price.
func (s *catalogService) UpdateProduct(ctx context.Context, productID string, patch ProductPatch) (Product, error) {
	return s.modify(ctx, productID, "catalog.product_updated", func(p Product, now time.Time) (Product, error) {
		return domain.UpdateProduct(p, patch, now)
	})
}

// AdjustStock adds delta, which may be negative, to the product's stock. The result can never
// drop below zero.
func (s *catalogService) AdjustStock(ctx context.Context, productID string, delta int) (Product, error) {
	productID, err := requireID(productID, ErrCatalogInvalidInput, "product id")
	if err != nil {
		return Product{}, err
	}
	if delta == 0 {
		return s.GetProduct(ctx, productID)
	}

	var product Product
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.lockProduct(ctx, productID)
		if err != nil {
			return err
		}
		next, err := domain.ChangeStockBy(current, delta, s.now())
		if err != nil {
			return err
		}
		if delta > 0 {
			err = s.store.Catalog().IncrementStock(ctx, productID, delta)
		} else {
			err = s.store.Catalog().DecrementStock(ctx, productID, -delta)
		}
		product = next
		return err
	})
	if err != nil {
		return Product{}, s.translate(err)
	}
	s.logger(ctx, "catalog.stock_adjusted", map[string]any{"productId": productID, "delta": delta, "stock": product.Stock})
	return product, nil
}

func (s *catalogService) SetFeatured(ctx context.Context, productID string, featured bool) (Product, error) {
	return s.modify(ctx, productID, "catalog.featured_changed", func(p Product, now time.Time) (Product, error) {
		return domain.ChangeIsFeatured(p, featured, now), nil
	})
}

// RecordReview counts one more review against the product.
func (s *catalogService) RecordReview(ctx context.Context, productID string) (Product, error) {
	return s.modify(ctx, productID, "catalog.review_recorded", func(p Product, now time.Time) (Product, error) {
		return domain.AddNumReviews(p, now), nil
	})
}

func (s *catalogService) modify(ctx context.Context, productID, event string, apply func(Product, time.Time) (Product, error)) (Product, error) {
	productID, err := requireID(productID, ErrCatalogInvalidInput, "product id")
	if err != nil {
		return Product{}, err
	}
	var product Product
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.lockProduct(ctx, productID)
		if err != nil {
			return err
		}
		next, err := apply(current, s.now())
		if err != nil {
			return err
		}
		product, err = s.store.Catalog().Save(ctx, next)
		return err
	})
	if err != nil {
		return Product{}, s.translate(err)
	}
	s.logger(ctx, event, map[string]any{"productId": product.ID})
	return product, nil
}

// lockProduct reads the product for update. Save writes stock back, so the row stays locked
// until commit.
func (s *catalogService) lockProduct(ctx context.Context, productID string) (Product, error) {
	current, err := s.store.Catalog().GetByIDs(ctx, []string{productID}, repositories.ReadOptions{ForUpdate: true})
	if err != nil {
		return Product{}, err
	}
	if len(current) == 0 {
		return Product{}, domain.NewNotFoundError("product", productID)
	}
	return current[0], nil
}

func (s *catalogService) translate(err error) error {
	return translateError(err, ErrCatalogNotFound, ErrCatalogInvalidInput, ErrCatalogConflict, ErrCatalogUnavailable)
}

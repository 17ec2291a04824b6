package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrPricingInvalidInput indicates the caller supplied an empty user id.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingUnavailable indicates the cart or catalog store failed.
	ErrPricingUnavailable = errors.New("pricing: unavailable")
)

// CartPricingServiceDeps wires the dependencies required by the pricing service.
type CartPricingServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog repositories.CatalogRepository
	Cache   CartDetailCache
	Metrics *observability.Metrics
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type cartPricingService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	cache   CartDetailCache
	metrics *observability.Metrics
	now     func() time.Time
	logger  eventLogger
}

// NewCartPricingService constructs a CartPricingService validating required dependencies.
func NewCartPricingService(deps CartPricingServiceDeps) (CartPricingService, error) {
	if deps.Carts == nil {
		return nil, errors.New("pricing service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("pricing service: catalog repository is required")
	}
	return &cartPricingService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		now:     utcClock(deps.Clock),
		logger:  defaultLogger(deps.Logger),
	}, nil
}

// PriceCart joins the user's cart with live catalog data. Lines whose product disappeared or
// ran out are dropped, lines above stock are clamped, and tax is floored once over all lines.
func (s *cartPricingService) PriceCart(ctx context.Context, userID string) (detail *CartDetail, err error) {
	userID, err = requireID(userID, ErrPricingInvalidInput, "user id")
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "pricing.PriceCart", attribute.String("userId", userID))
	defer func() { observability.EndSpan(span, err) }()

	cart, err := s.carts.GetByUserID(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, nil
		}
		return nil, translateError(err, ErrPricingUnavailable, ErrPricingInvalidInput, ErrPricingUnavailable, ErrPricingUnavailable)
	}

	products, err := s.catalog.GetByIDs(ctx, cart.ProductIDs(), repositories.ReadOptions{})
	if err != nil {
		return nil, translateError(err, ErrPricingUnavailable, ErrPricingInvalidInput, ErrPricingUnavailable, ErrPricingUnavailable)
	}

	version := pricingVersion(cart, products)
	if cached := s.cached(ctx, userID); cached != nil && cached.Version == version {
		return cached, nil
	}

	detail = priceLines(cart, indexProducts(products))
	detail.Version = version
	detail.PricedAt = s.now()
	for _, adj := range detail.Adjustments {
		s.metrics.LineAdjusted(ctx, string(adj.Reason))
		if adj.Reason == AdjustmentProductMissing {
			s.logger(ctx, "pricing.product_missing", map[string]any{
				"userId":    userID,
				"cartId":    cart.ID,
				"productId": adj.ProductID,
			})
		}
	}

	s.store(ctx, userID, detail)
	return detail, nil
}

func (s *cartPricingService) cached(ctx context.Context, userID string) *CartDetail {
	if s.cache == nil {
		return nil
	}
	detail, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger(ctx, "pricing.cache_get_failed", map[string]any{"userId": userID, "error": err})
		return nil
	}
	return detail
}

func (s *cartPricingService) store(ctx context.Context, userID string, detail *CartDetail) {
	if s.cache == nil || detail == nil {
		return
	}
	if err := s.cache.Set(ctx, userID, detail); err != nil {
		s.logger(ctx, "pricing.cache_set_failed", map[string]any{"userId": userID, "error": err})
	}
}

// pricingVersion fingerprints every input of priceLines. A cached detail is served only while
// the cart and the live products it was priced from are unchanged.
func pricingVersion(cart domain.Cart, products []domain.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s", cart.ID, cart.UpdatedAt.UTC().Format(time.RFC3339Nano))
	for _, line := range cart.Lines() {
		fmt.Fprintf(&b, "|%s:%d", line.ProductID, line.Quantity)
	}
	sorted := slices.Clone(products)
	slices.SortFunc(sorted, func(a, b domain.Product) int { return strings.Compare(a.ID, b.ID) })
	for _, p := range sorted {
		fmt.Fprintf(&b, "|%s:%d:%d:%d:%s", p.ID, p.Stock, p.PriceBeforeTax, p.TaxRate, p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func indexProducts(products []domain.Product) map[string]domain.Product {
	index := make(map[string]domain.Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return index
}

func priceLines(cart domain.Cart, products map[string]domain.Product) *CartDetail {
	detail := &CartDetail{
		CartID: cart.ID,
		UserID: cart.UserID,
		Items:  make([]CartDetailItem, 0, len(cart.Items)),
	}

	var rawTax int64
	for _, line := range cart.Lines() {
		product, ok := products[line.ProductID]
		if !ok {
			detail.Adjustments = append(detail.Adjustments, CartAdjustment{
				ProductID: line.ProductID,
				Reason:    AdjustmentProductMissing,
				Requested: line.Quantity,
			})
			continue
		}

		qty := min(line.Quantity, product.Stock)
		if qty <= 0 {
			detail.Adjustments = append(detail.Adjustments, CartAdjustment{
				ProductID: line.ProductID,
				Reason:    AdjustmentOutOfStock,
				Requested: line.Quantity,
			})
			continue
		}
		if qty < line.Quantity {
			detail.Adjustments = append(detail.Adjustments, CartAdjustment{
				ProductID: line.ProductID,
				Reason:    AdjustmentClamped,
				Requested: line.Quantity,
				Applied:   qty,
			})
		}

		extended := product.PriceBeforeTax * int64(qty)
		detail.SubTotal += extended
		rawTax += extended * int64(product.TaxRate)
		detail.Items = append(detail.Items, CartDetailItem{
			ProductID:         product.ID,
			Name:              product.Name,
			ImageURL:          firstImageURL(product),
			PriceBeforeTax:    product.PriceBeforeTax,
			PriceAfterTax:     product.PriceAfterTax,
			TaxRate:           product.TaxRate,
			Quantity:          qty,
			RequestedQuantity: line.Quantity,
			LineTotal:         extended,
		})
	}

	detail.TaxTotal = rawTax / 100
	detail.GrandTotal = detail.SubTotal + detail.TaxTotal
	return detail
}

func firstImageURL(p domain.Product) string {
	if len(p.Images) == 0 {
		return ""
	}
	best := p.Images[0]
	for _, img := range p.Images[1:] {
		if img.DisplayOrd < best.DisplayOrd {
			best = img
		}
	}
	return strings.TrimSpace(best.URL)
}

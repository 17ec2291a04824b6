package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
)

const eventOrderCreated = "order.created"

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartEmpty indicates the user has no cart or the cart has no lines.
	ErrCheckoutCartEmpty = errors.New("checkout: cart empty")
	// ErrCheckoutProductUnavailable indicates a cart line references a product that no longer exists.
	ErrCheckoutProductUnavailable = errors.New("checkout: product unavailable")
	// ErrCheckoutInsufficientStock indicates a cart line asks for more than is in stock.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutOrderNotFound indicates a payment session was requested for an unknown order.
	ErrCheckoutOrderNotFound = errors.New("checkout: order not found")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Store       repositories.Registry
	Gateway     payments.Gateway
	Cache       CartDetailCache
	Events      OrderEventPublisher
	Metrics     *observability.Metrics
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	store   repositories.Registry
	gateway payments.Gateway
	cache   CartDetailCache
	events  OrderEventPublisher
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() string
	logger  eventLogger
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Store == nil {
		return nil, errors.New("checkout service: repository registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	return &checkoutService{
		store:   deps.Store,
		gateway: deps.Gateway,
		cache:   deps.Cache,
		events:  deps.Events,
		metrics: deps.Metrics,
		now:     utcClock(deps.Clock),
		newID:   defaultIDGenerator(deps.IDGenerator),
		logger:  defaultLogger(deps.Logger),
	}, nil
}

// PlaceOrder converts the user's cart into a pending order. Stock is checked against rows read
// for update and decremented in the same transaction; any shortage aborts the whole order.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (order Order, err error) {
	userID, err := requireID(cmd.UserID, ErrCheckoutInvalidInput, "user id")
	if err != nil {
		return Order{}, err
	}
	shipping, err := normaliseOptionalAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}
	billing, err := normaliseOptionalAddress(cmd.BillingAddress)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}

	ctx, span := observability.StartSpan(ctx, "checkout.PlaceOrder", attribute.String("userId", userID))
	defer func() { observability.EndSpan(span, err) }()

	orderID := s.newID()
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		placed, txErr := s.placeOrderTx(ctx, orderID, userID, shipping, billing)
		if txErr != nil {
			return txErr
		}
		order = placed
		return nil
	})
	if err != nil {
		var domainErr *domain.Error
		if errors.Is(err, ErrCheckoutInsufficientStock) && errors.As(err, &domainErr) {
			s.metrics.InsufficientStock(ctx, domainErr.Field)
		}
		s.logger(ctx, "checkout.place_order_failed", map[string]any{"userId": userID, "error": err})
		return Order{}, err
	}

	s.invalidateCart(ctx, userID)
	s.publish(ctx, eventOrderCreated, order)
	s.metrics.OrderPlaced(ctx, order.GrandTotal, len(order.Items))
	s.logger(ctx, "checkout.order_placed", map[string]any{
		"orderId":    order.ID,
		"userId":     userID,
		"grandTotal": order.GrandTotal,
		"lines":      len(order.Items),
	})
	return order, nil
}

func (s *checkoutService) placeOrderTx(ctx context.Context, orderID, userID string, shipping, billing *domain.Address) (domain.Order, error) {
	cart, err := s.store.Carts().GetByUserID(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, ErrCheckoutCartEmpty
		}
		return domain.Order{}, s.translate(err)
	}
	if cart.IsEmpty() {
		return domain.Order{}, ErrCheckoutCartEmpty
	}

	products, err := s.store.Catalog().GetByIDs(ctx, cart.ProductIDs(), repositories.ReadOptions{ForUpdate: true})
	if err != nil {
		return domain.Order{}, s.translate(err)
	}
	index := indexProducts(products)

	lines := cart.Lines()
	items := make([]domain.OrderItemInput, 0, len(lines))
	for _, line := range lines {
		product, ok := index[line.ProductID]
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: %w", ErrCheckoutProductUnavailable, domain.NewNotFoundError("product", line.ProductID))
		}
		if line.Quantity > product.Stock {
			return domain.Order{}, fmt.Errorf("%w: %w", ErrCheckoutInsufficientStock, domain.NewInsufficientStockError(product.ID, line.Quantity, product.Stock))
		}
		items = append(items, domain.OrderItemInput{
			ProductID:   product.ID,
			ProductName: product.Name,
			PriceExTax:  product.PriceBeforeTax,
			TaxRate:     product.TaxRate,
			Quantity:    line.Quantity,
		})
	}

	for _, item := range items {
		if err := s.store.Catalog().DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return domain.Order{}, s.translate(err)
		}
	}

	now := s.now()
	order, err := domain.NewOrder(domain.OrderInput{ID: orderID, UserID: userID, Items: items}, s.newID, now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}
	if shipping != nil {
		if order, err = domain.InsertShippingAddress(order, *shipping, now); err != nil {
			return domain.Order{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
		}
	}
	if billing != nil {
		if order, err = domain.InsertBillingAddress(order, *billing, now); err != nil {
			return domain.Order{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
		}
	}

	saved, err := s.store.Orders().Save(ctx, order)
	if err != nil {
		return domain.Order{}, s.translate(err)
	}
	if err := s.store.Carts().Delete(ctx, cart.ID); err != nil {
		return domain.Order{}, s.translate(err)
	}
	return saved, nil
}

// CreatePaymentSession opens a PSP session for a pending order and records a pending payment.
func (s *checkoutService) CreatePaymentSession(ctx context.Context, orderID string) (PaymentSession, error) {
	orderID, err := requireID(orderID, ErrCheckoutInvalidInput, "order id")
	if err != nil {
		return PaymentSession{}, err
	}

	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return PaymentSession{}, translateError(err, ErrCheckoutOrderNotFound, ErrCheckoutInvalidInput, ErrCheckoutConflict, ErrCheckoutUnavailable)
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentSession{}, fmt.Errorf("%w: order %s is %s", ErrCheckoutInvalidInput, order.ID, order.Status)
	}

	session, err := s.gateway.CreateSession(ctx, order)
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{"orderId": order.ID, "error": err})
		return PaymentSession{}, fmt.Errorf("%w: %w", ErrCheckoutPaymentFailed, err)
	}

	payment, err := domain.NewPayment(s.newID(), order.ID, s.gateway.Provider(), session.ID, order.GrandTotal, s.now())
	if err != nil {
		return PaymentSession{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}
	payment.IntentID = session.IntentID
	payment, err = s.store.Payments().Save(ctx, payment)
	if err != nil {
		return PaymentSession{}, s.translate(err)
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"orderId":   order.ID,
		"paymentId": payment.ID,
		"provider":  payment.Provider,
		"amount":    payment.Amount,
	})
	return PaymentSession{
		PaymentID:   payment.ID,
		SessionID:   session.ID,
		Provider:    payment.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// Checkout places the order and opens its payment session. When only the session fails the
// committed order is still returned so the caller can retry CreatePaymentSession.
func (s *checkoutService) Checkout(ctx context.Context, cmd PlaceOrderCommand) (CheckoutResult, error) {
	order, err := s.PlaceOrder(ctx, cmd)
	if err != nil {
		return CheckoutResult{}, err
	}
	session, err := s.CreatePaymentSession(ctx, order.ID)
	if err != nil {
		return CheckoutResult{Order: order}, err
	}
	return CheckoutResult{Order: order, Session: session}, nil
}

func (s *checkoutService) translate(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %w", ErrCheckoutInsufficientStock, domain.NewInsufficientStockError(invErr.ProductID, invErr.Requested, invErr.Available))
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %w", ErrCheckoutProductUnavailable, domain.NewNotFoundError("product", invErr.ProductID))
		}
	}
	return translateError(err, ErrCheckoutUnavailable, ErrCheckoutInvalidInput, ErrCheckoutConflict, ErrCheckoutUnavailable)
}

func (s *checkoutService) invalidateCart(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger(ctx, "checkout.cache_invalidate_failed", map[string]any{"userId": userID, "error": err})
	}
}

func (s *checkoutService) publish(ctx context.Context, eventType string, order domain.Order) {
	publishOrderEvent(ctx, s.events, s.logger, eventType, order, s.now())
}

func publishOrderEvent(ctx context.Context, publisher OrderEventPublisher, logger eventLogger, eventType string, order domain.Order, now time.Time) {
	if publisher == nil {
		return
	}
	event := OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		GrandTotal: order.GrandTotal,
		OccurredAt: now,
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event_publish_failed", map[string]any{"orderId": order.ID, "type": eventType, "error": err})
	}
}

func normaliseOptionalAddress(addr *domain.Address) (*domain.Address, error) {
	if addr == nil {
		return nil, nil
	}
	normalised, err := addr.Normalise()
	if err != nil {
		return nil, err
	}
	return &normalised, nil
}

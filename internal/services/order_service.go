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
	// ErrOrderInvalidInput indicates invalid ids, addresses or status transitions.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a concurrent order update won.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store failed.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Store  repositories.Registry
	Events OrderEventPublisher
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	store  repositories.Registry
	events OrderEventPublisher
	now    func() time.Time
	logger eventLogger
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: repository registry is required")
	}
	return &orderService{
		store:  deps.Store,
		events: deps.Events,
		now:    utcClock(deps.Clock),
		logger: defaultLogger(deps.Logger),
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID, err := requireID(orderID, ErrOrderInvalidInput, "order id")
	if err != nil {
		return Order{}, err
	}
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	return order, nil
}

// SetShippingAddress replaces the shipping address of a pending order.
func (s *orderService) SetShippingAddress(ctx context.Context, orderID string, addr Address) (Order, error) {
	return s.modify(ctx, orderID, func(o Order, now time.Time) (Order, error) {
		return domain.InsertShippingAddress(o, addr, now)
	})
}

// SetBillingAddress replaces the billing address of a pending order.
func (s *orderService) SetBillingAddress(ctx context.Context, orderID string, addr Address) (Order, error) {
	return s.modify(ctx, orderID, func(o Order, now time.Time) (Order, error) {
		return domain.InsertBillingAddress(o, addr, now)
	})
}

// TransitionStatus moves the order along the status table. Cancelling goes through
// CancelOrder so that stock is returned.
func (s *orderService) TransitionStatus(ctx context.Context, orderID string, target OrderStatus) (Order, error) {
	if target == domain.OrderStatusCancelled {
		return s.CancelOrder(ctx, orderID)
	}
	order, err := s.modify(ctx, orderID, func(o Order, now time.Time) (Order, error) {
		return domain.ChangeOrderStatus(o, target, now)
	})
	if err != nil {
		return Order{}, err
	}
	publishOrderEvent(ctx, s.events, s.logger, "order."+string(order.Status), order, s.now())
	return order, nil
}

// CancelOrder cancels a pending or paid order and returns its quantities to stock in the same
// transaction. Lines whose product was removed from the catalog are not restocked.
func (s *orderService) CancelOrder(ctx context.Context, orderID string) (Order, error) {
	orderID, err := requireID(orderID, ErrOrderInvalidInput, "order id")
	if err != nil {
		return Order{}, err
	}

	var (
		cancelled Order
		skipped   []string
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		skipped = skipped[:0]
		order, err := s.store.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		next, err := domain.ChangeOrderStatus(order, domain.OrderStatusCancelled, s.now())
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			ids = append(ids, item.ProductID)
		}
		products, err := s.store.Catalog().GetByIDs(ctx, ids, repositories.ReadOptions{ForUpdate: true})
		if err != nil {
			return err
		}
		index := indexProducts(products)

		for _, item := range order.Items {
			if _, ok := index[item.ProductID]; !ok {
				skipped = append(skipped, item.ProductID)
				continue
			}
			if err := s.store.Catalog().IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		cancelled, err = s.store.Orders().Save(ctx, next)
		return err
	})
	if err != nil {
		return Order{}, s.translate(err)
	}

	if len(skipped) > 0 {
		s.logger(ctx, "order.restock_skipped", map[string]any{"orderId": orderID, "productIds": skipped})
	}
	s.logger(ctx, "order.cancelled", map[string]any{"orderId": orderID, "userId": cancelled.UserID})
	publishOrderEvent(ctx, s.events, s.logger, "order."+string(cancelled.Status), cancelled, s.now())
	return cancelled, nil
}

func (s *orderService) modify(ctx context.Context, orderID string, apply func(Order, time.Time) (Order, error)) (Order, error) {
	orderID, err := requireID(orderID, ErrOrderInvalidInput, "order id")
	if err != nil {
		return Order{}, err
	}
	var order Order
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		next, err := apply(current, s.now())
		if err != nil {
			return err
		}
		order, err = s.store.Orders().Save(ctx, next)
		return err
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	return order, nil
}

func (s *orderService) translate(err error) error {
	return translateError(err, ErrOrderNotFound, ErrOrderInvalidInput, ErrOrderConflict, ErrOrderUnavailable)
}

// markOrder applies an order transition from another aggregate's service inside its transaction.
func markOrder(ctx context.Context, orders repositories.OrderRepository, order domain.Order, target domain.OrderStatus, now time.Time) (domain.Order, error) {
	if order.Status == target {
		return order, nil
	}
	next, err := domain.ChangeOrderStatus(order, target, now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", order.ID, err)
	}
	return orders.Save(ctx, next)
}

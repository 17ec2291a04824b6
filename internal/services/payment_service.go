package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrPaymentInvalidInput indicates invalid ids or an illegal status transition.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment, its order or its PSP session does not exist.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentConflict indicates a concurrent payment update won.
	ErrPaymentConflict = errors.New("payment: conflict")
	// ErrPaymentUnavailable indicates the store or PSP failed.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
)

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Store   repositories.Registry
	Gateway payments.Gateway
	Events  OrderEventPublisher
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	store   repositories.Registry
	gateway payments.Gateway
	events  OrderEventPublisher
	now     func() time.Time
	logger  eventLogger
}

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Store == nil {
		return nil, errors.New("payment service: repository registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: payment gateway is required")
	}
	return &paymentService{
		store:   deps.Store,
		gateway: deps.Gateway,
		events:  deps.Events,
		now:     utcClock(deps.Clock),
		logger:  defaultLogger(deps.Logger),
	}, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID, err := requireID(paymentID, ErrPaymentInvalidInput, "payment id")
	if err != nil {
		return Payment{}, err
	}
	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.translate(err)
	}
	return payment, nil
}

// TransitionPayment moves the payment along its status table. A payment reaching succeeded
// marks its order paid in the same transaction; a refunded payment announces order.refunded.
func (s *paymentService) TransitionPayment(ctx context.Context, cmd PaymentTransitionCommand) (Payment, error) {
	paymentID, err := requireID(cmd.PaymentID, ErrPaymentInvalidInput, "payment id")
	if err != nil {
		return Payment{}, err
	}

	var (
		payment  Payment
		order    Order
		paid     bool
		refunded bool
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		paid, refunded = false, false
		current, err := s.store.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		var linked domain.Order
		if cmd.Status == domain.PaymentStatusSucceeded || cmd.Status == domain.PaymentStatusRefunded {
			if linked, err = s.store.Orders().GetByID(ctx, current.OrderID); err != nil {
				return err
			}
		}

		next, err := domain.ChangePaymentStatus(current, cmd.Status, s.now())
		if err != nil {
			return err
		}
		if intent := strings.TrimSpace(cmd.IntentID); intent != "" {
			next.IntentID = intent
		}
		if payment, err = s.store.Payments().Save(ctx, next); err != nil {
			return err
		}

		if cmd.Status == domain.PaymentStatusSucceeded {
			wasPaid := linked.Status == domain.OrderStatusPaid
			if order, err = markOrder(ctx, s.store.Orders(), linked, domain.OrderStatusPaid, s.now()); err != nil {
				return err
			}
			paid = !wasPaid
		}
		if cmd.Status == domain.PaymentStatusRefunded {
			order, refunded = linked, true
		}
		return nil
	})
	if err != nil {
		return Payment{}, s.translate(err)
	}

	s.logger(ctx, "payment.transitioned", map[string]any{
		"paymentId": payment.ID,
		"orderId":   payment.OrderID,
		"status":    string(payment.Status),
	})
	if paid {
		publishOrderEvent(ctx, s.events, s.logger, "order."+string(order.Status), order, s.now())
	}
	// The order keeps its status; fulfilment holds shipments on this event.
	if refunded {
		s.logger(ctx, "order.refunded", map[string]any{
			"orderId":   order.ID,
			"paymentId": payment.ID,
			"amount":    payment.Amount,
			"status":    string(order.Status),
		})
		publishOrderEvent(ctx, s.events, s.logger, "order.refunded", order, s.now())
	}
	return payment, nil
}

// SyncPayment asks the gateway for the session state and applies any settled outcome.
func (s *paymentService) SyncPayment(ctx context.Context, paymentID string) (Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if payment.Status != domain.PaymentStatusPending {
		return payment, nil
	}

	state, err := s.gateway.LookupSession(ctx, payment.SessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return Payment{}, fmt.Errorf("%w: %w", ErrPaymentNotFound, err)
		}
		return Payment{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	target := state.Status.PaymentStatus()
	if target == domain.PaymentStatusPending {
		return payment, nil
	}
	return s.TransitionPayment(ctx, PaymentTransitionCommand{
		PaymentID: payment.ID,
		Status:    target,
		IntentID:  state.IntentID,
	})
}

// RefundPayment refunds a succeeded payment through the gateway, then records it as refunded.
func (s *paymentService) RefundPayment(ctx context.Context, paymentID string) (Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if !domain.CanTransitionPayment(payment.Status, domain.PaymentStatusRefunded) {
		return Payment{}, fmt.Errorf("%w: payment %s is %s", ErrPaymentInvalidInput, payment.ID, payment.Status)
	}
	if strings.TrimSpace(payment.IntentID) == "" {
		return Payment{}, fmt.Errorf("%w: payment %s has no intent to refund", ErrPaymentInvalidInput, payment.ID)
	}

	if err := s.gateway.Refund(ctx, payment.IntentID, payment.Amount); err != nil {
		s.logger(ctx, "payment.refund_failed", map[string]any{"paymentId": payment.ID, "error": err})
		return Payment{}, fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
	}
	return s.TransitionPayment(ctx, PaymentTransitionCommand{PaymentID: payment.ID, Status: domain.PaymentStatusRefunded})
}

func (s *paymentService) translate(err error) error {
	return translateError(err, ErrPaymentNotFound, ErrPaymentInvalidInput, ErrPaymentConflict, ErrPaymentUnavailable)
}

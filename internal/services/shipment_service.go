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
	// ErrShipmentInvalidInput indicates invalid ids, missing tracking data or an illegal transition.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrShipmentNotFound indicates the shipment or its order does not exist.
	ErrShipmentNotFound = errors.New("shipment: not found")
	// ErrShipmentConflict indicates a concurrent shipment update won.
	ErrShipmentConflict = errors.New("shipment: conflict")
	// ErrShipmentUnavailable indicates the shipment store failed.
	ErrShipmentUnavailable = errors.New("shipment: unavailable")
)

// ShipmentServiceDeps wires the dependencies required by the shipment service.
type ShipmentServiceDeps struct {
	Store       repositories.Registry
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shipmentService struct {
	store  repositories.Registry
	events OrderEventPublisher
	now    func() time.Time
	newID  func() string
	logger eventLogger
}

// NewShipmentService constructs a ShipmentService validating required dependencies.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Store == nil {
		return nil, errors.New("shipment service: repository registry is required")
	}
	return &shipmentService{
		store:  deps.Store,
		events: deps.Events,
		now:    utcClock(deps.Clock),
		newID:  defaultIDGenerator(deps.IDGenerator),
		logger: defaultLogger(deps.Logger),
	}, nil
}

// CreateShipment starts preparing a shipment for a paid order.
func (s *shipmentService) CreateShipment(ctx context.Context, orderID string) (Shipment, error) {
	orderID, err := requireID(orderID, ErrShipmentInvalidInput, "order id")
	if err != nil {
		return Shipment{}, err
	}
	var shipment Shipment
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.store.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPaid {
			return &domain.Error{
				Kind:    domain.KindInvalidStatusTransition,
				Code:    domain.CodeInvalidOrderStatus,
				Field:   "status",
				Message: fmt.Sprintf("order %s is %s, shipments need a paid order", order.ID, order.Status),
			}
		}
		created, err := domain.NewShipment(s.newID(), order.ID, s.now())
		if err != nil {
			return err
		}
		shipment, err = s.store.Shipments().Save(ctx, created)
		return err
	})
	if err != nil {
		return Shipment{}, s.translate(err)
	}
	s.logger(ctx, "shipment.created", map[string]any{"shipmentId": shipment.ID, "orderId": orderID})
	return shipment, nil
}

func (s *shipmentService) GetShipment(ctx context.Context, shipmentID string) (Shipment, error) {
	shipmentID, err := requireID(shipmentID, ErrShipmentInvalidInput, "shipment id")
	if err != nil {
		return Shipment{}, err
	}
	shipment, err := s.store.Shipments().GetByID(ctx, shipmentID)
	if err != nil {
		return Shipment{}, s.translate(err)
	}
	return shipment, nil
}

// TransitionShipment moves the shipment along its status table. Delivery completes the order.
func (s *shipmentService) TransitionShipment(ctx context.Context, cmd ShipmentTransitionCommand) (Shipment, error) {
	shipmentID, err := requireID(cmd.ShipmentID, ErrShipmentInvalidInput, "shipment id")
	if err != nil {
		return Shipment{}, err
	}

	var (
		shipment  Shipment
		order     Order
		completed bool
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		completed = false
		current, err := s.store.Shipments().GetByID(ctx, shipmentID)
		if err != nil {
			return err
		}
		var linked domain.Order
		if cmd.Status == domain.ShipmentStatusDelivered {
			if linked, err = s.store.Orders().GetByID(ctx, current.OrderID); err != nil {
				return err
			}
		}

		next, err := domain.ChangeShipmentStatus(current, domain.ShipmentTransition{
			Status:     cmd.Status,
			Carrier:    cmd.Carrier,
			TrackingID: cmd.TrackingID,
		}, s.now())
		if err != nil {
			return err
		}
		if shipment, err = s.store.Shipments().Save(ctx, next); err != nil {
			return err
		}

		if cmd.Status == domain.ShipmentStatusDelivered {
			wasCompleted := linked.Status == domain.OrderStatusCompleted
			if order, err = markOrder(ctx, s.store.Orders(), linked, domain.OrderStatusCompleted, s.now()); err != nil {
				return err
			}
			completed = !wasCompleted
		}
		return nil
	})
	if err != nil {
		return Shipment{}, s.translate(err)
	}

	s.logger(ctx, "shipment.transitioned", map[string]any{
		"shipmentId": shipment.ID,
		"orderId":    shipment.OrderID,
		"status":     string(shipment.Status),
	})
	if completed {
		publishOrderEvent(ctx, s.events, s.logger, "order."+string(order.Status), order, s.now())
	}
	return shipment, nil
}

func (s *shipmentService) translate(err error) error {
	return translateError(err, ErrShipmentNotFound, ErrShipmentInvalidInput, ErrShipmentConflict, ErrShipmentUnavailable)
}

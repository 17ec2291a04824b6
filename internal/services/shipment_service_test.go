package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func newShipmentService(t *testing.T, store *memory.Store, events OrderEventPublisher) ShipmentService {
	t.Helper()
	svc, err := NewShipmentService(ShipmentServiceDeps{Store: store, Events: events, Clock: fixedClock, IDGenerator: sequenceIDs("shp")})
	if err != nil {
		t.Fatalf("new shipment service: %v", err)
	}
	return svc
}

func TestCreateShipmentRequiresPaidOrder(t *testing.T) {
	store := memory.NewStore()
	seedOrder(t, store, "o1", domain.OrderStatusPending, map[string]int{"p1": 1})
	seedOrder(t, store, "o2", domain.OrderStatusPaid, map[string]int{"p1": 1})
	svc := newShipmentService(t, store, nil)
	ctx := context.Background()

	if _, err := svc.CreateShipment(ctx, "o1"); !errors.Is(err, ErrShipmentInvalidInput) || !errors.Is(err, domain.ErrInvalidOrderStatus) {
		t.Fatalf("expected pending order to be rejected, got %v", err)
	}
	if _, err := svc.CreateShipment(ctx, "missing"); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	shipment, err := svc.CreateShipment(ctx, "o2")
	if err != nil {
		t.Fatalf("CreateShipment returned error: %v", err)
	}
	if shipment.ID != "shp-001" || shipment.Status != domain.ShipmentStatusPreparing {
		t.Fatalf("unexpected shipment: %+v", shipment)
	}
	if got, err := svc.GetShipment(ctx, shipment.ID); err != nil || got.OrderID != "o2" {
		t.Fatalf("expected stored shipment, got %+v (%v)", got, err)
	}
}

func TestShipmentDeliveryCompletesOrder(t *testing.T) {
	store := memory.NewStore()
	seedOrder(t, store, "o1", domain.OrderStatusPaid, map[string]int{"p1": 1})
	events := &stubPublisher{}
	svc := newShipmentService(t, store, events)
	ctx := context.Background()

	shipment, err := svc.CreateShipment(ctx, "o1")
	if err != nil {
		t.Fatalf("CreateShipment returned error: %v", err)
	}
	_, err = svc.TransitionShipment(ctx, ShipmentTransitionCommand{ShipmentID: shipment.ID, Status: domain.ShipmentStatusShipped})
	if !errors.Is(err, domain.ErrInvalidValue) {
		t.Fatalf("expected tracking data to be required, got %v", err)
	}
	shipment, err = svc.TransitionShipment(ctx, ShipmentTransitionCommand{ShipmentID: shipment.ID, Status: domain.ShipmentStatusShipped, Carrier: "yamato", TrackingID: "1234"})
	if err != nil || shipment.TrackingID != "1234" {
		t.Fatalf("expected shipped with tracking, got %+v (%v)", shipment, err)
	}
	if _, err := svc.TransitionShipment(ctx, ShipmentTransitionCommand{ShipmentID: shipment.ID, Status: domain.ShipmentStatusDelivered}); !errors.Is(err, domain.ErrInvalidShipmentStatus) {
		t.Fatalf("expected shipped -> delivered to be rejected, got %v", err)
	}
	if _, err := svc.TransitionShipment(ctx, ShipmentTransitionCommand{ShipmentID: shipment.ID, Status: domain.ShipmentStatusInTransit}); err != nil {
		t.Fatalf("expected shipped -> in_transit, got %v", err)
	}
	if _, err := svc.TransitionShipment(ctx, ShipmentTransitionCommand{ShipmentID: shipment.ID, Status: domain.ShipmentStatusDelivered}); err != nil {
		t.Fatalf("expected in_transit -> delivered, got %v", err)
	}

	order, _ := store.Orders().GetByID(ctx, "o1")
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected order completed, got %s", order.Status)
	}
	if got := events.types(); len(got) != 1 || got[0] != "order.completed" {
		t.Fatalf("expected order.completed event, got %v", got)
	}
}

package domain

import (
	"errors"
	"testing"
	"time"
)

func TestChangePaymentStatus(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	payment, err := NewPayment("pay-1", "order-1", "stripe", "cs_1", 718, now)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}

	if _, err := ChangePaymentStatus(payment, PaymentStatusRefunded, now); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("pending -> refunded should fail, got %v", err)
	}
	succeeded, err := ChangePaymentStatus(payment, PaymentStatusSucceeded, now)
	if err != nil {
		t.Fatalf("pending -> succeeded: %v", err)
	}
	if !succeeded.UpdatedAt.After(payment.UpdatedAt) {
		t.Fatalf("expected updatedAt bump")
	}
	refunded, err := ChangePaymentStatus(succeeded, PaymentStatusRefunded, now)
	if err != nil {
		t.Fatalf("succeeded -> refunded: %v", err)
	}
	for _, target := range []PaymentStatus{PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed} {
		if _, err := ChangePaymentStatus(refunded, target, now); !errors.Is(err, ErrInvalidPaymentStatus) {
			t.Fatalf("refunded -> %s should fail, got %v", target, err)
		}
	}
	failed, _ := ChangePaymentStatus(payment, PaymentStatusFailed, now)
	if _, err := ChangePaymentStatus(failed, PaymentStatusSucceeded, now); err == nil {
		t.Fatalf("failed is terminal")
	}
}

func TestChangeShipmentStatusRequiresTrackingBeforeTable(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	shipment, err := NewShipment("ship-1", "order-1", now)
	if err != nil {
		t.Fatalf("NewShipment: %v", err)
	}

	if _, err := ChangeShipmentStatus(shipment, ShipmentTransition{Status: ShipmentStatusShipped, Carrier: "yamato"}, now); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected invalid value for missing tracking id, got %v", err)
	}

	delivered := shipment
	delivered.Status = ShipmentStatusDelivered
	// delivered -> shipped is not in the table, but the missing carrier is reported first.
	if _, err := ChangeShipmentStatus(delivered, ShipmentTransition{Status: ShipmentStatusShipped}, now); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected invalid value first, got %v", err)
	}
	if _, err := ChangeShipmentStatus(delivered, ShipmentTransition{Status: ShipmentStatusShipped, Carrier: "c", TrackingID: "t"}, now); !errors.Is(err, ErrInvalidShipmentStatus) {
		t.Fatalf("expected transition error, got %v", err)
	}
}

func TestChangeShipmentStatusWalk(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	shipment, _ := NewShipment("ship-1", "order-1", now)

	steps := []ShipmentTransition{
		{Status: ShipmentStatusShipped, Carrier: " yamato ", TrackingID: "T-1"},
		{Status: ShipmentStatusInTransit},
		{Status: ShipmentStatusDelivered},
		{Status: ShipmentStatusReturned},
	}
	var err error
	for _, step := range steps {
		shipment, err = ChangeShipmentStatus(shipment, step, now)
		if err != nil {
			t.Fatalf("-> %s: %v", step.Status, err)
		}
	}
	if shipment.Carrier != "yamato" || shipment.TrackingID != "T-1" {
		t.Fatalf("tracking not kept: %#v", shipment)
	}
	if _, err := ChangeShipmentStatus(shipment, ShipmentTransition{Status: ShipmentStatusLost}, now); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("returned is terminal, got %v", err)
	}

	lost, _ := NewShipment("ship-2", "order-1", now)
	if lost, err = ChangeShipmentStatus(lost, ShipmentTransition{Status: ShipmentStatusLost}, now); err != nil {
		t.Fatalf("preparing -> lost: %v", err)
	}
	if lost.Status != ShipmentStatusLost {
		t.Fatalf("expected lost")
	}
}

func TestErrorMatching(t *testing.T) {
	err := NewInsufficientStockError("p1", 2, 1)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock match")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("insufficient stock is not a validation error")
	}
	var domainErr *Error
	if !errors.As(err, &domainErr) || domainErr.Field != "p1" {
		t.Fatalf("expected product id in field, got %#v", domainErr)
	}
}

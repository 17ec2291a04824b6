package domain

import (
	"slices"
	"strings"
	"time"
)

// ShipmentStatus enumerates delivery states.
type ShipmentStatus string

const (
	ShipmentStatusPreparing ShipmentStatus = "preparing"
	ShipmentStatusShipped   ShipmentStatus = "shipped"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusReturned  ShipmentStatus = "returned"
	ShipmentStatusLost      ShipmentStatus = "lost"
)

var shipmentStatusTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusPreparing: {ShipmentStatusShipped, ShipmentStatusLost},
	ShipmentStatusShipped:   {ShipmentStatusInTransit, ShipmentStatusLost},
	ShipmentStatusInTransit: {ShipmentStatusDelivered, ShipmentStatusLost},
	ShipmentStatusDelivered: {ShipmentStatusReturned, ShipmentStatusLost},
	ShipmentStatusReturned:  {},
	ShipmentStatusLost:      {},
}

// Shipment tracks delivery of a paid order.
type Shipment struct {
	ID         string
	OrderID    string
	Carrier    string
	TrackingID string
	Status     ShipmentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ShipmentTransition requests a status change. Carrier and TrackingID are required when the
// target is shipped and ignored otherwise.
type ShipmentTransition struct {
	Status     ShipmentStatus
	Carrier    string
	TrackingID string
}

// NewShipment starts a shipment in the preparing state.
func NewShipment(id, orderID string, now time.Time) (Shipment, error) {
	id = strings.TrimSpace(id)
	orderID = strings.TrimSpace(orderID)
	if id == "" {
		return Shipment{}, validationError(CodeEmptyValue, "id", "shipment id is required")
	}
	if orderID == "" {
		return Shipment{}, validationError(CodeEmptyValue, "orderId", "order id is required")
	}
	now = now.UTC()
	return Shipment{
		ID:        id,
		OrderID:   orderID,
		Status:    ShipmentStatusPreparing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ChangeShipmentStatus applies t. Moving to shipped checks carrier and tracking id before
// the transition table.
func ChangeShipmentStatus(shipment Shipment, t ShipmentTransition, now time.Time) (Shipment, error) {
	out := shipment
	if t.Status == ShipmentStatusShipped {
		carrier := strings.TrimSpace(t.Carrier)
		tracking := strings.TrimSpace(t.TrackingID)
		if carrier == "" {
			return Shipment{}, validationError(CodeInvalidValue, "carrier", "carrier is required when shipping")
		}
		if tracking == "" {
			return Shipment{}, validationError(CodeInvalidValue, "trackingId", "tracking id is required when shipping")
		}
		out.Carrier = carrier
		out.TrackingID = tracking
	}
	if !slices.Contains(shipmentStatusTransitions[shipment.Status], t.Status) {
		return Shipment{}, transitionError(CodeInvalidShipmentStatus, string(shipment.Status), string(t.Status))
	}
	out.Status = t.Status
	out.UpdatedAt = laterThan(shipment.UpdatedAt, now)
	return out, nil
}

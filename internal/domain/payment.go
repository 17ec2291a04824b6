package domain

import (
	"slices"
	"strings"
	"time"
)

// PaymentStatus enumerates payment states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusSucceeded, PaymentStatusFailed},
	PaymentStatusSucceeded: {PaymentStatusRefunded},
	PaymentStatusFailed:    {},
	PaymentStatusRefunded:  {},
}

// Payment tracks the external payment session opened for an order.
type Payment struct {
	ID        string
	OrderID   string
	Provider  string
	SessionID string
	IntentID  string
	Amount    int64
	Status    PaymentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPayment opens a pending payment for an order amount.
func NewPayment(id, orderID, provider, sessionID string, amount int64, now time.Time) (Payment, error) {
	id = strings.TrimSpace(id)
	orderID = strings.TrimSpace(orderID)
	switch {
	case id == "":
		return Payment{}, validationError(CodeEmptyValue, "id", "payment id is required")
	case orderID == "":
		return Payment{}, validationError(CodeEmptyValue, "orderId", "order id is required")
	case strings.TrimSpace(sessionID) == "":
		return Payment{}, validationError(CodeEmptyValue, "sessionId", "session id is required")
	case amount < 0:
		return Payment{}, validationError(CodeInvalidPrice, "amount", "amount must not be negative")
	}
	now = now.UTC()
	return Payment{
		ID:        id,
		OrderID:   orderID,
		Provider:  strings.TrimSpace(provider),
		SessionID: strings.TrimSpace(sessionID),
		Amount:    amount,
		Status:    PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionPayment reports whether from -> to is in the payment status table.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(paymentStatusTransitions[from], to)
}

// ChangePaymentStatus moves payment to target according to the payment status table.
func ChangePaymentStatus(payment Payment, target PaymentStatus, now time.Time) (Payment, error) {
	if !CanTransitionPayment(payment.Status, target) {
		return Payment{}, transitionError(CodeInvalidPaymentStatus, string(payment.Status), string(target))
	}
	out := payment
	out.Status = target
	out.UpdatedAt = laterThan(payment.UpdatedAt, now)
	return out, nil
}

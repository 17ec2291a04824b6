// Package payments connects orders to external payment service providers.
package payments

import (
	"context"
	"errors"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Status enumerates the normalised session states shared across providers.
type Status string

const (
	// StatusPending indicates the customer has not completed payment yet.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the provider reports the payment as collected.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the session expired or the payment was declined.
	StatusFailed Status = "failed"
)

// ErrSessionNotFound is returned when a provider does not know a session id.
var ErrSessionNotFound = errors.New("payments: session not found")

// Session is the hosted checkout page opened for an order.
type Session struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// SessionState is the provider's current view of a session.
type SessionState struct {
	SessionID string
	IntentID  string
	Status    Status
	Amount    int64
}

// Gateway is the payment provider contract used by checkout and payment services.
type Gateway interface {
	// Provider names the backing PSP, stored on payments.
	Provider() string
	CreateSession(ctx context.Context, order domain.Order) (Session, error)
	LookupSession(ctx context.Context, sessionID string) (SessionState, error)
	Refund(ctx context.Context, intentID string, amount int64) error
}

// PaymentStatus maps a session status onto the payment aggregate.
func (s Status) PaymentStatus() domain.PaymentStatus {
	switch s {
	case StatusSucceeded:
		return domain.PaymentStatusSucceeded
	case StatusFailed:
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/observability"
)

const stripeProviderName = "stripe"

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	refunds  stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey     string
	AccountID  string
	SuccessURL string
	CancelURL  string
	Currency   string
	Backends   *stripe.Backends
	Logger     observability.EventLogger
	Clock      func() time.Time

	clients *stripeClients
}

// StripeGateway opens Stripe Checkout sessions for orders.
type StripeGateway struct {
	api        stripeClients
	account    string
	successURL string
	cancelURL  string
	currency   string
	clock      func() time.Time
	logger     observability.EventLogger
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a StripeGateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.clients == nil {
		return nil, errors.New("stripe: api key is required")
	}
	successURL := strings.TrimSpace(cfg.SuccessURL)
	cancelURL := strings.TrimSpace(cfg.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("stripe: success and cancel urls are required")
	}

	var clients stripeClients
	if cfg.clients != nil {
		clients = *cfg.clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{sessions: sc.CheckoutSessions, refunds: sc.Refunds}
	}
	if clients.sessions == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyJPY)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api:        clients,
		account:    strings.TrimSpace(cfg.AccountID),
		successURL: successURL,
		cancelURL:  cancelURL,
		currency:   currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (g *StripeGateway) Provider() string { return stripeProviderName }

// CreateSession opens a payment-mode Checkout session. Each order line is charged at its
// frozen tax-exclusive price; tax and shipping are separate lines so the session total
// equals the order's grand total.
func (g *StripeGateway) CreateSession(ctx context.Context, order domain.Order) (Session, error) {
	if len(order.Items) == 0 {
		return Session{}, errors.New("stripe: order has no items")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(order.ID),
		Metadata:          map[string]string{"orderId": order.ID, "userId": order.UserID},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"orderId": order.ID},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-session:" + order.ID)
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items)+2)
	for _, item := range order.Items {
		lineItems = append(lineItems, g.lineItem(item.ProductName, item.PriceExTax, int64(item.Quantity)))
	}
	if order.TaxTotal > 0 {
		lineItems = append(lineItems, g.lineItem("Tax", order.TaxTotal, 1))
	}
	if order.ShippingFee > 0 {
		lineItems = append(lineItems, g.lineItem("Shipping", order.ShippingFee, 1))
	}
	params.LineItems = lineItems

	session, err := g.api.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	g.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId":     session.ID,
		"orderId":       order.ID,
		"paymentIntent": intentID,
		"amountTotal":   session.AmountTotal,
	})

	expiresAt := g.clock().Add(24 * time.Hour)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return Session{
		ID:          session.ID,
		Provider:    stripeProviderName,
		RedirectURL: session.URL,
		IntentID:    intentID,
		ExpiresAt:   expiresAt,
	}, nil
}

func (g *StripeGateway) lineItem(name string, unitAmount, quantity int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(max(quantity, 1)),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(g.currency),
			UnitAmount: stripe.Int64(unitAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
	}
}

// LookupSession retrieves a Checkout session and normalises its payment state.
func (g *StripeGateway) LookupSession(ctx context.Context, sessionID string) (SessionState, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionState{}, errors.New("stripe: session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	session, err := g.api.sessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return SessionState{}, fmt.Errorf("stripe: lookup session %s: %w", sessionID, ErrSessionNotFound)
		}
		return SessionState{}, fmt.Errorf("stripe: lookup session: %w", err)
	}
	return stripeSessionState(session), nil
}

// Refund refunds amount of a captured payment intent.
func (g *StripeGateway) Refund(ctx context.Context, intentID string, amount int64) error {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return errors.New("stripe: payment intent id is required")
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund:" + intentID)
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	if _, err := g.api.refunds.New(params); err != nil {
		return fmt.Errorf("stripe: refund payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.refunded", map[string]any{
		"paymentIntent": intentID,
		"amount":        amount,
	})
	return nil
}

func stripeSessionState(session *stripe.CheckoutSession) SessionState {
	state := SessionState{SessionID: session.ID, Status: StatusPending, Amount: session.AmountTotal}
	if session.PaymentIntent != nil {
		state.IntentID = session.PaymentIntent.ID
	}
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		state.Status = StatusSucceeded
	case session.Status == stripe.CheckoutSessionStatusExpired:
		state.Status = StatusFailed
	case session.PaymentIntent != nil && session.PaymentIntent.Status == stripe.PaymentIntentStatusCanceled:
		state.Status = StatusFailed
	}
	return state
}

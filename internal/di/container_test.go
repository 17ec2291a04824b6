package di

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/services"
)

func loadTestConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load(context.Background(), config.WithEnvMap(env), config.WithoutSystemEnv(), config.WithEnvFile(""))
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	return cfg
}

func TestNewContainerMemoryBackendRunsOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := loadTestConfig(t, map[string]string{})
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	gateway := payments.NewLocalGateway("http://localhost/checkout", func() time.Time { return now })

	c, err := NewContainer(ctx, cfg, zaptest.NewLogger(t),
		WithGateway(gateway),
		WithMeter(noop.NewMeterProvider().Meter("test")),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewContainer returned error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	svc := c.Services

	product, err := svc.Catalog.CreateProduct(ctx, services.ProductInput{Name: "Hanko", PriceBeforeTax: 199, TaxRate: 10, Stock: 3})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if _, err := svc.Carts.AddItem(ctx, services.CartItemCommand{UserID: "user-1", ProductID: product.ID, Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	detail, err := svc.Pricing.PriceCart(ctx, "user-1")
	if err != nil || detail == nil || detail.GrandTotal != 218 {
		t.Fatalf("unexpected priced cart: %+v (%v)", detail, err)
	}

	result, err := svc.Checkout.Checkout(ctx, services.PlaceOrderCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.Order.GrandTotal != 718 || !strings.HasPrefix(result.Session.RedirectURL, "http://localhost/checkout/pay/") {
		t.Fatalf("unexpected checkout result: %+v", result)
	}

	if err := gateway.Settle(result.Session.SessionID, payments.StatusSucceeded); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	payment, err := svc.Payments.SyncPayment(ctx, result.Session.PaymentID)
	if err != nil || payment.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded payment, got %+v (%v)", payment, err)
	}

	shipment, err := svc.Shipments.CreateShipment(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	steps := []services.ShipmentTransitionCommand{
		{ShipmentID: shipment.ID, Status: domain.ShipmentStatusShipped, Carrier: "sagawa", TrackingID: "T-1"},
		{ShipmentID: shipment.ID, Status: domain.ShipmentStatusInTransit},
		{ShipmentID: shipment.ID, Status: domain.ShipmentStatusDelivered},
	}
	for _, step := range steps {
		if _, err := svc.Shipments.TransitionShipment(ctx, step); err != nil {
			t.Fatalf("TransitionShipment(%s): %v", step.Status, err)
		}
	}
	order, err := svc.Orders.GetOrder(ctx, result.Order.ID)
	if err != nil || order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed order, got %s (%v)", order.Status, err)
	}
	stocked, _ := svc.Catalog.GetProduct(ctx, product.ID)
	if stocked.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", stocked.Stock)
	}
}

func TestNewContainerDefaultsToLocalGateway(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	c, err := NewContainer(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewContainer returned error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if c.Gateway.Provider() != "local" {
		t.Fatalf("expected local gateway without a stripe key, got %s", c.Gateway.Provider())
	}
}

func TestNewContainerRejectsUnknownBackend(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{})
	cfg.Store.Backend = "mysql"
	if _, err := NewContainer(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBuildGatewaySelectsStripeWithKey(t *testing.T) {
	cfg := config.PSPConfig{
		Provider:     "stripe",
		StripeAPIKey: "sk_test_123",
		SuccessURL:   "https://shop.example.com/ok",
		CancelURL:    "https://shop.example.com/cancel",
		Currency:     "jpy",
	}
	gateway, err := buildGateway(cfg, zaptest.NewLogger(t), time.Now)
	if err != nil {
		t.Fatalf("buildGateway returned error: %v", err)
	}
	if gateway.Provider() != "stripe" {
		t.Fatalf("expected stripe gateway, got %s", gateway.Provider())
	}

	cfg.SuccessURL = ""
	if _, err := buildGateway(cfg, zaptest.NewLogger(t), time.Now); err == nil {
		t.Fatal("expected error without redirect urls")
	}
}

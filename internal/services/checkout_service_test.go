package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func newCheckoutService(t *testing.T, store *memory.Store, deps CheckoutServiceDeps) CheckoutService {
	t.Helper()
	deps.Store = store
	if deps.Gateway == nil {
		deps.Gateway = &stubGateway{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequenceIDs("id")
	}
	svc, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func testAddress() *domain.Address {
	return &domain.Address{
		Recipient:  " Hanako Yamada ",
		PostalCode: "150-0001",
		Prefecture: "Tokyo",
		City:       "Shibuya",
		Line1:      "1-2-3 Jingumae",
	}
}

func TestPlaceOrderSingleLine(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p1", 199, 10, 5)
	seedCart(t, store, "user-1", map[string]int{"p1": 1})
	cache := &stubCache{}
	events := &stubPublisher{}

	svc := newCheckoutService(t, store, CheckoutServiceDeps{Cache: cache, Events: events})
	order, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1", ShippingAddress: testAddress()})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if order.ItemsSubtotal != 199 || order.TaxTotal != 19 || order.ShippingFee != 500 || order.GrandTotal != 718 {
		t.Fatalf("unexpected totals: %+v", order.Totals())
	}
	if order.ID != "id-001" || order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order header: id=%s status=%s", order.ID, order.Status)
	}
	if order.ShippingAddress == nil || order.ShippingAddress.Recipient != "Hanako Yamada" || order.BillingAddress != nil {
		t.Fatalf("unexpected addresses: %+v %+v", order.ShippingAddress, order.BillingAddress)
	}

	p, _ := store.Catalog().GetByID(context.Background(), "p1")
	if p.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", p.Stock)
	}
	if _, err := store.Carts().GetByUserID(context.Background(), "user-1"); !repositories.IsNotFound(err) {
		t.Fatalf("expected cart to be deleted, got %v", err)
	}
	saved, err := store.Orders().GetByID(context.Background(), order.ID)
	if err != nil || saved.GrandTotal != 718 {
		t.Fatalf("expected persisted order, got %+v %v", saved, err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "user-1" {
		t.Fatalf("expected cache invalidation, got %v", cache.invalidated)
	}
	if got := events.types(); len(got) != 1 || got[0] != "order.created" {
		t.Fatalf("expected order.created event, got %v", got)
	}
}

func TestPlaceOrderFreeShippingAboveThreshold(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p1", 2500, 10, 5)
	seedCart(t, store, "user-1", map[string]int{"p1": 2})

	order, err := newCheckoutService(t, store, CheckoutServiceDeps{}).PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if order.ShippingFee != 0 || order.GrandTotal != 5500 {
		t.Fatalf("expected free shipping and 5500, got %+v", order.Totals())
	}
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p1", 1000, 10, 5)
	seedProduct(t, store, "p2", 1000, 10, 2)
	seedCart(t, store, "user-1", map[string]int{"p1": 1, "p2": 3})
	events := &stubPublisher{}

	_, err := newCheckoutService(t, store, CheckoutServiceDeps{Events: events}).PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1"})
	if !errors.Is(err, ErrCheckoutInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var domainErr *domain.Error
	if !errors.Is(err, domain.ErrInsufficientStock) || !errors.As(err, &domainErr) || domainErr.Field != "p2" {
		t.Fatalf("expected domain error naming p2, got %v", err)
	}

	for id, want := range map[string]int{"p1": 5, "p2": 2} {
		p, _ := store.Catalog().GetByID(context.Background(), id)
		if p.Stock != want {
			t.Fatalf("expected %s stock %d, got %d", id, want, p.Stock)
		}
	}
	if _, err := store.Carts().GetByUserID(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected cart to survive, got %v", err)
	}
	if len(events.types()) != 0 {
		t.Fatalf("expected no events, got %v", events.types())
	}
}

func TestPlaceOrderRejectsMissingProductAndEmptyCart(t *testing.T) {
	store := memory.NewStore()
	seedCart(t, store, "user-1", map[string]int{"gone": 1})
	svc := newCheckoutService(t, store, CheckoutServiceDeps{})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1"})
	if !errors.Is(err, ErrCheckoutProductUnavailable) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected product unavailable, got %v", err)
	}

	_, err = svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-2"})
	if !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected cart empty for missing cart, got %v", err)
	}

	empty, _ := domain.NewEmptyCart("cart-3", "user-3", testNow)
	if _, err := store.Carts().Save(context.Background(), empty); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	_, err = svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-3"})
	if !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected cart empty for empty cart, got %v", err)
	}

	_, err = svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1", BillingAddress: &domain.Address{}})
	if !errors.Is(err, ErrCheckoutInvalidInput) || !errors.Is(err, domain.ErrEmptyValue) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestPlaceOrderConcurrentCheckoutsOnLastUnit(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p1", 1000, 10, 1)
	seedCart(t, store, "user-a", map[string]int{"p1": 1})
	seedCart(t, store, "user-b", map[string]int{"p1": 1})
	svc := newCheckoutService(t, store, CheckoutServiceDeps{})

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, user := range []string{"user-a", "user-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: user})
		}()
	}
	close(start)
	wg.Wait()

	successes, shortages := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrCheckoutInsufficientStock):
			shortages++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || shortages != 1 {
		t.Fatalf("expected one success and one shortage, got %d/%d", successes, shortages)
	}
	p, _ := store.Catalog().GetByID(context.Background(), "p1")
	if p.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", p.Stock)
	}
}

func TestCheckoutCreatesPaymentSession(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p1", 1000, 10, 5)
	seedCart(t, store, "user-1", map[string]int{"p1": 2})

	var charged int64
	gateway := &stubGateway{createFunc: func(_ context.Context, order domain.Order) (payments.Session, error) {
		charged = order.GrandTotal
		return payments.Session{ID: "cs_1", RedirectURL: "https://pay.example.com/cs_1", IntentID: "pi_1"}, nil
	}}
	result, err := newCheckoutService(t, store, CheckoutServiceDeps{Gateway: gateway}).Checkout(context.Background(), PlaceOrderCommand{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}
	if charged != 2700 || result.Order.GrandTotal != 2700 {
		t.Fatalf("expected gateway to charge 2700, got %d", charged)
	}
	if result.Session.SessionID != "cs_1" || result.Session.Provider != "stub" || result.Session.RedirectURL == "" {
		t.Fatalf("unexpected session: %+v", result.Session)
	}

	payment, err := store.Payments().GetByID(context.Background(), result.Session.PaymentID)
	if err != nil {
		t.Fatalf("expected stored payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending || payment.Amount != 2700 || payment.IntentID != "pi_1" || payment.OrderID != result.Order.ID {
		t.Fatalf("unexpected payment: %+v", payment)
	}
}

func TestCheckoutReturnsOrderWhenSessionFails(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p1", 1000, 10, 5)
	seedCart(t, store, "user-1", map[string]int{"p1": 1})
	gateway := &stubGateway{createFunc: func(context.Context, domain.Order) (payments.Session, error) {
		return payments.Session{}, errors.New("psp down")
	}}
	svc := newCheckoutService(t, store, CheckoutServiceDeps{Gateway: gateway})

	result, err := svc.Checkout(context.Background(), PlaceOrderCommand{UserID: "user-1"})
	if !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
	if result.Order.ID == "" {
		t.Fatal("expected committed order to be returned")
	}
	if _, err := store.Orders().GetByID(context.Background(), result.Order.ID); err != nil {
		t.Fatalf("expected order to stay committed: %v", err)
	}
}

func TestCreatePaymentSessionRequiresPendingOrder(t *testing.T) {
	store := memory.NewStore()
	svc := newCheckoutService(t, store, CheckoutServiceDeps{})

	if _, err := svc.CreatePaymentSession(context.Background(), "missing"); !errors.Is(err, ErrCheckoutOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}

	order, _ := domain.NewOrder(domain.OrderInput{ID: "o1", UserID: "user-1", Items: []domain.OrderItemInput{
		{ProductID: "p1", ProductName: "Mug", PriceExTax: 100, TaxRate: 10, Quantity: 1},
	}}, sequenceIDs("item"), testNow)
	order, _ = domain.ChangeOrderStatus(order, domain.OrderStatusCancelled, testNow)
	if _, err := store.Orders().Save(context.Background(), order); err != nil {
		t.Fatalf("save order: %v", err)
	}
	if _, err := svc.CreatePaymentSession(context.Background(), "o1"); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input for cancelled order, got %v", err)
	}
}

func TestNewCheckoutServiceRequiresDependencies(t *testing.T) {
	if _, err := NewCheckoutService(CheckoutServiceDeps{}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewCheckoutService(CheckoutServiceDeps{Store: memory.NewStore()}); err == nil {
		t.Fatal("expected error without gateway")
	}
}

package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func seedProduct(t *testing.T, store *memory.Store, id string, price int64, taxRate, stock int) domain.Product {
	t.Helper()
	p, err := domain.NewProduct(domain.ProductInput{
		Name:           "Product " + id,
		PriceBeforeTax: price,
		TaxRate:        taxRate,
		Stock:          stock,
		Images: []domain.ProductImage{
			{URL: "https://cdn.example.com/" + id + "-2.jpg", DisplayOrd: 2},
			{URL: "https://cdn.example.com/" + id + "-1.jpg", DisplayOrd: 1},
		},
	}, id, testNow)
	if err != nil {
		t.Fatalf("new product: %v", err)
	}
	saved, err := store.Catalog().Save(context.Background(), p)
	if err != nil {
		t.Fatalf("save product: %v", err)
	}
	return saved
}

func seedCart(t *testing.T, store *memory.Store, userID string, lines map[string]int) domain.Cart {
	t.Helper()
	cart, err := domain.NewEmptyCart("cart-"+userID, userID, testNow)
	if err != nil {
		t.Fatalf("new cart: %v", err)
	}
	for productID, qty := range lines {
		if cart, err = domain.AddCartItem(cart, productID, qty, testNow); err != nil {
			t.Fatalf("add cart item: %v", err)
		}
	}
	saved, err := store.Carts().Save(context.Background(), cart)
	if err != nil {
		t.Fatalf("save cart: %v", err)
	}
	return saved
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type stubCache struct {
	getFunc     func(ctx context.Context, userID string) (*CartDetail, error)
	setFunc     func(ctx context.Context, userID string, detail *CartDetail) error
	invalidated []string
}

func (s *stubCache) Get(ctx context.Context, userID string) (*CartDetail, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return nil, nil
}

func (s *stubCache) Set(ctx context.Context, userID string, detail *CartDetail) error {
	if s.setFunc != nil {
		return s.setFunc(ctx, userID, detail)
	}
	return nil
}

func (s *stubCache) Invalidate(_ context.Context, userIDs ...string) error {
	s.invalidated = append(s.invalidated, userIDs...)
	return nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *stubPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *stubPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type stubGateway struct {
	createFunc func(ctx context.Context, order domain.Order) (payments.Session, error)
	lookupFunc func(ctx context.Context, sessionID string) (payments.SessionState, error)
	refundFunc func(ctx context.Context, intentID string, amount int64) error
}

func (g *stubGateway) Provider() string { return "stub" }

func (g *stubGateway) CreateSession(ctx context.Context, order domain.Order) (payments.Session, error) {
	if g.createFunc != nil {
		return g.createFunc(ctx, order)
	}
	return payments.Session{
		ID:          "sess-" + order.ID,
		Provider:    "stub",
		RedirectURL: "https://pay.example.com/" + order.ID,
		ExpiresAt:   testNow.Add(time.Hour),
	}, nil
}

func (g *stubGateway) LookupSession(ctx context.Context, sessionID string) (payments.SessionState, error) {
	if g.lookupFunc != nil {
		return g.lookupFunc(ctx, sessionID)
	}
	return payments.SessionState{SessionID: sessionID, Status: payments.StatusPending}, nil
}

func (g *stubGateway) Refund(ctx context.Context, intentID string, amount int64) error {
	if g.refundFunc != nil {
		return g.refundFunc(ctx, intentID, amount)
	}
	return nil
}

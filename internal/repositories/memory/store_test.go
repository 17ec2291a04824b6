package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func seedProduct(t *testing.T, s *Store, id string, stock int) domain.Product {
	t.Helper()
	p, err := domain.NewProduct(domain.ProductInput{
		Name:           "Mug " + id,
		PriceBeforeTax: 1000,
		TaxRate:        10,
		Stock:          stock,
	}, id, testNow)
	if err != nil {
		t.Fatalf("new product: %v", err)
	}
	saved, err := s.Catalog().Save(context.Background(), p)
	if err != nil {
		t.Fatalf("save product: %v", err)
	}
	return saved
}

func TestCatalogGetByIDsOmitsMissing(t *testing.T) {
	s := NewStore()
	seedProduct(t, s, "p1", 3)
	seedProduct(t, s, "p2", 3)

	got, err := s.Catalog().GetByIDs(context.Background(), []string{"p2", "missing", "p1", "p2"}, repositories.ReadOptions{})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p2" || got[1].ID != "p1" {
		t.Fatalf("unexpected products: %+v", got)
	}

	_, err = s.Catalog().GetByID(context.Background(), "missing")
	if !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogDecrementStock(t *testing.T) {
	later := testNow.Add(time.Hour)
	s := NewStore(WithClock(func() time.Time { return later }))
	seedProduct(t, s, "p1", 2)
	ctx := context.Background()

	if err := s.Catalog().DecrementStock(ctx, "p1", 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	p, _ := s.Catalog().GetByID(ctx, "p1")
	if p.Stock != 0 || !p.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected product after decrement: stock=%d updated=%s", p.Stock, p.UpdatedAt)
	}

	err := s.Catalog().DecrementStock(ctx, "p1", 1)
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if invErr.Requested != 1 || invErr.Available != 0 {
		t.Fatalf("unexpected inventory error: %+v", invErr)
	}

	err = s.Catalog().DecrementStock(ctx, "nope", 1)
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorProductNotFound {
		t.Fatalf("expected product not found, got %v", err)
	}
	err = s.Catalog().IncrementStock(ctx, "p1", 0)
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInvalidQuantity {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestCartSaveKeepsOneCartPerUser(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	cart, _ := domain.NewEmptyCart("c1", "u1", testNow)
	cart, _ = domain.AddCartItem(cart, "p1", 2, testNow)

	if _, err := s.Carts().Save(ctx, cart); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	other, _ := domain.NewEmptyCart("c2", "u1", testNow)
	_, err := s.Carts().Save(ctx, other)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := s.Carts().GetByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	got.Items["p9"] = domain.CartItem{ProductID: "p9", Quantity: 1}
	again, _ := s.Carts().GetByUserID(ctx, "u1")
	if len(again.Items) != 1 {
		t.Fatalf("stored cart was mutated through a returned value")
	}

	if err := s.Carts().Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete cart: %v", err)
	}
	if _, err := s.Carts().GetByUserID(ctx, "u1"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := s.Carts().Save(ctx, other); err != nil {
		t.Fatalf("save after delete: %v", err)
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	seedProduct(t, s, "p1", 5)
	boom := errors.New("boom")

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := s.Catalog().DecrementStock(ctx, "p1", 3); err != nil {
			return err
		}
		p, err := s.Catalog().GetByID(ctx, "p1")
		if err != nil {
			return err
		}
		if p.Stock != 2 {
			t.Errorf("tx should observe its own write, got stock %d", p.Stock)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	p, _ := s.Catalog().GetByID(context.Background(), "p1")
	if p.Stock != 5 {
		t.Fatalf("expected rollback to stock 5, got %d", p.Stock)
	}
}

func TestRunInTxNestedJoinsOuter(t *testing.T) {
	s := NewStore()
	seedProduct(t, s, "p1", 5)

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		return s.RunInTx(ctx, func(inner context.Context) error {
			return s.Catalog().DecrementStock(inner, "p1", 1)
		})
	})
	if err != nil {
		t.Fatalf("nested tx: %v", err)
	}
	p, _ := s.Catalog().GetByID(context.Background(), "p1")
	if p.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", p.Stock)
	}
}

func TestRunInTxSerialisesCompetingDecrements(t *testing.T) {
	s := NewStore()
	seedProduct(t, s, "p1", 1)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.RunInTx(context.Background(), func(ctx context.Context) error {
				products, err := s.Catalog().GetByIDs(ctx, []string{"p1"}, repositories.ReadOptions{ForUpdate: true})
				if err != nil {
					return err
				}
				if len(products) != 1 || products[0].Stock < 1 {
					return repositories.NewInsufficientStockError("test", "p1", 1, 0)
				}
				return s.Catalog().DecrementStock(ctx, "p1", 1)
			})
			mu.Lock()
			defer mu.Unlock()
			var invErr *repositories.InventoryError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &invErr):
				shortages++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || shortages != workers-1 {
		t.Fatalf("expected 1 success and %d shortages, got %d/%d", workers-1, successes, shortages)
	}
	p, _ := s.Catalog().GetByID(context.Background(), "p1")
	if p.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", p.Stock)
	}
}

func TestRunInTxHonoursCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}

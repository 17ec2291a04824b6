package postgres

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"gorm.io/gorm"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func TestOrderModelKeepsLinePositions(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:     "o1",
		UserID: "u1",
		Items: []domain.OrderItem{
			{ID: "oi2", ProductID: "p2", ProductName: "Plate", PriceExTax: 300, TaxRate: 8, Quantity: 1},
			{ID: "oi1", ProductID: "p1", ProductName: "Mug", PriceExTax: 1000, TaxRate: 10, Quantity: 2},
		},
		ItemsSubtotal:  2300,
		TaxTotal:       224,
		ShippingFee:    500,
		GrandTotal:     3024,
		Status:         domain.OrderStatusPending,
		BillingAddress: &domain.Address{Recipient: "Sato", PostalCode: "100-0001", Prefecture: "Tokyo", City: "Chiyoda", Line1: "1-1"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m := orderToModel(order)
	if m.Items[0].Position != 0 || m.Items[1].Position != 1 || m.Items[1].OrderID != "o1" {
		t.Fatalf("unexpected item rows: %+v", m.Items)
	}
	m.BillingAddress.City = "mutated"
	if order.BillingAddress.City != "Chiyoda" {
		t.Fatalf("model shares the address with the domain order")
	}
	m.BillingAddress.City = "Chiyoda"

	if got := orderFromModel(m); !reflect.DeepEqual(got, order) {
		t.Fatalf("order changed in round trip:\n got %+v\nwant %+v", got, order)
	}
}

func TestCartAndProductModels(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cart, _ := domain.NewEmptyCart("c1", "u1", now)
	cart, _ = domain.AddCartItem(cart, "p1", 3, now)
	m := cartToModel(cart)
	if len(m.Items) != 1 || m.Items[0].CartID != "c1" {
		t.Fatalf("unexpected cart rows: %+v", m.Items)
	}
	if got := cartFromModel(m); !reflect.DeepEqual(got, cart) {
		t.Fatalf("cart changed in round trip: %+v", got)
	}

	name := "side"
	product := domain.Product{ID: "p1", Name: "Mug", PriceBeforeTax: 1000, TaxRate: 10, PriceAfterTax: 1100, Stock: 4,
		Images: []domain.ProductImage{{URL: "https://cdn.example.com/p1.png", ImageName: &name, DisplayOrd: 2}}, CreatedAt: now, UpdatedAt: now}
	pm := productToModel(product)
	if pm.Images[0].ProductID != "p1" {
		t.Fatalf("image row missing product id")
	}
	if got := productFromModel(pm); !reflect.DeepEqual(got, product) {
		t.Fatalf("product changed in round trip: %+v", got)
	}
}

func TestWrapErrorClassifiesGormErrors(t *testing.T) {
	if err := wrapError("orders.get", gorm.ErrRecordNotFound); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var repoErr repositories.RepositoryError
	if err := wrapError("carts.save", gorm.ErrDuplicatedKey); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := wrapError("x", context.Canceled); err != context.Canceled {
		t.Fatalf("expected context error to pass through, got %v", err)
	}
	invErr := repositories.NewInsufficientStockError("products.decrement_stock", "p1", 2, 1)
	var gotInv *repositories.InventoryError
	if err := wrapError("checkout", invErr); !errors.As(err, &gotInv) {
		t.Fatalf("expected inventory error to stay reachable, got %v", err)
	}
	if wrapError("x", nil) != nil {
		t.Fatal("expected nil")
	}
}

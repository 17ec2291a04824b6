package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func mustOrder(t *testing.T, items ...OrderItemInput) Order {
	t.Helper()
	order, err := NewOrder(OrderInput{UserID: "user-1", Items: items}, sequentialIDs("id"), time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	return order
}

func TestNewOrderFloorsTaxOnce(t *testing.T) {
	order := mustOrder(t, OrderItemInput{ProductID: "p1", ProductName: "Pen", PriceExTax: 199, TaxRate: 10, Quantity: 1})

	if order.TaxTotal != 19 {
		t.Fatalf("expected tax 19, got %d", order.TaxTotal)
	}
	if order.ShippingFee != 500 {
		t.Fatalf("expected shipping 500, got %d", order.ShippingFee)
	}
	if order.GrandTotal != 718 {
		t.Fatalf("expected grand total 718, got %d", order.GrandTotal)
	}
	if order.Status != OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.ShippingAddress != nil || order.BillingAddress != nil {
		t.Fatalf("expected no addresses")
	}
}

func TestNewOrderTaxSummedAcrossLinesBeforeFlooring(t *testing.T) {
	// Per-line flooring would give 19 + 19 = 38.
	order := mustOrder(t,
		OrderItemInput{ProductID: "p1", ProductName: "Pen", PriceExTax: 199, TaxRate: 10, Quantity: 1},
		OrderItemInput{ProductID: "p2", ProductName: "Ink", PriceExTax: 199, TaxRate: 10, Quantity: 1},
	)
	if order.TaxTotal != 39 {
		t.Fatalf("expected tax 39, got %d", order.TaxTotal)
	}
}

func TestNewOrderShippingThreshold(t *testing.T) {
	cases := []struct {
		name     string
		price    int64
		rate     int
		shipping int64
	}{
		{name: "exactly threshold", price: 5000, rate: 0, shipping: 500},
		{name: "one above threshold", price: 5001, rate: 0, shipping: 0},
		{name: "tax pushes above", price: 4600, rate: 10, shipping: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := mustOrder(t, OrderItemInput{ProductID: "p1", ProductName: "Box", PriceExTax: tc.price, TaxRate: tc.rate, Quantity: 1})
			if order.ShippingFee != tc.shipping {
				t.Fatalf("expected shipping %d, got %d", tc.shipping, order.ShippingFee)
			}
			if order.GrandTotal != order.ItemsSubtotal+order.TaxTotal+order.ShippingFee {
				t.Fatalf("grand total mismatch %#v", order.Totals())
			}
		})
	}
}

func TestNewOrderMultiLine(t *testing.T) {
	order := mustOrder(t,
		OrderItemInput{ProductID: "p1", ProductName: "Cup", PriceExTax: 1000, TaxRate: 10, Quantity: 3},
		OrderItemInput{ProductID: "p2", ProductName: "Pot", PriceExTax: 2000, TaxRate: 10, Quantity: 1},
	)
	want := OrderTotals{ItemsSubtotal: 5000, TaxTotal: 500, ShippingFee: 0, GrandTotal: 5500}
	if order.Totals() != want {
		t.Fatalf("expected %#v, got %#v", want, order.Totals())
	}
	if len(order.Items) != 2 || order.Items[0].ID == order.Items[1].ID {
		t.Fatalf("expected distinct item ids, got %#v", order.Items)
	}
}

func TestNewOrderValidation(t *testing.T) {
	ids := sequentialIDs("id")
	now := time.Now()
	if _, err := NewOrder(OrderInput{UserID: "", Items: []OrderItemInput{{ProductID: "p", ProductName: "n", Quantity: 1}}}, ids, now); !errors.Is(err, ErrEmptyValue) {
		t.Fatalf("expected empty user id error, got %v", err)
	}
	if _, err := NewOrder(OrderInput{UserID: "u"}, ids, now); !errors.Is(err, ErrEmptyValue) {
		t.Fatalf("expected empty items error, got %v", err)
	}
	if _, err := NewOrder(OrderInput{UserID: "u", Items: []OrderItemInput{{ProductID: "p", ProductName: "n", Quantity: 0}}}, ids, now); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if _, err := NewOrder(OrderInput{UserID: "u", Items: []OrderItemInput{{ProductID: "p", ProductName: "n", Quantity: 1, PriceExTax: -1}}}, ids, now); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
}

func TestInsertAddressesArePure(t *testing.T) {
	order := mustOrder(t, OrderItemInput{ProductID: "p1", ProductName: "Pen", PriceExTax: 100, TaxRate: 10, Quantity: 1})
	addr := Address{Recipient: "Aoi", PostalCode: "100-0001", Prefecture: "Tokyo", City: "Chiyoda", Line1: "1-1"}

	withShipping, err := InsertShippingAddress(order, addr, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ShippingAddress != nil {
		t.Fatalf("input order mutated")
	}
	if withShipping.ShippingAddress == nil || withShipping.ShippingAddress.City != "Chiyoda" {
		t.Fatalf("shipping address not set: %#v", withShipping.ShippingAddress)
	}

	withBilling, err := InsertBillingAddress(withShipping, addr, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withShipping.BillingAddress != nil || withBilling.BillingAddress == nil {
		t.Fatalf("billing address not applied to copy only")
	}

	if _, err := InsertBillingAddress(order, Address{Recipient: "Aoi"}, time.Now()); !errors.Is(err, ErrEmptyValue) {
		t.Fatalf("expected validation error, got %v", err)
	}

	paid, _ := ChangeOrderStatus(order, OrderStatusPaid, time.Now())
	if _, err := InsertShippingAddress(paid, addr, time.Now()); !errors.Is(err, ErrInvalidOrderStatus) {
		t.Fatalf("expected status error for paid order, got %v", err)
	}
}

func TestChangeOrderStatus(t *testing.T) {
	order := mustOrder(t, OrderItemInput{ProductID: "p1", ProductName: "Pen", PriceExTax: 100, TaxRate: 10, Quantity: 1})
	now := order.UpdatedAt

	paid, err := ChangeOrderStatus(order, OrderStatusPaid, now)
	if err != nil {
		t.Fatalf("pending -> paid: %v", err)
	}
	if !paid.UpdatedAt.After(order.UpdatedAt) {
		t.Fatalf("expected updatedAt bump")
	}
	if _, err := ChangeOrderStatus(paid, OrderStatusPending, now); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("paid -> pending should fail, got %v", err)
	}
	completed, err := ChangeOrderStatus(paid, OrderStatusCompleted, now)
	if err != nil {
		t.Fatalf("paid -> completed: %v", err)
	}
	if _, err := ChangeOrderStatus(completed, OrderStatusCancelled, now); !errors.Is(err, ErrInvalidOrderStatus) {
		t.Fatalf("completed is terminal, got %v", err)
	}
	if _, err := ChangeOrderStatus(order, OrderStatusPending, now); err == nil {
		t.Fatalf("same-state transition should fail")
	}
}

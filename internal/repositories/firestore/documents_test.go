package firestore

import (
	"reflect"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestProductDocumentKeepsOptionalFields(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	category := "cat_1"
	rating := 4.5
	name := "front"
	p := domain.Product{
		ID:             "p1",
		Name:           "Mug",
		CategoryID:     &category,
		PriceBeforeTax: 1000,
		TaxRate:        10,
		PriceAfterTax:  1100,
		Stock:          3,
		Rating:         &rating,
		Images:         []domain.ProductImage{{URL: "https://cdn.example.com/a.png", ImageName: &name, DisplayOrd: 1}},
		CreatedAt:      time.Date(2025, 3, 1, 18, 0, 0, 0, jst),
		UpdatedAt:      time.Date(2025, 3, 1, 18, 0, 0, 0, jst),
	}

	doc := productToDocument(p)
	if doc.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected timestamps normalised to UTC")
	}
	got := productFromDocument(doc)
	if *got.CategoryID != category || got.BrandID != nil || *got.Rating != rating {
		t.Fatalf("optional fields lost: %+v", got)
	}
	if len(got.Images) != 1 || *got.Images[0].ImageName != name {
		t.Fatalf("images lost: %+v", got.Images)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Fatalf("created at changed: %s", got.CreatedAt)
	}

	*doc.CategoryID = "mutated"
	if *got.CategoryID != category {
		t.Fatalf("decoded product shares pointers with the document")
	}
}

func TestCartDocumentOrdersLinesAndDropsEmpty(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cart, _ := domain.NewEmptyCart("c1", "u1", now)
	cart, _ = domain.AddCartItem(cart, "p2", 1, now)
	cart, _ = domain.AddCartItem(cart, "p1", 2, now)

	doc := cartToDocument(cart)
	if len(doc.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(doc.Items))
	}
	doc.Items = append(doc.Items, cartItemDocument{ProductID: "p3", Quantity: 0})

	got := cartFromDocument(doc)
	if got.ID != "c1" || got.UserID != "u1" {
		t.Fatalf("unexpected cart identity: %+v", got)
	}
	if len(got.Items) != 2 || got.Items["p1"].Quantity != 2 || got.Items["p2"].Quantity != 1 {
		t.Fatalf("unexpected items: %+v", got.Items)
	}
}

func TestOrderDocumentRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:     "o1",
		UserID: "u1",
		Items: []domain.OrderItem{
			{ID: "oi1", ProductID: "p1", ProductName: "Mug", PriceExTax: 1000, TaxRate: 10, Quantity: 2},
		},
		ItemsSubtotal:   2000,
		TaxTotal:        200,
		ShippingFee:     500,
		GrandTotal:      2700,
		Status:          domain.OrderStatusPending,
		ShippingAddress: &domain.Address{Recipient: "Sato", PostalCode: "100-0001", Prefecture: "Tokyo", City: "Chiyoda", Line1: "1-1"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	got := orderFromDocument(orderToDocument(order))
	if !reflect.DeepEqual(got, order) {
		t.Fatalf("order changed in round trip:\n got %+v\nwant %+v", got, order)
	}
	if got.BillingAddress != nil {
		t.Fatalf("expected nil billing address")
	}
}

func TestPaymentAndShipmentDocuments(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	payment := domain.Payment{ID: "pay1", OrderID: "o1", Provider: "stripe", SessionID: "cs_1", Amount: 2700, Status: domain.PaymentStatusPending, CreatedAt: now, UpdatedAt: now}
	if got := paymentFromDocument(paymentToDocument(payment)); got != payment {
		t.Fatalf("payment changed: %+v", got)
	}
	shipment := domain.Shipment{ID: "s1", OrderID: "o1", Carrier: "yamato", TrackingID: "123", Status: domain.ShipmentStatusShipped, CreatedAt: now, UpdatedAt: now}
	if got := shipmentFromDocument(shipmentToDocument(shipment)); got != shipment {
		t.Fatalf("shipment changed: %+v", got)
	}
}

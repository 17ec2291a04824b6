package firestore

import (
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const (
	productsCollection  = "products"
	cartsCollection     = "carts"
	ordersCollection    = "orders"
	paymentsCollection  = "payments"
	shipmentsCollection = "shipments"
)

type productDocument struct {
	ID             string                 `firestore:"id"`
	Name           string                 `firestore:"name"`
	Description    string                 `firestore:"description"`
	CategoryID     *string                `firestore:"categoryId"`
	BrandID        *string                `firestore:"brandId"`
	PriceBeforeTax int64                  `firestore:"priceBeforeTax"`
	TaxRate        int                    `firestore:"taxRate"`
	PriceAfterTax  int64                  `firestore:"priceAfterTax"`
	Stock          int                    `firestore:"stock"`
	NumReviews     int                    `firestore:"numReviews"`
	Rating         *float64               `firestore:"rating"`
	IsFeatured     bool                   `firestore:"isFeatured"`
	Images         []productImageDocument `firestore:"images"`
	CreatedAt      time.Time              `firestore:"createdAt"`
	UpdatedAt      time.Time              `firestore:"updatedAt"`
}

type productImageDocument struct {
	URL        string  `firestore:"url"`
	ImageName  *string `firestore:"imageName"`
	DisplayOrd int     `firestore:"displayOrd"`
}

// cartDocument is stored under the owning user's id so one user maps to one document.
type cartDocument struct {
	ID        string             `firestore:"id"`
	UserID    string             `firestore:"userId"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type orderDocument struct {
	ID              string              `firestore:"id"`
	UserID          string              `firestore:"userId"`
	Items           []orderItemDocument `firestore:"items"`
	ItemsSubtotal   int64               `firestore:"itemsSubtotal"`
	TaxTotal        int64               `firestore:"taxTotal"`
	ShippingFee     int64               `firestore:"shippingFee"`
	GrandTotal      int64               `firestore:"grandTotal"`
	Status          string              `firestore:"status"`
	ShippingAddress *addressDocument    `firestore:"shippingAddress"`
	BillingAddress  *addressDocument    `firestore:"billingAddress"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID          string `firestore:"id"`
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	PriceExTax  int64  `firestore:"priceExTax"`
	TaxRate     int    `firestore:"taxRate"`
	Quantity    int    `firestore:"quantity"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	PostalCode string `firestore:"postalCode"`
	Prefecture string `firestore:"prefecture"`
	City       string `firestore:"city"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
}

type paymentDocument struct {
	ID        string    `firestore:"id"`
	OrderID   string    `firestore:"orderId"`
	Provider  string    `firestore:"provider"`
	SessionID string    `firestore:"sessionId"`
	IntentID  string    `firestore:"intentId,omitempty"`
	Amount    int64     `firestore:"amount"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type shipmentDocument struct {
	ID         string    `firestore:"id"`
	OrderID    string    `firestore:"orderId"`
	Carrier    string    `firestore:"carrier,omitempty"`
	TrackingID string    `firestore:"trackingId,omitempty"`
	Status     string    `firestore:"status"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func productToDocument(p domain.Product) productDocument {
	doc := productDocument{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		CategoryID:     p.CategoryID,
		BrandID:        p.BrandID,
		PriceBeforeTax: p.PriceBeforeTax,
		TaxRate:        p.TaxRate,
		PriceAfterTax:  p.PriceAfterTax,
		Stock:          p.Stock,
		NumReviews:     p.NumReviews,
		Rating:         p.Rating,
		IsFeatured:     p.IsFeatured,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
	for _, img := range p.Images {
		doc.Images = append(doc.Images, productImageDocument{URL: img.URL, ImageName: img.ImageName, DisplayOrd: img.DisplayOrd})
	}
	return doc
}

func productFromDocument(doc productDocument) domain.Product {
	p := domain.Product{
		ID:             doc.ID,
		Name:           doc.Name,
		Description:    doc.Description,
		CategoryID:     doc.CategoryID,
		BrandID:        doc.BrandID,
		PriceBeforeTax: doc.PriceBeforeTax,
		TaxRate:        doc.TaxRate,
		PriceAfterTax:  doc.PriceAfterTax,
		Stock:          doc.Stock,
		NumReviews:     doc.NumReviews,
		Rating:         doc.Rating,
		IsFeatured:     doc.IsFeatured,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
	}
	for _, img := range doc.Images {
		p.Images = append(p.Images, domain.ProductImage{URL: img.URL, ImageName: img.ImageName, DisplayOrd: img.DisplayOrd})
	}
	return p.Clone()
}

func cartToDocument(c domain.Cart) cartDocument {
	doc := cartDocument{
		ID:        c.ID,
		UserID:    c.UserID,
		Items:     make([]cartItemDocument, 0, len(c.Items)),
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
	for _, item := range c.Lines() {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			CreatedAt: item.CreatedAt.UTC(),
			UpdatedAt: item.UpdatedAt.UTC(),
		})
	}
	return doc
}

func cartFromDocument(doc cartDocument) domain.Cart {
	c := domain.Cart{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Items:     make(map[string]domain.CartItem, len(doc.Items)),
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	for _, item := range doc.Items {
		if item.Quantity <= 0 {
			continue
		}
		c.Items[item.ProductID] = domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			CreatedAt: item.CreatedAt.UTC(),
			UpdatedAt: item.UpdatedAt.UTC(),
		}
	}
	return c
}

func orderToDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           make([]orderItemDocument, 0, len(o.Items)),
		ItemsSubtotal:   o.ItemsSubtotal,
		TaxTotal:        o.TaxTotal,
		ShippingFee:     o.ShippingFee,
		GrandTotal:      o.GrandTotal,
		Status:          string(o.Status),
		ShippingAddress: addressToDocument(o.ShippingAddress),
		BillingAddress:  addressToDocument(o.BillingAddress),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	return doc
}

func orderFromDocument(doc orderDocument) domain.Order {
	o := domain.Order{
		ID:              doc.ID,
		UserID:          doc.UserID,
		Items:           make([]domain.OrderItem, 0, len(doc.Items)),
		ItemsSubtotal:   doc.ItemsSubtotal,
		TaxTotal:        doc.TaxTotal,
		ShippingFee:     doc.ShippingFee,
		GrandTotal:      doc.GrandTotal,
		Status:          domain.OrderStatus(doc.Status),
		ShippingAddress: addressFromDocument(doc.ShippingAddress),
		BillingAddress:  addressFromDocument(doc.BillingAddress),
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
	}
	for _, item := range doc.Items {
		o.Items = append(o.Items, domain.OrderItem(item))
	}
	return o
}

func addressToDocument(a *domain.Address) *addressDocument {
	if a == nil {
		return nil
	}
	doc := addressDocument(*a)
	return &doc
}

func addressFromDocument(doc *addressDocument) *domain.Address {
	if doc == nil {
		return nil
	}
	a := domain.Address(*doc)
	return &a
}

func paymentToDocument(p domain.Payment) paymentDocument {
	return paymentDocument{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Provider:  p.Provider,
		SessionID: p.SessionID,
		IntentID:  p.IntentID,
		Amount:    p.Amount,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func paymentFromDocument(doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:        doc.ID,
		OrderID:   doc.OrderID,
		Provider:  doc.Provider,
		SessionID: doc.SessionID,
		IntentID:  doc.IntentID,
		Amount:    doc.Amount,
		Status:    domain.PaymentStatus(doc.Status),
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

func shipmentToDocument(s domain.Shipment) shipmentDocument {
	return shipmentDocument{
		ID:         s.ID,
		OrderID:    s.OrderID,
		Carrier:    s.Carrier,
		TrackingID: s.TrackingID,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt.UTC(),
		UpdatedAt:  s.UpdatedAt.UTC(),
	}
}

func shipmentFromDocument(doc shipmentDocument) domain.Shipment {
	return domain.Shipment{
		ID:         doc.ID,
		OrderID:    doc.OrderID,
		Carrier:    doc.Carrier,
		TrackingID: doc.TrackingID,
		Status:     domain.ShipmentStatus(doc.Status),
		CreatedAt:  doc.CreatedAt.UTC(),
		UpdatedAt:  doc.UpdatedAt.UTC(),
	}
}

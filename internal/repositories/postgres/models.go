package postgres

import (
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type productModel struct {
	ID             string              `gorm:"primaryKey;type:varchar(26)"`
	Name           string              `gorm:"type:varchar(255);not null"`
	Description    string              `gorm:"type:text"`
	CategoryID     *string             `gorm:"type:varchar(26);index"`
	BrandID        *string             `gorm:"type:varchar(26);index"`
	PriceBeforeTax int64               `gorm:"not null"`
	TaxRate        int                 `gorm:"not null"`
	PriceAfterTax  int64               `gorm:"not null"`
	Stock          int                 `gorm:"not null;default:0;check:stock >= 0"`
	NumReviews     int                 `gorm:"not null;default:0"`
	Rating         *float64
	IsFeatured     bool                `gorm:"not null;default:false;index"`
	Images         []productImageModel `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time           `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime:false"`
}

func (productModel) TableName() string { return "products" }

type productImageModel struct {
	ID         uint    `gorm:"primaryKey"`
	ProductID  string  `gorm:"type:varchar(26);not null;index"`
	URL        string  `gorm:"type:text;not null"`
	ImageName  *string `gorm:"type:varchar(255)"`
	DisplayOrd int     `gorm:"not null;default:0"`
}

func (productImageModel) TableName() string { return "product_images" }

type cartModel struct {
	ID        string          `gorm:"primaryKey;type:varchar(26)"`
	UserID    string          `gorm:"type:varchar(128);not null;uniqueIndex"`
	Items     []cartItemModel `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime:false"`
}

func (cartModel) TableName() string { return "carts" }

type cartItemModel struct {
	CartID    string    `gorm:"primaryKey;type:varchar(26)"`
	ProductID string    `gorm:"primaryKey;type:varchar(26)"`
	Quantity  int       `gorm:"not null;check:quantity > 0"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (cartItemModel) TableName() string { return "cart_items" }

type orderModel struct {
	ID              string           `gorm:"primaryKey;type:varchar(26)"`
	UserID          string           `gorm:"type:varchar(128);not null;index"`
	Items           []orderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ItemsSubtotal   int64            `gorm:"not null"`
	TaxTotal        int64            `gorm:"not null"`
	ShippingFee     int64            `gorm:"not null"`
	GrandTotal      int64            `gorm:"not null"`
	Status          string           `gorm:"type:varchar(16);not null;index"`
	ShippingAddress *domain.Address  `gorm:"type:jsonb;serializer:json"`
	BillingAddress  *domain.Address  `gorm:"type:jsonb;serializer:json"`
	CreatedAt       time.Time        `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime:false"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID          string `gorm:"primaryKey;type:varchar(26)"`
	OrderID     string `gorm:"type:varchar(26);not null;index"`
	Position    int    `gorm:"not null"`
	ProductID   string `gorm:"type:varchar(26);not null"`
	ProductName string `gorm:"type:varchar(255);not null"`
	PriceExTax  int64  `gorm:"not null"`
	TaxRate     int    `gorm:"not null"`
	Quantity    int    `gorm:"not null"`
}

func (orderItemModel) TableName() string { return "order_items" }

type paymentModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)"`
	OrderID   string    `gorm:"type:varchar(26);not null;index"`
	Provider  string    `gorm:"type:varchar(32);not null"`
	SessionID string    `gorm:"type:varchar(255);not null"`
	IntentID  string    `gorm:"type:varchar(255)"`
	Amount    int64     `gorm:"not null"`
	Status    string    `gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (paymentModel) TableName() string { return "payments" }

type shipmentModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(26)"`
	OrderID    string    `gorm:"type:varchar(26);not null;index"`
	Carrier    string    `gorm:"type:varchar(64)"`
	TrackingID string    `gorm:"type:varchar(128)"`
	Status     string    `gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (shipmentModel) TableName() string { return "shipments" }

// models lists every table in migration order.
func models() []any {
	return []any{
		&productModel{}, &productImageModel{},
		&cartModel{}, &cartItemModel{},
		&orderModel{}, &orderItemModel{},
		&paymentModel{}, &shipmentModel{},
	}
}

func productToModel(p domain.Product) productModel {
	m := productModel{
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
		m.Images = append(m.Images, productImageModel{
			ProductID:  p.ID,
			URL:        img.URL,
			ImageName:  img.ImageName,
			DisplayOrd: img.DisplayOrd,
		})
	}
	return m
}

func productFromModel(m productModel) domain.Product {
	p := domain.Product{
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		CategoryID:     m.CategoryID,
		BrandID:        m.BrandID,
		PriceBeforeTax: m.PriceBeforeTax,
		TaxRate:        m.TaxRate,
		PriceAfterTax:  m.PriceAfterTax,
		Stock:          m.Stock,
		NumReviews:     m.NumReviews,
		Rating:         m.Rating,
		IsFeatured:     m.IsFeatured,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	for _, img := range m.Images {
		p.Images = append(p.Images, domain.ProductImage{URL: img.URL, ImageName: img.ImageName, DisplayOrd: img.DisplayOrd})
	}
	return p.Clone()
}

func cartToModel(c domain.Cart) cartModel {
	m := cartModel{
		ID:        c.ID,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
	for _, item := range c.Lines() {
		m.Items = append(m.Items, cartItemModel{
			CartID:    c.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			CreatedAt: item.CreatedAt.UTC(),
			UpdatedAt: item.UpdatedAt.UTC(),
		})
	}
	return m
}

func cartFromModel(m cartModel) domain.Cart {
	c := domain.Cart{
		ID:        m.ID,
		UserID:    m.UserID,
		Items:     make(map[string]domain.CartItem, len(m.Items)),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	for _, item := range m.Items {
		c.Items[item.ProductID] = domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			CreatedAt: item.CreatedAt.UTC(),
			UpdatedAt: item.UpdatedAt.UTC(),
		}
	}
	return c
}

func orderToModel(o domain.Order) orderModel {
	clone := o.Clone()
	m := orderModel{
		ID:              o.ID,
		UserID:          o.UserID,
		ItemsSubtotal:   o.ItemsSubtotal,
		TaxTotal:        o.TaxTotal,
		ShippingFee:     o.ShippingFee,
		GrandTotal:      o.GrandTotal,
		Status:          string(o.Status),
		ShippingAddress: clone.ShippingAddress,
		BillingAddress:  clone.BillingAddress,
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
	for i, item := range o.Items {
		m.Items = append(m.Items, orderItemModel{
			ID:          item.ID,
			OrderID:     o.ID,
			Position:    i,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			PriceExTax:  item.PriceExTax,
			TaxRate:     item.TaxRate,
			Quantity:    item.Quantity,
		})
	}
	return m
}

// orderFromModel expects m.Items sorted by Position.
func orderFromModel(m orderModel) domain.Order {
	o := domain.Order{
		ID:              m.ID,
		UserID:          m.UserID,
		Items:           make([]domain.OrderItem, 0, len(m.Items)),
		ItemsSubtotal:   m.ItemsSubtotal,
		TaxTotal:        m.TaxTotal,
		ShippingFee:     m.ShippingFee,
		GrandTotal:      m.GrandTotal,
		Status:          domain.OrderStatus(m.Status),
		ShippingAddress: m.ShippingAddress,
		BillingAddress:  m.BillingAddress,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			PriceExTax:  item.PriceExTax,
			TaxRate:     item.TaxRate,
			Quantity:    item.Quantity,
		})
	}
	return o.Clone()
}

func paymentToModel(p domain.Payment) paymentModel {
	return paymentModel{
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

func paymentFromModel(m paymentModel) domain.Payment {
	return domain.Payment{
		ID:        m.ID,
		OrderID:   m.OrderID,
		Provider:  m.Provider,
		SessionID: m.SessionID,
		IntentID:  m.IntentID,
		Amount:    m.Amount,
		Status:    domain.PaymentStatus(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func shipmentToModel(s domain.Shipment) shipmentModel {
	return shipmentModel{
		ID:         s.ID,
		OrderID:    s.OrderID,
		Carrier:    s.Carrier,
		TrackingID: s.TrackingID,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt.UTC(),
		UpdatedAt:  s.UpdatedAt.UTC(),
	}
}

func shipmentFromModel(m shipmentModel) domain.Shipment {
	return domain.Shipment{
		ID:         m.ID,
		OrderID:    m.OrderID,
		Carrier:    m.Carrier,
		TrackingID: m.TrackingID,
		Status:     domain.ShipmentStatus(m.Status),
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

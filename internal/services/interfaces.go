package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product        = domain.Product
	ProductInput   = domain.ProductInput
	ProductPatch   = domain.ProductPatch
	Cart           = domain.Cart
	CartItem       = domain.CartItem
	Order          = domain.Order
	OrderStatus    = domain.OrderStatus
	Address        = domain.Address
	Payment        = domain.Payment
	PaymentStatus  = domain.PaymentStatus
	Shipment       = domain.Shipment
	ShipmentStatus = domain.ShipmentStatus
)

// CartPricingService reconciles a cart against live catalog data.
type CartPricingService interface {
	// PriceCart returns nil without error when the user has no cart.
	PriceCart(ctx context.Context, userID string) (*CartDetail, error)
}

// CheckoutService turns a cart into an order and opens the payment session for it.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	CreatePaymentSession(ctx context.Context, orderID string) (PaymentSession, error)
	Checkout(ctx context.Context, cmd PlaceOrderCommand) (CheckoutResult, error)
}

// CartService manages the per-user cart.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	ChangeQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error)
	SetQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (Cart, error)
	ClearCart(ctx context.Context, userID string) (Cart, error)
	MergeCarts(ctx context.Context, cmd MergeCartsCommand) (Cart, error)
	LinkAnonymousCart(ctx context.Context, cmd MergeCartsCommand)
}

// CatalogService administers products.
type CatalogService interface {
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, productID string, patch ProductPatch) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) (Product, error)
	SetFeatured(ctx context.Context, productID string, featured bool) (Product, error)
	RecordReview(ctx context.Context, productID string) (Product, error)
}

// OrderService reads orders and drives their lifecycle after checkout.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	SetShippingAddress(ctx context.Context, orderID string, addr Address) (Order, error)
	SetBillingAddress(ctx context.Context, orderID string, addr Address) (Order, error)
	TransitionStatus(ctx context.Context, orderID string, target OrderStatus) (Order, error)
	CancelOrder(ctx context.Context, orderID string) (Order, error)
}

// PaymentService tracks payment sessions opened at checkout.
type PaymentService interface {
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	TransitionPayment(ctx context.Context, cmd PaymentTransitionCommand) (Payment, error)
	SyncPayment(ctx context.Context, paymentID string) (Payment, error)
	RefundPayment(ctx context.Context, paymentID string) (Payment, error)
}

// ShipmentService tracks delivery of paid orders.
type ShipmentService interface {
	CreateShipment(ctx context.Context, orderID string) (Shipment, error)
	GetShipment(ctx context.Context, shipmentID string) (Shipment, error)
	TransitionShipment(ctx context.Context, cmd ShipmentTransitionCommand) (Shipment, error)
}

// CartDetail is the priced, stock-reconciled view of a cart.
type CartDetail struct {
	CartID      string           `json:"cartId"`
	UserID      string           `json:"userId"`
	Items       []CartDetailItem `json:"items"`
	SubTotal    int64            `json:"subTotal"`
	TaxTotal    int64            `json:"taxTotal"`
	GrandTotal  int64            `json:"grandTotal"`
	Adjustments []CartAdjustment `json:"adjustments,omitempty"`
	Version     string           `json:"version"`
	PricedAt    time.Time        `json:"pricedAt"`
}

// CartDetailItem is one priced line. Quantity never exceeds the product's stock.
type CartDetailItem struct {
	ProductID         string `json:"productId"`
	Name              string `json:"name"`
	ImageURL          string `json:"imageUrl,omitempty"`
	PriceBeforeTax    int64  `json:"priceBeforeTax"`
	PriceAfterTax     int64  `json:"priceAfterTax"`
	TaxRate           int    `json:"taxRate"`
	Quantity          int    `json:"quantity"`
	RequestedQuantity int    `json:"requestedQuantity"`
	LineTotal         int64  `json:"lineTotal"`
}

// AdjustmentReason explains why a cart line was priced differently from what was requested.
type AdjustmentReason string

const (
	AdjustmentProductMissing AdjustmentReason = "product_missing"
	AdjustmentOutOfStock     AdjustmentReason = "out_of_stock"
	AdjustmentClamped        AdjustmentReason = "clamped"
)

// CartAdjustment records a dropped or clamped line.
type CartAdjustment struct {
	ProductID string           `json:"productId"`
	Reason    AdjustmentReason `json:"reason"`
	Requested int              `json:"requested"`
	Applied   int              `json:"applied"`
}

// CartDetailCache stores priced carts by user id. Get returns nil on a miss.
type CartDetailCache interface {
	Get(ctx context.Context, userID string) (*CartDetail, error)
	Set(ctx context.Context, userID string, detail *CartDetail) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

// OrderEvent is published after an order is created or changes status.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	GrandTotal int64     `json:"grandTotal"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher delivers order events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// PlaceOrderCommand requests an order from the user's current cart.
type PlaceOrderCommand struct {
	UserID          string
	ShippingAddress *Address
	BillingAddress  *Address
}

// PaymentSession is the handle returned to the shopper after checkout.
type PaymentSession struct {
	PaymentID   string
	SessionID   string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// CheckoutResult pairs the placed order with its payment session.
type CheckoutResult struct {
	Order   Order
	Session PaymentSession
}

// CartItemCommand targets one cart line. Quantity is a delta for ChangeQuantity and an
// absolute value otherwise.
type CartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

// MergeCartsCommand folds the source user's cart into the target user's cart.
type MergeCartsCommand struct {
	SourceUserID string
	TargetUserID string
}

// PaymentTransitionCommand moves a payment to Status. IntentID is recorded when non-empty.
type PaymentTransitionCommand struct {
	PaymentID string
	Status    PaymentStatus
	IntentID  string
}

// ShipmentTransitionCommand moves a shipment to Status.
type ShipmentTransitionCommand struct {
	ShipmentID string
	Status     ShipmentStatus
	Carrier    string
	TrackingID string
}

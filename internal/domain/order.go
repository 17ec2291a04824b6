package domain

import (
	"slices"
	"strings"
	"time"
)

const (
	// FreeShippingThreshold is the subtotal plus tax that must be exceeded for free shipping.
	FreeShippingThreshold int64 = 5000
	// StandardShippingFee applies at or below FreeShippingThreshold.
	StandardShippingFee int64 = 500
)

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// Order is created once from a cart snapshot. Line prices are frozen at creation and
// GrandTotal always equals ItemsSubtotal + TaxTotal + ShippingFee.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	ItemsSubtotal   int64
	TaxTotal        int64
	ShippingFee     int64
	GrandTotal      int64
	Status          OrderStatus
	ShippingAddress *Address
	BillingAddress  *Address
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots one product line at order time.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductName string
	PriceExTax  int64
	TaxRate     int
	Quantity    int
}

// OrderInput is the payload for NewOrder.
type OrderInput struct {
	ID     string
	UserID string
	Items  []OrderItemInput
}

// OrderItemInput describes one line of OrderInput.
type OrderItemInput struct {
	ProductID   string
	ProductName string
	PriceExTax  int64
	TaxRate     int
	Quantity    int
}

// OrderTotals groups the derived monetary fields of an order.
type OrderTotals struct {
	ItemsSubtotal int64
	TaxTotal      int64
	ShippingFee   int64
	GrandTotal    int64
}

// ComputeOrderTotals applies the order pricing rules. Tax is summed over extended line prices
// and floored once at the end.
func ComputeOrderTotals(items []OrderItem) OrderTotals {
	var subtotal, rawTax int64
	for _, item := range items {
		extended := item.PriceExTax * int64(item.Quantity)
		subtotal += extended
		rawTax += extended * int64(item.TaxRate)
	}
	tax := rawTax / 100
	shipping := ShippingFeeFor(subtotal + tax)
	return OrderTotals{
		ItemsSubtotal: subtotal,
		TaxTotal:      tax,
		ShippingFee:   shipping,
		GrandTotal:    subtotal + tax + shipping,
	}
}

// ShippingFeeFor returns the flat fee for an amount of subtotal plus tax.
func ShippingFeeFor(amount int64) int64 {
	if amount > FreeShippingThreshold {
		return 0
	}
	return StandardShippingFee
}

// NewOrder validates input and builds a pending order. newID supplies line item ids and,
// when input.ID is empty, the order id.
func NewOrder(input OrderInput, newID func() string, now time.Time) (Order, error) {
	if newID == nil {
		return Order{}, validationError(CodeEmptyValue, "idGenerator", "id generator is required")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Order{}, validationError(CodeEmptyValue, "userId", "user id is required")
	}
	if len(input.Items) == 0 {
		return Order{}, validationError(CodeEmptyValue, "items", "order needs at least one item")
	}

	items := make([]OrderItem, 0, len(input.Items))
	for _, in := range input.Items {
		productID := strings.TrimSpace(in.ProductID)
		name := strings.TrimSpace(in.ProductName)
		switch {
		case productID == "":
			return Order{}, validationError(CodeEmptyValue, "items.productId", "product id is required")
		case name == "":
			return Order{}, validationError(CodeEmptyValue, "items.productName", "product name is required")
		case in.PriceExTax < 0:
			return Order{}, validationError(CodeInvalidPrice, "items.priceExTax", "price must not be negative")
		case in.TaxRate < 0:
			return Order{}, validationError(CodeInvalidTaxRate, "items.taxRate", "tax rate must not be negative")
		case in.Quantity <= 0:
			return Order{}, validationError(CodeInvalidQuantity, "items.quantity", "quantity must be positive")
		}
		items = append(items, OrderItem{
			ID:          newID(),
			ProductID:   productID,
			ProductName: name,
			PriceExTax:  in.PriceExTax,
			TaxRate:     in.TaxRate,
			Quantity:    in.Quantity,
		})
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = newID()
	}
	totals := ComputeOrderTotals(items)
	now = now.UTC()
	return Order{
		ID:            id,
		UserID:        userID,
		Items:         items,
		ItemsSubtotal: totals.ItemsSubtotal,
		TaxTotal:      totals.TaxTotal,
		ShippingFee:   totals.ShippingFee,
		GrandTotal:    totals.GrandTotal,
		Status:        OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Totals returns the stored monetary fields.
func (o Order) Totals() OrderTotals {
	return OrderTotals{
		ItemsSubtotal: o.ItemsSubtotal,
		TaxTotal:      o.TaxTotal,
		ShippingFee:   o.ShippingFee,
		GrandTotal:    o.GrandTotal,
	}
}

// InsertShippingAddress returns a copy of order with the shipping address set.
func InsertShippingAddress(order Order, addr Address, now time.Time) (Order, error) {
	normalised, err := editableAddress(order, addr)
	if err != nil {
		return Order{}, err
	}
	out := order.Clone()
	out.ShippingAddress = &normalised
	out.UpdatedAt = laterThan(order.UpdatedAt, now)
	return out, nil
}

// InsertBillingAddress returns a copy of order with the billing address set.
func InsertBillingAddress(order Order, addr Address, now time.Time) (Order, error) {
	normalised, err := editableAddress(order, addr)
	if err != nil {
		return Order{}, err
	}
	out := order.Clone()
	out.BillingAddress = &normalised
	out.UpdatedAt = laterThan(order.UpdatedAt, now)
	return out, nil
}

func editableAddress(order Order, addr Address) (Address, error) {
	if order.Status != OrderStatusPending {
		return Address{}, &Error{
			Kind:    KindInvalidStatusTransition,
			Code:    CodeInvalidOrderStatus,
			Field:   "status",
			Message: "addresses can only change while the order is pending",
		}
	}
	return addr.Normalise()
}

// CanTransitionOrder reports whether from -> to is in the order status table.
func CanTransitionOrder(from, to OrderStatus) bool {
	return slices.Contains(orderStatusTransitions[from], to)
}

// ChangeOrderStatus moves order to target.
func ChangeOrderStatus(order Order, target OrderStatus, now time.Time) (Order, error) {
	if !CanTransitionOrder(order.Status, target) {
		return Order{}, transitionError(CodeInvalidOrderStatus, string(order.Status), string(target))
	}
	out := order.Clone()
	out.Status = target
	out.UpdatedAt = laterThan(order.UpdatedAt, now)
	return out, nil
}

// Clone returns a deep copy.
func (o Order) Clone() Order {
	out := o
	out.Items = slices.Clone(o.Items)
	if o.ShippingAddress != nil {
		a := *o.ShippingAddress
		out.ShippingAddress = &a
	}
	if o.BillingAddress != nil {
		a := *o.BillingAddress
		out.BillingAddress = &a
	}
	return out
}

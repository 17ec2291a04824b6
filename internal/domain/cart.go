package domain

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Cart is the per-user shopping cart. Items are keyed by product id and never hold a
// quantity below one.
type Cart struct {
	ID        string
	UserID    string
	Items     map[string]CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is one product line in a cart.
type CartItem struct {
	ProductID string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEmptyCart creates a cart with no lines for userID.
func NewEmptyCart(id, userID string, now time.Time) (Cart, error) {
	id = strings.TrimSpace(id)
	userID = strings.TrimSpace(userID)
	if id == "" {
		return Cart{}, validationError(CodeEmptyValue, "id", "cart id is required")
	}
	if userID == "" {
		return Cart{}, validationError(CodeEmptyValue, "userId", "user id is required")
	}
	now = now.UTC()
	return Cart{
		ID:        id,
		UserID:    userID,
		Items:     map[string]CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Lines returns the cart items ordered by creation time, then product id.
func (c Cart) Lines() []CartItem {
	lines := slices.Collect(maps.Values(c.Items))
	slices.SortFunc(lines, func(a, b CartItem) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return lines
}

// ProductIDs returns the distinct product ids referenced by the cart, sorted.
func (c Cart) ProductIDs() []string {
	ids := slices.Collect(maps.Keys(c.Items))
	slices.Sort(ids)
	return ids
}

// TotalQuantity sums every line.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ChangeQuantityBy adds delta to the line for productID. A missing line is created only for
// a positive delta; the quantity is clamped at zero and a line reaching zero is removed.
func ChangeQuantityBy(cart Cart, productID string, delta int, now time.Time) (Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Cart{}, validationError(CodeEmptyValue, "productId", "product id is required")
	}
	item, ok := cart.Items[productID]
	if !ok && delta <= 0 {
		return cart, nil
	}
	if delta == 0 {
		return cart, nil
	}

	now = now.UTC()
	out := cart.Clone()
	if !ok {
		out.Items[productID] = CartItem{ProductID: productID, Quantity: delta, CreatedAt: now, UpdatedAt: now}
		out.UpdatedAt = now
		return out, nil
	}

	next := max(item.Quantity+delta, 0)
	if next == 0 {
		delete(out.Items, productID)
	} else {
		item.Quantity = next
		item.UpdatedAt = now
		out.Items[productID] = item
	}
	out.UpdatedAt = now
	return out, nil
}

// AddCartItem adds quantity units of productID, summing with an existing line.
func AddCartItem(cart Cart, productID string, quantity int, now time.Time) (Cart, error) {
	if quantity <= 0 {
		return Cart{}, validationError(CodeInvalidQuantity, "quantity", "quantity must be positive")
	}
	return ChangeQuantityBy(cart, productID, quantity, now)
}

// SetItemQuantity replaces the quantity of productID. Zero removes the line.
func SetItemQuantity(cart Cart, productID string, quantity int, now time.Time) (Cart, error) {
	if quantity < 0 {
		return Cart{}, validationError(CodeInvalidQuantity, "quantity", "quantity must not be negative")
	}
	current := 0
	if item, ok := cart.Items[strings.TrimSpace(productID)]; ok {
		current = item.Quantity
	}
	return ChangeQuantityBy(cart, productID, quantity-current, now)
}

// RemoveCartItem drops the line for productID.
func RemoveCartItem(cart Cart, productID string, now time.Time) (Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Cart{}, validationError(CodeEmptyValue, "productId", "product id is required")
	}
	if _, ok := cart.Items[productID]; !ok {
		return Cart{}, NewNotFoundError("cart item", productID)
	}
	out := cart.Clone()
	delete(out.Items, productID)
	out.UpdatedAt = now.UTC()
	return out, nil
}

// MergeCartItems folds src into target. A product present in both keeps the larger quantity;
// products only in src are copied. Every line taken from src is stamped with now.
func MergeCartItems(target, src Cart, now time.Time) Cart {
	now = now.UTC()
	out := target.Clone()
	touched := false
	for productID, incoming := range src.Items {
		if incoming.Quantity <= 0 {
			continue
		}
		existing, ok := out.Items[productID]
		if !ok {
			incoming.ProductID = productID
			incoming.UpdatedAt = now
			if incoming.CreatedAt.IsZero() {
				incoming.CreatedAt = now
			}
			out.Items[productID] = incoming
			touched = true
			continue
		}
		existing.Quantity = max(existing.Quantity, incoming.Quantity)
		existing.UpdatedAt = now
		out.Items[productID] = existing
		touched = true
	}
	if touched {
		out.UpdatedAt = now
	}
	return out
}

// ClearCart removes every line.
func ClearCart(cart Cart, now time.Time) Cart {
	out := cart
	out.Items = map[string]CartItem{}
	out.UpdatedAt = now.UTC()
	return out
}

// Clone returns a deep copy.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make(map[string]CartItem, len(c.Items))
	maps.Copy(out.Items, c.Items)
	return out
}

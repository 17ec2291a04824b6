package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorInsufficientStock indicates the requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorProductNotFound indicates the product row is missing.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
	// InventoryErrorInvalidQuantity indicates a non-positive adjustment.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps stock failures with machine readable codes.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Requested int
	Available int
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, productID, message string) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{Code: code, ProductID: productID, Message: message}
}

// NewInsufficientStockError reports that productID holds fewer than requested units.
func NewInsufficientStockError(op, productID string, requested, available int) *InventoryError {
	return &InventoryError{
		Op:        op,
		Code:      InventoryErrorInsufficientStock,
		ProductID: productID,
		Requested: requested,
		Available: available,
		Message:   fmt.Sprintf("product %s has %d in stock, %d requested", productID, available, requested),
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var upsert = clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}

func orderedImages(db *gorm.DB) *gorm.DB { return db.Order("display_ord, id") }

type catalogRepository struct{ r *Registry }

func (c catalogRepository) GetByID(ctx context.Context, productID string) (domain.Product, error) {
	var m productModel
	err := c.r.conn(ctx).Preload("Images", orderedImages).First(&m, "id = ?", strings.TrimSpace(productID)).Error
	if err != nil {
		return domain.Product{}, wrapError("products.get", err)
	}
	return productFromModel(m), nil
}

// GetByIDs loads the products in request order. With ForUpdate the rows stay locked until
// the surrounding transaction ends; they are locked in id order so concurrent checkouts over
// overlapping carts cannot deadlock.
func (c catalogRepository) GetByIDs(ctx context.Context, productIDs []string, opts repositories.ReadOptions) ([]domain.Product, error) {
	ids := dedupe(productIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	q := c.r.conn(ctx).Preload("Images", orderedImages).Where("id IN ?", ids).Order("id")
	if opts.ForUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []productModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapError("products.get_many", err)
	}

	byID := make(map[string]productModel, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]domain.Product, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, productFromModel(row))
		}
	}
	return out, nil
}

func (c catalogRepository) Save(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, errors.New("products.save: product id is required")
	}
	m := productToModel(product)
	err := c.r.RunInTx(ctx, func(ctx context.Context) error {
		db := c.r.conn(ctx)
		if err := db.Omit(clause.Associations).Clauses(upsert).Create(&m).Error; err != nil {
			return err
		}
		if err := db.Where("product_id = ?", m.ID).Delete(&productImageModel{}).Error; err != nil {
			return err
		}
		if len(m.Images) == 0 {
			return nil
		}
		return db.Create(&m.Images).Error
	})
	if err != nil {
		return domain.Product{}, wrapError("products.save", err)
	}
	return productFromModel(m), nil
}

// DecrementStock subtracts by in a single conditional UPDATE, so stock never goes negative
// even without a prior row lock.
func (c catalogRepository) DecrementStock(ctx context.Context, productID string, by int) error {
	const op = "products.decrement_stock"
	if by <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, op+": quantity must be positive")
	}
	db := c.r.conn(ctx)
	res := db.Model(&productModel{}).
		Where("id = ? AND stock >= ?", productID, by).
		Updates(map[string]any{"stock": gorm.Expr("stock - ?", by), "updated_at": c.r.now()})
	if res.Error != nil {
		return wrapError(op, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var current productModel
	if err := db.Select("id", "stock").First(&current, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("%s: product %s not found", op, productID))
		}
		return wrapError(op, err)
	}
	return repositories.NewInsufficientStockError(op, productID, by, current.Stock)
}

func (c catalogRepository) IncrementStock(ctx context.Context, productID string, by int) error {
	const op = "products.increment_stock"
	if by <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, op+": quantity must be positive")
	}
	res := c.r.conn(ctx).Model(&productModel{}).
		Where("id = ?", productID).
		Updates(map[string]any{"stock": gorm.Expr("stock + ?", by), "updated_at": c.r.now()})
	if res.Error != nil {
		return wrapError(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("%s: product %s not found", op, productID))
	}
	return nil
}

type cartRepository struct{ r *Registry }

func (c cartRepository) GetByUserID(ctx context.Context, userID string) (domain.Cart, error) {
	var m cartModel
	err := c.r.conn(ctx).Preload("Items").First(&m, "user_id = ?", strings.TrimSpace(userID)).Error
	if err != nil {
		return domain.Cart{}, wrapError("carts.get", err)
	}
	return cartFromModel(m), nil
}

// Save replaces the cart and its lines. The unique index on user_id rejects a second cart
// for the same user even when two writers race past the ownership check.
func (c cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	const op = "carts.save"
	if strings.TrimSpace(cart.ID) == "" || strings.TrimSpace(cart.UserID) == "" {
		return domain.Cart{}, errors.New(op + ": cart id and user id are required")
	}
	m := cartToModel(cart)
	err := c.r.RunInTx(ctx, func(ctx context.Context) error {
		db := c.r.conn(ctx)
		var owned cartModel
		err := db.Select("id").Where("user_id = ?", m.UserID).Take(&owned).Error
		switch {
		case err == nil && owned.ID != m.ID:
			return repositories.NewConflictError(op, fmt.Errorf("user %s already owns cart %s", m.UserID, owned.ID))
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if err := db.Omit(clause.Associations).Clauses(upsert).Create(&m).Error; err != nil {
			return err
		}
		if err := db.Where("cart_id = ?", m.ID).Delete(&cartItemModel{}).Error; err != nil {
			return err
		}
		if len(m.Items) == 0 {
			return nil
		}
		return db.Create(&m.Items).Error
	})
	if err != nil {
		return domain.Cart{}, wrapError(op, err)
	}
	return cartFromModel(m), nil
}

func (c cartRepository) Delete(ctx context.Context, cartID string) error {
	const op = "carts.delete"
	err := c.r.RunInTx(ctx, func(ctx context.Context) error {
		db := c.r.conn(ctx)
		if err := db.Where("cart_id = ?", cartID).Delete(&cartItemModel{}).Error; err != nil {
			return err
		}
		res := db.Delete(&cartModel{}, "id = ?", cartID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repositories.NewNotFoundError(op, "cart %s not found", cartID)
		}
		return nil
	})
	return wrapError(op, err)
}

type orderRepository struct{ r *Registry }

func (o orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("orders.save: order id is required")
	}
	m := orderToModel(order)
	err := o.r.RunInTx(ctx, func(ctx context.Context) error {
		db := o.r.conn(ctx)
		if err := db.Omit(clause.Associations).Clauses(upsert).Create(&m).Error; err != nil {
			return err
		}
		if err := db.Where("order_id = ?", m.ID).Delete(&orderItemModel{}).Error; err != nil {
			return err
		}
		if len(m.Items) == 0 {
			return nil
		}
		return db.Create(&m.Items).Error
	})
	if err != nil {
		return domain.Order{}, wrapError("orders.save", err)
	}
	return orderFromModel(m), nil
}

func (o orderRepository) GetByID(ctx context.Context, orderID string) (domain.Order, error) {
	var m orderModel
	err := o.r.conn(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&m, "id = ?", orderID).Error
	if err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	return orderFromModel(m), nil
}

type paymentRepository struct{ r *Registry }

func (p paymentRepository) Save(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if strings.TrimSpace(payment.ID) == "" {
		return domain.Payment{}, errors.New("payments.save: payment id is required")
	}
	m := paymentToModel(payment)
	if err := p.r.conn(ctx).Clauses(upsert).Create(&m).Error; err != nil {
		return domain.Payment{}, wrapError("payments.save", err)
	}
	return paymentFromModel(m), nil
}

func (p paymentRepository) GetByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	var m paymentModel
	if err := p.r.conn(ctx).First(&m, "id = ?", paymentID).Error; err != nil {
		return domain.Payment{}, wrapError("payments.get", err)
	}
	return paymentFromModel(m), nil
}

type shipmentRepository struct{ r *Registry }

func (s shipmentRepository) Save(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error) {
	if strings.TrimSpace(shipment.ID) == "" {
		return domain.Shipment{}, errors.New("shipments.save: shipment id is required")
	}
	m := shipmentToModel(shipment)
	if err := s.r.conn(ctx).Clauses(upsert).Create(&m).Error; err != nil {
		return domain.Shipment{}, wrapError("shipments.save", err)
	}
	return shipmentFromModel(m), nil
}

func (s shipmentRepository) GetByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	var m shipmentModel
	if err := s.r.conn(ctx).First(&m, "id = ?", shipmentID).Error; err != nil {
		return domain.Shipment{}, wrapError("shipments.get", err)
	}
	return shipmentFromModel(m), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

type catalogRepository struct{ r *Registry }

func (c catalogRepository) GetByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := getDocument(ctx, c.r, c.r.products, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	if st, ok := c.r.txState(ctx); ok {
		st.rememberStock(doc.ID, doc.Stock)
	}
	return productFromDocument(doc), nil
}

// GetByIDs reads every id in one round trip. Inside a transaction the read also registers
// the documents with the transaction so a concurrent stock change aborts the commit.
func (c catalogRepository) GetByIDs(ctx context.Context, productIDs []string, _ repositories.ReadOptions) ([]domain.Product, error) {
	var docs []pfirestore.Document[productDocument]
	if st, ok := c.r.txState(ctx); ok {
		refs, err := c.r.products.DocumentRefs(ctx, productIDs)
		if err != nil || len(refs) == 0 {
			return nil, err
		}
		snaps, err := st.tx.GetAll(refs)
		if err != nil {
			return nil, pfirestore.WrapError(c.r.products.Op("get_all"), err)
		}
		if docs, err = c.r.products.DecodeExisting(snaps); err != nil {
			return nil, err
		}
		for _, doc := range docs {
			st.rememberStock(doc.Data.ID, doc.Data.Stock)
		}
	} else {
		var err error
		if docs, err = c.r.products.GetAll(ctx, productIDs); err != nil {
			return nil, err
		}
	}

	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, productFromDocument(doc.Data))
	}
	return out, nil
}

func (c catalogRepository) Save(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, errors.New("products.save: product id is required")
	}
	doc := productToDocument(product)
	if err := setDocument(ctx, c.r, c.r.products, doc.ID, doc); err != nil {
		return domain.Product{}, err
	}
	if st, ok := c.r.txState(ctx); ok {
		st.rememberStock(doc.ID, doc.Stock)
	}
	return productFromDocument(doc), nil
}

func (c catalogRepository) DecrementStock(ctx context.Context, productID string, by int) error {
	return c.adjust(ctx, c.r.products.Op("decrement_stock"), productID, -by, by)
}

func (c catalogRepository) IncrementStock(ctx context.Context, productID string, by int) error {
	return c.adjust(ctx, c.r.products.Op("increment_stock"), productID, by, by)
}

// adjust checks the stock seen by the transaction and applies delta as a server-side
// increment. Outside a transaction it opens one of its own.
func (c catalogRepository) adjust(ctx context.Context, op, productID string, delta, by int) error {
	if by <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, productID, op+": quantity must be positive")
	}
	st, ok := c.r.txState(ctx)
	if !ok {
		return c.r.RunInTx(ctx, func(ctx context.Context) error {
			return c.adjust(ctx, op, productID, delta, by)
		})
	}

	ref, err := c.r.products.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	stock, known := st.cachedStock(productID)
	if !known {
		snap, err := st.tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, productID, fmt.Sprintf("%s: product %s not found", op, productID))
			}
			return pfirestore.WrapError(op, err)
		}
		doc, err := c.r.products.Decode(snap)
		if err != nil {
			return err
		}
		stock = doc.Data.Stock
	}
	if stock+delta < 0 {
		return repositories.NewInsufficientStockError(op, productID, by, stock)
	}

	if err := st.tx.Update(ref, []firestore.Update{
		{Path: "stock", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: c.r.now()},
	}); err != nil {
		return pfirestore.WrapError(op, err)
	}
	st.rememberStock(productID, stock+delta)
	return nil
}

// cartRepository stores each cart under its owner's user id, which makes one cart per user
// a property of the key space. The cart id is kept as a field.
type cartRepository struct{ r *Registry }

func (c cartRepository) GetByUserID(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	doc, err := getDocument(ctx, c.r, c.r.carts, userID)
	if st, ok := c.r.txState(ctx); ok {
		switch {
		case err == nil:
			st.rememberCart(userID, doc.ID)
		case repositories.IsNotFound(err):
			st.rememberCart(userID, "")
		}
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(doc), nil
}

func (c cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if strings.TrimSpace(cart.ID) == "" || strings.TrimSpace(cart.UserID) == "" {
		return domain.Cart{}, errors.New("carts.save: cart id and user id are required")
	}
	st, ok := c.r.txState(ctx)
	if !ok {
		var saved domain.Cart
		err := c.r.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			saved, err = c.Save(ctx, cart)
			return err
		})
		return saved, err
	}

	op := c.r.carts.Op("save")
	existing, known := st.cartFor(cart.UserID)
	if !known {
		current, err := c.GetByUserID(ctx, cart.UserID)
		if err != nil && !repositories.IsNotFound(err) {
			return domain.Cart{}, err
		}
		existing = current.ID
	}
	if existing != "" && existing != cart.ID {
		return domain.Cart{}, repositories.NewConflictError(op, fmt.Errorf("user %s already owns cart %s", cart.UserID, existing))
	}

	doc := cartToDocument(cart)
	ref, err := c.r.carts.DocumentRef(ctx, doc.UserID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := st.tx.Set(ref, doc); err != nil {
		return domain.Cart{}, pfirestore.WrapError(op, err)
	}
	st.rememberCart(doc.UserID, doc.ID)
	return cartFromDocument(doc), nil
}

func (c cartRepository) Delete(ctx context.Context, cartID string) error {
	st, ok := c.r.txState(ctx)
	if !ok {
		return c.r.RunInTx(ctx, func(ctx context.Context) error {
			return c.Delete(ctx, cartID)
		})
	}

	op := c.r.carts.Op("delete")
	owner, known := st.ownerOf(cartID)
	if !known {
		coll, err := c.r.carts.CollectionRef(ctx)
		if err != nil {
			return err
		}
		docs, err := c.r.carts.DecodeIterator(st.tx.Documents(coll.Where("id", "==", cartID).Limit(1)))
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return pfirestore.NotFoundError(op, "cart %s not found", cartID)
		}
		owner = docs[0].ID
	}

	ref, err := c.r.carts.DocumentRef(ctx, owner)
	if err != nil {
		return err
	}
	if err := st.tx.Delete(ref); err != nil {
		return pfirestore.WrapError(op, err)
	}
	st.rememberCart(owner, "")
	return nil
}

type orderRepository struct{ r *Registry }

func (o orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("orders.save: order id is required")
	}
	doc := orderToDocument(order)
	if err := setDocument(ctx, o.r, o.r.orders, doc.ID, doc); err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc), nil
}

func (o orderRepository) GetByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := getDocument(ctx, o.r, o.r.orders, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc), nil
}

type paymentRepository struct{ r *Registry }

func (p paymentRepository) Save(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if strings.TrimSpace(payment.ID) == "" {
		return domain.Payment{}, errors.New("payments.save: payment id is required")
	}
	doc := paymentToDocument(payment)
	if err := setDocument(ctx, p.r, p.r.payments, doc.ID, doc); err != nil {
		return domain.Payment{}, err
	}
	return paymentFromDocument(doc), nil
}

func (p paymentRepository) GetByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := getDocument(ctx, p.r, p.r.payments, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return paymentFromDocument(doc), nil
}

type shipmentRepository struct{ r *Registry }

func (s shipmentRepository) Save(ctx context.Context, shipment domain.Shipment) (domain.Shipment, error) {
	if strings.TrimSpace(shipment.ID) == "" {
		return domain.Shipment{}, errors.New("shipments.save: shipment id is required")
	}
	doc := shipmentToDocument(shipment)
	if err := setDocument(ctx, s.r, s.r.shipments, doc.ID, doc); err != nil {
		return domain.Shipment{}, err
	}
	return shipmentFromDocument(doc), nil
}

func (s shipmentRepository) GetByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	doc, err := getDocument(ctx, s.r, s.r.shipments, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	return shipmentFromDocument(doc), nil
}

// getDocument reads id through the ambient transaction when there is one.
func getDocument[T any](ctx context.Context, r *Registry, base *pfirestore.BaseRepository[T], id string) (T, error) {
	var zero T
	st, ok := r.txState(ctx)
	if !ok {
		doc, err := base.Get(ctx, id)
		if err != nil {
			return zero, err
		}
		return doc.Data, nil
	}
	ref, err := base.DocumentRef(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := st.tx.Get(ref)
	if err != nil {
		return zero, pfirestore.WrapError(base.Op("get"), err)
	}
	doc, err := base.Decode(snap)
	if err != nil {
		return zero, err
	}
	return doc.Data, nil
}

// setDocument writes value through the ambient transaction when there is one.
func setDocument[T any](ctx context.Context, r *Registry, base *pfirestore.BaseRepository[T], id string, value T) error {
	st, ok := r.txState(ctx)
	if !ok {
		return base.Set(ctx, id, value)
	}
	ref, err := base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if err := st.tx.Set(ref, value); err != nil {
		return pfirestore.WrapError(base.Op("set"), err)
	}
	return nil
}

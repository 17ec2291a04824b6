// Package firestore implements repositories.Registry on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

type txKey struct{ registry *Registry }

// txState is shared by every repository call joined to one Firestore transaction. Firestore
// rejects reads issued after a write, so the values read earlier in the attempt are cached
// here and consulted by the write paths instead of reading again.
type txState struct {
	tx *firestore.Transaction

	mu         sync.Mutex
	stock      map[string]int
	cartIDs    map[string]string
	cartOwners map[string]string
}

// Registry bundles the Firestore-backed repositories.
type Registry struct {
	provider  *pfirestore.Provider
	clock     func() time.Time
	txOpts    []pfirestore.TxOption
	products  *pfirestore.BaseRepository[productDocument]
	carts     *pfirestore.BaseRepository[cartDocument]
	orders    *pfirestore.BaseRepository[orderDocument]
	payments  *pfirestore.BaseRepository[paymentDocument]
	shipments *pfirestore.BaseRepository[shipmentDocument]
}

// Option customises the Registry.
type Option func(*Registry)

// WithClock overrides the clock stamped on stock adjustments.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithTxOptions applies opts to every transaction started by RunInTx.
func WithTxOptions(opts ...pfirestore.TxOption) Option {
	return func(r *Registry) {
		r.txOpts = append(r.txOpts, opts...)
	}
}

// New constructs a Registry on provider.
func New(provider *pfirestore.Provider, opts ...Option) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	r := &Registry{
		provider:  provider,
		clock:     time.Now,
		products:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
		carts:     pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil),
		orders:    pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		payments:  pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil),
		shipments: pfirestore.NewBaseRepository[shipmentDocument](provider, shipmentsCollection, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

var _ repositories.Registry = (*Registry)(nil)

func (r *Registry) Catalog() repositories.CatalogRepository    { return catalogRepository{r} }
func (r *Registry) Carts() repositories.CartRepository         { return cartRepository{r} }
func (r *Registry) Orders() repositories.OrderRepository       { return orderRepository{r} }
func (r *Registry) Payments() repositories.PaymentRepository   { return paymentRepository{r} }
func (r *Registry) Shipments() repositories.ShipmentRepository { return shipmentRepository{r} }

// Close releases the underlying client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// RunInTx runs fn inside a Firestore transaction. Firestore retries contended transactions,
// so fn may execute more than once; every attempt starts with an empty cache. Nested calls
// join the outer transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	if _, ok := r.txState(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		st := &txState{
			tx:         tx,
			stock:      map[string]int{},
			cartIDs:    map[string]string{},
			cartOwners: map[string]string{},
		}
		return fn(context.WithValue(ctx, txKey{r}, st))
	}, r.txOpts...)
}

func (r *Registry) txState(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txKey{r}).(*txState)
	return st, ok && st != nil
}

func (r *Registry) now() time.Time {
	return r.clock().UTC()
}

func (st *txState) rememberStock(productID string, stock int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stock[productID] = stock
}

func (st *txState) cachedStock(productID string) (int, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	stock, ok := st.stock[productID]
	return stock, ok
}

func (st *txState) rememberCart(userID, cartID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if prev, ok := st.cartIDs[userID]; ok && prev != cartID {
		delete(st.cartOwners, prev)
	}
	st.cartIDs[userID] = cartID
	if cartID != "" {
		st.cartOwners[cartID] = userID
	}
}

// cartFor reports the cart id known for userID. An empty id with ok set means the user is
// known to have no cart.
func (st *txState) cartFor(userID string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	id, ok := st.cartIDs[userID]
	return id, ok
}

func (st *txState) ownerOf(cartID string) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	owner, ok := st.cartOwners[cartID]
	return owner, ok
}

// Package memory provides an in-process repositories.Registry with serialised transactions.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type txKey struct{ store *Store }

// Store is a thread-safe in-memory registry. Transactions run one at a time against a
// working copy that replaces the committed state only when fn returns nil.
type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *state
	clock func() time.Time
}

type state struct {
	products   map[string]domain.Product
	carts      map[string]domain.Cart
	cartByUser map[string]string
	orders     map[string]domain.Order
	payments   map[string]domain.Payment
	shipments  map[string]domain.Shipment
}

// Option customises the Store.
type Option func(*Store)

// WithClock overrides the clock used for stock adjustments.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ repositories.Registry = (*Store)(nil)

func (s *Store) Catalog() repositories.CatalogRepository   { return catalogRepository{s} }
func (s *Store) Carts() repositories.CartRepository        { return cartRepository{s} }
func (s *Store) Orders() repositories.OrderRepository      { return orderRepository{s} }
func (s *Store) Payments() repositories.PaymentRepository  { return paymentRepository{s} }
func (s *Store) Shipments() repositories.ShipmentRepository { return shipmentRepository{s} }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// RunInTx executes fn against a working copy of the store. Nested calls join the outer
// transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: transaction function is nil")
	}
	if _, ok := s.txState(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{s}, working)); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

func (s *Store) txState(ctx context.Context) (*state, bool) {
	st, ok := ctx.Value(txKey{s}).(*state)
	return st, ok && st != nil
}

// read runs fn against the transaction state, or the committed state under a read lock.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st, ok := s.txState(ctx); ok {
		return fn(st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// write runs fn against the transaction state, or directly against the committed state
// while holding the transaction lock so it cannot be overwritten by a concurrent commit.
// fn must validate before it mutates.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st, ok := s.txState(ctx); ok {
		return fn(st)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

func newState() *state {
	return &state{
		products:   map[string]domain.Product{},
		carts:      map[string]domain.Cart{},
		cartByUser: map[string]string{},
		orders:     map[string]domain.Order{},
		payments:   map[string]domain.Payment{},
		shipments:  map[string]domain.Shipment{},
	}
}

// clone copies the maps. Stored values are never mutated in place, so sharing them is safe.
func (st *state) clone() *state {
	return &state{
		products:   maps.Clone(st.products),
		carts:      maps.Clone(st.carts),
		cartByUser: maps.Clone(st.cartByUser),
		orders:     maps.Clone(st.orders),
		payments:   maps.Clone(st.payments),
		shipments:  maps.Clone(st.shipments),
	}
}

// Package postgres implements repositories.Registry on PostgreSQL through gorm. Checkout
// reads take row locks with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
)

type txKey struct{ registry *Registry }

// Registry bundles the gorm-backed repositories.
type Registry struct {
	db    *gorm.DB
	clock func() time.Time
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

// Open connects to PostgreSQL with cfg and applies the pool limits. Slow queries and errors
// are logged through logger.
func Open(cfg config.PostgresConfig, logger *zap.Logger, opts ...Option) (*Registry, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres registry requires dsn")
	}
	db, err := gorm.Open(gpostgres.Open(cfg.DSN), &gorm.Config{
		Logger:         newGormLogger(logger),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db, opts...)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, opts ...Option) (*Registry, error) {
	if db == nil {
		return nil, errors.New("postgres registry requires db")
	}
	r := &Registry{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	if logger != nil {
		logger = logger.Named("gorm")
	}
	return gormlogger.New(observability.NewPrintfAdapter(logger), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate creates or updates the storefront tables.
func (r *Registry) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

var _ repositories.Registry = (*Registry)(nil)

func (r *Registry) Catalog() repositories.CatalogRepository    { return catalogRepository{r} }
func (r *Registry) Carts() repositories.CartRepository         { return cartRepository{r} }
func (r *Registry) Orders() repositories.OrderRepository       { return orderRepository{r} }
func (r *Registry) Payments() repositories.PaymentRepository   { return paymentRepository{r} }
func (r *Registry) Shipments() repositories.ShipmentRepository { return shipmentRepository{r} }

// Close closes the connection pool.
func (r *Registry) Close(context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunInTx runs fn inside a database transaction. Nested calls join the outer transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("postgres: transaction function is nil")
	}
	if _, ok := r.tx(ctx); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{r}, tx))
	})
}

func (r *Registry) tx(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{r}).(*gorm.DB)
	return tx, ok && tx != nil
}

// conn returns the transaction bound to ctx, or a session on the pool.
func (r *Registry) conn(ctx context.Context) *gorm.DB {
	if tx, ok := r.tx(ctx); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *Registry) now() time.Time {
	return r.clock().UTC()
}

// wrapError maps gorm failures to repository errors. Context errors pass through.
func wrapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.NewNotFoundError(op, "%w", err)
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return repositories.NewConflictError(op, err)
	case errors.Is(err, gorm.ErrInvalidDB), errors.Is(err, gorm.ErrInvalidTransaction):
		return repositories.NewUnavailableError(op, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

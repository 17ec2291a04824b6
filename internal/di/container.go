// Package di assembles repositories, gateways and services from configuration.
package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/cache"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/events"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	"github.com/hanko-field/storefront/internal/repositories/postgres"
	"github.com/hanko-field/storefront/internal/services"
)

const localCheckoutBaseURL = "http://localhost:8080/checkout"

// Services bundles the service-layer contracts exposed to entry points.
type Services struct {
	Pricing   services.CartPricingService
	Checkout  services.CheckoutService
	Carts     services.CartService
	Catalog   services.CatalogService
	Orders    services.OrderService
	Payments  services.PaymentService
	Shipments services.ShipmentService
}

// Container wires repositories, services and their infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Gateway      payments.Gateway
	Services     Services

	closers []func(context.Context) error
}

// Option overrides a dependency, mainly for tests.
type Option func(*options)

type options struct {
	registry repositories.Registry
	gateway  payments.Gateway
	meter    metric.Meter
	clock    func() time.Time
}

// WithRegistry supplies a ready registry instead of building one from cfg.Store.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithGateway supplies the payment gateway instead of building one from cfg.PSP.
func WithGateway(gateway payments.Gateway) Option {
	return func(o *options) { o.gateway = gateway }
}

// WithMeter records service metrics on meter rather than the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithClock overrides the clock handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies. Everything opened before a failure is
// closed again before returning.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	reg := o.registry
	if reg == nil {
		if reg, err = c.buildRegistry(ctx); err != nil {
			return nil, err
		}
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	gateway := o.gateway
	if gateway == nil {
		if gateway, err = buildGateway(cfg.PSP, logger, o.clock); err != nil {
			return nil, err
		}
	}
	c.Gateway = gateway

	cartCache, err := c.buildCache()
	if err != nil {
		return nil, err
	}
	publisher, err := c.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := observability.NewMetrics(o.meter)
	if err != nil {
		return nil, fmt.Errorf("build metrics: %w", err)
	}

	c.Services, err = buildServices(serviceDeps{
		registry: reg,
		gateway:  gateway,
		cache:    cartCache,
		events:   publisher,
		metrics:  metrics,
		clock:    o.clock,
		logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases clients in reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildRegistry(ctx context.Context) (repositories.Registry, error) {
	cfg := c.Config
	switch cfg.Store.Backend {
	case config.BackendMemory, "":
		return memory.NewStore(), nil
	case config.BackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("build firestore client: %w", err)
		}
		reg, err := firestoreRepo.New(provider, firestoreRepo.WithTxOptions(
			pfirestore.WithTxAttempts(cfg.Firestore.TxAttempts),
			pfirestore.WithTxTimeout(cfg.Firestore.TxTimeout),
		))
		if err != nil {
			_ = provider.Close(ctx)
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	case config.BackendPostgres:
		reg, err := postgres.Open(cfg.Postgres, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("build postgres registry: %w", err)
		}
		if err := reg.Migrate(ctx); err != nil {
			_ = reg.Close(ctx)
			return nil, err
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildGateway(cfg config.PSPConfig, logger *zap.Logger, clock func() time.Time) (payments.Gateway, error) {
	if cfg.Provider == "local" || cfg.StripeAPIKey == "" {
		logger.Info("using local payment gateway", zap.String("provider", cfg.Provider))
		return payments.NewLocalGateway(localCheckoutBaseURL, clock), nil
	}
	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey:     cfg.StripeAPIKey,
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
		Currency:   cfg.Currency,
		Logger:     observability.NewEventLogger(logger.Named("stripe"), zapcore.InfoLevel, "stripe event"),
		Clock:      clock,
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe gateway: %w", err)
	}
	return gateway, nil
}

func (c *Container) buildCache() (services.CartDetailCache, error) {
	cfg := c.Config.Redis
	if !cfg.Enabled() {
		return nil, nil
	}
	client := cache.NewClient(cfg)
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	cartCache, err := cache.NewCartDetailCache(client,
		cache.WithKeyPrefix("storefront-"+c.Config.Environment),
		cache.WithTTL(cfg.CartTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("build cart cache: %w", err)
	}
	return cartCache, nil
}

func (c *Container) buildPublisher(ctx context.Context) (services.OrderEventPublisher, error) {
	cfg := c.Config.PubSub
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	topic := client.Topic(cfg.OrderTopic)
	topic.EnableMessageOrdering = true
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})
	publisher, err := events.NewPubSubOrderPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("build order publisher: %w", err)
	}
	return publisher, nil
}

type serviceDeps struct {
	registry repositories.Registry
	gateway  payments.Gateway
	cache    services.CartDetailCache
	events   services.OrderEventPublisher
	metrics  *observability.Metrics
	clock    func() time.Time
	logger   *zap.Logger
}

func eventLogger(logger *zap.Logger, name string) observability.EventLogger {
	return observability.NewEventLogger(logger.Named(name), zapcore.InfoLevel, name+" event")
}

func buildServices(deps serviceDeps) (Services, error) {
	var (
		svc Services
		err error
	)

	if svc.Pricing, err = services.NewCartPricingService(services.CartPricingServiceDeps{
		Carts:   deps.registry.Carts(),
		Catalog: deps.registry.Catalog(),
		Cache:   deps.cache,
		Metrics: deps.metrics,
		Clock:   deps.clock,
		Logger:  eventLogger(deps.logger, "pricing"),
	}); err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}

	if svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Store:   deps.registry,
		Gateway: deps.gateway,
		Cache:   deps.cache,
		Events:  deps.events,
		Metrics: deps.metrics,
		Clock:   deps.clock,
		Logger:  eventLogger(deps.logger, "checkout"),
	}); err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	if svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Store:  deps.registry,
		Cache:  deps.cache,
		Clock:  deps.clock,
		Logger: eventLogger(deps.logger, "cart"),
	}); err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	if svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Store:  deps.registry,
		Clock:  deps.clock,
		Logger: eventLogger(deps.logger, "catalog"),
	}); err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	if svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Store:  deps.registry,
		Events: deps.events,
		Clock:  deps.clock,
		Logger: eventLogger(deps.logger, "order"),
	}); err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	if svc.Payments, err = services.NewPaymentService(services.PaymentServiceDeps{
		Store:   deps.registry,
		Gateway: deps.gateway,
		Events:  deps.events,
		Clock:   deps.clock,
		Logger:  eventLogger(deps.logger, "payment"),
	}); err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}

	if svc.Shipments, err = services.NewShipmentService(services.ShipmentServiceDeps{
		Store:  deps.registry,
		Events: deps.events,
		Clock:  deps.clock,
		Logger: eventLogger(deps.logger, "shipment"),
	}); err != nil {
		return Services{}, fmt.Errorf("build shipment service: %w", err)
	}

	return svc, nil
}

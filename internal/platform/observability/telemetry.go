package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const instrumentationName = "github.com/hanko-field/storefront"

// StartSpan starts an internal span from the global tracer provider and records its ids on the
// context so FromContext can attach them to log lines.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
	sc := span.SpanContext()
	if sc.IsValid() {
		ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
			TraceID: sc.TraceID().String(),
			SpanID:  sc.SpanID().String(),
			Sampled: sc.IsSampled(),
		})
	}
	return ctx, span
}

// EndSpan records err on span, when present, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Metrics holds the counters emitted by checkout and pricing. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ordersPlaced      metric.Int64Counter
	orderValue        metric.Int64Histogram
	insufficientStock metric.Int64Counter
	linesDropped      metric.Int64Counter
}

// NewMetrics registers the storefront instruments on meter, or on the global meter provider
// when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	ordersPlaced, err := meter.Int64Counter(
		"checkout.orders.placed",
		metric.WithDescription("Orders committed by checkout"),
	)
	if err != nil {
		return nil, err
	}
	orderValue, err := meter.Int64Histogram(
		"checkout.orders.grand_total",
		metric.WithUnit("{JPY}"),
		metric.WithDescription("Grand total of committed orders in minor units"),
	)
	if err != nil {
		return nil, err
	}
	insufficientStock, err := meter.Int64Counter(
		"checkout.insufficient_stock",
		metric.WithDescription("Checkouts aborted because a line exceeded available stock"),
	)
	if err != nil {
		return nil, err
	}
	linesDropped, err := meter.Int64Counter(
		"pricing.lines.dropped",
		metric.WithDescription("Cart lines dropped or clamped while pricing"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		ordersPlaced:      ordersPlaced,
		orderValue:        orderValue,
		insufficientStock: insufficientStock,
		linesDropped:      linesDropped,
	}, nil
}

// OrderPlaced counts a committed order.
func (m *Metrics) OrderPlaced(ctx context.Context, grandTotal int64, lines int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("lines", lines))
	m.ordersPlaced.Add(ctx, 1, attrs)
	m.orderValue.Record(ctx, grandTotal, attrs)
}

// InsufficientStock counts a checkout rejected for productID.
func (m *Metrics) InsufficientStock(ctx context.Context, productID string) {
	if m == nil {
		return
	}
	m.insufficientStock.Add(ctx, 1, metric.WithAttributes(attribute.String("productId", productID)))
}

// LineAdjusted counts a priced cart line that was dropped or clamped for reason.
func (m *Metrics) LineAdjusted(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.linesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

package observability

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

// EventLogger is the structured event sink accepted by services and adapters.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// NewEventLogger adapts logger to EventLogger. Events are written at level with msg as the
// message; the context logger is preferred when one is present so request fields carry over.
func NewEventLogger(logger *zap.Logger, level zapcore.Level, msg string) EventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		target := logger
		if requestctx.Logger(ctx) != requestctx.NoopLogger() {
			target = FromContext(ctx).Named(logger.Name())
		}
		ce := target.Check(level, msg)
		if ce == nil {
			return
		}
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for _, key := range slices.Sorted(maps.Keys(fields)) {
			zFields = append(zFields, eventField(key, fields[key]))
		}
		ce.Write(zFields...)
	}
}

func eventField(key string, value any) zap.Field {
	if err, ok := value.(error); ok {
		return zap.NamedError(key, err)
	}
	return zap.Any(key, value)
}

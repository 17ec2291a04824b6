package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type eventLogger = func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

func defaultLogger(logger eventLogger) eventLogger {
	if logger == nil {
		return noopLogger
	}
	return logger
}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time {
		return clock().UTC()
	}
}

func defaultIDGenerator(gen func() string) func() string {
	if gen != nil {
		return gen
	}
	return func() string {
		return ulid.Make().String()
	}
}

// translateError maps repository and domain failures onto a service's sentinels. The cause is
// kept reachable so callers can still match domain errors with errors.Is.
func translateError(err error, notFound, invalid, conflict, unavailable error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Kind {
		case domain.KindNotFound:
			return fmt.Errorf("%w: %w", notFound, err)
		default:
			return fmt.Errorf("%w: %w", invalid, err)
		}
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %w", notFound, err)
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %w", invalid, domain.NewInsufficientStockError(invErr.ProductID, invErr.Requested, invErr.Available))
		default:
			return fmt.Errorf("%w: %w", invalid, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", conflict, err)
		}
	}
	return fmt.Errorf("%w: %w", unavailable, err)
}

func requireID(value string, invalid error, field string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", invalid, field)
	}
	return value, nil
}

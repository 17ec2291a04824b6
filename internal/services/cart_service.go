package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartNotFound indicates the cart or cart line does not exist.
	ErrCartNotFound = errors.New("cart: not found")
	// ErrCartProductNotFound indicates an item references an unknown product.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartConflict indicates a concurrent cart update won.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartUnavailable indicates the cart store failed.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Store       repositories.Registry
	Cache       CartDetailCache
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	store  repositories.Registry
	cache  CartDetailCache
	now    func() time.Time
	newID  func() string
	logger eventLogger
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Store == nil {
		return nil, errors.New("cart service: repository registry is required")
	}
	return &cartService{
		store:  deps.Store,
		cache:  deps.Cache,
		now:    utcClock(deps.Clock),
		newID:  defaultIDGenerator(deps.IDGenerator),
		logger: defaultLogger(deps.Logger),
	}, nil
}

func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID, err := requireID(userID, ErrCartInvalidInput, "user id")
	if err != nil {
		return Cart{}, err
	}
	var cart Cart
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		loaded, created, err := s.loadOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		if created {
			if loaded, err = s.store.Carts().Save(ctx, loaded); err != nil {
				return err
			}
		}
		cart = loaded
		return nil
	})
	if err != nil {
		return Cart{}, s.translate(err)
	}
	return cart, nil
}

// AddItem sums quantity onto the line for the product, creating the cart when needed.
func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	return s.mutate(ctx, cmd.UserID, cmd.ProductID, true, func(cart Cart, now time.Time) (Cart, error) {
		return domain.AddCartItem(cart, cmd.ProductID, cmd.Quantity, now)
	})
}

// ChangeQuantity applies cmd.Quantity as a delta. Lines reaching zero are removed.
func (s *cartService) ChangeQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	return s.mutate(ctx, cmd.UserID, cmd.ProductID, cmd.Quantity > 0, func(cart Cart, now time.Time) (Cart, error) {
		return domain.ChangeQuantityBy(cart, cmd.ProductID, cmd.Quantity, now)
	})
}

func (s *cartService) SetQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	return s.mutate(ctx, cmd.UserID, cmd.ProductID, cmd.Quantity > 0, func(cart Cart, now time.Time) (Cart, error) {
		return domain.SetItemQuantity(cart, cmd.ProductID, cmd.Quantity, now)
	})
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (Cart, error) {
	return s.mutate(ctx, userID, productID, false, func(cart Cart, now time.Time) (Cart, error) {
		return domain.RemoveCartItem(cart, productID, now)
	})
}

func (s *cartService) ClearCart(ctx context.Context, userID string) (Cart, error) {
	return s.mutate(ctx, userID, "", false, func(cart Cart, now time.Time) (Cart, error) {
		return domain.ClearCart(cart, now), nil
	})
}

// MergeCarts folds the source cart into the target cart, keeping the larger quantity of any
// product present in both, and deletes the source cart. Both writes share one transaction.
func (s *cartService) MergeCarts(ctx context.Context, cmd MergeCartsCommand) (Cart, error) {
	sourceID, err := requireID(cmd.SourceUserID, ErrCartInvalidInput, "source user id")
	if err != nil {
		return Cart{}, err
	}
	targetID, err := requireID(cmd.TargetUserID, ErrCartInvalidInput, "target user id")
	if err != nil {
		return Cart{}, err
	}
	if sourceID == targetID {
		return Cart{}, fmt.Errorf("%w: source and target user are the same", ErrCartInvalidInput)
	}

	var merged Cart
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		source, err := s.store.Carts().GetByUserID(ctx, sourceID)
		if err != nil {
			return err
		}
		target, _, err := s.loadOrCreate(ctx, targetID)
		if err != nil {
			return err
		}
		next := domain.MergeCartItems(target, source, s.now())
		if merged, err = s.store.Carts().Save(ctx, next); err != nil {
			return err
		}
		return s.store.Carts().Delete(ctx, source.ID)
	})
	if err != nil {
		return Cart{}, s.translate(err)
	}

	s.invalidate(ctx, sourceID, targetID)
	s.logger(ctx, "cart.merged", map[string]any{
		"sourceUserId": sourceID,
		"targetUserId": targetID,
		"cartId":       merged.ID,
		"lines":        len(merged.Items),
	})
	return merged, nil
}

// LinkAnonymousCart merges an anonymous cart into the signed-in user's cart. Failures are logged
// and never returned so sign-in is not blocked by cart state.
func (s *cartService) LinkAnonymousCart(ctx context.Context, cmd MergeCartsCommand) {
	_, err := s.MergeCarts(ctx, cmd)
	switch {
	case err == nil:
	case errors.Is(err, ErrCartNotFound):
		// nothing to link
	default:
		s.logger(ctx, "cart.link_failed", map[string]any{
			"sourceUserId": cmd.SourceUserID,
			"targetUserId": cmd.TargetUserID,
			"error":        err,
		})
	}
}

func (s *cartService) mutate(ctx context.Context, userID, productID string, checkProduct bool, apply func(Cart, time.Time) (Cart, error)) (Cart, error) {
	userID, err := requireID(userID, ErrCartInvalidInput, "user id")
	if err != nil {
		return Cart{}, err
	}

	var cart Cart
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if checkProduct {
			if _, err := s.store.Catalog().GetByID(ctx, productID); err != nil {
				if repositories.IsNotFound(err) {
					return fmt.Errorf("%w: %w", ErrCartProductNotFound, domain.NewNotFoundError("product", productID))
				}
				return err
			}
		}
		current, _, err := s.loadOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		next, err := apply(current, s.now())
		if err != nil {
			return err
		}
		cart, err = s.store.Carts().Save(ctx, next)
		return err
	})
	if err != nil {
		return Cart{}, s.translate(err)
	}
	s.invalidate(ctx, userID)
	return cart, nil
}

func (s *cartService) loadOrCreate(ctx context.Context, userID string) (Cart, bool, error) {
	cart, err := s.store.Carts().GetByUserID(ctx, userID)
	if err == nil {
		return cart, false, nil
	}
	if !repositories.IsNotFound(err) {
		return Cart{}, false, err
	}
	cart, err = domain.NewEmptyCart(s.newID(), userID, s.now())
	if err != nil {
		return Cart{}, false, err
	}
	return cart, true, nil
}

func (s *cartService) invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger(ctx, "cart.cache_invalidate_failed", map[string]any{"userIds": userIDs, "error": err})
	}
}

func (s *cartService) translate(err error) error {
	if errors.Is(err, ErrCartProductNotFound) || errors.Is(err, ErrCartInvalidInput) {
		return err
	}
	return translateError(err, ErrCartNotFound, ErrCartInvalidInput, ErrCartConflict, ErrCartUnavailable)
}

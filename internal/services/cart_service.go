package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const (
	maxCartItems      = 200
	maxItemTextLength = 500
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// CartServiceDeps wires the repository and event dependencies for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Events     CartEventPublisher
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	events   CartEventPublisher
	sanitize *bluemonday.Policy
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		repo:     deps.Repository,
		events:   deps.Events,
		sanitize: bluemonday.StrictPolicy(),
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{UserID: uid, Items: []CartItem{}}, nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	if cart.Items == nil {
		cart.Items = []CartItem{}
	}
	return cart, nil
}

func (s *cartService) ReplaceItems(ctx context.Context, cmd ReplaceCartItemsCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	items, err := s.normaliseItems(cmd.Items)
	if err != nil {
		return Cart{}, err
	}

	saved, err := s.repo.ReplaceItems(ctx, uid, items)
	if err != nil {
		s.logger(ctx, "cart.replace_failed", map[string]any{"userID": uid, "error": err.Error()})
		return Cart{}, s.translateRepoError(err)
	}
	s.publish(ctx, domain.CartEventUpdated, saved)
	return saved, nil
}

func (s *cartService) ClearCart(ctx context.Context, userID string) (bool, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return false, ErrCartInvalidInput
	}
	existed, err := s.repo.ClearCart(ctx, uid)
	if err != nil {
		s.logger(ctx, "cart.clear_failed", map[string]any{"userID": uid, "error": err.Error()})
		return false, s.translateRepoError(err)
	}
	if existed {
		s.publish(ctx, domain.CartEventCleared, Cart{UserID: uid})
	}
	return existed, nil
}

func (s *cartService) normaliseItems(items []CartItem) ([]CartItem, error) {
	if len(items) > maxCartItems {
		return nil, fmt.Errorf("%w: at most %d items allowed", ErrCartInvalidInput, maxCartItems)
	}
	out, err := sanitizeItems(s.sanitize, items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	return out, nil
}

// sanitizeItems validates ids, quantities and prices, and strips markup from the text fields.
func sanitizeItems(policy *bluemonday.Policy, items []CartItem) ([]CartItem, error) {
	out := make([]CartItem, 0, len(items))
	for i, item := range items {
		switch {
		case item.ProductID < 1:
			return nil, fmt.Errorf("item %d: id must be positive", i)
		case item.Quantity < 1:
			return nil, fmt.Errorf("item %d: quantity must be at least 1", i)
		case item.Price.IsNegative():
			return nil, fmt.Errorf("item %d: price must not be negative", i)
		}
		item.Name = cleanText(policy, item.Name)
		item.Image = cleanText(policy, item.Image)
		item.SelectedSize = cleanText(policy, item.SelectedSize)
		item.SelectedColor = cleanText(policy, item.SelectedColor)
		item.Category = cleanText(policy, item.Category)
		out = append(out, item)
	}
	return out, nil
}

// cleanText strips markup. The strict policy escapes entities, which the JSON layer would escape
// again, so they are decoded back to plain text.
func cleanText(policy *bluemonday.Policy, value string) string {
	cleaned := strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
	if runes := []rune(cleaned); len(runes) > maxItemTextLength {
		cleaned = string(runes[:maxItemTextLength])
	}
	return cleaned
}

func (s *cartService) publish(ctx context.Context, kind string, cart Cart) {
	if s.events == nil {
		return
	}
	quantity := 0
	for _, item := range cart.Items {
		quantity += item.Quantity
	}
	event := CartEvent{
		Type:       kind,
		UserID:     cart.UserID,
		ItemCount:  len(cart.Items),
		Quantity:   quantity,
		OccurredAt: s.now(),
	}
	if err := s.events.PublishCartEvent(ctx, event); err != nil {
		s.logger(ctx, "cart.event_publish_failed", map[string]any{
			"userID": cart.UserID,
			"type":   kind,
			"error":  err.Error(),
		})
	}
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return ErrCartConflict
	}
	return ErrCartUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

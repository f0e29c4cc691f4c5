package repositories

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Carts() CartRepository
	Users() UserRepository
	Orders() OrderRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository stores one cart per user.
type CartRepository interface {
	// GetCart returns a not-found RepositoryError when the user has never saved a cart.
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	// ReplaceItems overwrites the cart items, creating the cart when missing.
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	// ClearCart empties an existing cart and reports whether one existed.
	ClearCart(ctx context.Context, userID string) (bool, error)
}

// UserRepository stores storefront accounts. Email addresses are unique.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, user domain.User) (domain.User, error)
}

// OrderRepository stores placed orders. Orders are written once and never updated.
type OrderRepository interface {
	// Insert stores a new order; an existing ID is a conflict.
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ListByUser returns the user's orders, newest first. A limit of zero means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

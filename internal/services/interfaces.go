package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartEvent          = domain.CartEvent
	User               = domain.User
	Order              = domain.Order
	Address            = domain.Address
	OrderTotals        = domain.OrderTotals
	OrderEvent         = domain.OrderEvent
	SystemHealthReport = domain.SystemHealthReport
)

// CartService stores the server copy of each member's cart. Merging happens on the client; the
// server keeps whatever it was last sent.
type CartService interface {
	// GetCart returns the stored cart, or an empty cart when the user never saved one.
	GetCart(ctx context.Context, userID string) (Cart, error)
	ReplaceItems(ctx context.Context, cmd ReplaceCartItemsCommand) (Cart, error)
	// ClearCart empties the cart and reports whether one existed.
	ClearCart(ctx context.Context, userID string) (bool, error)
}

// UserService handles account signup, password login and profile maintenance.
type UserService interface {
	Signup(ctx context.Context, cmd SignupCommand) (AuthResult, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthResult, error)
	GetProfile(ctx context.Context, userID string) (User, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (AuthResult, error)
}

// OrderService places orders from a member's cart and lists them back.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]Order, error)
}

// SystemService aggregates utility endpoints (health checks).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CartEventPublisher delivers cart change notifications.
type CartEventPublisher interface {
	PublishCartEvent(ctx context.Context, event CartEvent) error
}

// OrderEventPublisher delivers order notifications.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, email string, admin bool) (string, time.Time, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Command and DTO definitions ------------------------------------------------

type ReplaceCartItemsCommand struct {
	UserID string
	Items  []CartItem
}

// PlaceOrderCommand carries a checkout. When Expected is set the order is rejected unless its total
// matches the server quote to the cent.
type PlaceOrderCommand struct {
	UserID          string
	Items           []CartItem
	ShippingAddress Address
	PaymentMethod   string
	ShippingMethod  string
	Expected        *OrderTotals
}

type SignupCommand struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

type LoginCommand struct {
	Email    string
	Password string
}

// UpdateProfileCommand applies the non-nil fields.
type UpdateProfileCommand struct {
	UserID    string
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}

// AuthResult is returned by every operation that hands the caller a fresh token.
type AuthResult struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is the server-side copy of a member's shopping cart. The server stores whatever lines the
// client last sent; merging happens on the client.
type Cart struct {
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a single product/variant entry within a cart.
type CartItem struct {
	ProductID     int
	Name          string
	Price         decimal.Decimal
	Quantity      int
	Image         string
	SelectedSize  string
	SelectedColor string
	Category      string
}

// Empty reports whether the cart holds no items.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// User is a storefront account.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CartEvent is published after a cart changes on the server.
type CartEvent struct {
	Type       string
	UserID     string
	ItemCount  int
	Quantity   int
	OccurredAt time.Time
}

const (
	CartEventUpdated = "cart.updated"
	CartEventCleared = "cart.cleared"
)

// Order is a placed checkout. Prices are the quote captured when the order was placed and are never
// recomputed.
type Order struct {
	ID              string
	UserID          string
	Status          string
	Items           []CartItem
	ShippingAddress Address
	PaymentMethod   string
	ShippingMethod  string
	Totals          OrderTotals
	CreatedAt       time.Time
	PaidAt          time.Time
}

// Address is a shipping destination.
type Address struct {
	Line       string
	City       string
	PostalCode string
	Country    string
}

// OrderTotals mirrors a checkout quote. Items is the item total after any member discount.
type OrderTotals struct {
	Items    decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

const (
	OrderStatusPaid = "paid"

	PaymentMethodCard   = "card"
	PaymentMethodPayPal = "paypal"
)

// OrderEvent is published after an order is placed.
type OrderEvent struct {
	Type       string
	OrderID    string
	UserID     string
	ItemCount  int
	Total      decimal.Decimal
	OccurredAt time.Time
}

const OrderEventPlaced = "order.placed"

// Health statuses, from best to worst.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// WorstHealthStatus folds check statuses into one: any error wins, then any degraded. Blank
// statuses count as ok.
func WorstHealthStatus(checks map[string]SystemHealthCheck) string {
	status := HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case HealthStatusError:
			return HealthStatusError
		case HealthStatusOK, "":
		default:
			status = HealthStatusDegraded
		}
	}
	return status
}

// SystemHealthCheck describes the outcome of an individual dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

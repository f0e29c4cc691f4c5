package cartsync

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AnonymousKey is the local cache key used for carts without an authenticated user.
const AnonymousKey = "anonymous_cart"

// MemberDiscountRate is the fixed discount applied to authenticated shoppers.
var MemberDiscountRate = decimal.RequireFromString("0.10")

// Identity is the session a cart belongs to. The zero value is the anonymous session.
type Identity struct {
	UserID string
}

// Anonymous returns the identity used before login.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns the identity for a signed-in user.
func Authenticated(userID string) Identity {
	return Identity{UserID: strings.TrimSpace(userID)}
}

// IsAuthenticated reports whether the identity carries a user id.
func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

// CacheKey returns the local cache key for the identity's cart.
func (i Identity) CacheKey() string {
	if i.IsAuthenticated() {
		return i.UserID
	}
	return AnonymousKey
}

func (i Identity) String() string {
	if i.IsAuthenticated() {
		return "user:" + i.UserID
	}
	return "anonymous"
}

// TransitionKind distinguishes login from logout.
type TransitionKind string

const (
	TransitionLogin  TransitionKind = "login"
	TransitionLogout TransitionKind = "logout"
)

// Transition is a session change the engine reconciles against.
type Transition struct {
	Kind   TransitionKind
	UserID string
}

// State is an immutable snapshot of the cart.
type State struct {
	Identity Identity
	Lines    []Line
}

// Totals are derived from a state's lines and identity.
type Totals struct {
	TotalItems      int
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	DiscountedTotal decimal.Decimal
}

// Empty reports whether the cart has no lines.
func (s State) Empty() bool {
	return len(s.Lines) == 0
}

// Totals computes item count, subtotal and the member discount.
func (s State) Totals() Totals {
	totals := Totals{
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
	}
	for _, line := range s.Lines {
		totals.TotalItems += line.Quantity
		totals.Subtotal = totals.Subtotal.Add(line.LineTotal())
	}
	if s.Identity.IsAuthenticated() {
		totals.Discount = totals.Subtotal.Mul(MemberDiscountRate)
	}
	totals.DiscountedTotal = totals.Subtotal.Sub(totals.Discount)
	return totals
}

// Find returns the line with the given identity key.
func (s State) Find(key LineKey) (Line, bool) {
	for _, line := range s.Lines {
		if line.Key() == key {
			return line, true
		}
	}
	return Line{}, false
}

func (s State) clone() State {
	return State{Identity: s.Identity, Lines: cloneLines(s.Lines)}
}

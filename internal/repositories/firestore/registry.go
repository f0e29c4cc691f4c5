package firestore

import (
	"context"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Registry exposes the Firestore repositories sharing one Provider.
type Registry struct {
	provider *pfirestore.Provider
	carts    *CartRepository
	users    *UserRepository
	orders   *OrderRepository
}

// NewRegistry builds the Firestore repositories. The client is dialled on first use.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, carts: carts, users: users, orders: orders}, nil
}

func (r *Registry) Carts() repositories.CartRepository   { return r.carts }
func (r *Registry) Users() repositories.UserRepository   { return r.users }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx)
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

var _ repositories.Registry = (*Registry)(nil)

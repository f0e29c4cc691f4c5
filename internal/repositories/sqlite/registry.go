package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/hanko-field/storefront/internal/repositories"
)

// Registry exposes the SQLite repositories over one gorm handle.
type Registry struct {
	db     *gorm.DB
	carts  *CartRepository
	users  *UserRepository
	orders *OrderRepository
}

// NewRegistry opens the database at path and builds the repositories.
func NewRegistry(path string) (*Registry, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(db)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(db)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(db)
	if err != nil {
		return nil, err
	}
	return &Registry{db: db, carts: carts, users: users, orders: orders}, nil
}

func (r *Registry) Carts() repositories.CartRepository   { return r.carts }
func (r *Registry) Users() repositories.UserRepository   { return r.users }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Ping checks the database handle answers.
func (r *Registry) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite: handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database handle.
func (r *Registry) Close(context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ repositories.Registry = (*Registry)(nil)

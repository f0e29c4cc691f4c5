//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	pconfig "github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("storefront-test-%d", time.Now().UnixNano()),
		EmulatorHost: host,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})
	return provider
}

func TestCartRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewCartRepository(provider)
	if err != nil {
		t.Fatalf("new cart repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := repo.GetCart(ctx, "user-1"); !isNotFound(err) {
		t.Fatalf("expected not found for missing cart, got %v", err)
	}
	if existed, err := repo.ClearCart(ctx, "user-1"); err != nil || existed {
		t.Fatalf("expected clear of missing cart to report false, got %v %v", existed, err)
	}

	items := []domain.CartItem{{
		ProductID:    7,
		Name:         "Linen Shirt",
		Price:        decimal.RequireFromString("49.90"),
		Quantity:     2,
		SelectedSize: "M",
	}}
	saved, err := repo.ReplaceItems(ctx, "user-1", items)
	if err != nil {
		t.Fatalf("replace items: %v", err)
	}
	if len(saved.Items) != 1 {
		t.Fatalf("expected one saved item, got %d", len(saved.Items))
	}

	loaded, err := repo.GetCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(loaded.Items) != 1 || !loaded.Items[0].Price.Equal(items[0].Price) || loaded.Items[0].SelectedSize != "M" {
		t.Fatalf("unexpected cart %#v", loaded)
	}

	existed, err := repo.ClearCart(ctx, "user-1")
	if err != nil || !existed {
		t.Fatalf("expected clear to report existing cart, got %v %v", existed, err)
	}
	loaded, err = repo.GetCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("get cleared cart: %v", err)
	}
	if !loaded.Empty() {
		t.Fatalf("expected empty cart after clear, got %d items", len(loaded.Items))
	}
}

func TestUserRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewUserRepository(provider)
	if err != nil {
		t.Fatalf("new user repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	user := domain.User{ID: "u1", FirstName: "Ada", Email: "ada@example.com", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	if _, err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := user
	dup.ID = "u2"
	if _, err := repo.Create(ctx, dup); !isConflict(err) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	found, err := repo.FindByEmail(ctx, "ada@example.com")
	if err != nil || found.ID != "u1" {
		t.Fatalf("find by email: %v %#v", err, found)
	}

	user.Email = "ada@lovelace.dev"
	if _, err := repo.Update(ctx, user); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := repo.FindByEmail(ctx, "ada@example.com"); !isNotFound(err) {
		t.Fatalf("expected old email released, got %v", err)
	}
	found, err = repo.FindByEmail(ctx, "ada@lovelace.dev")
	if err != nil || found.ID != "u1" {
		t.Fatalf("find by new email: %v %#v", err, found)
	}
}

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	placed := time.Now().UTC().Truncate(time.Millisecond)
	order := domain.Order{
		ID:     "ord_1",
		UserID: "user-1",
		Status: domain.OrderStatusPaid,
		Items: []domain.CartItem{{
			ProductID: 7,
			Name:      "Linen Shirt",
			Price:     decimal.RequireFromString("49.90"),
			Quantity:  2,
		}},
		ShippingAddress: domain.Address{Line: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "United States"},
		PaymentMethod:   domain.PaymentMethodCard,
		ShippingMethod:  "standard",
		Totals: domain.OrderTotals{
			Items:    decimal.RequireFromString("89.82"),
			Discount: decimal.RequireFromString("9.98"),
			Shipping: decimal.Zero,
			Tax:      decimal.RequireFromString("6.29"),
			Total:    decimal.RequireFromString("96.11"),
		},
		CreatedAt: placed,
		PaidAt:    placed,
	}
	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, order); !isConflict(err) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	loaded, err := repo.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !loaded.Totals.Total.Equal(order.Totals.Total) || len(loaded.Items) != 1 || !loaded.Items[0].Price.Equal(order.Items[0].Price) {
		t.Fatalf("unexpected order %#v", loaded)
	}
	if _, err := repo.FindByID(ctx, "ord_missing"); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	listed, err := repo.ListByUser(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "ord_1" {
		t.Fatalf("unexpected listing %#v", listed)
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

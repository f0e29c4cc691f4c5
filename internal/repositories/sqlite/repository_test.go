package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(":memory:")
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg
}

func TestCartRepositoryLifecycle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	carts := reg.Carts()

	_, err := carts.GetCart(ctx, "user-1")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	existed, err := carts.ClearCart(ctx, "user-1")
	if err != nil || existed {
		t.Fatalf("expected clear of missing cart to report false, got %v %v", existed, err)
	}

	items := []domain.CartItem{
		{ProductID: 3, Name: "Canvas Tote", Price: decimal.RequireFromString("19.99"), Quantity: 1},
		{ProductID: 1, Name: "Oxford Shirt", Price: decimal.RequireFromString("49.50"), Quantity: 2, SelectedSize: "L", SelectedColor: "Blue"},
	}
	first, err := carts.ReplaceItems(ctx, "user-1", items)
	if err != nil {
		t.Fatalf("replace items: %v", err)
	}

	loaded, err := carts.GetCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(loaded.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(loaded.Items))
	}
	if loaded.Items[0].ProductID != 3 || loaded.Items[1].SelectedColor != "Blue" {
		t.Fatalf("expected insertion order preserved, got %#v", loaded.Items)
	}
	if !loaded.Items[1].Price.Equal(decimal.RequireFromString("49.5")) {
		t.Fatalf("unexpected price %s", loaded.Items[1].Price)
	}

	time.Sleep(2 * time.Millisecond)
	second, err := carts.ReplaceItems(ctx, "user-1", items[:1])
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected created_at kept, got %s vs %s", second.CreatedAt, first.CreatedAt)
	}
	loaded, _ = carts.GetCart(ctx, "user-1")
	if len(loaded.Items) != 1 {
		t.Fatalf("expected replace to drop old rows, got %d items", len(loaded.Items))
	}

	existed, err = carts.ClearCart(ctx, "user-1")
	if err != nil || !existed {
		t.Fatalf("expected clear to report true, got %v %v", existed, err)
	}
	loaded, err = carts.GetCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("get cleared cart: %v", err)
	}
	if !loaded.Empty() {
		t.Fatalf("expected empty cart, got %d items", len(loaded.Items))
	}
}

func TestUserRepositoryEnforcesUniqueEmail(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	users := reg.Users()

	now := time.Now().UTC()
	if _, err := users.Create(ctx, domain.User{ID: "u1", FirstName: "Ada", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := users.Create(ctx, domain.User{ID: "u2", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}

	found, err := users.FindByEmail(ctx, "ada@example.com")
	if err != nil || found.ID != "u1" {
		t.Fatalf("find by email: %v %#v", err, found)
	}

	found.LastName = "Lovelace"
	found.UpdatedAt = now.Add(time.Minute)
	updated, err := users.Update(ctx, found)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FirstName != "Ada" || updated.LastName != "Lovelace" {
		t.Fatalf("unexpected name %q %q", updated.FirstName, updated.LastName)
	}

	if _, err := users.Update(ctx, domain.User{ID: "ghost", Email: "ghost@example.com"}); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found on update of missing user, got %v", err)
	}
}

func TestRegistryPing(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOrderRepositoryInsertAndList(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	orders := reg.Orders()

	placed := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	first := domain.Order{
		ID:     "ord_1",
		UserID: "user-1",
		Status: domain.OrderStatusPaid,
		Items: []domain.CartItem{
			{ProductID: 2, Name: "Wool Scarf", Price: decimal.RequireFromString("24.00"), Quantity: 1, SelectedColor: "Grey"},
			{ProductID: 1, Name: "Oxford Shirt", Price: decimal.RequireFromString("49.50"), Quantity: 2, SelectedSize: "L"},
		},
		ShippingAddress: domain.Address{Line: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "United States"},
		PaymentMethod:   domain.PaymentMethodCard,
		ShippingMethod:  "express",
		Totals: domain.OrderTotals{
			Items:    decimal.RequireFromString("110.70"),
			Discount: decimal.RequireFromString("12.30"),
			Shipping: decimal.RequireFromString("9.99"),
			Tax:      decimal.RequireFromString("7.75"),
			Total:    decimal.RequireFromString("128.44"),
		},
		CreatedAt: placed,
		PaidAt:    placed,
	}
	if err := orders.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := first
	second.ID = "ord_2"
	second.Items = first.Items[:1]
	second.CreatedAt = placed.Add(time.Hour)
	if err := orders.Insert(ctx, second); err != nil {
		t.Fatalf("insert second: %v", err)
	}
	other := first
	other.ID = "ord_3"
	other.UserID = "user-2"
	if err := orders.Insert(ctx, other); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	var repoErr repositories.RepositoryError
	if err := orders.Insert(ctx, first); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	loaded, err := orders.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(loaded.Items) != 2 || loaded.Items[0].ProductID != 2 || loaded.Items[1].SelectedSize != "L" {
		t.Fatalf("expected item order kept, got %#v", loaded.Items)
	}
	if !loaded.Totals.Total.Equal(first.Totals.Total) || !loaded.Totals.Discount.Equal(first.Totals.Discount) {
		t.Fatalf("unexpected totals %#v", loaded.Totals)
	}
	if loaded.ShippingAddress != first.ShippingAddress || loaded.ShippingMethod != "express" {
		t.Fatalf("unexpected shipping %#v %q", loaded.ShippingAddress, loaded.ShippingMethod)
	}

	if _, err := orders.FindByID(ctx, "ord_missing"); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	listed, err := orders.ListByUser(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "ord_2" || listed[1].ID != "ord_1" {
		t.Fatalf("expected newest first, got %d orders", len(listed))
	}
	if len(listed[0].Items) != 1 {
		t.Fatalf("expected items preloaded, got %#v", listed[0].Items)
	}

	limited, err := orders.ListByUser(ctx, "user-1", 1)
	if err != nil || len(limited) != 1 || limited[0].ID != "ord_2" {
		t.Fatalf("expected limit applied, got %v %d", err, len(limited))
	}
}

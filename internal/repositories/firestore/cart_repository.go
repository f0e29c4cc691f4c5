package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists one cart document per user, keyed by user ID.
type CartRepository struct {
	carts    *pfirestore.Collection[cartDocument]
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	carts := pfirestore.NewCollection[cartDocument](provider, cartCollection)
	return &CartRepository{
		carts:    carts,
		provider: provider,
		clock:    time.Now,
	}, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.carts.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return toDomainCart(doc), nil
}

// ReplaceItems overwrites the stored items, keeping the original creation time.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := r.clock().UTC()
	var saved cartDocument
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.carts.Ref(ctx, uid)
		if err != nil {
			return err
		}
		createdAt := now
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if existing, decodeErr := r.carts.Decode(snap); decodeErr == nil && !existing.Data.CreatedAt.IsZero() {
				createdAt = existing.Data.CreatedAt
			}
		case !pfirestore.IsNotFound(err):
			return err
		}
		saved = cartDocument{
			UserID:    uid,
			Items:     fromDomainItems(items),
			CreatedAt: createdAt,
			UpdatedAt: now,
		}
		return tx.Set(ref, saved)
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.replaceItems", err)
	}
	return toDomainCart(pfirestore.Document[cartDocument]{ID: uid, Data: saved}), nil
}

// ClearCart empties an existing cart. It reports false without writing when the user has no cart.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) (bool, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return false, errors.New("cart repository: user id is required")
	}

	now := r.clock().UTC()
	existed := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existed = false
		ref, err := r.carts.Ref(ctx, uid)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ref); err != nil {
			if pfirestore.IsNotFound(err) {
				return nil
			}
			return err
		}
		existed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "items", Value: []cartItemDocument{}},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return false, pfirestore.WrapError("carts.clear", err)
	}
	return existed, nil
}

type cartDocument struct {
	UserID    string             `firestore:"userId"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// Prices are stored as decimal strings so cents survive the round trip.
type cartItemDocument struct {
	ProductID     int    `firestore:"productId"`
	Name          string `firestore:"name"`
	Price         string `firestore:"price"`
	Quantity      int    `firestore:"quantity"`
	Image         string `firestore:"image,omitempty"`
	SelectedSize  string `firestore:"selectedSize,omitempty"`
	SelectedColor string `firestore:"selectedColor,omitempty"`
	Category      string `firestore:"category,omitempty"`
}

func toDomainCart(doc pfirestore.Document[cartDocument]) domain.Cart {
	cart := domain.Cart{
		UserID:    doc.ID,
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = doc.CreateTime
	}
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	cart.Items = toDomainItems(doc.Data.Items)
	return cart
}

func toDomainItems(docs []cartItemDocument) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(docs))
	for _, item := range docs {
		items = append(items, domain.CartItem{
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         parseAmount(item.Price),
			Quantity:      item.Quantity,
			Image:         item.Image,
			SelectedSize:  item.SelectedSize,
			SelectedColor: item.SelectedColor,
			Category:      item.Category,
		})
	}
	return items
}

func fromDomainItems(items []domain.CartItem) []cartItemDocument {
	docs := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, cartItemDocument{
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         item.Price.String(),
			Quantity:      item.Quantity,
			Image:         item.Image,
			SelectedSize:  item.SelectedSize,
			SelectedColor: item.SelectedColor,
			Category:      item.Category,
		})
	}
	return docs
}

var _ repositories.CartRepository = (*CartRepository)(nil)

package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type cartRecord struct {
	UserID    string           `gorm:"primaryKey;size:64"`
	Items     []cartItemRecord `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cartRecord) TableName() string { return "carts" }

type cartItemRecord struct {
	ID            uint            `gorm:"primaryKey"`
	UserID        string          `gorm:"index;size:64"`
	Position      int
	ProductID     int
	Name          string
	Price         decimal.Decimal `gorm:"type:text"`
	Quantity      int
	Image         string
	SelectedSize  string
	SelectedColor string
	Category      string
}

func (cartItemRecord) TableName() string { return "cart_items" }

// CartRepository stores carts in two tables: one header row per user and ordered item rows.
type CartRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewCartRepository constructs a SQLite-backed cart repository.
func NewCartRepository(db *gorm.DB) (*CartRepository, error) {
	if db == nil {
		return nil, errors.New("cart repository requires gorm db")
	}
	return &CartRepository{db: db, clock: time.Now}, nil
}

// GetCart implements repositories.CartRepository.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	var record cartRecord
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("user_id = ?", uid).
		Take(&record).Error
	if err != nil {
		return domain.Cart{}, wrapError("carts.get", err)
	}
	return toDomainCart(record), nil
}

// ReplaceItems implements repositories.CartRepository.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	now := r.clock().UTC()
	record := cartRecord{UserID: uid, CreatedAt: now, UpdatedAt: now}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Omit("Items").Create(&record).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", uid).Delete(&cartItemRecord{}).Error; err != nil {
			return err
		}
		rows := fromDomainItems(uid, items)
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Where("user_id = ?", uid).Take(&record).Error
	})
	if err != nil {
		return domain.Cart{}, wrapError("carts.replaceItems", err)
	}
	record.Items = fromDomainItems(uid, items)
	return toDomainCart(record), nil
}

// ClearCart implements repositories.CartRepository.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) (bool, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return false, errors.New("cart repository: user id is required")
	}
	existed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&cartRecord{}).Where("user_id = ?", uid).Update("updated_at", r.clock().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		existed = true
		return tx.Where("user_id = ?", uid).Delete(&cartItemRecord{}).Error
	})
	if err != nil {
		return false, wrapError("carts.clear", err)
	}
	return existed, nil
}

func toDomainCart(record cartRecord) domain.Cart {
	cart := domain.Cart{
		UserID:    record.UserID,
		Items:     make([]domain.CartItem, 0, len(record.Items)),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	for _, item := range record.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         item.Price,
			Quantity:      item.Quantity,
			Image:         item.Image,
			SelectedSize:  item.SelectedSize,
			SelectedColor: item.SelectedColor,
			Category:      item.Category,
		})
	}
	return cart
}

func fromDomainItems(userID string, items []domain.CartItem) []cartItemRecord {
	rows := make([]cartItemRecord, 0, len(items))
	for i, item := range items {
		rows = append(rows, cartItemRecord{
			UserID:        userID,
			Position:      i,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Price:         item.Price,
			Quantity:      item.Quantity,
			Image:         item.Image,
			SelectedSize:  item.SelectedSize,
			SelectedColor: item.SelectedColor,
			Category:      item.Category,
		})
	}
	return rows
}

var _ repositories.CartRepository = (*CartRepository)(nil)

package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type orderRecord struct {
	ID             string            `gorm:"primaryKey;size:64"`
	UserID         string            `gorm:"index:idx_orders_user_created,priority:1;size:64"`
	Status         string            `gorm:"size:32"`
	Items          []orderItemRecord `gorm:"foreignKey:OrderID;references:ID;constraint:OnDelete:CASCADE"`
	AddressLine    string
	City           string
	PostalCode     string
	Country        string
	PaymentMethod  string          `gorm:"size:32"`
	ShippingMethod string          `gorm:"size:32"`
	ItemsPrice     decimal.Decimal `gorm:"type:text"`
	Discount       decimal.Decimal `gorm:"type:text"`
	ShippingPrice  decimal.Decimal `gorm:"type:text"`
	TaxPrice       decimal.Decimal `gorm:"type:text"`
	TotalPrice     decimal.Decimal `gorm:"type:text"`
	CreatedAt      time.Time       `gorm:"index:idx_orders_user_created,priority:2"`
	PaidAt         time.Time
}

func (orderRecord) TableName() string { return "orders" }

type orderItemRecord struct {
	ID            uint   `gorm:"primaryKey"`
	OrderID       string `gorm:"index;size:64"`
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

func (orderItemRecord) TableName() string { return "order_items" }

// OrderRepository stores orders as a header row with ordered item rows.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository requires gorm db")
	}
	return &OrderRepository{db: db}, nil
}

// Insert implements repositories.OrderRepository.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	record := fromDomainOrder(order)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&orderRecord{}).Where("id = ?", record.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return gorm.ErrDuplicatedKey
		}
		if err := tx.Omit("Items").Create(&record).Error; err != nil {
			return err
		}
		if len(record.Items) == 0 {
			return nil
		}
		return tx.Create(&record.Items).Error
	})
	return wrapError("orders.insert", err)
}

// FindByID implements repositories.OrderRepository.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	var record orderRecord
	err := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("id = ?", id).
		Take(&record).Error
	if err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	return toDomainOrder(record), nil
}

// ListByUser implements repositories.OrderRepository.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}
	query := r.db.WithContext(ctx).
		Preload("Items", orderedItems).
		Where("user_id = ?", uid).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []orderRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, wrapError("orders.listByUser", err)
	}
	orders := make([]domain.Order, 0, len(records))
	for _, record := range records {
		orders = append(orders, toDomainOrder(record))
	}
	return orders, nil
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func fromDomainOrder(order domain.Order) orderRecord {
	record := orderRecord{
		ID:             order.ID,
		UserID:         order.UserID,
		Status:         order.Status,
		AddressLine:    order.ShippingAddress.Line,
		City:           order.ShippingAddress.City,
		PostalCode:     order.ShippingAddress.PostalCode,
		Country:        order.ShippingAddress.Country,
		PaymentMethod:  order.PaymentMethod,
		ShippingMethod: order.ShippingMethod,
		ItemsPrice:     order.Totals.Items,
		Discount:       order.Totals.Discount,
		ShippingPrice:  order.Totals.Shipping,
		TaxPrice:       order.Totals.Tax,
		TotalPrice:     order.Totals.Total,
		CreatedAt:      order.CreatedAt.UTC(),
		PaidAt:         order.PaidAt.UTC(),
	}
	for i, item := range order.Items {
		record.Items = append(record.Items, orderItemRecord{
			OrderID:       order.ID,
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
	return record
}

func toDomainOrder(record orderRecord) domain.Order {
	order := domain.Order{
		ID:     record.ID,
		UserID: record.UserID,
		Status: record.Status,
		Items:  make([]domain.CartItem, 0, len(record.Items)),
		ShippingAddress: domain.Address{
			Line:       record.AddressLine,
			City:       record.City,
			PostalCode: record.PostalCode,
			Country:    record.Country,
		},
		PaymentMethod:  record.PaymentMethod,
		ShippingMethod: record.ShippingMethod,
		Totals: domain.OrderTotals{
			Items:    record.ItemsPrice,
			Discount: record.Discount,
			Shipping: record.ShippingPrice,
			Tax:      record.TaxPrice,
			Total:    record.TotalPrice,
		},
		CreatedAt: record.CreatedAt,
		PaidAt:    record.PaidAt,
	}
	for _, item := range record.Items {
		order.Items = append(order.Items, domain.CartItem{
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
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository stores one document per order with its items embedded. Listing by user needs
// the composite index (userId ASC, createdAt DESC).
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection[orderDocument](provider, orderCollection),
	}, nil
}

// Insert creates the order document. An existing ID surfaces as a conflict (AlreadyExists).
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.orders.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", uid).OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc))
	}
	return orders, nil
}

type orderDocument struct {
	UserID          string             `firestore:"userId"`
	Status          string             `firestore:"status"`
	Items           []cartItemDocument `firestore:"items"`
	ShippingAddress addressDocument    `firestore:"shippingAddress"`
	PaymentMethod   string             `firestore:"paymentMethod"`
	ShippingMethod  string             `firestore:"shippingMethod"`
	Totals          totalsDocument     `firestore:"totals"`
	CreatedAt       time.Time          `firestore:"createdAt"`
	PaidAt          time.Time          `firestore:"paidAt"`
}

type addressDocument struct {
	Line       string `firestore:"address"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type totalsDocument struct {
	Items    string `firestore:"items"`
	Discount string `firestore:"discount"`
	Shipping string `firestore:"shipping"`
	Tax      string `firestore:"tax"`
	Total    string `firestore:"total"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	return orderDocument{
		UserID: order.UserID,
		Status: order.Status,
		Items:  fromDomainItems(order.Items),
		ShippingAddress: addressDocument{
			Line:       order.ShippingAddress.Line,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		PaymentMethod:  order.PaymentMethod,
		ShippingMethod: order.ShippingMethod,
		Totals: totalsDocument{
			Items:    order.Totals.Items.String(),
			Discount: order.Totals.Discount.String(),
			Shipping: order.Totals.Shipping.String(),
			Tax:      order.Totals.Tax.String(),
			Total:    order.Totals.Total.String(),
		},
		CreatedAt: order.CreatedAt.UTC(),
		PaidAt:    order.PaidAt.UTC(),
	}
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	order := domain.Order{
		ID:     doc.ID,
		UserID: data.UserID,
		Status: data.Status,
		Items:  toDomainItems(data.Items),
		ShippingAddress: domain.Address{
			Line:       data.ShippingAddress.Line,
			City:       data.ShippingAddress.City,
			PostalCode: data.ShippingAddress.PostalCode,
			Country:    data.ShippingAddress.Country,
		},
		PaymentMethod:  data.PaymentMethod,
		ShippingMethod: data.ShippingMethod,
		Totals: domain.OrderTotals{
			Items:    parseAmount(data.Totals.Items),
			Discount: parseAmount(data.Totals.Discount),
			Shipping: parseAmount(data.Totals.Shipping),
			Tax:      parseAmount(data.Totals.Tax),
			Total:    parseAmount(data.Totals.Total),
		},
		CreatedAt: data.CreatedAt,
		PaidAt:    data.PaidAt,
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime
	}
	return order
}

func parseAmount(raw string) decimal.Decimal {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

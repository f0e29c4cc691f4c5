package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/storefront/internal/cartsync"
	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderIDPrefix     = "ord_"
	defaultCountry    = "United States"
	maxOrderListLimit = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist or belongs to someone else.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderQuoteMismatch indicates the totals the client showed differ from the server quote.
	ErrOrderQuoteMismatch = errors.New("order: quote mismatch")
	// ErrOrderConflict indicates a duplicate order id.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	sanitize *bluemonday.Policy
	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:   deps.Orders,
		sanitize: bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// PlaceOrder prices the items with the member quote, records the order as paid and returns it.
// Payment is simulated: the method is recorded, nothing is charged.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if len(cmd.Items) > maxCartItems {
		return Order{}, fmt.Errorf("%w: at most %d items allowed", ErrOrderInvalidInput, maxCartItems)
	}
	items, err := sanitizeItems(s.sanitize, cmd.Items)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	address, err := s.normaliseAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	payment, err := normalisePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return Order{}, err
	}
	shipping, err := cartsync.ParseShippingMethod(cmd.ShippingMethod)
	if err != nil {
		return Order{}, fmt.Errorf("%w: shipping method must be standard or express", ErrOrderInvalidInput)
	}

	totals := quoteItems(userID, items, shipping)
	if cmd.Expected != nil && !cmd.Expected.Total.Round(2).Equal(totals.Total.Round(2)) {
		s.logger(ctx, "order.quote_mismatch", map[string]any{
			"userID":        userID,
			"expectedTotal": cmd.Expected.Total.String(),
			"quotedTotal":   totals.Total.String(),
		})
		return Order{}, fmt.Errorf("%w: expected total %s, quoted %s", ErrOrderQuoteMismatch, cmd.Expected.Total.StringFixed(2), totals.Total.StringFixed(2))
	}

	now := s.clock()
	order := Order{
		ID:              orderIDPrefix + s.newID(),
		UserID:          userID,
		Status:          domain.OrderStatusPaid,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   payment,
		ShippingMethod:  string(shipping),
		Totals:          totals,
		CreatedAt:       now,
		PaidAt:          now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		s.logger(ctx, "order.insert_failed", map[string]any{"userID": userID, "orderID": order.ID, "error": err.Error()})
		return Order{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.placed", map[string]any{
		"userID":  userID,
		"orderID": order.ID,
		"total":   order.Totals.Total.StringFixed(2),
	})
	s.publish(ctx, order)
	return order, nil
}

// GetOrder returns the order when it belongs to userID. Orders of other users are reported as not
// found.
func (s *orderService) GetOrder(ctx context.Context, userID, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return Order{}, fmt.Errorf("%w: user id and order id are required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *orderService) ListOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if limit <= 0 || limit > maxOrderListLimit {
		limit = maxOrderListLimit
	}
	orders, err := s.orders.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

func (s *orderService) normaliseAddress(addr Address) (Address, error) {
	out := Address{
		Line:       cleanText(s.sanitize, addr.Line),
		City:       cleanText(s.sanitize, addr.City),
		PostalCode: cleanText(s.sanitize, addr.PostalCode),
		Country:    cleanText(s.sanitize, addr.Country),
	}
	var missing []string
	if out.Line == "" {
		missing = append(missing, "address")
	}
	if out.City == "" {
		missing = append(missing, "city")
	}
	if out.PostalCode == "" {
		missing = append(missing, "postal code")
	}
	if len(missing) > 0 {
		return Address{}, fmt.Errorf("%w: shipping %s required", ErrOrderInvalidInput, strings.Join(missing, ", "))
	}
	if out.Country == "" {
		out.Country = defaultCountry
	}
	return out, nil
}

func normalisePaymentMethod(raw string) (string, error) {
	switch method := strings.ToLower(strings.TrimSpace(raw)); method {
	case "":
		return domain.PaymentMethodCard, nil
	case domain.PaymentMethodCard, domain.PaymentMethodPayPal:
		return method, nil
	default:
		return "", fmt.Errorf("%w: payment method must be card or paypal", ErrOrderInvalidInput)
	}
}

// quoteItems prices items the way the member cart does. Orders are always placed by a signed-in
// user, so the member discount applies.
func quoteItems(userID string, items []CartItem, method cartsync.ShippingMethod) OrderTotals {
	lines := make([]cartsync.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, cartsync.Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
			Size:      item.SelectedSize,
			Color:     item.SelectedColor,
		})
	}
	summary := cartsync.Quote(cartsync.State{Identity: cartsync.Authenticated(userID), Lines: lines}, method)
	return OrderTotals{
		Items:    summary.Items,
		Discount: summary.Discount,
		Shipping: summary.Shipping,
		Tax:      summary.Tax,
		Total:    summary.Total,
	}
}

func (s *orderService) publish(ctx context.Context, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:       domain.OrderEventPlaced,
		OrderID:    order.ID,
		UserID:     order.UserID,
		ItemCount:  len(order.Items),
		Total:      order.Totals.Total,
		OccurredAt: order.CreatedAt,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

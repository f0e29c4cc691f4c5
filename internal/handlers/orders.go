package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// OrderHandlers exposes checkout and order history for the authenticated member.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency wraps order placement with the provided middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the order endpoints against the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.placeOrder)
	} else {
		r.Post("/", h.placeOrder)
	}
	r.Get("/mine", h.listMine)
	r.Get("/{orderID}", h.getOrder)
}

type addressPayload struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

type placeOrderRequest struct {
	OrderItems      []cartItemPayload `json:"orderItems"`
	ShippingAddress addressPayload    `json:"shippingAddress"`
	PaymentMethod   string            `json:"paymentMethod"`
	ShippingMethod  string            `json:"shippingMethod"`
	TotalPrice      json.Number       `json:"totalPrice"`
}

type orderPayload struct {
	ID              string            `json:"id"`
	User            string            `json:"user"`
	Status          string            `json:"status"`
	OrderItems      []cartItemPayload `json:"orderItems"`
	ShippingAddress addressPayload    `json:"shippingAddress"`
	PaymentMethod   string            `json:"paymentMethod"`
	ShippingMethod  string            `json:"shippingMethod"`
	ItemsPrice      json.Number       `json:"itemsPrice"`
	DiscountPrice   json.Number       `json:"discountPrice"`
	ShippingPrice   json.Number       `json:"shippingPrice"`
	TaxPrice        json.Number       `json:"taxPrice"`
	TotalPrice      json.Number       `json:"totalPrice"`
	IsPaid          bool              `json:"isPaid"`
	PaidAt          string            `json:"paidAt,omitempty"`
	CreatedAt       string            `json:"createdAt"`
}

type orderListPayload struct {
	Orders []orderPayload `json:"orders"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	items, err := parseCartItems(req.OrderItems)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd := services.PlaceOrderCommand{
		UserID: identity.UID,
		Items:  items,
		ShippingAddress: services.Address{
			Line:       req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		PaymentMethod:  req.PaymentMethod,
		ShippingMethod: req.ShippingMethod,
	}
	if req.TotalPrice != "" {
		total, err := decimal.NewFromString(req.TotalPrice.String())
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "totalPrice must be a number", http.StatusBadRequest))
			return
		}
		cmd.Expected = &services.OrderTotals{Total: total}
	}
	order, err := h.orders.PlaceOrder(r.Context(), cmd)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, orderResponse(order))
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), identity.UID, 0)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	payload := orderListPayload{Orders: make([]orderPayload, 0, len(orders))}
	for _, order := range orders {
		payload.Orders = append(payload.Orders, orderResponse(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse(order))
}

func (h *OrderHandlers) ready(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

func orderResponse(order services.Order) orderPayload {
	items := cartResponse(services.Cart{Items: order.Items}).Items
	payload := orderPayload{
		ID:         order.ID,
		User:       order.UserID,
		Status:     order.Status,
		OrderItems: items,
		ShippingAddress: addressPayload{
			Address:    order.ShippingAddress.Line,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		PaymentMethod:  order.PaymentMethod,
		ShippingMethod: order.ShippingMethod,
		ItemsPrice:     json.Number(order.Totals.Items.StringFixed(2)),
		DiscountPrice:  json.Number(order.Totals.Discount.StringFixed(2)),
		ShippingPrice:  json.Number(order.Totals.Shipping.StringFixed(2)),
		TaxPrice:       json.Number(order.Totals.Tax.StringFixed(2)),
		TotalPrice:     json.Number(order.Totals.Total.StringFixed(2)),
		IsPaid:         !order.PaidAt.IsZero(),
		CreatedAt:      order.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !order.PaidAt.IsZero() {
		payload.PaidAt = order.PaidAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		message := "invalid order request"
		if reason, ok := strings.CutPrefix(err.Error(), services.ErrOrderInvalidInput.Error()+": "); ok && reason != "" {
			message = reason
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderQuoteMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("quote_mismatch", "order total no longer matches the cart; review the cart and try again", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order already exists", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

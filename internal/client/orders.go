package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/storefront/internal/cartsync"
)

// ShippingAddress is the destination of an order.
type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

// CheckoutRequest places an order for Lines. When ExpectedTotal is non-zero the server rejects the
// order with 409 unless its own quote has the same total.
type CheckoutRequest struct {
	Lines          []cartsync.Line
	Address        ShippingAddress
	PaymentMethod  string
	ShippingMethod string
	ExpectedTotal  decimal.Decimal
}

type placeOrderPayload struct {
	OrderItems      []cartsync.WireLine `json:"orderItems"`
	ShippingAddress ShippingAddress     `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod,omitempty"`
	ShippingMethod  string              `json:"shippingMethod,omitempty"`
	TotalPrice      json.Number         `json:"totalPrice,omitempty"`
}

// Order is a placed order as returned by the API.
type Order struct {
	ID              string              `json:"id"`
	User            string              `json:"user"`
	Status          string              `json:"status"`
	OrderItems      []cartsync.WireLine `json:"orderItems"`
	ShippingAddress ShippingAddress     `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	ShippingMethod  string              `json:"shippingMethod"`
	ItemsPrice      decimal.Decimal     `json:"itemsPrice"`
	DiscountPrice   decimal.Decimal     `json:"discountPrice"`
	ShippingPrice   decimal.Decimal     `json:"shippingPrice"`
	TaxPrice        decimal.Decimal     `json:"taxPrice"`
	TotalPrice      decimal.Decimal     `json:"totalPrice"`
	IsPaid          bool                `json:"isPaid"`
	PaidAt          string              `json:"paidAt,omitempty"`
	CreatedAt       string              `json:"createdAt"`
}

// PlaceOrder submits a checkout for userID. A non-empty idempotencyKey is sent as the
// Idempotency-Key header.
func (c *Client) PlaceOrder(ctx context.Context, userID string, req CheckoutRequest, idempotencyKey string) (Order, error) {
	token, err := c.tokenFor(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	payload := placeOrderPayload{
		OrderItems:      cartsync.ToWire(req.Lines),
		ShippingAddress: req.Address,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
	}
	if !req.ExpectedTotal.IsZero() {
		payload.TotalPrice = json.Number(req.ExpectedTotal.StringFixed(2))
	}
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var order Order
	err = c.do(ctx, requestSpec{
		method: http.MethodPost,
		path:   []string{"orders"},
		token:  token,
		body:   payload,
		header: header,
	}, &order)
	return order, err
}

// MyOrders lists userID's orders, newest first.
func (c *Client) MyOrders(ctx context.Context, userID string) ([]Order, error) {
	token, err := c.tokenFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   []string{"orders", "mine"},
		token:  token,
	}, &payload); err != nil {
		return nil, err
	}
	return payload.Orders, nil
}

// OrderDetails fetches one of userID's orders.
func (c *Client) OrderDetails(ctx context.Context, userID, orderID string) (Order, error) {
	token, err := c.tokenFor(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	var order Order
	err = c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   []string{"orders", orderID},
		token:  token,
	}, &order)
	return order, err
}

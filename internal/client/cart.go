package client

import (
	"context"
	"net/http"

	"github.com/hanko-field/storefront/internal/cartsync"
)

var _ cartsync.RemoteStore = (*Client)(nil)

type cartPayload struct {
	Items []cartsync.WireLine `json:"items"`
}

// FetchCart returns the user's saved cart lines.
func (c *Client) FetchCart(ctx context.Context, userID string) ([]cartsync.Line, error) {
	token, err := c.tokenFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	var payload cartPayload
	if err := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   []string{"cart"},
		token:  token,
	}, &payload); err != nil {
		return nil, err
	}
	return cartsync.FromWire(payload.Items), nil
}

// PushCart replaces the user's saved cart with lines.
func (c *Client) PushCart(ctx context.Context, userID string, lines []cartsync.Line) error {
	token, err := c.tokenFor(ctx, userID)
	if err != nil {
		return err
	}
	return c.do(ctx, requestSpec{
		method: http.MethodPut,
		path:   []string{"cart"},
		token:  token,
		body:   cartPayload{Items: cartsync.ToWire(lines)},
	}, nil)
}

// ClearCart deletes the user's saved cart.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	token, err := c.tokenFor(ctx, userID)
	if err != nil {
		return err
	}
	return c.do(ctx, requestSpec{
		method: http.MethodDelete,
		path:   []string{"cart"},
		token:  token,
	}, nil)
}

package client

import (
	"context"
	"net/http"
)

// SignupRequest registers a new account.
type SignupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Account is the profile returned by the auth and profile endpoints. Token is set by signup, login
// and profile updates.
type Account struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isAdmin"`
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// ProfileUpdate carries optional profile changes.
type ProfileUpdate struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// Signup creates an account and returns it with a token. A non-empty idempotencyKey is sent as
// the Idempotency-Key header.
func (c *Client) Signup(ctx context.Context, req SignupRequest, idempotencyKey string) (Account, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var account Account
	err := c.do(ctx, requestSpec{
		method: http.MethodPost,
		path:   []string{"auth", "signup"},
		body:   req,
		header: header,
	}, &account)
	return account, err
}

// Login exchanges credentials for an account and token.
func (c *Client) Login(ctx context.Context, email, password string) (Account, error) {
	var account Account
	err := c.do(ctx, requestSpec{
		method: http.MethodPost,
		path:   []string{"auth", "login"},
		body:   map[string]string{"email": email, "password": password},
	}, &account)
	return account, err
}

// Profile fetches the account identified by token.
func (c *Client) Profile(ctx context.Context, token string) (Account, error) {
	var account Account
	err := c.do(ctx, requestSpec{
		method: http.MethodGet,
		path:   []string{"me"},
		token:  token,
	}, &account)
	return account, err
}

// UpdateProfile applies update and returns the account with a fresh token.
func (c *Client) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (Account, error) {
	var account Account
	err := c.do(ctx, requestSpec{
		method: http.MethodPut,
		path:   []string{"me"},
		token:  token,
		body:   update,
	}, &account)
	return account, err
}

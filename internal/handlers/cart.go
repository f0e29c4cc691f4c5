package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	cartMessageCleared      = "Cart cleared"
	cartMessageAlreadyEmpty = "Cart already empty"
)

// CartHandlers exposes the authenticated member's server cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers wires cart endpoints. When authn is nil the routes expect an identity placed on
// the context by an outer middleware.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes registers the cart endpoints against the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getCart)
	r.Post("/", h.replaceCart)
	r.Put("/", h.replaceCart)
	r.Delete("/", h.clearCart)
}

type cartItemPayload struct {
	ID            int         `json:"id"`
	Name          string      `json:"name"`
	Price         json.Number `json:"price"`
	Quantity      *int        `json:"quantity,omitempty"`
	Image         string      `json:"image,omitempty"`
	SelectedSize  string      `json:"selectedSize,omitempty"`
	SelectedColor string      `json:"selectedColor,omitempty"`
	Category      string      `json:"category,omitempty"`
}

type cartPayload struct {
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type cartReplaceRequest struct {
	Items []cartItemPayload `json:"items"`
}

type cartMessagePayload struct {
	Message string `json:"message"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(r.Context(), identity.UID)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	payload := cartResponse(cart)
	etag := cartETag(payload)
	setCartResponseHeaders(w, cart.UpdatedAt, etag)
	if match := strings.TrimSpace(r.Header.Get("If-None-Match")); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) replaceCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req cartReplaceRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	items, err := parseCartItems(req.Items)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cart, err := h.carts.ReplaceItems(r.Context(), services.ReplaceCartItemsCommand{
		UserID: identity.UID,
		Items:  items,
	})
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	payload := cartResponse(cart)
	setCartResponseHeaders(w, cart.UpdatedAt, cartETag(payload))
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	existed, err := h.carts.ClearCart(r.Context(), identity.UID)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	message := cartMessageAlreadyEmpty
	if existed {
		message = cartMessageCleared
	}
	setCartResponseHeaders(w, time.Time{}, "")
	writeJSONResponse(w, http.StatusOK, cartMessagePayload{Message: message})
}

func (h *CartHandlers) ready(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

func parseCartItems(raw []cartItemPayload) ([]services.CartItem, error) {
	items := make([]services.CartItem, 0, len(raw))
	for i, item := range raw {
		if item.ID < 1 {
			return nil, fmt.Errorf("item %d: id must be positive", i)
		}
		price := decimal.Zero
		if item.Price != "" {
			parsed, err := decimal.NewFromString(item.Price.String())
			if err != nil {
				return nil, fmt.Errorf("item %d: price must be a number", i)
			}
			price = parsed
		}
		quantity := 1
		if item.Quantity != nil {
			quantity = *item.Quantity
		}
		items = append(items, services.CartItem{
			ProductID:     item.ID,
			Name:          item.Name,
			Price:         price,
			Quantity:      quantity,
			Image:         item.Image,
			SelectedSize:  item.SelectedSize,
			SelectedColor: item.SelectedColor,
			Category:      item.Category,
		})
	}
	return items, nil
}

func cartResponse(cart services.Cart) cartPayload {
	payload := cartPayload{Items: make([]cartItemPayload, 0, len(cart.Items))}
	for _, item := range cart.Items {
		quantity := item.Quantity
		payload.Items = append(payload.Items, cartItemPayload{
			ID:            item.ProductID,
			Name:          item.Name,
			Price:         json.Number(item.Price.String()),
			Quantity:      &quantity,
			Image:         item.Image,
			SelectedSize:  item.SelectedSize,
			SelectedColor: item.SelectedColor,
			Category:      item.Category,
		})
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = cart.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func cartETag(payload cartPayload) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(encoded)
	return `W/"` + hex.EncodeToString(sum[:8]) + `"`
}

func setCartResponseHeaders(w http.ResponseWriter, updatedAt time.Time, etag string) {
	header := w.Header()
	header.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	header.Set("Pragma", "no-cache")
	if !updatedAt.IsZero() {
		header.Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	}
	if etag != "" {
		header.Set("ETag", etag)
	}
}

func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		message := "invalid cart request"
		if reason, ok := strings.CutPrefix(err.Error(), services.ErrCartInvalidInput.Error()+": "); ok && reason != "" {
			message = reason
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

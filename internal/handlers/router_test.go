package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/repositories/sqlite"
	"github.com/hanko-field/storefront/internal/services"
)

func TestNewRouterServesHealthAndNotImplemented(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for unmounted cart routes, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body["error"] != errorNotFoundCode {
		t.Fatalf("expected route_not_found, got %v", body["error"])
	}
}

func TestNewRouterAppliesCustomMiddleware(t *testing.T) {
	called := false
	router := NewRouter(
		WithMiddlewares(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				next.ServeHTTP(w, r)
			})
		}),
		WithCartRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		}),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if !called {
		t.Fatalf("expected middleware to run")
	}
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected registrar handler, got %d", rr.Code)
	}
}

func newIntegrationRouter(t *testing.T) http.Handler {
	t.Helper()
	registry, err := sqlite.NewRegistry(":memory:")
	if err != nil {
		t.Fatalf("sqlite registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	tokens, err := auth.NewTokenIssuer(config.AuthConfig{TokenSecret: "integration-secret", TokenTTL: time.Hour, Issuer: "storefront"})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	users, err := services.NewUserService(services.UserServiceDeps{
		Users:     registry.Users(),
		Tokens:    tokens,
		Passwords: auth.NewPasswordHasher(4),
		Clock:     time.Now,
	})
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	carts, err := services.NewCartService(services.CartServiceDeps{Repository: registry.Carts(), Clock: time.Now})
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{Orders: registry.Orders()})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}

	authn := auth.NewAuthenticator(tokens)
	authHandlers := NewAuthHandlers(users, WithSignupIdempotency(idempotency.Middleware(idempotency.NewMemoryStore())))
	return NewRouter(
		WithAuthRoutes(authHandlers.Routes),
		WithMeRoutes(NewMeHandlers(authn, users).Routes),
		WithCartRoutes(NewCartHandlers(authn, carts).Routes),
		WithOrderRoutes(NewOrderHandlers(authn, orders, WithOrderIdempotency(idempotency.Middleware(idempotency.NewMemoryStore()))).Routes),
	)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterSignupLoginAndCartRoundTrip(t *testing.T) {
	router := newIntegrationRouter(t)

	signup := map[string]string{"firstName": "Ada", "lastName": "Lovelace", "email": " Ada@Example.com ", "password": "secret1"}
	rr := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", "", signup, "Idempotency-Key", "signup-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created profilePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if created.Email != "ada@example.com" || created.Token == "" {
		t.Fatalf("unexpected signup payload %+v", created)
	}

	replayed := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", "", signup, "Idempotency-Key", "signup-1")
	if replayed.Code != http.StatusCreated || replayed.Header().Get(idempotency.ReplayHeader) == "" {
		t.Fatalf("expected replayed signup, got %d headers=%v", replayed.Code, replayed.Header())
	}

	dup := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", "", signup)
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate signup, got %d", dup.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rr.Code)
	}
	rr = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 login, got %d", rr.Code)
	}
	var loggedIn profilePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &loggedIn); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	token := loggedIn.Token

	if rr := doJSON(t, router, http.MethodGet, "/api/v1/cart", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/cart", token, nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "{\"items\":[]}\n" {
		t.Fatalf("expected empty cart, got %d %q", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/cart", token, nil)
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte(cartMessageAlreadyEmpty)) {
		t.Fatalf("expected already empty message, got %d %s", rr.Code, rr.Body.String())
	}

	put := map[string]any{"items": []map[string]any{{"id": 3, "name": "Tee", "price": 19.99, "selectedSize": "M"}}}
	rr = doJSON(t, router, http.MethodPut, "/api/v1/cart", token, put)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 replace, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Cache-Control") == "" || rr.Header().Get("ETag") == "" {
		t.Fatalf("expected cache headers, got %v", rr.Header())
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/cart", token, nil)
	var cart cartPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &cart); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ID != 3 || *cart.Items[0].Quantity != 1 || cart.Items[0].Price.String() != "19.99" {
		t.Fatalf("unexpected cart %+v", cart)
	}

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/cart", token, nil)
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte(cartMessageCleared)) {
		t.Fatalf("expected cleared message, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/me", token, nil)
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte(`"firstName":"Ada"`)) {
		t.Fatalf("unexpected profile response %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterCheckoutAndOrderHistory(t *testing.T) {
	router := newIntegrationRouter(t)

	signup := map[string]string{"firstName": "Grace", "lastName": "Hopper", "email": "grace@example.com", "password": "secret1"}
	rr := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", "", signup)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var grace profilePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &grace); err != nil {
		t.Fatalf("decode signup: %v", err)
	}

	order := map[string]any{
		"orderItems":      []map[string]any{{"id": 3, "name": "Tee", "price": 20, "quantity": 2}},
		"shippingAddress": map[string]string{"address": "1 Main St", "city": "Springfield", "postalCode": "12345"},
		"paymentMethod":   "card",
		"totalPrice":      38.52,
	}
	if rr := doJSON(t, router, http.MethodPost, "/api/v1/orders", "", order); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/api/v1/orders", grace.Token, order, "Idempotency-Key", "checkout-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var placed orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &placed); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if placed.TotalPrice.String() != "38.52" || !placed.IsPaid || placed.ShippingAddress.Country != "United States" {
		t.Fatalf("unexpected order %+v", placed)
	}

	replayed := doJSON(t, router, http.MethodPost, "/api/v1/orders", grace.Token, order, "Idempotency-Key", "checkout-1")
	if replayed.Header().Get(idempotency.ReplayHeader) == "" {
		t.Fatalf("expected replayed checkout, got headers=%v", replayed.Header())
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/orders/mine", grace.Token, nil)
	var mine orderListPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &mine); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if rr.Code != http.StatusOK || len(mine.Orders) != 1 || mine.Orders[0].ID != placed.ID {
		t.Fatalf("expected the single placed order, got %d %+v", rr.Code, mine)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/orders/"+placed.ID, grace.Token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for order details, got %d", rr.Code)
	}

	other := map[string]string{"firstName": "Alan", "lastName": "Turing", "email": "alan@example.com", "password": "secret1"}
	rr = doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", "", other)
	var alan profilePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &alan); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if rr := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+placed.ID, alan.Token, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another member's order, got %d", rr.Code)
	}
}

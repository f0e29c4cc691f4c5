package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/services"
)

func newAuthRouter(svc services.UserService) chi.Router {
	router := chi.NewRouter()
	router.Route("/auth", NewAuthHandlers(svc).Routes)
	return router
}

func TestAuthHandlersSignupCreated(t *testing.T) {
	service := &stubUserService{
		signupFunc: func(_ context.Context, cmd services.SignupCommand) (services.AuthResult, error) {
			if cmd.Email != "a@example.com" || cmd.Password != "secret1" || cmd.FirstName != "A" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.AuthResult{User: services.User{ID: "u1", FirstName: "A", LastName: "B", Email: cmd.Email}, Token: "tok"}, nil
		},
	}
	body := `{"firstName":"A","lastName":"B","email":"a@example.com","password":"secret1"}`
	rr := httptest.NewRecorder()
	newAuthRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"id", "firstName", "lastName", "email", "isAdmin", "token"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("expected %s in payload %v", key, payload)
		}
	}
}

func TestAuthHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"invalid", fmt.Errorf("%w: password must be at least 6 characters", services.ErrUserInvalidInput), http.StatusBadRequest, "invalid_request", "password must be at least 6 characters"},
		{"exists", services.ErrUserExists, http.StatusConflict, "user_exists", ""},
		{"unavailable", services.ErrUserUnavailable, http.StatusServiceUnavailable, "user_service_unavailable", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubUserService{
				signupFunc: func(context.Context, services.SignupCommand) (services.AuthResult, error) {
					return services.AuthResult{}, tc.err
				},
			}
			rr := httptest.NewRecorder()
			newAuthRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"x"}`)))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
			if tc.message != "" && body["message"] != tc.message {
				t.Fatalf("expected message %q, got %v", tc.message, body["message"])
			}
		})
	}
}

func TestAuthHandlersLoginInvalidCredentials(t *testing.T) {
	service := &stubUserService{
		loginFunc: func(context.Context, services.LoginCommand) (services.AuthResult, error) {
			return services.AuthResult{}, services.ErrUserInvalidCredentials
		},
	}
	rr := httptest.NewRecorder()
	newAuthRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@example.com","password":"nope"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthHandlersLoginRateLimited(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	service := &stubUserService{
		loginFunc: func(context.Context, services.LoginCommand) (services.AuthResult, error) {
			calls++
			return services.AuthResult{}, services.ErrUserInvalidCredentials
		},
	}
	router := chi.NewRouter()
	router.Route("/auth", NewAuthHandlers(service, WithLoginRateLimit(2, time.Minute, func() time.Time { return now })).Routes)

	send := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@example.com","password":"nope"}`)))
		return rr
	}
	for i := 0; i < 2; i++ {
		if rr := send(); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
		}
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected Retry-After 30, got %q", rr.Header().Get("Retry-After"))
	}
	if calls != 2 {
		t.Fatalf("expected service called twice, got %d", calls)
	}

	// rejected attempts do not push the next slot further out
	now = now.Add(10 * time.Second)
	if rr := send(); rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "20" {
		t.Fatalf("expected 429 with Retry-After 20, got %d %q", rr.Code, rr.Header().Get("Retry-After"))
	}

	now = now.Add(25 * time.Second)
	if rr := send(); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected one attempt refilled, got %d", rr.Code)
	}
	if rr := send(); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected bucket empty again, got %d", rr.Code)
	}
	if calls != 3 {
		t.Fatalf("expected service called three times, got %d", calls)
	}
}

func TestAuthHandlersLoginRateLimitKeyedByEmail(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	service := &stubUserService{
		loginFunc: func(context.Context, services.LoginCommand) (services.AuthResult, error) {
			return services.AuthResult{}, services.ErrUserInvalidCredentials
		},
	}
	router := chi.NewRouter()
	router.Route("/auth", NewAuthHandlers(service, WithLoginRateLimit(1, time.Minute, func() time.Time { return now })).Routes)

	send := func(email string) int {
		rr := httptest.NewRecorder()
		body := `{"email":"` + email + `","password":"nope"}`
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		return rr.Code
	}
	if code := send("a@example.com"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := send("A@Example.com "); code != http.StatusTooManyRequests {
		t.Fatalf("expected email key to be case-insensitive, got %d", code)
	}
	if code := send("b@example.com"); code != http.StatusUnauthorized {
		t.Fatalf("expected separate bucket per email, got %d", code)
	}
}

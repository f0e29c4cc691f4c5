package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubIDTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubIDTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	token, _, err := issuer.Issue("user-123", "user@example.com", true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	authn := NewAuthenticator(issuer)
	handlerCalled := false
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "user-123" {
			t.Fatalf("unexpected uid: %s", identity.UID)
		}
		if identity.Email != "user@example.com" {
			t.Fatalf("expected email user@example.com, got %s", identity.Email)
		}
		if !identity.IsAdmin() || identity.Provider != ProviderPassword {
			t.Fatalf("unexpected identity %#v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
}

func TestRequireAuth_RejectsPlaceholderTokens(t *testing.T) {
	verifierCalled := false
	authn := NewAuthenticator(VerifierFunc(func(context.Context, string) (*Identity, error) {
		verifierCalled = true
		return &Identity{UID: "x"}, nil
	}))
	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute")
	}))

	for _, header := range []string{"", "Bearer", "Bearer undefined", "Bearer null", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
		var body map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("expected JSON body: %v", err)
		}
		if body["error"] != "unauthenticated" {
			t.Fatalf("header %q: expected unauthenticated, got %v", header, body["error"])
		}
	}
	if verifierCalled {
		t.Fatalf("verifier must not see placeholder tokens")
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	authn := NewAuthenticator(VerifierFunc(func(context.Context, string) (*Identity, error) {
		return nil, ErrTokenExpired
	}))
	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired error, got %v", body["error"])
	}
}

func TestRequireAuth_InsufficientRole(t *testing.T) {
	authn := NewAuthenticator(VerifierFunc(func(context.Context, string) (*Identity, error) {
		return &Identity{UID: "u", Roles: rolesFor(false)}, nil
	}))
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestChain_FallsBackToFirebase(t *testing.T) {
	issuer := newTestIssuer(t)
	stub := &stubIDTokenVerifier{token: &firebaseauth.Token{
		UID:    "fb-uid",
		Claims: map[string]interface{}{"email": "fb@example.com", "admin": true},
	}}
	firebase, err := NewFirebaseVerifier(context.Background(), firebaseConfigForTest(), WithIDTokenVerifier(stub))
	if err != nil {
		t.Fatalf("firebase verifier: %v", err)
	}

	identity, err := Chain{issuer, firebase}.Verify(context.Background(), "firebase-id-token")
	if err != nil {
		t.Fatalf("chain verify: %v", err)
	}
	if identity.UID != "fb-uid" || identity.Provider != ProviderFirebase || !identity.IsAdmin() {
		t.Fatalf("unexpected identity %#v", identity)
	}
	if stub.received != "firebase-id-token" {
		t.Fatalf("expected firebase verifier to receive the token, got %q", stub.received)
	}
}

func TestChain_ReportsExpiry(t *testing.T) {
	expired := VerifierFunc(func(context.Context, string) (*Identity, error) { return nil, ErrTokenExpired })
	invalid := VerifierFunc(func(context.Context, string) (*Identity, error) { return nil, ErrTokenInvalid })

	if _, err := (Chain{invalid, expired}).Verify(context.Background(), "t"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expiry error, got %v", err)
	}
	if _, err := (Chain{}).Verify(context.Background(), "t"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid error for empty chain, got %v", err)
	}
}

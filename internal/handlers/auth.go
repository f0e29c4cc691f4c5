package handlers

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// AuthHandlers exposes signup and password login.
type AuthHandlers struct {
	users       services.UserService
	idempotency func(http.Handler) http.Handler
	logins      attemptLimiter
}

// AuthHandlersOption customises AuthHandlers.
type AuthHandlersOption func(*AuthHandlers)

// WithSignupIdempotency wraps signup with the provided middleware.
func WithSignupIdempotency(mw func(http.Handler) http.Handler) AuthHandlersOption {
	return func(h *AuthHandlers) {
		h.idempotency = mw
	}
}

// WithLoginRateLimit allows limit login attempts per client address and email, refilled evenly
// over window.
func WithLoginRateLimit(limit int, window time.Duration, clock func() time.Time) AuthHandlersOption {
	return func(h *AuthHandlers) {
		h.logins = newBucketLimiter(limit, window, clock)
	}
}

func NewAuthHandlers(users services.UserService, opts ...AuthHandlersOption) *AuthHandlers {
	h := &AuthHandlers{users: users}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the auth endpoints against the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/signup", h.signup)
	} else {
		r.Post("/signup", h.signup)
	}
	r.Post("/login", h.login)
}

type signupRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profilePayload struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isAdmin"`
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *AuthHandlers) signup(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req signupRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.users.Signup(r.Context(), services.SignupCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, authPayload(result))
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if h.logins != nil {
		if ok, wait := h.logins.Allow(clientAddress(r) + "|" + req.Email); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(r.Context(), w, httpx.NewError("too_many_attempts", "too many login attempts, try again later", http.StatusTooManyRequests))
			return
		}
	}
	result, err := h.users.Login(r.Context(), services.LoginCommand{Email: req.Email, Password: req.Password})
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, authPayload(result))
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func profileFromUser(user services.User) profilePayload {
	return profilePayload{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
	}
}

func authPayload(result services.AuthResult) profilePayload {
	payload := profileFromUser(result.User)
	payload.Token = result.Token
	if !result.ExpiresAt.IsZero() {
		payload.ExpiresAt = result.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", userErrorMessage(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserExists):
		httpx.WriteError(ctx, w, httpx.NewError("user_exists", "an account with this email already exists", http.StatusConflict))
	case errors.Is(err, services.ErrUserInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid email or password", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

// userErrorMessage strips the sentinel prefix so callers see the field level reason.
func userErrorMessage(err error) string {
	if reason, ok := strings.CutPrefix(err.Error(), services.ErrUserInvalidInput.Error()+": "); ok && reason != "" {
		return reason
	}
	return "invalid request"
}

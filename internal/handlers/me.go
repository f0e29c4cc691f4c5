package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// MeHandlers serves the authenticated user's profile.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{authn: authn, users: users}
}

// Routes registers the profile endpoints against the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
}

type updateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Password  *string `json:"password"`
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(r.Context(), identity.UID)
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, profileFromUser(user))
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.ready(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.users.UpdateProfile(r.Context(), services.UpdateProfileCommand{
		UserID:    identity.UID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, authPayload(result))
}

func (h *MeHandlers) ready(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.users == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

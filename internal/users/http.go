package users

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"musicroom/internal/apperr"
	"musicroom/internal/authn"
	"musicroom/internal/db"
	"musicroom/internal/httpx"
	"musicroom/internal/notify"
)

type Handler struct {
	db db.Querier
}

func NewHandler(q db.Querier) *Handler {
	return &Handler{db: q}
}

// Routes mounts the user-facing endpoints. The caller installs
// authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/notifications", h.handleNotifications)
	r.Get("/users/{id}", h.handleGet)
}

// InternalRoutes mounts the identity sync endpoint used by the auth
// service. Requests must carry X-Internal-Token.
func (h *Handler) InternalRoutes(r chi.Router, token string) {
	r.With(RequireToken(token)).Put("/internal/users/{id}", h.handleUpsert)
}

// RequireToken rejects requests whose X-Internal-Token differs from
// token. An empty token rejects everything.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				apperr.WriteError(w, http.StatusUnauthorized, "invalid internal token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type notificationsResponse struct {
	Notifications []notify.Entry `json:"notifications"`
	Count         int            `json:"count"`
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	u, err := Load(r.Context(), h.db, authn.UserID(r.Context()))
	if errors.Is(err, ErrNotFound) {
		// not synced yet, so nothing can have been sent to them
		apperr.WriteJSON(w, http.StatusOK, notificationsResponse{Notifications: []notify.Entry{}})
		return
	}
	if err != nil {
		httpx.Fail(w, r, "load notifications", err)
		return
	}
	list := u.Notifications()
	apperr.WriteJSON(w, http.StatusOK, notificationsResponse{Notifications: list, Count: len(list)})
}

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	u, err := Load(r.Context(), h.db, chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		apperr.WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		httpx.Fail(w, r, "load user", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, profile{ID: u.ID, Name: u.DisplayName()})
}

type upsertRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	var req upsertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, r, "upsert user", err)
		return
	}
	if id == "" {
		apperr.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := Upsert(r.Context(), h.db, id, strings.TrimSpace(req.Name), strings.TrimSpace(req.Email)); err != nil {
		httpx.Fail(w, r, "upsert user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

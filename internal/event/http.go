package event

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"musicroom/internal/access"
	"musicroom/internal/apperr"
	"musicroom/internal/authn"
	"musicroom/internal/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the event API on r. The caller installs authentication;
// inviteLimit, when given, guards invitation creation.
func (h *Handler) Routes(r chi.Router, inviteLimit ...func(http.Handler) http.Handler) {
	r.Get("/events", h.handleListPublic)
	r.Post("/events", h.handleCreate)
	r.Get("/events/mine", h.handleMine)

	r.Route("/events/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Patch("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Put("/visibility", h.handleVisibility)

		// membership
		r.Post("/join", h.handleJoin)
		r.Post("/leave", h.handleLeave)
		r.Get("/attendees", h.handleAttendees)
		r.Delete("/attendees/{userId}", h.handleRemoveAttendee)

		// tracks
		r.Get("/tracks", h.handleTracks)
		r.Post("/tracks", h.handleAddTrack)
		r.Delete("/tracks/{trackId}", h.handleRemoveTrack)
		r.Post("/tracks/{trackId}/vote", h.handleVote)
		r.Delete("/tracks/{trackId}/vote", h.handleUnvote)

		// roles
		r.Get("/roles", h.handleRoles)
		r.Post("/roles/editor", h.handleAssignEditor)
		r.Delete("/roles/{userId}", h.handleRemoveRole)
		r.Post("/transfer-ownership", h.handleTransfer)

		// invitations
		r.Get("/invites", h.handlePendingInvites)
		r.With(inviteLimit...).Post("/invites", h.handleInvite)
		r.Delete("/invites/{userId}", h.handleRevokeInvite)
		r.Post("/invitation/accept", h.handleAccept)
		r.Post("/invitation/decline", h.handleDecline)
	})
}

func (h *Handler) handleListPublic(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.svc.ListPublic(r.Context(), limit)
	if err != nil {
		httpx.Fail(w, r, "list public events", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, r, "create event", err)
		return
	}
	e, err := h.svc.Create(r.Context(), authn.UserID(r.Context()), in)
	if err != nil {
		httpx.Fail(w, r, "create event", err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.MyEvents(r.Context(), authn.UserID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, "my events", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Get(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "get event", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, r, "update event", err)
		return
	}
	e, err := h.svc.Update(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.Fail(w, r, "update event", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, r, "delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsPublic *bool `json:"is_public"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "event visibility", err)
		return
	}
	if body.IsPublic == nil {
		apperr.WriteError(w, http.StatusBadRequest, "is_public is required")
		return
	}
	e, err := h.svc.SetVisibility(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), *body.IsPublic)
	if err != nil {
		httpx.Fail(w, r, "event visibility", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Join(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "join event", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"message": "Successfully joined event", "event": e})
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Leave(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, r, "leave event", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Successfully left event"})
}

func (h *Handler) handleAttendees(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Attendees(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "event attendees", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRemoveAttendee(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.RemoveAttendee(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		httpx.Fail(w, r, "remove attendee", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "User removed from event"})
}

func (h *Handler) handleTracks(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Tracks(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "event tracks", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackID string `json:"track_id"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "add track", err)
		return
	}
	if _, err := h.svc.AddTrack(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.TrackID); err != nil {
		httpx.Fail(w, r, "add track", err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, map[string]string{"message": "Track added to event", "track_id": body.TrackID})
}

func (h *Handler) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.RemoveTrack(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "trackId")); err != nil {
		httpx.Fail(w, r, "remove track", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackId")
	n, err := h.svc.Vote(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), trackID)
	if err != nil {
		httpx.Fail(w, r, "vote", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"track_id": trackID, "votes": n})
}

func (h *Handler) handleUnvote(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackId")
	n, err := h.svc.Unvote(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), trackID)
	if err != nil {
		httpx.Fail(w, r, "unvote", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"track_id": trackID, "votes": n})
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Roles(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "event roles", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, view)
}

type userBody struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleAssignEditor(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "assign editor", err)
		return
	}
	if _, err := h.svc.AssignEditor(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.UserID); err != nil {
		httpx.Fail(w, r, "assign editor", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"message": "Editor role assigned", "user_id": body.UserID, "role": access.RoleEditor})
}

func (h *Handler) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.RemoveUserRole(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "userId")); err != nil {
		httpx.Fail(w, r, "remove role", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Role removed"})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NewOwnerID string `json:"new_owner_id"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "transfer ownership", err)
		return
	}
	e, err := h.svc.TransferOwnership(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.NewOwnerID)
	if err != nil {
		httpx.Fail(w, r, "transfer ownership", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"message": "Ownership transferred", "event": e})
}

func (h *Handler) handlePendingInvites(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.PendingInvites(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "pending invites", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string            `json:"user_id"`
		Role   access.InviteRole `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "invite", err)
		return
	}
	res, err := h.svc.Invite(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.UserID, body.Role)
	if err != nil {
		httpx.Fail(w, r, "invite", err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleRevokeInvite(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeInvite(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "userId")); err != nil {
		httpx.Fail(w, r, "revoke invite", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Accept(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "accept invite", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Decline(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "decline invite", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, res)
}

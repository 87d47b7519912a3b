package playlist

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

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

// Routes mounts the playlist API on r. inviteLimit guards invitation
// creation when given.
func (h *Handler) Routes(r chi.Router, inviteLimit ...func(http.Handler) http.Handler) {
	r.Get("/playlists", h.handleListPublic)
	r.Post("/playlists", h.handleCreate)
	r.Get("/playlists/mine", h.handleList(h.svc.MyPlaylists, "my playlists"))
	r.Get("/playlists/owned", h.handleList(h.svc.Owned, "owned playlists"))
	r.Get("/playlists/collaborative", h.handleList(h.svc.Collaborative, "collaborative playlists"))
	r.Get("/playlists/followed", h.handleList(h.svc.Followed, "followed playlists"))

	r.Route("/playlists/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Patch("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Put("/visibility", h.handleVisibility)

		r.Post("/follow", h.handleFollow)
		r.Delete("/follow", h.handleUnfollow)
		r.Get("/followers", h.handleFollowers)

		r.Get("/collaborators", h.handleCollaborators)
		r.Post("/collaborators/{userId}", h.handleAddCollaborator)
		r.Delete("/collaborators/{userId}", h.handleRemoveCollaborator)
		r.Post("/edit-permissions", h.handleGrantEdit)
		r.Delete("/edit-permissions/{userId}", h.handleRevokeEdit)

		r.Get("/tracks", h.handleTracks)
		r.Post("/tracks", h.handleAddTrack)
		r.Put("/tracks/order", h.handleReorder)
		r.Delete("/tracks/{trackId}", h.handleRemoveTrack)

		r.Get("/invites", h.handlePendingInvites)
		r.With(inviteLimit...).Post("/invites", h.handleInvite)
		r.Delete("/invites/{userId}", h.handleRevokeInvite)
		r.Post("/invitation/accept", h.handleAccept)
		r.Post("/invitation/decline", h.handleDecline)
	})
}

type listResponse struct {
	Playlists []Membership `json:"playlists"`
	Count     int          `json:"count"`
}

func (h *Handler) handleList(list func(ctx context.Context, actor string) ([]Membership, error), op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := list(r.Context(), authn.UserID(r.Context()))
		if err != nil {
			httpx.Fail(w, r, op, err)
			return
		}
		apperr.WriteJSON(w, http.StatusOK, listResponse{Playlists: out, Count: len(out)})
	}
}

func (h *Handler) handleListPublic(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.ListPublic(r.Context(), limit)
	if err != nil {
		httpx.Fail(w, r, "list public playlists", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, r, "create playlist", err)
		return
	}
	p, err := h.svc.Create(r.Context(), authn.UserID(r.Context()), in)
	if err != nil {
		httpx.Fail(w, r, "create playlist", err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor := authn.UserID(r.Context())
	p, err := h.svc.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "get playlist", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, membership(*p, actor))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, r, "update playlist", err)
		return
	}
	p, err := h.svc.Update(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.Fail(w, r, "update playlist", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, r, "delete playlist", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsPublic *bool `json:"is_public"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "playlist visibility", err)
		return
	}
	if body.IsPublic == nil {
		apperr.WriteError(w, http.StatusBadRequest, "is_public field is required")
		return
	}
	p, err := h.svc.SetVisibility(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), *body.IsPublic)
	if err != nil {
		httpx.Fail(w, r, "playlist visibility", err)
		return
	}
	visibility := "private"
	if p.IsPublic {
		visibility = "public"
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Playlist visibility changed to " + visibility})
}

func (h *Handler) handleFollow(w http.ResponseWriter, r *http.Request) {
	followed, err := h.svc.Follow(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "follow playlist", err)
		return
	}
	if !followed {
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Already following this playlist"})
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Playlist followed successfully",
		"note":    "You now have edit permissions for this playlist",
	})
}

func (h *Handler) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Unfollow(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "unfollow playlist", err)
		return
	}
	if !removed {
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Not following this playlist"})
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Playlist unfollowed successfully",
		"note":    "Edit permissions have been removed",
	})
}

func (h *Handler) handleFollowers(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Followers(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "playlist followers", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCollaborators(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Collaborators(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "playlist collaborators", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "userId")
	if _, err := h.svc.AddCollaborator(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), target); err != nil {
		httpx.Fail(w, r, "add collaborator", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("User %s added as collaborator", target)})
}

func (h *Handler) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "userId")
	if _, err := h.svc.RemoveCollaborator(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), target); err != nil {
		httpx.Fail(w, r, "remove collaborator", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("User %s removed as collaborator", target)})
}

func (h *Handler) handleGrantEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "grant edit", err)
		return
	}
	granted, err := h.svc.GrantEdit(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.UserID)
	if err != nil {
		httpx.Fail(w, r, "grant edit", err)
		return
	}
	msg := "User already has edit permission"
	if granted {
		msg = "Edit permission granted to " + body.UserID
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) handleRevokeEdit(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "userId")
	revoked, err := h.svc.RevokeEdit(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), target)
	if err != nil {
		httpx.Fail(w, r, "revoke edit", err)
		return
	}
	msg := "User does not have edit permission"
	if revoked {
		msg = "Edit permission revoked from " + target
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) handleTracks(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Tracks(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, "playlist tracks", err)
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
	added, err := h.svc.AddTrack(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.TrackID)
	if err != nil {
		httpx.Fail(w, r, "add track", err)
		return
	}
	if !added {
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Track already in playlist"})
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, map[string]string{"message": "Track added successfully", "track_id": body.TrackID})
}

func (h *Handler) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.RemoveTrack(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "trackId"))
	if err != nil {
		httpx.Fail(w, r, "remove track", err)
		return
	}
	msg := "Track not in playlist"
	if removed {
		msg = "Track removed successfully"
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) handleReorder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackOrder []string `json:"track_order"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "reorder tracks", err)
		return
	}
	p, err := h.svc.Reorder(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.TrackOrder)
	if err != nil {
		httpx.Fail(w, r, "reorder tracks", err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"message": "Playlist tracks reordered successfully", "tracks": p.Tracks})
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
		UserID string `json:"user_id"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Fail(w, r, "invite", err)
		return
	}
	res, err := h.svc.Invite(r.Context(), authn.UserID(r.Context()), chi.URLParam(r, "id"), body.UserID)
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

package playlist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"musicroom/internal/access"
	"musicroom/internal/apperr"
	"musicroom/internal/catalog"
	"musicroom/internal/metrics"
	"musicroom/internal/notify"
	"musicroom/internal/users"
)

const (
	entityKind         = "playlist"
	DefaultPublicLimit = 20
)

type TrackResolver interface {
	LookupTracks(ctx context.Context, ids []string) (map[string]catalog.Track, error)
}

type Service struct {
	store    Store
	dispatch *notify.Dispatcher
	metrics  *metrics.Metrics
	tracks   TrackResolver
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithIDs(newID func() string) Option    { return func(s *Service) { s.newID = newID } }
func WithTracks(r TrackResolver) Option      { return func(s *Service) { s.tracks = r } }

func NewService(store Store, dispatch *notify.Dispatcher, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:    store,
		dispatch: dispatch,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NewNotFound("playlist not found")
	case errors.Is(err, users.ErrNotFound):
		return apperr.NewNotFound("user not found")
	}
	return err
}

func (s *Service) require(p *Playlist, actor string, a access.Action, reason string) error {
	if p.Can(actor, a) {
		return nil
	}
	s.metrics.Denied(entityKind, string(a))
	return apperr.NewForbidden(reason)
}

// mutate locks the playlist, runs fn and saves the result in one
// transaction. fn reports whether anything changed; unchanged playlists
// are not written back.
func (s *Service) mutate(ctx context.Context, id string, fn func(tx Tx, p *Playlist) (bool, error)) (*Playlist, bool, error) {
	var (
		out     *Playlist
		changed bool
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.LockPlaylist(ctx, id)
		if err != nil {
			return err
		}
		if changed, err = fn(tx, p); err != nil {
			return err
		}
		out = p
		if !changed {
			return nil
		}
		p.UpdatedAt = s.now()
		return tx.SavePlaylist(ctx, p)
	})
	if err != nil {
		return nil, false, mapErr(err)
	}
	return out, changed, nil
}

type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
}

func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (*Playlist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.NewValidation("Playlist name is required")
	}
	p := New(s.newID(), actor, name, s.now())
	p.Description = in.Description
	if in.IsPublic != nil {
		p.IsPublic = *in.IsPublic
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	if p.IsPublic {
		s.dispatch.Broadcast(ctx, "playlist.created", map[string]any{"id": p.ID, "name": p.Name})
	}
	return p, nil
}

// Get returns the playlist if the actor may view it: public playlists
// are open to everyone, private ones to users with any standing.
func (s *Service) Get(ctx context.Context, actor, id string) (*Playlist, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.require(p, actor, access.ActionView, "Access denied"); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPublic(ctx context.Context, limit int) ([]Playlist, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultPublicLimit
	}
	return s.store.ListPublic(ctx, limit)
}

// Membership is one playlist seen from the actor's side.
type Membership struct {
	Playlist Playlist    `json:"playlist"`
	Roles    []string    `json:"user_role"`
	Role     access.Role `json:"role"`
	CanEdit  bool        `json:"can_edit"`
}

func membership(p Playlist, actor string) Membership {
	labels := []string{}
	if p.IsOwner(actor) {
		labels = append(labels, "owner")
	}
	if p.IsCollaborator(actor) {
		labels = append(labels, "collaborator")
	}
	if p.IsFollower(actor) {
		labels = append(labels, "follower")
	}
	return Membership{Playlist: p, Roles: labels, Role: p.ResolveEffectiveRole(actor), CanEdit: p.CanEdit(actor)}
}

func (s *Service) listFor(ctx context.Context, actor string, keep func(p *Playlist) bool) ([]Membership, error) {
	all, err := s.store.ListForUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := []Membership{}
	for _, p := range all {
		if keep(&p) {
			out = append(out, membership(p, actor))
		}
	}
	return out, nil
}

// MyPlaylists lists every playlist the actor owns, collaborates on,
// follows or may edit.
func (s *Service) MyPlaylists(ctx context.Context, actor string) ([]Membership, error) {
	return s.listFor(ctx, actor, func(p *Playlist) bool { return p.IsMember(actor) })
}

func (s *Service) Owned(ctx context.Context, actor string) ([]Membership, error) {
	return s.listFor(ctx, actor, func(p *Playlist) bool { return p.IsOwner(actor) })
}

// Collaborative excludes playlists the actor owns.
func (s *Service) Collaborative(ctx context.Context, actor string) ([]Membership, error) {
	return s.listFor(ctx, actor, func(p *Playlist) bool { return p.IsCollaborator(actor) && !p.IsOwner(actor) })
}

func (s *Service) Followed(ctx context.Context, actor string) ([]Membership, error) {
	return s.listFor(ctx, actor, func(p *Playlist) bool { return p.IsFollower(actor) })
}

type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Service) Update(ctx context.Context, actor, id string, in UpdateInput) (*Playlist, error) {
	p, _, err := s.mutate(ctx, id, func(_ Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionEdit, "Permission denied"); err != nil {
			return false, err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return false, apperr.NewValidation("name cannot be empty")
			}
			p.Name = name
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "playlist.updated", map[string]any{"id": p.ID})
	return p, nil
}

func (s *Service) SetVisibility(ctx context.Context, actor, id string, public bool) (*Playlist, error) {
	p, _, err := s.mutate(ctx, id, func(_ Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionEdit, "You don't have permission to change visibility"); err != nil {
			return false, err
		}
		p.IsPublic = public
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "playlist.updated", map[string]any{"id": p.ID, "is_public": p.IsPublic})
	return p, nil
}

// clearInbox drops every playlist notification for p from userID's inbox.
func clearInbox(ctx context.Context, tx Tx, p *Playlist, userID string) error {
	u, err := tx.LockUser(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.PlaylistNotifications.RemoveEntity(p.ID) == 0 {
		return nil
	}
	return tx.SaveUser(ctx, u)
}

// dropPendingFor clears userID's invitation once they gain access by
// another path.
func dropPendingFor(ctx context.Context, tx Tx, p *Playlist, userID string) error {
	if !p.PendingInvites.Remove(userID) {
		return nil
	}
	return clearInbox(ctx, tx, p, userID)
}

// Delete removes the playlist. Only the owner may delete it.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.LockPlaylist(ctx, id)
		if err != nil {
			return err
		}
		if err := s.require(p, actor, access.ActionDelete, "Only playlist owner can delete"); err != nil {
			return err
		}
		for _, inv := range p.PendingInvites {
			if err := clearInbox(ctx, tx, p, inv.UserID); err != nil {
				return err
			}
		}
		return tx.DeletePlaylist(ctx, p.ID)
	})
	if err != nil {
		return mapErr(err)
	}
	s.dispatch.Broadcast(ctx, "playlist.deleted", map[string]any{"id": id})
	return nil
}

// Follow subscribes the actor to a public playlist. It reports false when
// the actor already follows it.
func (s *Service) Follow(ctx context.Context, actor, id string) (bool, error) {
	p, followed, err := s.mutate(ctx, id, func(tx Tx, p *Playlist) (bool, error) {
		if p.IsOwner(actor) {
			return false, apperr.NewValidation("Cannot follow your own playlist")
		}
		if !p.IsPublic {
			s.metrics.Denied(entityKind, "follow")
			return false, apperr.NewForbidden("Cannot follow private playlist")
		}
		if p.IsFollower(actor) {
			return false, nil
		}
		p.Follow(actor)
		return true, dropPendingFor(ctx, tx, p, actor)
	})
	if err != nil || !followed {
		return false, err
	}
	s.dispatch.Broadcast(ctx, "playlist.members_changed", map[string]any{"id": p.ID, "user_id": actor, "change": "followed"})
	return true, nil
}

func (s *Service) Unfollow(ctx context.Context, actor, id string) (bool, error) {
	p, removed, err := s.mutate(ctx, id, func(_ Tx, p *Playlist) (bool, error) {
		return p.Unfollow(actor), nil
	})
	if err != nil || !removed {
		return false, err
	}
	s.dispatch.Broadcast(ctx, "playlist.members_changed", map[string]any{"id": p.ID, "user_id": actor, "change": "unfollowed"})
	return true, nil
}

func (s *Service) AddCollaborator(ctx context.Context, actor, id, target string) (*Playlist, error) {
	p, _, err := s.mutate(ctx, id, func(tx Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionManageUsers, "Only playlist owner can add collaborators"); err != nil {
			return false, err
		}
		if p.IsOwner(target) {
			return false, apperr.NewValidation("Owner is already a collaborator")
		}
		if _, err := tx.LoadUser(ctx, target); err != nil {
			return false, err
		}
		if !p.AddCollaborator(target) {
			return false, apperr.NewConflict("user is already a collaborator")
		}
		return true, dropPendingFor(ctx, tx, p, target)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "playlist.members_changed", map[string]any{"id": p.ID, "user_id": target, "change": "collaborator_added"})
	return p, nil
}

func (s *Service) RemoveCollaborator(ctx context.Context, actor, id, target string) (*Playlist, error) {
	p, _, err := s.mutate(ctx, id, func(_ Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionManageUsers, "Only playlist owner can remove collaborators"); err != nil {
			return false, err
		}
		if !p.RemoveCollaborator(target) {
			return false, apperr.NewNotFound("user is not a collaborator")
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "playlist.members_changed", map[string]any{"id": p.ID, "user_id": target, "change": "collaborator_removed"})
	return p, nil
}

// GrantEdit adds target to the edit allow-list. It reports false when the
// grant already existed.
func (s *Service) GrantEdit(ctx context.Context, actor, id, target string) (bool, error) {
	if strings.TrimSpace(target) == "" {
		return false, apperr.NewValidation("user_id is required")
	}
	_, granted, err := s.mutate(ctx, id, func(tx Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionManageUsers, "Only playlist owner can grant edit permissions"); err != nil {
			return false, err
		}
		if p.IsOwner(target) {
			return false, apperr.NewValidation("Owner already has edit permissions")
		}
		if _, err := tx.LoadUser(ctx, target); err != nil {
			return false, err
		}
		return p.GrantEdit(target), nil
	})
	return granted, err
}

func (s *Service) RevokeEdit(ctx context.Context, actor, id, target string) (bool, error) {
	_, revoked, err := s.mutate(ctx, id, func(tx Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionManageUsers, "Only playlist owner can revoke edit permissions"); err != nil {
			return false, err
		}
		if _, err := tx.LoadUser(ctx, target); err != nil {
			return false, err
		}
		return p.RevokeEdit(target), nil
	})
	return revoked, err
}

// AddTrack appends trackID. It reports false when the track is already
// in the playlist.
func (s *Service) AddTrack(ctx context.Context, actor, id, trackID string) (bool, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return false, apperr.NewValidation("track_id is required")
	}
	p, added, err := s.mutate(ctx, id, func(_ Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionAddTracks, "Permission denied"); err != nil {
			return false, err
		}
		return p.AddTrack(trackID), nil
	})
	if err != nil || !added {
		return false, err
	}
	s.dispatch.Broadcast(ctx, "playlist.tracks_changed", map[string]any{"id": p.ID, "track_id": trackID, "change": "added"})
	return true, nil
}

func (s *Service) RemoveTrack(ctx context.Context, actor, id, trackID string) (bool, error) {
	p, removed, err := s.mutate(ctx, id, func(_ Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionRemoveTracks, "Permission denied"); err != nil {
			return false, err
		}
		return p.RemoveTrack(trackID), nil
	})
	if err != nil || !removed {
		return false, err
	}
	s.dispatch.Broadcast(ctx, "playlist.tracks_changed", map[string]any{"id": p.ID, "track_id": trackID, "change": "removed"})
	return true, nil
}

func (s *Service) Reorder(ctx context.Context, actor, id string, order []string) (*Playlist, error) {
	p, _, err := s.mutate(ctx, id, func(_ Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionEdit, "Permission denied"); err != nil {
			return false, err
		}
		if !p.Reorder(order) {
			return false, apperr.NewValidation("Invalid track order")
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "playlist.tracks_changed", map[string]any{"id": p.ID, "change": "reordered"})
	return p, nil
}

type TrackEntry struct {
	Position int            `json:"position"`
	TrackID  string         `json:"track_id"`
	Track    *catalog.Track `json:"track,omitempty"`
}

// Tracks returns the playlist in order, with catalog metadata when the
// provider answers.
func (s *Service) Tracks(ctx context.Context, actor, id string) ([]TrackEntry, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	out := make([]TrackEntry, len(p.Tracks))
	for i, t := range p.Tracks {
		out[i] = TrackEntry{Position: i, TrackID: t}
	}
	if s.tracks == nil || len(p.Tracks) == 0 {
		return out, nil
	}
	meta, err := s.tracks.LookupTracks(ctx, p.Tracks)
	if err != nil {
		return out, nil
	}
	for i := range out {
		if t, ok := meta[out[i].TrackID]; ok {
			out[i].Track = &t
		}
	}
	return out, nil
}

type Member struct {
	UserID  string      `json:"user_id"`
	Name    string      `json:"name"`
	Role    access.Role `json:"role"`
	CanEdit bool        `json:"can_edit"`
}

func (s *Service) members(ctx context.Context, p *Playlist, ids []string) ([]Member, error) {
	names, err := s.store.UserNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		out = append(out, Member{UserID: id, Name: name, Role: p.ResolveEffectiveRole(id), CanEdit: p.CanEdit(id)})
	}
	return out, nil
}

func (s *Service) Followers(ctx context.Context, actor, id string) ([]Member, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.members(ctx, p, p.Followers)
}

func (s *Service) Collaborators(ctx context.Context, actor, id string) ([]Member, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.members(ctx, p, p.Collaborators)
}

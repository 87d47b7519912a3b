package event

import (
	"context"
	"errors"
	"slices"
	"sort"
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
	entityKind         = "event"
	DefaultPublicLimit = 20
)

// TrackResolver enriches track ids with catalog metadata.
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
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mapErr turns storage sentinels into business failures; everything
// else passes through as an infrastructure fault.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NewNotFound("event not found")
	case errors.Is(err, users.ErrNotFound):
		return apperr.NewNotFound("user not found")
	}
	return err
}

func (s *Service) require(e *Event, actor string, a access.Action, reason string) error {
	if e.Can(actor, a) {
		return nil
	}
	s.metrics.Denied(entityKind, string(a))
	return apperr.NewForbidden(reason)
}

// mutate runs fn on the locked event and saves it in the same
// transaction.
func (s *Service) mutate(ctx context.Context, id string, fn func(tx Tx, e *Event) error) (*Event, error) {
	var out *Event
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, e); err != nil {
			return err
		}
		e.UpdatedAt = s.now()
		if err := tx.SaveEvent(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

type CreateInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	ImageURL    string     `json:"image_url"`
	IsPublic    *bool      `json:"is_public"`
	StartTime   *time.Time `json:"event_start_time"`
	EndTime     *time.Time `json:"event_end_time"`
}

func checkWindow(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return apperr.NewValidation("event_end_time must be after event_start_time")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (*Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.NewValidation("title is required")
	}

	e := New(s.newID(), actor, title, s.now())
	e.Description = in.Description
	e.Location = in.Location
	e.ImageURL = in.ImageURL
	if in.IsPublic != nil {
		e.IsPublic = *in.IsPublic
	}
	if in.StartTime != nil {
		e.StartTime = in.StartTime.UTC()
	}
	e.EndTime = in.EndTime
	if err := checkWindow(e.StartTime, e.EndTime); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, e); err != nil {
		return nil, err
	}
	if e.IsPublic {
		s.dispatch.Broadcast(ctx, "event.created", map[string]any{"id": e.ID, "title": e.Title})
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, actor, id string) (*Event, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.require(e, actor, access.ActionView, "Access denied"); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) ListPublic(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultPublicLimit
	}
	return s.store.ListPublic(ctx, limit)
}

// Membership is one event seen from a member's side.
type Membership struct {
	Event   Event       `json:"event"`
	Roles   []string    `json:"user_roles"`
	Role    access.Role `json:"role"`
	CanEdit bool        `json:"can_edit"`
}

// MyEvents lists events the actor belongs to with their standing labels.
func (s *Service) MyEvents(ctx context.Context, actor string) ([]Membership, error) {
	events, err := s.store.ListForUser(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]Membership, 0, len(events))
	for _, e := range events {
		labels := []string{}
		if e.OrganizerID == actor {
			labels = append(labels, string(access.InviteOrganizer))
		}
		if e.IsManager(actor) {
			labels = append(labels, string(access.InviteManager))
		}
		if e.IsAttendee(actor) {
			labels = append(labels, string(access.InviteAttendee))
		}
		out = append(out, Membership{
			Event:   e,
			Roles:   labels,
			Role:    e.ResolveEffectiveRole(actor),
			CanEdit: e.Can(actor, access.ActionEdit),
		})
	}
	return out, nil
}

type UpdateInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	ImageURL    *string    `json:"image_url"`
	StartTime   *time.Time `json:"event_start_time"`
	EndTime     *time.Time `json:"event_end_time"`
}

func (s *Service) Update(ctx context.Context, actor, id string, in UpdateInput) (*Event, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionEdit, "You don't have permission to edit this event"); err != nil {
			return err
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return apperr.NewValidation("title cannot be empty")
			}
			e.Title = title
		}
		if in.Description != nil {
			e.Description = *in.Description
		}
		if in.Location != nil {
			e.Location = *in.Location
		}
		if in.ImageURL != nil {
			e.ImageURL = *in.ImageURL
		}
		if in.StartTime != nil {
			e.StartTime = in.StartTime.UTC()
		}
		if in.EndTime != nil {
			e.EndTime = in.EndTime
		}
		return checkWindow(e.StartTime, e.EndTime)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.updated", map[string]any{"id": e.ID})
	return e, nil
}

func (s *Service) SetVisibility(ctx context.Context, actor, id string, public bool) (*Event, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionEdit, "You don't have permission to change visibility"); err != nil {
			return err
		}
		e.IsPublic = public
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.updated", map[string]any{"id": e.ID, "is_public": e.IsPublic})
	return e, nil
}

// Delete removes the event. Only the structural owner may delete, and
// pending invitations are cleared from the invitees' inboxes first.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.require(e, actor, access.ActionDelete, "Only the event owner can delete this event"); err != nil {
			return err
		}
		for _, inv := range e.PendingInvites {
			u, err := tx.LockUser(ctx, inv.UserID)
			if errors.Is(err, users.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if u.EventNotifications.Remove(notify.EventKey(e.ID)) {
				if err := tx.SaveUser(ctx, u); err != nil {
					return err
				}
			}
		}
		return tx.DeleteEvent(ctx, e.ID)
	})
	if err != nil {
		return mapErr(err)
	}
	s.dispatch.Broadcast(ctx, "event.deleted", map[string]any{"id": id})
	return nil
}

// dropPendingFor clears userID's pending invitation and its inbox entry;
// used when the user becomes a member by another path.
func dropPendingFor(ctx context.Context, tx Tx, e *Event, userID string) error {
	if !e.PendingInvites.Remove(userID) {
		return nil
	}
	u, err := tx.LockUser(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	u.EventNotifications.Remove(notify.EventKey(e.ID))
	return tx.SaveUser(ctx, u)
}

// dropOwnerOffers withdraws every pending organizer and manager offer.
// Only the current owner may make those offers, so they lapse when
// ownership changes hands.
func dropOwnerOffers(ctx context.Context, tx Tx, e *Event) error {
	var stale []string
	for _, inv := range e.PendingInvites {
		if inv.Role == access.InviteOrganizer || inv.Role == access.InviteManager {
			stale = append(stale, inv.UserID)
		}
	}
	for _, userID := range stale {
		if err := dropPendingFor(ctx, tx, e, userID); err != nil {
			return err
		}
	}
	return nil
}

// Join adds the actor as a listener. Private events only admit their
// organizer; everyone else needs an invitation.
func (s *Service) Join(ctx context.Context, actor, id string) (*Event, error) {
	e, err := s.mutate(ctx, id, func(tx Tx, e *Event) error {
		if !e.IsPublic && actor != e.OrganizerID {
			s.metrics.Denied(entityKind, "join")
			return apperr.NewForbidden("Cannot join private event")
		}
		if e.IsAttendee(actor) {
			return apperr.NewConflict("user already attending")
		}
		e.AddAttendee(actor)
		return dropPendingFor(ctx, tx, e, actor)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.members_changed", map[string]any{"id": e.ID, "user_id": actor, "change": "joined"})
	return e, nil
}

func (s *Service) Leave(ctx context.Context, actor, id string) (*Event, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if actor == e.OrganizerID {
			return apperr.NewConflict("Organizer cannot leave their own event")
		}
		if !e.RemoveAttendee(actor) {
			return apperr.NewConflict("not attending this event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.members_changed", map[string]any{"id": e.ID, "user_id": actor, "change": "left"})
	return e, nil
}

func (s *Service) RemoveAttendee(ctx context.Context, actor, id, target string) (*Event, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionManageUsers, "You don't have permission to remove attendees"); err != nil {
			return err
		}
		if target == e.OrganizerID {
			return apperr.NewConflict("Cannot remove organizer from event")
		}
		if !e.RemoveAttendee(target) {
			return apperr.NewNotFound("user is not attending this event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.members_changed", map[string]any{"id": e.ID, "user_id": target, "change": "removed"})
	return e, nil
}

// TrackEntry is one queued track with its tally.
type TrackEntry struct {
	TrackID   string         `json:"track_id"`
	Votes     int            `json:"votes"`
	VotedByMe bool           `json:"voted_by_me"`
	Track     *catalog.Track `json:"track,omitempty"`
}

// Tracks returns the queue ordered by votes, ties keeping queue order.
func (s *Service) Tracks(ctx context.Context, actor, id string) ([]TrackEntry, error) {
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	out := make([]TrackEntry, 0, len(e.Songs))
	for _, t := range e.Songs {
		out = append(out, TrackEntry{TrackID: t, Votes: e.VoteCount(t), VotedByMe: e.HasVoted(actor, t)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Votes > out[j].Votes })

	if s.tracks != nil && len(e.Songs) > 0 {
		meta, err := s.tracks.LookupTracks(ctx, e.Songs)
		if err != nil {
			// ids alone are still a usable answer
			return out, nil
		}
		for i := range out {
			if t, ok := meta[out[i].TrackID]; ok {
				out[i].Track = &t
			}
		}
	}
	return out, nil
}

func (s *Service) AddTrack(ctx context.Context, actor, id, trackID string) (*Event, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return nil, apperr.NewValidation("track_id is required")
	}
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionAddTracks, "You don't have permission to add tracks"); err != nil {
			return err
		}
		if !e.AddTrack(trackID) {
			return apperr.NewConflict("track already in event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.tracks_changed", map[string]any{"id": e.ID, "track_id": trackID, "change": "added"})
	return e, nil
}

func (s *Service) RemoveTrack(ctx context.Context, actor, id, trackID string) (*Event, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionRemoveTracks, "You don't have permission to remove tracks"); err != nil {
			return err
		}
		if !e.RemoveTrack(trackID) {
			return apperr.NewNotFound("track not in event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.tracks_changed", map[string]any{"id": e.ID, "track_id": trackID, "change": "removed"})
	return e, nil
}

// Vote casts the actor's vote and returns the new tally.
func (s *Service) Vote(ctx context.Context, actor, id, trackID string) (int, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionVoteTracks, "You don't have permission to vote"); err != nil {
			return err
		}
		if !e.HasTrack(trackID) {
			return apperr.NewNotFound("track not in event")
		}
		if !e.Vote(actor, trackID) {
			return apperr.NewConflict("already voted for this track")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := e.VoteCount(trackID)
	s.dispatch.Broadcast(ctx, "event.vote", map[string]any{"id": e.ID, "track_id": trackID, "votes": count})
	return count, nil
}

func (s *Service) Unvote(ctx context.Context, actor, id, trackID string) (int, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionVoteTracks, "You don't have permission to vote"); err != nil {
			return err
		}
		if !e.Unvote(actor, trackID) {
			return apperr.NewNotFound("vote not found")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := e.VoteCount(trackID)
	s.dispatch.Broadcast(ctx, "event.vote", map[string]any{"id": e.ID, "track_id": trackID, "votes": count})
	return count, nil
}

// Member is a user with their resolved standing.
type Member struct {
	UserID string      `json:"user_id"`
	Name   string      `json:"name"`
	Role   access.Role `json:"role"`
}

func (s *Service) members(ctx context.Context, e *Event, ids []string) ([]Member, error) {
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
		out = append(out, Member{UserID: id, Name: name, Role: e.ResolveEffectiveRole(id)})
	}
	return out, nil
}

func (s *Service) Attendees(ctx context.Context, actor, id string) ([]Member, error) {
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.members(ctx, e, e.Attendees)
}

// RolesView lists the explicit registry and its holders grouped by role.
type RolesView struct {
	Roles  map[string]access.Role   `json:"roles"`
	ByRole map[access.Role][]Member `json:"users_by_role"`
}

func (s *Service) Roles(ctx context.Context, actor, id string) (*RolesView, error) {
	e, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(e.UserRoles))
	for uid := range e.UserRoles {
		ids = append(ids, uid)
	}
	all, err := s.members(ctx, e, ids)
	if err != nil {
		return nil, err
	}
	view := &RolesView{Roles: e.UserRoles, ByRole: map[access.Role][]Member{}}
	for _, r := range access.Roles {
		view.ByRole[r] = []Member{}
	}
	for _, m := range all {
		view.ByRole[m.Role] = append(view.ByRole[m.Role], m)
	}
	for r := range view.ByRole {
		slices.SortFunc(view.ByRole[r], func(a, b Member) int { return strings.Compare(a.UserID, b.UserID) })
	}
	return view, nil
}

// AssignEditor grants the editor role. The owner cannot be demoted here.
func (s *Service) AssignEditor(ctx context.Context, actor, id, target string) (*Event, error) {
	if target == "" {
		return nil, apperr.NewValidation("user_id is required")
	}
	e, err := s.mutate(ctx, id, func(tx Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionManageUsers, "Only the event owner can assign roles"); err != nil {
			return err
		}
		if target == e.OrganizerID {
			return apperr.NewConflict("Cannot change the event owner's role")
		}
		if _, err := tx.LoadUser(ctx, target); err != nil {
			return err
		}
		e.AssignEditorRole(target)
		return dropPendingFor(ctx, tx, e, target)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.roles_changed", map[string]any{"id": e.ID, "user_id": target, "role": access.RoleEditor})
	return e, nil
}

// TransferOwnership hands the event over directly, without an invitation.
func (s *Service) TransferOwnership(ctx context.Context, actor, id, newOwner string) (*Event, error) {
	if newOwner == "" {
		return nil, apperr.NewValidation("new_owner_id is required")
	}
	if newOwner == actor {
		return nil, apperr.NewValidation("you already own this event")
	}
	e, err := s.mutate(ctx, id, func(tx Tx, e *Event) error {
		if err := s.require(e, actor, access.ActionTransferOwnership, "Only the event owner can transfer ownership"); err != nil {
			return err
		}
		if _, err := tx.LoadUser(ctx, newOwner); err != nil {
			return err
		}
		if !e.TransferOwnership(newOwner, actor) {
			s.metrics.Denied(entityKind, string(access.ActionTransferOwnership))
			return apperr.NewForbidden("Only the event owner can transfer ownership")
		}
		if err := dropPendingFor(ctx, tx, e, newOwner); err != nil {
			return err
		}
		return dropOwnerOffers(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.roles_changed", map[string]any{"id": e.ID, "owner_id": newOwner})
	return e, nil
}

// RemoveUserRole clears target's explicit role and manager standing. The
// owner may remove anyone else; other users may only remove themselves.
// Ownership has to be transferred before the owner can be removed.
func (s *Service) RemoveUserRole(ctx context.Context, actor, id, target string) (*Event, error) {
	e, err := s.mutate(ctx, id, func(_ Tx, e *Event) error {
		if actor != target {
			if err := s.require(e, actor, access.ActionManageUsers, "You don't have permission to remove roles"); err != nil {
				return err
			}
		}
		if target == e.OrganizerID {
			return apperr.NewConflict("Cannot remove the event owner")
		}
		removedRole := e.RemoveRole(target)
		var removedManager bool
		e.Managers, removedManager = without(e.Managers, target)
		if !removedRole && !removedManager {
			return apperr.NewNotFound("user has no role in this event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Broadcast(ctx, "event.roles_changed", map[string]any{"id": e.ID, "user_id": target, "role": nil})
	return e, nil
}

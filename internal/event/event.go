// Package event implements collaborative events: the aggregate with its
// role registry, the invitation state machine, and the HTTP surface.
package event

import (
	"slices"
	"sort"
	"time"

	"musicroom/internal/access"
	"musicroom/internal/invite"
)

// Event is the aggregate persisted as one row. OrganizerID is the
// structural owner; UserRoles is the explicit role registry.
type Event struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Location       string                 `json:"location"`
	ImageURL       string                 `json:"image_url"`
	OrganizerID    string                 `json:"organizer_id"`
	Attendees      []string               `json:"attendees"`
	Managers       []string               `json:"managers"`
	Songs          []string               `json:"songs"`
	TrackVotes     map[string][]string    `json:"track_votes"`
	UserRoles      map[string]access.Role `json:"user_roles"`
	PendingInvites invite.Ledger          `json:"-"`
	IsPublic       bool                   `json:"is_public"`
	StartTime      time.Time              `json:"event_start_time"`
	EndTime        *time.Time             `json:"event_end_time"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// New returns an event owned by organizerID.
func New(id, organizerID, title string, now time.Time) *Event {
	e := &Event{
		ID:          id,
		Title:       title,
		OrganizerID: organizerID,
		IsPublic:    true,
		StartTime:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.normalize()
	e.UserRoles[organizerID] = access.RoleOwner
	return e
}

func (e *Event) normalize() {
	if e.Attendees == nil {
		e.Attendees = []string{}
	}
	if e.Managers == nil {
		e.Managers = []string{}
	}
	if e.Songs == nil {
		e.Songs = []string{}
	}
	if e.TrackVotes == nil {
		e.TrackVotes = map[string][]string{}
	}
	if e.UserRoles == nil {
		e.UserRoles = map[string]access.Role{}
	}
	if e.PendingInvites == nil {
		e.PendingInvites = invite.Ledger{}
	}
}

// AssignRole upserts userID's role. Unknown role tags are rejected.
func (e *Event) AssignRole(userID string, role access.Role) bool {
	if !role.Valid() || userID == "" {
		return false
	}
	if e.UserRoles == nil {
		e.UserRoles = map[string]access.Role{}
	}
	e.UserRoles[userID] = role
	return true
}

func (e *Event) Role(userID string) (access.Role, bool) {
	r, ok := e.UserRoles[userID]
	return r, ok
}

func (e *Event) RemoveRole(userID string) bool {
	if _, ok := e.UserRoles[userID]; !ok {
		return false
	}
	delete(e.UserRoles, userID)
	return true
}

// UsersWithRole lists holders of role in a stable order.
func (e *Event) UsersWithRole(role access.Role) []string {
	out := []string{}
	for id, r := range e.UserRoles {
		if r == role {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Event) AssignEditorRole(userID string) bool {
	return e.AssignRole(userID, access.RoleEditor)
}

// ResolveEffectiveRole prefers the explicit registry entry and falls back
// to structural membership. It returns "" for strangers.
func (e *Event) ResolveEffectiveRole(userID string) access.Role {
	if userID == "" {
		return ""
	}
	if r, ok := e.UserRoles[userID]; ok {
		return r
	}
	switch {
	case userID == e.OrganizerID:
		return access.RoleOwner
	case slices.Contains(e.Managers, userID):
		return access.RoleEditor
	case slices.Contains(e.Attendees, userID):
		return access.RoleListener
	}
	return ""
}

func (e *Event) Relation(userID string) access.Relation {
	return access.Relation{
		Role:    e.ResolveEffectiveRole(userID),
		IsOwner: userID != "" && userID == e.OrganizerID,
		Public:  e.IsPublic,
	}
}

// Can evaluates action a for userID against the event matrix.
func (e *Event) Can(userID string, a access.Action) bool {
	return access.CanPerform(access.EventMatrix, e.Relation(userID), a)
}

func (e *Event) CanInviteWithRole(userID string, offered access.InviteRole) bool {
	return access.CanInviteWithRole(access.EventMatrix, e.Relation(userID), offered)
}

func (e *Event) IsAttendee(userID string) bool { return slices.Contains(e.Attendees, userID) }
func (e *Event) IsManager(userID string) bool  { return slices.Contains(e.Managers, userID) }

// IsMember reports whether userID already belongs to the event in any
// capacity.
func (e *Event) IsMember(userID string) bool {
	if userID == e.OrganizerID || e.IsAttendee(userID) || e.IsManager(userID) {
		return true
	}
	_, ok := e.UserRoles[userID]
	return ok
}

func addUnique(list []string, id string) ([]string, bool) {
	if slices.Contains(list, id) {
		return list, false
	}
	return append(list, id), true
}

func without(list []string, id string) ([]string, bool) {
	i := slices.Index(list, id)
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}

// AddAttendee joins userID as a listener. An existing explicit role is
// kept so that joining never demotes an editor.
func (e *Event) AddAttendee(userID string) bool {
	var added bool
	e.Attendees, added = addUnique(e.Attendees, userID)
	if _, ok := e.UserRoles[userID]; !ok {
		e.AssignRole(userID, access.RoleListener)
	}
	return added
}

// RemoveAttendee drops userID from every membership set along with the
// role entry. It never touches the organizer.
func (e *Event) RemoveAttendee(userID string) bool {
	if userID == e.OrganizerID {
		return false
	}
	var inAttendees, inManagers bool
	e.Attendees, inAttendees = without(e.Attendees, userID)
	e.Managers, inManagers = without(e.Managers, userID)
	hadRole := e.RemoveRole(userID)
	for track, voters := range e.TrackVotes {
		e.TrackVotes[track], _ = without(voters, userID)
	}
	return inAttendees || inManagers || hadRole
}

// promote makes userID the single owner. The previous organizer becomes
// an editor and manager; any stale owner entry is downgraded the same way.
func (e *Event) promote(userID string) {
	e.normalize()
	previous := e.OrganizerID
	for id, r := range e.UserRoles {
		if r == access.RoleOwner && id != userID {
			e.UserRoles[id] = access.RoleEditor
			e.Managers, _ = addUnique(e.Managers, id)
		}
	}
	if previous != "" && previous != userID {
		e.UserRoles[previous] = access.RoleEditor
		e.Managers, _ = addUnique(e.Managers, previous)
	}
	e.UserRoles[userID] = access.RoleOwner
	e.Managers, _ = without(e.Managers, userID)
	e.Attendees, _ = addUnique(e.Attendees, userID)
	e.OrganizerID = userID
}

// TransferOwnership hands the event to newOwnerID. currentOwnerID must
// resolve to owner; it is demoted to editor.
func (e *Event) TransferOwnership(newOwnerID, currentOwnerID string) bool {
	if newOwnerID == "" || newOwnerID == currentOwnerID {
		return false
	}
	if e.ResolveEffectiveRole(currentOwnerID) != access.RoleOwner || currentOwnerID != e.OrganizerID {
		return false
	}
	e.promote(newOwnerID)
	return true
}

// ApplyAcceptance performs the membership and role changes for an
// accepted invitation offering role.
func (e *Event) ApplyAcceptance(userID string, role access.InviteRole) {
	e.normalize()
	switch role {
	case access.InviteOrganizer:
		e.promote(userID)
	case access.InviteManager:
		e.Managers, _ = addUnique(e.Managers, userID)
		e.Attendees, _ = addUnique(e.Attendees, userID)
		e.UserRoles[userID] = access.RoleEditor
	default:
		e.Attendees, _ = addUnique(e.Attendees, userID)
		e.UserRoles[userID] = access.RoleListener
	}
}

// Owners returns every user resolving to owner. It has exactly one
// element for a consistent event.
func (e *Event) Owners() []string {
	seen := map[string]bool{}
	candidates := append([]string{e.OrganizerID}, e.Attendees...)
	candidates = append(candidates, e.Managers...)
	for id := range e.UserRoles {
		candidates = append(candidates, id)
	}
	out := []string{}
	for _, id := range candidates {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if e.ResolveEffectiveRole(id) == access.RoleOwner {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Event) HasTrack(trackID string) bool {
	return slices.Contains(e.Songs, trackID)
}

func (e *Event) AddTrack(trackID string) bool {
	var added bool
	e.Songs, added = addUnique(e.Songs, trackID)
	return added
}

// RemoveTrack drops the track and its votes.
func (e *Event) RemoveTrack(trackID string) bool {
	var removed bool
	e.Songs, removed = without(e.Songs, trackID)
	if removed {
		delete(e.TrackVotes, trackID)
	}
	return removed
}

// Vote records one vote per user per track. Tracks outside the queue
// cannot be voted on.
func (e *Event) Vote(userID, trackID string) bool {
	if !e.HasTrack(trackID) {
		return false
	}
	if e.TrackVotes == nil {
		e.TrackVotes = map[string][]string{}
	}
	var added bool
	e.TrackVotes[trackID], added = addUnique(e.TrackVotes[trackID], userID)
	return added
}

func (e *Event) Unvote(userID, trackID string) bool {
	voters, ok := e.TrackVotes[trackID]
	if !ok {
		return false
	}
	var removed bool
	e.TrackVotes[trackID], removed = without(voters, userID)
	return removed
}

func (e *Event) VoteCount(trackID string) int {
	return len(e.TrackVotes[trackID])
}

func (e *Event) HasVoted(userID, trackID string) bool {
	return slices.Contains(e.TrackVotes[trackID], userID)
}

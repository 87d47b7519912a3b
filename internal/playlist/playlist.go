// Package playlist implements shared playlists: the aggregate with its
// collaborator and follower sets, the invitation state machine, and the
// HTTP surface.
package playlist

import (
	"slices"
	"time"

	"musicroom/internal/access"
	"musicroom/internal/invite"
)

// Playlist is persisted as one row. Edit rights come from ownership,
// the collaborator set, or the CouldEdit allow-list.
type Playlist struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	OwnerID        string        `json:"owner_id"`
	Tracks         []string      `json:"tracks"`
	Collaborators  []string      `json:"collaborators"`
	Followers      []string      `json:"followers"`
	CouldEdit      []string      `json:"could_edit"`
	PendingInvites invite.Ledger `json:"-"`
	IsPublic       bool          `json:"is_public"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func New(id, ownerID, name string, now time.Time) *Playlist {
	p := &Playlist{
		ID:        id,
		Name:      name,
		OwnerID:   ownerID,
		IsPublic:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.normalize()
	return p
}

func (p *Playlist) normalize() {
	if p.Tracks == nil {
		p.Tracks = []string{}
	}
	if p.Collaborators == nil {
		p.Collaborators = []string{}
	}
	if p.Followers == nil {
		p.Followers = []string{}
	}
	if p.CouldEdit == nil {
		p.CouldEdit = []string{}
	}
	if p.PendingInvites == nil {
		p.PendingInvites = invite.Ledger{}
	}
}

func insert(list []string, id string) ([]string, bool) {
	if id == "" || slices.Contains(list, id) {
		return list, false
	}
	return append(list, id), true
}

func remove(list []string, id string) ([]string, bool) {
	i := slices.Index(list, id)
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}

func (p *Playlist) IsOwner(userID string) bool {
	return userID != "" && userID == p.OwnerID
}

func (p *Playlist) IsCollaborator(userID string) bool {
	return slices.Contains(p.Collaborators, userID)
}

func (p *Playlist) IsFollower(userID string) bool {
	return slices.Contains(p.Followers, userID)
}

func (p *Playlist) HasEditGrant(userID string) bool {
	return slices.Contains(p.CouldEdit, userID)
}

// CanEdit is the playlist capability check.
func (p *Playlist) CanEdit(userID string) bool {
	return p.IsOwner(userID) || p.IsCollaborator(userID) || p.HasEditGrant(userID)
}

// ResolveEffectiveRole maps structural standing onto the shared role
// vocabulary: edit-capable users are editors, followers are listeners.
func (p *Playlist) ResolveEffectiveRole(userID string) access.Role {
	switch {
	case userID == "":
		return ""
	case p.IsOwner(userID):
		return access.RoleOwner
	case p.IsCollaborator(userID), p.HasEditGrant(userID):
		return access.RoleEditor
	case p.IsFollower(userID):
		return access.RoleListener
	}
	return ""
}

func (p *Playlist) Relation(userID string) access.Relation {
	return access.Relation{
		Role:    p.ResolveEffectiveRole(userID),
		IsOwner: p.IsOwner(userID),
		Public:  p.IsPublic,
	}
}

func (p *Playlist) Can(userID string, a access.Action) bool {
	return access.CanPerform(access.PlaylistMatrix, p.Relation(userID), a)
}

func (p *Playlist) CanInvite(userID string) bool {
	return access.CanInviteWithRole(access.PlaylistMatrix, p.Relation(userID), access.InviteCollaborator)
}

// IsMember reports any standing beyond public visibility.
func (p *Playlist) IsMember(userID string) bool {
	return p.ResolveEffectiveRole(userID) != ""
}

func (p *Playlist) AddCollaborator(userID string) bool {
	if p.IsOwner(userID) {
		return false
	}
	var added bool
	p.Collaborators, added = insert(p.Collaborators, userID)
	return added
}

func (p *Playlist) RemoveCollaborator(userID string) bool {
	var removed bool
	p.Collaborators, removed = remove(p.Collaborators, userID)
	return removed
}

// Follow adds userID as a follower. Following grants collaborator edit
// rights along with it.
func (p *Playlist) Follow(userID string) bool {
	if p.IsOwner(userID) {
		return false
	}
	var added bool
	p.Followers, added = insert(p.Followers, userID)
	p.Collaborators, _ = insert(p.Collaborators, userID)
	return added
}

// Unfollow removes both follower and collaborator status.
func (p *Playlist) Unfollow(userID string) bool {
	var removed bool
	p.Followers, removed = remove(p.Followers, userID)
	p.Collaborators, _ = remove(p.Collaborators, userID)
	return removed
}

// GrantEdit adds userID to the edit allow-list. The owner is never listed.
func (p *Playlist) GrantEdit(userID string) bool {
	if p.IsOwner(userID) {
		return false
	}
	var added bool
	p.CouldEdit, added = insert(p.CouldEdit, userID)
	return added
}

func (p *Playlist) RevokeEdit(userID string) bool {
	var removed bool
	p.CouldEdit, removed = remove(p.CouldEdit, userID)
	return removed
}

// ApplyAcceptance admits userID as collaborator and follower at once.
func (p *Playlist) ApplyAcceptance(userID string) {
	p.normalize()
	p.Collaborators, _ = insert(p.Collaborators, userID)
	p.Followers, _ = insert(p.Followers, userID)
}

func (p *Playlist) HasTrack(trackID string) bool {
	return slices.Contains(p.Tracks, trackID)
}

func (p *Playlist) AddTrack(trackID string) bool {
	var added bool
	p.Tracks, added = insert(p.Tracks, trackID)
	return added
}

func (p *Playlist) RemoveTrack(trackID string) bool {
	var removed bool
	p.Tracks, removed = remove(p.Tracks, trackID)
	return removed
}

// Reorder replaces the track order. order must hold exactly the current
// tracks, each once.
func (p *Playlist) Reorder(order []string) bool {
	if len(order) != len(p.Tracks) {
		return false
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if seen[id] || !p.HasTrack(id) {
			return false
		}
		seen[id] = true
	}
	p.Tracks = slices.Clone(order)
	return true
}

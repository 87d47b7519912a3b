// Package invite holds the pending-invitation ledger attached to events
// and playlists.
package invite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"musicroom/internal/access"
)

// Invitation is one pending offer. Older records were stored as a bare
// user id; those decode with Legacy set and the default role.
type Invitation struct {
	UserID    string            `json:"user_id"`
	Role      access.InviteRole `json:"role"`
	InvitedAt time.Time         `json:"invited_at"`
	InvitedBy string            `json:"invited_by,omitempty"`
	Legacy    bool              `json:"-"`
}

type detailed struct {
	UserID    string            `json:"user_id"`
	Role      access.InviteRole `json:"role"`
	InvitedAt time.Time         `json:"invited_at"`
	InvitedBy string            `json:"invited_by,omitempty"`
}

func (i *Invitation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var userID string
		if err := json.Unmarshal(data, &userID); err != nil {
			return err
		}
		*i = Invitation{UserID: userID, Role: access.DefaultInviteRole, Legacy: true}
		return nil
	}

	var d detailed
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("invitation: %w", err)
	}
	if d.Role == "" {
		d.Role = access.DefaultInviteRole
	}
	*i = Invitation{UserID: d.UserID, Role: d.Role, InvitedAt: d.InvitedAt, InvitedBy: d.InvitedBy}
	return nil
}

// Ledger is the ordered set of pending invitations on one entity.
// It never holds two entries for the same user.
type Ledger []Invitation

func (l Ledger) index(userID string) int {
	for i, inv := range l {
		if inv.UserID == userID {
			return i
		}
	}
	return -1
}

// Add records an invitation. The first invite wins: it returns false if
// userID already has a pending invitation, whatever role it offered.
func (l *Ledger) Add(userID string, role access.InviteRole, invitedBy string, at time.Time) bool {
	if l.Has(userID) {
		return false
	}
	*l = append(*l, Invitation{UserID: userID, Role: role, InvitedAt: at, InvitedBy: invitedBy})
	return true
}

func (l *Ledger) Remove(userID string) bool {
	i := l.index(userID)
	if i < 0 {
		return false
	}
	*l = append((*l)[:i], (*l)[i+1:]...)
	return true
}

func (l Ledger) Has(userID string) bool {
	return l.index(userID) >= 0
}

func (l Ledger) Get(userID string) (Invitation, bool) {
	i := l.index(userID)
	if i < 0 {
		return Invitation{}, false
	}
	return l[i], true
}

// Role returns the offered role for userID.
func (l Ledger) Role(userID string) (access.InviteRole, bool) {
	inv, ok := l.Get(userID)
	if !ok {
		return "", false
	}
	return inv.Role, true
}

func (l Ledger) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Invitation(l))
}

// UnmarshalJSON drops duplicate entries so a corrupted column cannot
// break the one-invite-per-user rule.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw []Invitation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Ledger, 0, len(raw))
	for _, inv := range raw {
		if inv.UserID == "" || out.Has(inv.UserID) {
			continue
		}
		out = append(out, inv)
	}
	*l = out
	return nil
}

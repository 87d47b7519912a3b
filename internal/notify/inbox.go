package notify

import (
	"fmt"
	"sort"
	"time"
)

// Entry describes one pending invitation waiting in a user's inbox.
type Entry struct {
	EntityID    string    `json:"entity_id"`
	EntityName  string    `json:"entity_name"`
	InviterID   string    `json:"inviter_id"`
	InviterName string    `json:"inviter_name"`
	OfferedRole string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	Message     string    `json:"message"`
}

// Inbox maps a notification key to its entry.
type Inbox map[string]Entry

// EventKey keys event notifications; one event sends at most one invite
// per user so the event id alone is unique.
func EventKey(eventID string) string {
	return eventID
}

// PlaylistKey keys playlist notifications by playlist and inviter so
// several collaborators inviting the same user do not collide.
func PlaylistKey(playlistID, inviterID string) string {
	return playlistID + "_" + inviterID
}

func (in *Inbox) Put(key string, e Entry) {
	if *in == nil {
		*in = Inbox{}
	}
	(*in)[key] = e
}

func (in Inbox) Remove(key string) bool {
	if _, ok := in[key]; !ok {
		return false
	}
	delete(in, key)
	return true
}

// RemoveEntity drops every entry that points at entityID and returns
// how many were removed.
func (in Inbox) RemoveEntity(entityID string) int {
	n := 0
	for k, e := range in {
		if e.EntityID == entityID {
			delete(in, k)
			n++
		}
	}
	return n
}

// List returns the entries newest first.
func (in Inbox) List() []Entry {
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// EventInviteMessage renders the inbox text for an event invitation.
func EventInviteMessage(inviterName, eventTitle, role string) string {
	return fmt.Sprintf("%s invited you to join the event %q as %s", inviterName, eventTitle, role)
}

// PlaylistInviteMessage renders the inbox text for a playlist invitation.
func PlaylistInviteMessage(inviterName, playlistName string) string {
	return fmt.Sprintf("%s invited you to collaborate on the playlist %q", inviterName, playlistName)
}

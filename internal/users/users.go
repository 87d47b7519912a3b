package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"musicroom/internal/db"
	"musicroom/internal/notify"
)

var ErrNotFound = errors.New("user not found")

// User is the slice of a user record this service owns: identity data
// synced from the auth service plus the invitation inboxes.
type User struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	Email                 string       `json:"email,omitempty"`
	EventNotifications    notify.Inbox `json:"event_notifications"`
	PlaylistNotifications notify.Inbox `json:"playlist_notifications"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// DisplayName falls back to the id when no name was synced.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// Notifications merges both inboxes newest first.
func (u *User) Notifications() []notify.Entry {
	all := notify.Inbox{}
	for k, e := range u.EventNotifications {
		all["event:"+k] = e
	}
	for k, e := range u.PlaylistNotifications {
		all["playlist:"+k] = e
	}
	return all.List()
}

const selectUser = `
	SELECT id, name, email, event_notifications, playlist_notifications, created_at, updated_at
	FROM users WHERE id = $1`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var evRaw, plRaw []byte
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &evRaw, &plRaw, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(evRaw, &u.EventNotifications); err != nil {
		return nil, fmt.Errorf("decode event notifications: %w", err)
	}
	if err := json.Unmarshal(plRaw, &u.PlaylistNotifications); err != nil {
		return nil, fmt.Errorf("decode playlist notifications: %w", err)
	}
	if u.EventNotifications == nil {
		u.EventNotifications = notify.Inbox{}
	}
	if u.PlaylistNotifications == nil {
		u.PlaylistNotifications = notify.Inbox{}
	}
	return &u, nil
}

// Load reads a user without locking.
func Load(ctx context.Context, q db.Querier, id string) (*User, error) {
	return scanUser(q.QueryRow(ctx, selectUser, id))
}

// LoadForUpdate reads a user and locks the row until the transaction ends.
func LoadForUpdate(ctx context.Context, q db.Querier, id string) (*User, error) {
	return scanUser(q.QueryRow(ctx, selectUser+` FOR UPDATE`, id))
}

// SaveInboxes writes both notification inboxes back.
func SaveInboxes(ctx context.Context, q db.Querier, u *User) error {
	ev, err := json.Marshal(inboxOrEmpty(u.EventNotifications))
	if err != nil {
		return err
	}
	pl, err := json.Marshal(inboxOrEmpty(u.PlaylistNotifications))
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE users
		SET event_notifications = $2, playlist_notifications = $3, updated_at = now()
		WHERE id = $1
	`, u.ID, ev, pl)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func inboxOrEmpty(in notify.Inbox) notify.Inbox {
	if in == nil {
		return notify.Inbox{}
	}
	return in
}

// Upsert creates or refreshes the identity fields of a user.
func Upsert(ctx context.Context, q db.Querier, id, name, email string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = now()
	`, id, name, email)
	return err
}

func Exists(ctx context.Context, q db.Querier, id string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// Names resolves display names for ids; unknown ids are left out.
func Names(ctx context.Context, q db.Querier, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT id, name FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if name == "" {
			name = id
		}
		out[id] = name
	}
	return out, rows.Err()
}

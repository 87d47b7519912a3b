package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"musicroom/internal/db"
	"musicroom/internal/users"
)

var ErrNotFound = errors.New("event not found")

// Tx is the unit of work for one state transition. Rows read through
// Lock* stay locked until the transaction ends.
type Tx interface {
	LockEvent(ctx context.Context, id string) (*Event, error)
	SaveEvent(ctx context.Context, e *Event) error
	DeleteEvent(ctx context.Context, id string) error
	LockUser(ctx context.Context, id string) (*users.User, error)
	LoadUser(ctx context.Context, id string) (*users.User, error)
	SaveUser(ctx context.Context, u *users.User) error
}

type Store interface {
	Get(ctx context.Context, id string) (*Event, error)
	Create(ctx context.Context, e *Event) error
	ListPublic(ctx context.Context, limit int) ([]Event, error)
	ListForUser(ctx context.Context, userID string) ([]Event, error)
	UserNames(ctx context.Context, ids []string) (map[string]string, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type PostgresStore struct {
	db db.DB
}

func NewPostgresStore(d db.DB) *PostgresStore {
	return &PostgresStore{db: d}
}

const eventColumns = `id, title, description, location, image_url, organizer_id,
	attendees, managers, songs, track_votes, user_roles, pending_invites,
	is_public, event_start_time, event_end_time, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var attendees, managers, songs, votes, roles, pending []byte
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Location, &e.ImageURL, &e.OrganizerID,
		&attendees, &managers, &songs, &votes, &roles, &pending,
		&e.IsPublic, &e.StartTime, &e.EndTime, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	fields := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"attendees", attendees, &e.Attendees},
		{"managers", managers, &e.Managers},
		{"songs", songs, &e.Songs},
		{"track_votes", votes, &e.TrackVotes},
		{"user_roles", roles, &e.UserRoles},
		{"pending_invites", pending, &e.PendingInvites},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	e.normalize()
	return &e, nil
}

type jsonColumns struct {
	attendees, managers, songs, votes, roles, pending []byte
}

func encodeColumns(e *Event) (jsonColumns, error) {
	e.normalize()
	var c jsonColumns
	var err error
	if c.attendees, err = json.Marshal(e.Attendees); err != nil {
		return c, err
	}
	if c.managers, err = json.Marshal(e.Managers); err != nil {
		return c, err
	}
	if c.songs, err = json.Marshal(e.Songs); err != nil {
		return c, err
	}
	if c.votes, err = json.Marshal(e.TrackVotes); err != nil {
		return c, err
	}
	if c.roles, err = json.Marshal(e.UserRoles); err != nil {
		return c, err
	}
	if c.pending, err = json.Marshal(e.PendingInvites); err != nil {
		return c, err
	}
	return c, nil
}

// validID filters ids that could never match the uuid column so they
// surface as not found instead of a database error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func getEvent(ctx context.Context, q db.Querier, id string, lock bool) (*Event, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	sql := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	return scanEvent(q.QueryRow(ctx, sql, id))
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Event, error) {
	return getEvent(ctx, s.db, id, false)
}

func (s *PostgresStore) Create(ctx context.Context, e *Event) error {
	c, err := encodeColumns(e)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, e.ID, e.Title, e.Description, e.Location, e.ImageURL, e.OrganizerID,
		c.attendees, c.managers, c.songs, c.votes, c.roles, c.pending,
		e.IsPublic, e.StartTime, e.EndTime, e.CreatedAt, e.UpdatedAt)
	return err
}

func collect(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPublic(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE is_public
		ORDER BY event_start_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListForUser returns every event userID organizes, attends, manages or
// holds a role on.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE organizer_id = $1
		   OR attendees ? $1
		   OR managers ? $1
		   OR user_roles ? $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *PostgresStore) UserNames(ctx context.Context, ids []string) (map[string]string, error) {
	return users.Names(ctx, s.db, ids)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

type pgTx struct {
	q db.Querier
}

func (t *pgTx) LockEvent(ctx context.Context, id string) (*Event, error) {
	return getEvent(ctx, t.q, id, true)
}

func (t *pgTx) SaveEvent(ctx context.Context, e *Event) error {
	c, err := encodeColumns(e)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `
		UPDATE events SET
			title = $2, description = $3, location = $4, image_url = $5, organizer_id = $6,
			attendees = $7, managers = $8, songs = $9, track_votes = $10, user_roles = $11,
			pending_invites = $12, is_public = $13, event_start_time = $14, event_end_time = $15,
			updated_at = $16
		WHERE id = $1
	`, e.ID, e.Title, e.Description, e.Location, e.ImageURL, e.OrganizerID,
		c.attendees, c.managers, c.songs, c.votes, c.roles, c.pending,
		e.IsPublic, e.StartTime, e.EndTime, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteEvent(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) LockUser(ctx context.Context, id string) (*users.User, error) {
	return users.LoadForUpdate(ctx, t.q, id)
}

func (t *pgTx) LoadUser(ctx context.Context, id string) (*users.User, error) {
	return users.Load(ctx, t.q, id)
}

func (t *pgTx) SaveUser(ctx context.Context, u *users.User) error {
	return users.SaveInboxes(ctx, t.q, u)
}

package playlist

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

var ErrNotFound = errors.New("playlist not found")

// Tx is the unit of work for one playlist transition.
type Tx interface {
	LockPlaylist(ctx context.Context, id string) (*Playlist, error)
	SavePlaylist(ctx context.Context, p *Playlist) error
	DeletePlaylist(ctx context.Context, id string) error
	LockUser(ctx context.Context, id string) (*users.User, error)
	LoadUser(ctx context.Context, id string) (*users.User, error)
	SaveUser(ctx context.Context, u *users.User) error
}

type Store interface {
	Get(ctx context.Context, id string) (*Playlist, error)
	Create(ctx context.Context, p *Playlist) error
	ListPublic(ctx context.Context, limit int) ([]Playlist, error)
	ListForUser(ctx context.Context, userID string) ([]Playlist, error)
	UserNames(ctx context.Context, ids []string) (map[string]string, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type PostgresStore struct {
	db db.DB
}

func NewPostgresStore(d db.DB) *PostgresStore {
	return &PostgresStore{db: d}
}

const playlistColumns = `id, name, description, owner_id, tracks, collaborators,
	followers, could_edit, pending_invites, is_public, created_at, updated_at`

func scanPlaylist(row interface{ Scan(...any) error }) (*Playlist, error) {
	var p Playlist
	var tracks, collaborators, followers, couldEdit, pending []byte
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.OwnerID, &tracks, &collaborators,
		&followers, &couldEdit, &pending, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	for name, f := range map[string]struct {
		raw []byte
		dst any
	}{
		"tracks":          {tracks, &p.Tracks},
		"collaborators":   {collaborators, &p.Collaborators},
		"followers":       {followers, &p.Followers},
		"could_edit":      {couldEdit, &p.CouldEdit},
		"pending_invites": {pending, &p.PendingInvites},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	p.normalize()
	return &p, nil
}

// encode returns the JSONB columns in table order.
func encode(p *Playlist) ([5][]byte, error) {
	p.normalize()
	var out [5][]byte
	for i, v := range []any{p.Tracks, p.Collaborators, p.Followers, p.CouldEdit, p.PendingInvites} {
		b, err := json.Marshal(v)
		if err != nil {
			return out, err
		}
		out[i] = b
	}
	return out, nil
}

func getPlaylist(ctx context.Context, q db.Querier, id string, lock bool) (*Playlist, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	sql := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	return scanPlaylist(q.QueryRow(ctx, sql, id))
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Playlist, error) {
	return getPlaylist(ctx, s.db, id, false)
}

func (s *PostgresStore) Create(ctx context.Context, p *Playlist) error {
	c, err := encode(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO playlists (`+playlistColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.Name, p.Description, p.OwnerID, c[0], c[1], c[2], c[3], c[4],
		p.IsPublic, p.CreatedAt, p.UpdatedAt)
	return err
}

func collect(rows pgx.Rows) ([]Playlist, error) {
	defer rows.Close()
	out := []Playlist{}
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPublic(ctx context.Context, limit int) ([]Playlist, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+playlistColumns+` FROM playlists
		WHERE is_public
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListForUser returns every playlist userID owns, collaborates on,
// follows or may edit.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]Playlist, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+playlistColumns+` FROM playlists
		WHERE owner_id = $1
		   OR collaborators ? $1
		   OR followers ? $1
		   OR could_edit ? $1
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

func (t *pgTx) LockPlaylist(ctx context.Context, id string) (*Playlist, error) {
	return getPlaylist(ctx, t.q, id, true)
}

func (t *pgTx) SavePlaylist(ctx context.Context, p *Playlist) error {
	c, err := encode(p)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `
		UPDATE playlists SET
			name = $2, description = $3, owner_id = $4, tracks = $5, collaborators = $6,
			followers = $7, could_edit = $8, pending_invites = $9, is_public = $10,
			updated_at = $11
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.OwnerID, c[0], c[1], c[2], c[3], c[4],
		p.IsPublic, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) DeletePlaylist(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
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

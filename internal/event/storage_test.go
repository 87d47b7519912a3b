package event

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/access"
)

const eventID = "6f1d8d0e-2b7a-4c55-9a53-6f3b3f0c2a11"

var eventCols = []string{
	"id", "title", "description", "location", "image_url", "organizer_id",
	"attendees", "managers", "songs", "track_votes", "user_roles", "pending_invites",
	"is_public", "event_start_time", "event_end_time", "created_at", "updated_at",
}

func eventRow() *pgxmock.Rows {
	return pgxmock.NewRows(eventCols).AddRow(
		eventID, "Party", "", "Paris", "", "olga",
		[]byte(`["ben"]`), []byte(`[]`), []byte(`["t1"]`),
		[]byte(`{"t1":["ben"]}`), []byte(`{"olga":"owner","ben":"listener"}`),
		[]byte(`["ann",{"user_id":"mia","role":"manager","invited_at":"2025-03-01T20:00:00Z","invited_by":"olga"}]`),
		true, t0, nil, t0, t0,
	)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM events WHERE id = \$1`).
		WithArgs(eventID).
		WillReturnRows(eventRow())

	e, err := NewPostgresStore(mock).Get(context.Background(), eventID)
	require.NoError(t, err)

	assert.Equal(t, "Party", e.Title)
	assert.Equal(t, []string{"ben"}, e.Attendees)
	assert.Equal(t, 1, e.VoteCount("t1"))
	assert.Equal(t, access.RoleListener, e.ResolveEffectiveRole("ben"))
	assert.Nil(t, e.EndTime)

	// legacy entries decode with the default role
	require.Len(t, e.PendingInvites, 2)
	assert.Equal(t, access.InviteAttendee, e.PendingInvites[0].Role)
	assert.True(t, e.PendingInvites[0].Legacy)
	assert.Equal(t, access.InviteManager, e.PendingInvites[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStore(mock)

	_, err = s.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`SELECT .* FROM events WHERE id = \$1`).
		WithArgs(eventID).
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Get(context.Background(), eventID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO events").
		WithArgs(anyArgs(17)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := New(eventID, "olga", "Party", t0)
	require.NoError(t, NewPostgresStore(mock).Create(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTxLocksAndSaves(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM events WHERE id = \$1 FOR UPDATE`).
		WithArgs(eventID).
		WillReturnRows(eventRow())
	mock.ExpectExec("UPDATE events SET").
		WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewPostgresStore(mock).InTx(context.Background(), func(tx Tx) error {
		e, err := tx.LockEvent(context.Background(), eventID)
		if err != nil {
			return err
		}
		e.AddTrack("t2")
		return tx.SaveEvent(context.Background(), e)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTxRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE events SET").
		WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = NewPostgresStore(mock).InTx(context.Background(), func(tx Tx) error {
		return tx.SaveEvent(context.Background(), New(eventID, "olga", "Party", t0))
	})
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM events").
		WithArgs(eventID).
		WillReturnError(errors.New("conn closed"))
	mock.ExpectRollback()

	err = NewPostgresStore(mock).InTx(context.Background(), func(tx Tx) error {
		return tx.DeleteEvent(context.Background(), eventID)
	})
	assert.EqualError(t, err, "conn closed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Lists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT .* FROM events WHERE is_public ORDER BY event_start_time DESC LIMIT \$1`).
		WithArgs(20).
		WillReturnRows(eventRow())
	list, err := s.ListPublic(context.Background(), 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	mock.ExpectQuery(`SELECT .* FROM events WHERE organizer_id = \$1 OR attendees \? \$1`).
		WithArgs("ben").
		WillReturnRows(pgxmock.NewRows(eventCols))
	list, err = s.ListForUser(context.Background(), "ben")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

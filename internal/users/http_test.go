package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/authn"
)

func newRouter(t *testing.T) (http.Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	h := NewHandler(mock)
	r := chi.NewRouter()
	h.InternalRoutes(r, "s3cret")
	r.Group(func(r chi.Router) {
		r.Use(authn.New("jwt", true).Middleware)
		h.Routes(r)
	})
	return r, mock
}

func TestHandleNotifications(t *testing.T) {
	r, mock := newRouter(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := []byte(`{"ev1":{"entity_id":"ev1","entity_name":"Party","role":"attendee","created_at":"2024-05-01T09:00:00Z"}}`)
	pl := []byte(`{"pl1_u1":{"entity_id":"pl1","entity_name":"Mix","role":"collaborator","created_at":"2024-05-01T09:30:00Z"}}`)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("u2").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow("u2", "Bob", "", ev, pl, now, now))

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("X-User-Id", "u2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body notificationsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "pl1", body.Notifications[0].EntityID, "newest first")
	assert.Equal(t, "ev1", body.Notifications[1].EntityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleNotifications_UnknownUser(t *testing.T) {
	r, mock := newRouter(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("u9").
		WillReturnError(pgx.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("X-User-Id", "u9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notifications":[],"count":0}`, w.Body.String())
}

func TestHandleGet(t *testing.T) {
	r, mock := newRouter(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("u3").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow("u3", "", "c@example.com", []byte(`{}`), []byte(`{}`), now, now))
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs("u4").
		WillReturnError(errors.New("conn reset"))

	req := httptest.NewRequest(http.MethodGet, "/users/u3", nil)
	req.Header.Set("X-User-Id", "u2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u3","name":"u3"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/users/u4", nil)
	req.Header.Set("X-User-Id", "u2")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"database error"}`, w.Body.String())
}

func TestHandleUpsert(t *testing.T) {
	r, mock := newRouter(t)

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/internal/users/u1", bytes.NewBufferString(`{}`))
		req.Header.Set("X-Internal-Token", "nope")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("upserts", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WithArgs("u1", "Ann", "ann@example.com").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		req := httptest.NewRequest(http.MethodPut, "/internal/users/u1", bytes.NewBufferString(`{"name":" Ann ","email":"ann@example.com"}`))
		req.Header.Set("X-Internal-Token", "s3cret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRequireToken_EmptyRejectsAll(t *testing.T) {
	h := RequireToken("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

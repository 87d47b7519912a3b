package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/apperr"
	"musicroom/internal/authn"
)

func TestFail(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not found", apperr.NewNotFound("event not found"), http.StatusNotFound, "event not found"},
		{"forbidden", apperr.NewForbidden("Access denied"), http.StatusForbidden, "Access denied"},
		{"conflict", apperr.NewConflict("already has a pending invite"), http.StatusConflict, "already has a pending invite"},
		{"validation", apperr.NewValidation("title is required"), http.StatusBadRequest, "title is required"},
		{"infrastructure", errors.New("connection reset"), http.StatusInternalServerError, "database error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Fail(rr, httptest.NewRequest(http.MethodGet, "/", nil), "test", tt.err)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.body)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		UserID string `json:"user_id"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user_id":"u1"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "u1", dst.UserID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.NoError(t, DecodeJSON(req, &dst))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	err := DecodeJSON(req, &dst)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRateLimit_ByUser(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimit(2, KeyByUserOrIP, "invites")(ok)

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/events/1/invite", nil)
		req = req.WithContext(authn.WithUser(req.Context(), user))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, call("alice"))
	assert.Equal(t, http.StatusOK, call("alice"))
	assert.Equal(t, http.StatusTooManyRequests, call("alice"))
	assert.Equal(t, http.StatusOK, call("bob"))
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS([]string{"http://localhost:5175"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	req.Header.Set("Origin", "http://localhost:5175")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:5175", rr.Header().Get("Access-Control-Allow-Origin"))
}

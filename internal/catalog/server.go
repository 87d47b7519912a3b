package catalog

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"musicroom/internal/apperr"
)

const (
	maxQueryLen  = 200
	maxLookupIDs = 50
)

type Server struct {
	provider Provider
	rdb      *redis.Client
}

func NewServer(p Provider, rdb *redis.Client) *Server {
	return &Server{
		provider: p,
		rdb:      rdb,
	}
}

// Routes mounts the catalog endpoints. search wraps the search route
// only, so it can carry its own rate limit.
func (s *Server) Routes(r chi.Router, search ...func(http.Handler) http.Handler) {
	r.Get("/health", s.HandleHealth)
	r.With(search...).Get("/music/search", s.HandleSearch)
	r.Get("/music/tracks", s.HandleTracks)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.rdb != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			status = "degraded"
		}
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"service": "music-provider-service",
	})
}

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("query"))
	if q == "" {
		apperr.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}
	if len(q) > maxQueryLen {
		apperr.WriteError(w, http.StatusBadRequest, "query is too long")
		return
	}

	limit := DefaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= MaxLimit {
		limit = v
	}

	items, err := s.provider.SearchTracks(r.Context(), q, limit)
	if err != nil {
		apperr.WriteError(w, http.StatusBadGateway, "failed to query provider")
		return
	}
	apperr.WriteJSON(w, http.StatusOK, SearchResponse{Items: items})
}

// HandleTracks resolves a comma separated ids list in one upstream call.
func (s *Server) HandleTracks(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		apperr.WriteError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if len(ids) > maxLookupIDs {
		apperr.WriteError(w, http.StatusBadRequest, "too many ids")
		return
	}

	tracks, err := s.provider.LookupTracks(r.Context(), ids)
	if err != nil {
		apperr.WriteError(w, http.StatusBadGateway, "failed to query provider")
		return
	}
	apperr.WriteJSON(w, http.StatusOK, TracksResponse{Tracks: tracks})
}

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"musicroom/internal/apperr"
	"musicroom/internal/authn"
)

type Server struct {
	hub           *Hub
	rdb           *redis.Client
	auth          *authn.Authenticator
	allowedOrigin string
	upgrader      websocket.Upgrader
}

// NewServer wires the websocket endpoint. allowedOrigin "" or "*"
// accepts any origin.
func NewServer(hub *Hub, rdb *redis.Client, auth *authn.Authenticator, allowedOrigin string) *Server {
	s := &Server{
		hub:           hub,
		rdb:           rdb,
		auth:          auth,
		allowedOrigin: allowedOrigin,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowedOrigin == "" || s.allowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.allowedOrigin
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.Post("/events", s.handleEvents)

	return r
}

// RunRedisSubscriber forwards every message on Channel to the hub until
// ctx is cancelled.
func (s *Server) RunRedisSubscriber(ctx context.Context) {
	sub := s.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.hub.Dispatch([]byte(msg.Payload))
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "realtime-service",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if s.auth != nil {
		id, err := s.auth.Resolve(r)
		switch err {
		case nil:
			userID = id
		case authn.ErrNoCredentials:
		default:
			apperr.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade")
		return
	}

	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}
	s.hub.register <- client

	welcome := map[string]any{
		"type":   "welcome",
		"userId": userID,
		"now":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	go client.writePump()
	go client.readPump()
}

// handleEvents lets trusted internal callers publish without a Redis
// client of their own.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || msg.Type == "" {
		apperr.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := NewPublisher(s.rdb).send(r.Context(), msg); err != nil {
		log.Error().Err(err).Msg("realtime publish")
		apperr.WriteError(w, http.StatusInternalServerError, "redis error")
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

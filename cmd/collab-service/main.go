package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"musicroom/internal/apperr"
	"musicroom/internal/authn"
	"musicroom/internal/catalog"
	"musicroom/internal/config"
	"musicroom/internal/db"
	"musicroom/internal/event"
	"musicroom/internal/httpx"
	"musicroom/internal/logging"
	"musicroom/internal/mail"
	"musicroom/internal/metrics"
	"musicroom/internal/notify"
	"musicroom/internal/playlist"
	"musicroom/internal/realtime"
	"musicroom/internal/users"
)

const maxBodyBytes = 1 << 20

func main() {
	cfg, err := config.Load("3002")
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Interface("config", cfg.RedactedValues()).Msg("collab-service starting")

	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := db.AutoMigrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	dispatch := notify.NewDispatcher(realtime.NewPublisher(rdb), mail.NewSender(cfg.SMTP), mail.InvitationEmail)
	tracks := catalog.NewClient(cfg.MusicProviderURL)

	events := event.NewService(event.NewPostgresStore(pool), dispatch, m, event.WithTracks(tracks))
	playlists := playlist.NewService(playlist.NewPostgresStore(pool), dispatch, m, playlist.WithTracks(tracks))
	userHandler := users.NewHandler(pool)

	auth := authn.New(cfg.JWTSecret, cfg.TrustGatewayHeaders)
	inviteLimit := httpx.RateLimit(cfg.InviteRatePerMin, httpx.KeyByUserOrIP, "invite")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger)
	r.Use(httpx.Recoverer)
	r.Use(httpx.CORS(cfg.CORSAllowedOrigins))
	r.Use(httpx.BodyLimit(maxBodyBytes))
	r.Use(m.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := pool.Ping(r.Context()); err != nil {
			status = "degraded"
		}
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": status, "service": "collab-service"})
	})
	r.Handle("/metrics", metrics.Handler(registry))

	if cfg.InternalAPIToken != "" {
		userHandler.InternalRoutes(r, cfg.InternalAPIToken)
	} else {
		log.Warn().Msg("INTERNAL_API_TOKEN not set, user sync endpoint disabled")
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		event.NewHandler(events).Routes(r, inviteLimit)
		playlist.NewHandler(playlists).Routes(r, inviteLimit)
		userHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("collab-service listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}
}

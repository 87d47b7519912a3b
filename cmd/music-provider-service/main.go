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
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"musicroom/internal/catalog"
	"musicroom/internal/config"
	"musicroom/internal/httpx"
	"musicroom/internal/logging"
	"musicroom/internal/metrics"
)

func main() {
	cfg, err := config.Load("3007")
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Interface("config", cfg.RedactedValues()).Msg("music-provider-service starting")

	if cfg.JamendoClientID == "" {
		log.Warn().Msg("JAMENDO_CLIENT_ID not set, upstream calls will be rejected")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	provider := catalog.NewCachedProvider(
		catalog.NewJamendoClient(cfg.JamendoClientID, cfg.JamendoBaseURL),
		rdb, cfg.CatalogLRUSize, cfg.CatalogCacheTTL, m,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger)
	r.Use(httpx.Recoverer)
	r.Use(httpx.CORS(cfg.CORSAllowedOrigins))
	r.Use(m.Middleware)

	catalog.NewServer(provider, rdb).Routes(r, httpx.RateLimit(cfg.SearchRatePerMin, httprate.KeyByIP, "search"))
	r.Handle("/metrics", metrics.Handler(registry))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("music-provider-service listening")
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

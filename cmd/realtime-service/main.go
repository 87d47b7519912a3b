package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"musicroom/internal/authn"
	"musicroom/internal/config"
	"musicroom/internal/httpx"
	"musicroom/internal/logging"
	"musicroom/internal/metrics"
	"musicroom/internal/realtime"
)

func main() {
	cfg, err := config.Load("3004")
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Interface("config", cfg.RedactedValues()).Msg("realtime-service starting")

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	hub := realtime.NewHub(m)
	srv := realtime.NewServer(hub, rdb, authn.New(cfg.JWTSecret, cfg.TrustGatewayHeaders), cfg.FrontendBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	go srv.RunRedisSubscriber(ctx)

	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		httpx.RequestLogger,
		httpx.Recoverer,
		m.Middleware,
	)
	r.Handle("/metrics", metrics.Handler(registry))

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("realtime-service listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crucial707/memberportal/internal/config"
	"github.com/crucial707/memberportal/internal/db"
	"github.com/crucial707/memberportal/internal/logging"
	"github.com/crucial707/memberportal/internal/metrics"
	"github.com/crucial707/memberportal/internal/scheduler"
	"github.com/crucial707/memberportal/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogFormat, cfg.LogLevel, os.Stdout)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	// Connect to database FIRST
	database, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)

	if cfg.MigrateOnStart {
		version, err := db.Run(db.URL(cfg))
		if err != nil {
			return err
		}
		slog.Info("migrations applied", "version", version)
	}

	backend, jobs, closeBackend, err := sessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	store := session.NewStore(backend,
		[]byte(cfg.SessionCookieSecret),
		[]byte(cfg.SessionStoreSecret),
		session.CookieOptions(cfg.IsProd()))

	router, err := newRouter(database, store, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if len(jobs) > 0 {
		go func() {
			if err := scheduler.Run(ctx, jobs...); err != nil {
				slog.Error("scheduler stopped", "err", err)
			}
		}()
	}

	// Start server LAST
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sessionBackend picks redis when REDIS_URL is set and the in-process map
// otherwise. The memory backend comes with its sweep job.
func sessionBackend(ctx context.Context, cfg config.Config) (session.Backend, []scheduler.Job, func(), error) {
	if cfg.RedisURL != "" {
		client, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("session backend: redis")
		return session.NewRedisBackend(client, ""), nil, func() { _ = client.Close() }, nil
	}

	slog.Warn("session backend: memory; sessions are lost on restart")
	mem := session.NewMemoryBackend()
	sweep := scheduler.Job{
		Name: "session-sweep",
		Spec: cfg.SessionSweepCron,
		Run: func() {
			n := mem.Sweep()
			metrics.AddSessionsSwept(n)
			if n > 0 {
				slog.Debug("expired sessions swept", "count", n)
			}
		},
	}
	return mem, []scheduler.Job{sweep}, func() {}, nil
}

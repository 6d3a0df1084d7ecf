package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adapthttp "accounts/internal/adapter/http"
	"accounts/internal/adapter/memory"
	"accounts/internal/adapter/postgres"
	"accounts/internal/adapter/redis"
	"accounts/internal/adapter/sqlite"
	"accounts/internal/app"
	"accounts/internal/config"
	"accounts/internal/domain"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// stores holds the repositories chosen by configuration and how to release them.
type stores struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	closers  []func() error
}

func (s *stores) close(logger *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("close store", "err", err)
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.users, s.sessions = db, postgres.NewSessionRepo(db)
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLitePath, cfg.Database.LogQueries)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.users, s.sessions = db, sqlite.NewSessionRepo(db)
	default:
		db := memory.New()
		s.users, s.sessions = db, db.NewSessionRepo()
	}

	if cfg.Session.Store == "redis" {
		client, err := redis.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			for _, c := range s.closers {
				_ = c()
			}
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		s.sessions = redis.NewSessionRepo(client, cfg.Session.Retention)
	}
	return s, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close(logger)

	hasher := app.NewPasswordHasher(cfg.Password.BcryptCost)
	authSvc := app.NewAuthService(st.users, st.sessions, hasher)
	userSvc := app.NewUserService(authSvc, st.users, st.sessions, hasher, logger)

	if cfg.Session.PurgeInterval > 0 {
		go purgeLoop(ctx, authSvc, cfg.Session.Retention, cfg.Session.PurgeInterval, logger)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           adapthttp.New(authSvc, userSvc, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "database", cfg.Database.Driver, "sessions", cfg.Session.Store)
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

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// purgeLoop deletes long-invalid sessions every interval until ctx is done.
func purgeLoop(ctx context.Context, auth *app.AuthService, retention, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := auth.PurgeSessions(ctx, retention)
			if err != nil {
				logger.Warn("purge sessions", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("purged sessions", "count", n)
			}
		}
	}
}

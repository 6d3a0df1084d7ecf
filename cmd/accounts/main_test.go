package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"accounts/internal/adapter/redis"
	"accounts/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON output, got %s", out)
	}
}

func TestOpenStores(t *testing.T) {
	mr := miniredis.RunT(t)
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		cfg       config.Config
		wantRedis bool
	}{
		{
			name: "memory",
			cfg:  config.Config{Database: config.DatabaseConfig{Driver: "memory"}, Session: config.SessionConfig{Store: "database"}},
		},
		{
			name: "sqlite",
			cfg: config.Config{
				Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "a.db")},
				Session:  config.SessionConfig{Store: "database"},
			},
		},
		{
			name: "memory with redis sessions",
			cfg: config.Config{
				Database: config.DatabaseConfig{Driver: "memory"},
				Session:  config.SessionConfig{Store: "redis"},
				Redis:    config.RedisConfig{Addr: mr.Addr()},
			},
			wantRedis: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st, err := openStores(context.Background(), &tc.cfg)
			if err != nil {
				t.Fatalf("openStores() error: %v", err)
			}
			defer st.close(discard)

			if st.users == nil || st.sessions == nil {
				t.Fatal("expected both repositories")
			}
			if _, isRedis := st.sessions.(*redis.SessionRepo); isRedis != tc.wantRedis {
				t.Errorf("redis session store = %v, want %v", isRedis, tc.wantRedis)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.HTTP.Addr != ":8080" {
		t.Errorf("expected :8080, got %q", c.HTTP.Addr)
	}
	if c.Database.Driver != "memory" || c.Session.Store != "database" {
		t.Errorf("unexpected backends: %+v %+v", c.Database, c.Session)
	}
	if c.Session.Retention != 7*24*time.Hour {
		t.Errorf("expected 7d retention, got %v", c.Session.Retention)
	}
	if c.Password.BcryptCost != 10 {
		t.Errorf("expected bcrypt cost 10, got %d", c.Password.BcryptCost)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ACCOUNTS_HTTP_ADDR", ":9090")
	t.Setenv("ACCOUNTS_DATABASE_DRIVER", "postgres")
	t.Setenv("ACCOUNTS_DATABASE_URL", "postgres://localhost/accounts")
	t.Setenv("ACCOUNTS_SESSION_RETENTION", "48h")
	t.Setenv("ACCOUNTS_REDIS_DB", "3")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.HTTP.Addr != ":9090" {
		t.Errorf("expected :9090, got %q", c.HTTP.Addr)
	}
	if c.Database.Driver != "postgres" || c.Database.URL != "postgres://localhost/accounts" {
		t.Errorf("unexpected database config: %+v", c.Database)
	}
	if c.Session.Retention != 48*time.Hour {
		t.Errorf("expected 48h, got %v", c.Session.Retention)
	}
	if c.Redis.DB != 3 {
		t.Errorf("expected redis db 3, got %d", c.Redis.DB)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	yaml := `
http:
  addr: ":7070"
database:
  driver: sqlite
  sqlite_path: /tmp/a.db
log:
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.HTTP.Addr != ":7070" || c.Database.Driver != "sqlite" || c.Database.SQLitePath != "/tmp/a.db" {
		t.Errorf("unexpected config: %+v", c)
	}
	if c.Log.Format != "json" {
		t.Errorf("expected json log format, got %q", c.Log.Format)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "memory"},
			Session:  SessionConfig{Store: "database"},
			Redis:    RedisConfig{Addr: "localhost:6379"},
			Log:      LogConfig{Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "postgres without url", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: "database.url"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "unknown session store", mutate: func(c *Config) { c.Session.Store = "memcached" }, wantErr: "session.store"},
		{name: "redis without addr", mutate: func(c *Config) { c.Session.Store = "redis"; c.Redis.Addr = "" }, wantErr: "redis.addr"},
		{name: "negative retention", mutate: func(c *Config) { c.Session.Retention = -time.Second }, wantErr: "retention"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

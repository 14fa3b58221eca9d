package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
sites:
  - name: python
    root: https://docs.example.org/3/
  - name: local
    root: ./_build/dirhtml
    builder: dirhtml
    urlRoot: /docs/
server:
  addr: ":9000"
  shutdownTimeout: 3s
redis:
  enabled: true
  cacheTTL: 1m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Sites) != 2 {
		t.Fatalf("Expected 2 sites, got %d", len(cfg.Sites))
	}
	py := cfg.Sites[0]
	if py.Builder != "html" || py.FileSuffix != ".html" {
		t.Errorf("Expected html defaults, got %+v", py)
	}
	if py.URLRoot != "https://docs.example.org/3/" {
		t.Errorf("Expected URLRoot to default to remote root, got %q", py.URLRoot)
	}
	local, ok := cfg.Site("local")
	if !ok {
		t.Fatal("Site(local) not found")
	}
	if local.FileSuffix != "" || local.URLRoot != "/docs/" {
		t.Errorf("Unexpected dirhtml site: %+v", local)
	}
	if local.IsRemote() {
		t.Error("Local site reported as remote")
	}

	if cfg.Server.Addr != ":9000" || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL != time.Minute || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Search.DefaultLimit != 10 || !cfg.Search.Fulltext {
		t.Errorf("Unexpected search defaults: %+v", cfg.Search)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SXS_SITE_ROOT", "/srv/docs")
	t.Setenv("SXS_SITE_URL_ROOT", "https://docs.internal/")
	t.Setenv("SXS_DATA_DIR", "/var/lib/sxs")
	t.Setenv("SXS_SERVER_ADDR", ":7070")
	t.Setenv("SXS_REDIS_ENABLED", "true")
	t.Setenv("SXS_KAFKA_ENABLED", "1")
	t.Setenv("SXS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SXS_LOGGING_LEVEL", "debug")
	t.Setenv("SXS_SEARCH_RELOAD_INTERVAL", "30s")
	t.Setenv("SXS_SEARCH_SQLITE_PATH", "/var/lib/sxs/entries.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	site, ok := cfg.Site(DefaultSiteName)
	if !ok {
		t.Fatal("Expected default site from SXS_SITE_ROOT")
	}
	if site.Root != "/srv/docs" || site.URLRoot != "https://docs.internal/" || site.Builder != "html" {
		t.Errorf("Unexpected default site: %+v", site)
	}
	if cfg.DataDir != "/var/lib/sxs" || cfg.Server.Addr != ":7070" {
		t.Errorf("Unexpected overrides: dataDir=%q addr=%q", cfg.DataDir, cfg.Server.Addr)
	}
	if !cfg.Redis.Enabled || !cfg.Kafka.Enabled {
		t.Error("Expected redis and kafka to be enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Search.ReloadInterval != 30*time.Second {
		t.Errorf("ReloadInterval = %v", cfg.Search.ReloadInterval)
	}
	if cfg.Search.SQLitePath != "/var/lib/sxs/entries.db" {
		t.Errorf("SQLitePath = %q", cfg.Search.SQLitePath)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no sites", "server:\n  addr: ':1'\n"},
		{"missing name", "sites:\n  - root: /x\n"},
		{"missing root", "sites:\n  - name: a\n"},
		{"duplicate", "sites:\n  - name: a\n    root: /x\n  - name: a\n    root: /y\n"},
		{"bad builder", "sites:\n  - name: a\n    root: /x\n    builder: latex\n"},
		{"bad limits", "sites:\n  - name: a\n    root: /x\nsearch:\n  defaultLimit: 50\n  maxLimit: 10\n"},
		{"kafka without topic", "sites:\n  - name: a\n    root: /x\nkafka:\n  enabled: true\n  topic: ''\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "sites: [")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

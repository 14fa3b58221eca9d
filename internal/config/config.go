// Package config loads the service configuration from a YAML file with
// SXS_* environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSiteName names the site defined through SXS_SITE_ROOT.
const DefaultSiteName = "default"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level configuration.
type Config struct {
	Sites   []SiteConfig  `yaml:"sites"`
	DataDir string        `yaml:"dataDir"`
	Server  ServerConfig  `yaml:"server"`
	Search  SearchConfig  `yaml:"search"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SiteConfig describes one Sphinx site to serve.
type SiteConfig struct {
	// Name identifies the site in requests and tool calls.
	Name string `yaml:"name"`
	// Root is the HTML output directory or the base URL of the published
	// site; searchindex.js and _sources/ are read relative to it.
	Root string `yaml:"root"`
	// URLRoot prefixes result links. Defaults to Root when Root is a URL.
	URLRoot string `yaml:"urlRoot"`
	// FileSuffix is the page suffix of the html builder (".html").
	FileSuffix string `yaml:"fileSuffix"`
	// Builder is "html" or "dirhtml".
	Builder string `yaml:"builder"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SearchConfig controls query limits and background reloads.
type SearchConfig struct {
	DefaultLimit int  `yaml:"defaultLimit"`
	MaxLimit     int  `yaml:"maxLimit"`
	Summaries    bool `yaml:"summaries"`
	// ReloadInterval re-reads every site periodically; 0 disables it.
	ReloadInterval time.Duration `yaml:"reloadInterval"`
	// Fulltext builds a bleve index per site for fuzzy search.
	Fulltext bool `yaml:"fulltext"`
	// SQLitePath, when set, mirrors every site's entries into a SQLite FTS5
	// database served by the HTTP API's sqlite engine.
	SQLitePath string `yaml:"sqlitePath"`
}

// RedisConfig holds the query cache settings.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the search analytics publisher settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.applySiteDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	dataDir := filepath.Join(".", "data")
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".sphinx-search-mcp")
	}
	return &Config{
		DataDir: dataDir,
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
			Fulltext:     true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "search-events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides reads SXS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SXS_SITE_ROOT"); v != "" {
		site := SiteConfig{
			Name:    DefaultSiteName,
			Root:    v,
			URLRoot: os.Getenv("SXS_SITE_URL_ROOT"),
			Builder: os.Getenv("SXS_SITE_BUILDER"),
		}
		replaced := false
		for i := range cfg.Sites {
			if cfg.Sites[i].Name == DefaultSiteName {
				cfg.Sites[i] = site
				replaced = true
			}
		}
		if !replaced {
			cfg.Sites = append(cfg.Sites, site)
		}
	}
	if v := os.Getenv("SXS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SXS_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SXS_SEARCH_FULLTEXT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.Fulltext = b
		}
	}
	if v := os.Getenv("SXS_SEARCH_SQLITE_PATH"); v != "" {
		cfg.Search.SQLitePath = v
	}
	if v := os.Getenv("SXS_SEARCH_RELOAD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.ReloadInterval = d
		}
	}
	if v := os.Getenv("SXS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("SXS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SXS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SXS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("SXS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SXS_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("SXS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SXS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func (c *Config) applySiteDefaults() {
	for i := range c.Sites {
		s := &c.Sites[i]
		if s.Builder == "" {
			s.Builder = "html"
		}
		if s.FileSuffix == "" && s.Builder == "html" {
			s.FileSuffix = ".html"
		}
		if s.URLRoot == "" && s.IsRemote() {
			s.URLRoot = s.Root
		}
	}
}

// IsRemote reports whether the site is read over HTTP.
func (s SiteConfig) IsRemote() bool {
	return strings.HasPrefix(s.Root, "http://") || strings.HasPrefix(s.Root, "https://")
}

// Site returns the named site.
func (c *Config) Site(name string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return SiteConfig{}, false
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("%w: no sites configured (set sites in the config file or SXS_SITE_ROOT)", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Sites))
	for i, s := range c.Sites {
		if s.Name == "" {
			return fmt.Errorf("%w: sites[%d]: name is required", ErrInvalid, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: sites[%d]: duplicate site name %q", ErrInvalid, i, s.Name)
		}
		seen[s.Name] = true
		if s.Root == "" {
			return fmt.Errorf("%w: site %q: root is required", ErrInvalid, s.Name)
		}
		if s.Builder != "html" && s.Builder != "dirhtml" {
			return fmt.Errorf("%w: site %q: unknown builder %q (want html or dirhtml)", ErrInvalid, s.Name, s.Builder)
		}
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("%w: search limits must satisfy 0 < defaultLimit <= maxLimit", ErrInvalid)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka needs brokers and a topic when enabled", ErrInvalid)
	}
	return nil
}

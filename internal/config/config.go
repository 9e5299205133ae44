package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Matching MatchingConfig `yaml:"matching"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// IndexConfig describes the search backend connection and index naming.
type IndexConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"-"` // env-only, never in YAML
	Password string `yaml:"-"` // env-only, never in YAML
	// Type selects the backend dialect: elasticsearch or opensearch.
	Type string `yaml:"type"`
	// Name is the index prefix; all indices and aliases start with it.
	Name string `yaml:"name"`
	// Version is the 3-character software prefix baked into index names.
	// Bump it on mapping-breaking changes to force full rebuilds.
	Version  string `yaml:"version"`
	Shards   int    `yaml:"shards"`
	Replicas int    `yaml:"replicas"`
}

// CatalogConfig locates the dataset manifest.
type CatalogConfig struct {
	Manifest string `yaml:"manifest"`
}

// IndexerConfig contains reindexing behaviour.
type IndexerConfig struct {
	UpdateToken  string `yaml:"-"` // env-only, never in YAML
	AutoReindex  bool   `yaml:"auto_reindex"`
	DeltaUpdates bool   `yaml:"delta_updates"`
	Crontab      string `yaml:"crontab"`
	BatchSize    int    `yaml:"batch_size"`
}

// MatchingConfig contains search and scoring behaviour.
type MatchingConfig struct {
	Fuzzy            bool    `yaml:"fuzzy"`
	MatchPage        int     `yaml:"match_page"`
	MaxMatches       int     `yaml:"max_matches"`
	MaxBatch         int     `yaml:"max_batch"`
	Candidates       int     `yaml:"candidates"`
	ScoreThreshold   float64 `yaml:"score_threshold"`
	ScoreCutoff      float64 `yaml:"score_cutoff"`
	QueryConcurrency int     `yaml:"query_concurrency"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("SCREENER_CONFIG_PATH", "config/screener.yaml")

	// Missing file is not an error; we just use defaults.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Index: IndexConfig{
			URL:      "http://localhost:9200",
			Type:     "opensearch",
			Name:     "screener",
			Version:  "001",
			Shards:   1,
			Replicas: 0,
		},
		Catalog: CatalogConfig{
			Manifest: "manifests/default.yaml",
		},
		Indexer: IndexerConfig{
			AutoReindex:  true,
			DeltaUpdates: true,
			Crontab:      "23 */2 * * *",
			BatchSize:    1000,
		},
		Matching: MatchingConfig{
			Fuzzy:            true,
			MatchPage:        5,
			MaxMatches:       500,
			MaxBatch:         100,
			Candidates:       10,
			ScoreThreshold:   0.70,
			ScoreCutoff:      0.10,
			QueryConcurrency: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Index backend
	if v := os.Getenv("INDEX_URL"); v != "" {
		cfg.Index.URL = v
	}
	if v := os.Getenv("INDEX_USERNAME"); v != "" {
		cfg.Index.Username = v
	}
	if v := os.Getenv("INDEX_PASSWORD"); v != "" {
		cfg.Index.Password = v
	}
	if v := os.Getenv("INDEX_TYPE"); v != "" {
		cfg.Index.Type = v
	}
	if v := os.Getenv("INDEX_NAME"); v != "" {
		cfg.Index.Name = v
	}
	if v := os.Getenv("INDEX_VERSION"); v != "" {
		cfg.Index.Version = v
	}

	// Catalog
	if v := os.Getenv("MANIFEST"); v != "" {
		cfg.Catalog.Manifest = v
	}

	// Indexer
	if v := os.Getenv("UPDATE_TOKEN"); v != "" {
		cfg.Indexer.UpdateToken = v
	}
	if v := os.Getenv("AUTO_REINDEX"); v != "" {
		cfg.Indexer.AutoReindex = isTrue(v)
	}
	if v := os.Getenv("DELTA_UPDATES"); v != "" {
		cfg.Indexer.DeltaUpdates = isTrue(v)
	}
	if v := os.Getenv("CRONTAB"); v != "" {
		cfg.Indexer.Crontab = v
	}

	// Matching
	if v := os.Getenv("MATCH_FUZZY"); v != "" {
		cfg.Matching.Fuzzy = isTrue(v)
	}
	if v := os.Getenv("MATCH_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.MatchPage = n
		}
	}
	if v := os.Getenv("MAX_MATCHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.MaxMatches = n
		}
	}
	if v := os.Getenv("MAX_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.MaxBatch = n
		}
	}
	if v := os.Getenv("MATCH_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.Candidates = n
		}
	}
	if v := os.Getenv("SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.ScoreThreshold = f
		}
	}
	if v := os.Getenv("SCORE_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.ScoreCutoff = f
		}
	}
	if v := os.Getenv("QUERY_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matching.QueryConcurrency = n
		}
	}

	// Log
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func isTrue(v string) bool {
	return v == "true" || v == "1" || v == "yes"
}

// validate checks that required configuration values are set.
func (c *Config) validate() error {
	if c.Index.URL == "" {
		return errors.New("INDEX_URL is required")
	}
	switch c.Index.Type {
	case "elasticsearch", "opensearch":
	default:
		return fmt.Errorf("INDEX_TYPE must be elasticsearch or opensearch, got %q", c.Index.Type)
	}
	if len(c.Index.Version) != 3 {
		return fmt.Errorf("INDEX_VERSION must be exactly 3 characters, got %q", c.Index.Version)
	}
	if c.Matching.MaxBatch <= 0 {
		return errors.New("MAX_BATCH must be positive")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

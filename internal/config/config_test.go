package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screener.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := newDefaults()
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Index.Type != "opensearch" || cfg.Index.Name != "screener" {
		t.Errorf("index = %+v", cfg.Index)
	}
	if len(cfg.Index.Version) != 3 {
		t.Errorf("version = %q", cfg.Index.Version)
	}
	if !cfg.Indexer.AutoReindex || !cfg.Indexer.DeltaUpdates {
		t.Errorf("indexer = %+v", cfg.Indexer)
	}
	if cfg.Matching.ScoreThreshold != 0.70 || cfg.Matching.ScoreCutoff != 0.10 {
		t.Errorf("matching = %+v", cfg.Matching)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  read_timeout: 45s
index:
  url: http://search:9200
  type: elasticsearch
  version: "007"
matching:
  fuzzy: false
  score_threshold: 0.8
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if time.Duration(cfg.Server.ReadTimeout) != 45*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Index.Type != "elasticsearch" || cfg.Index.Version != "007" {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Matching.Fuzzy {
		t.Error("fuzzy should be off")
	}
	if cfg.Matching.ScoreThreshold != 0.8 {
		t.Errorf("threshold = %f", cfg.Matching.ScoreThreshold)
	}
	// Untouched values keep their defaults.
	if cfg.Indexer.BatchSize != 1000 {
		t.Errorf("batch size = %d", cfg.Indexer.BatchSize)
	}
}

func TestLoadFromFileBadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  read_timeout: soon
`)
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("INDEX_URL", "http://env:9200")
	t.Setenv("INDEX_USERNAME", "admin")
	t.Setenv("INDEX_PASSWORD", "hunter2")
	t.Setenv("UPDATE_TOKEN", "secret")
	t.Setenv("AUTO_REINDEX", "false")
	t.Setenv("MATCH_FUZZY", "no")
	t.Setenv("QUERY_CONCURRENCY", "7")

	cfg := newDefaults()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Index.URL != "http://env:9200" || cfg.Index.Username != "admin" || cfg.Index.Password != "hunter2" {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Indexer.UpdateToken != "secret" {
		t.Errorf("token = %q", cfg.Indexer.UpdateToken)
	}
	if cfg.Indexer.AutoReindex {
		t.Error("auto reindex should be off")
	}
	if cfg.Matching.Fuzzy {
		t.Error("fuzzy should be off")
	}
	if cfg.Matching.QueryConcurrency != 7 {
		t.Errorf("concurrency = %d", cfg.Matching.QueryConcurrency)
	}
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	cfg := newDefaults()
	applyEnvOverrides(cfg)
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Index.URL = "" }},
		{"bad backend type", func(c *Config) { c.Index.Type = "solr" }},
		{"short version", func(c *Config) { c.Index.Version = "1" }},
		{"long version", func(c *Config) { c.Index.Version = "0001" }},
		{"zero batch", func(c *Config) { c.Matching.MaxBatch = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newDefaults()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIsTrue(t *testing.T) {
	for _, v := range []string{"true", "1", "yes"} {
		if !isTrue(v) {
			t.Errorf("isTrue(%q) = false", v)
		}
	}
	for _, v := range []string{"false", "0", "no", "TRUE", ""} {
		if isTrue(v) {
			t.Errorf("isTrue(%q) = true", v)
		}
	}
}

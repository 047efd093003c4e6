// Package config loads memory-engine configuration from a YAML file with
// environment-variable overrides, using a section-struct config shape
// trimmed to this engine's concerns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all memory-engine configuration.
type Config struct {
	Storage Storage `yaml:"storage"`
	Search  Search  `yaml:"search"`
	Watcher Watcher `yaml:"watcher"`
	Global  Global  `yaml:"global"`
	Gate       Gate       `yaml:"gate"`
	Index      Index      `yaml:"index"`
	Reflection Reflection `yaml:"reflection"`
	Logging    Logging    `yaml:"logging"`
}

type Storage struct {
	Path string `yaml:"path"` // STORAGE_PATH, default "<project>/.memory-store/storage"
}

type Search struct {
	HybridVectorWeight  float64 `yaml:"hybrid_vector_weight"`   // HYBRID_VECTOR_WEIGHT, default 0.3
	DiversityMaxPerFile int     `yaml:"diversity_max_per_file"` // SEARCH_DIVERSITY_MAX_PER_FILE, default 3
	EmbeddingModel      string  `yaml:"embedding_model"`        // EMBEDDING_MODEL, optional
}

type Watcher struct {
	Enabled             bool    `yaml:"enabled"`              // WATCHER_ENABLED, default false
	DebounceSeconds     float64 `yaml:"debounce_seconds"`     // WATCHER_DEBOUNCE_SECONDS, default 1.0
	SystemNotifications bool    `yaml:"system_notifications"` // WATCHER_SYSTEM_NOTIFICATIONS, default true
}

type Global struct {
	Enabled      bool   `yaml:"enabled"`       // GLOBAL_ENABLED, default true
	Path         string `yaml:"path"`          // GLOBAL_PATH, default "~/.memory-store/storage"
	WriteEnabled bool   `yaml:"write_enabled"` // GLOBAL_WRITE_ENABLED, default true
}

type Gate struct {
	ContextTokenTTLSeconds int `yaml:"context_token_ttl_seconds"` // CONTEXT_TOKEN_TTL_SECONDS, default 300
}

type Index struct {
	Incremental bool `yaml:"incremental"` // INDEX_INCREMENTAL, default true
}

type Reflection struct {
	Enabled         bool    `yaml:"enabled"`          // REFLECTION_ENABLED, default false
	IntervalSeconds float64 `yaml:"interval_seconds"` // REFLECTION_INTERVAL_SECONDS, default 45
	Limit           int     `yaml:"limit"`            // REFLECTION_LIMIT, default 20
}

type Logging struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the documented defaults, rooted at projectRoot.
func Default(projectRoot string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Storage: Storage{Path: filepath.Join(projectRoot, ".memory-store", "storage")},
		Search: Search{
			HybridVectorWeight:  0.3,
			DiversityMaxPerFile: 3,
		},
		Watcher: Watcher{
			Enabled:             false,
			DebounceSeconds:     1.0,
			SystemNotifications: true,
		},
		Global: Global{
			Enabled:      true,
			Path:         filepath.Join(home, ".memory-store", "storage"),
			WriteEnabled: true,
		},
		Gate:       Gate{ContextTokenTTLSeconds: 300},
		Index:      Index{Incremental: true},
		Reflection: Reflection{Enabled: false, IntervalSeconds: 45, Limit: 20},
	}
}

// Load reads YAML configuration from path (if it exists), applies it over
// Default(projectRoot), then applies environment-variable overrides.
func Load(path, projectRoot string) (*Config, error) {
	cfg := Default(projectRoot)

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("STORAGE_PATH"); ok {
		cfg.Storage.Path = v
	}
	if v, ok := envFloat("HYBRID_VECTOR_WEIGHT"); ok {
		cfg.Search.HybridVectorWeight = v
	}
	if v, ok := envInt("SEARCH_DIVERSITY_MAX_PER_FILE"); ok {
		cfg.Search.DiversityMaxPerFile = v
	}
	if v, ok := os.LookupEnv("EMBEDDING_MODEL"); ok {
		cfg.Search.EmbeddingModel = v
	}
	if v, ok := envBool("WATCHER_ENABLED"); ok {
		cfg.Watcher.Enabled = v
	}
	if v, ok := envFloat("WATCHER_DEBOUNCE_SECONDS"); ok {
		cfg.Watcher.DebounceSeconds = v
	}
	if v, ok := envBool("WATCHER_SYSTEM_NOTIFICATIONS"); ok {
		cfg.Watcher.SystemNotifications = v
	}
	if v, ok := envBool("GLOBAL_ENABLED"); ok {
		cfg.Global.Enabled = v
	}
	if v, ok := os.LookupEnv("GLOBAL_PATH"); ok {
		cfg.Global.Path = v
	}
	if v, ok := envBool("GLOBAL_WRITE_ENABLED"); ok {
		cfg.Global.WriteEnabled = v
	}
	if v, ok := envInt("CONTEXT_TOKEN_TTL_SECONDS"); ok {
		cfg.Gate.ContextTokenTTLSeconds = v
	}
	if v, ok := envBool("INDEX_INCREMENTAL"); ok {
		cfg.Index.Incremental = v
	}
	if v, ok := envBool("REFLECTION_ENABLED"); ok {
		cfg.Reflection.Enabled = v
	}
	if v, ok := envFloat("REFLECTION_INTERVAL_SECONDS"); ok {
		cfg.Reflection.IntervalSeconds = v
	}
	if v, ok := envInt("REFLECTION_LIMIT"); ok {
		cfg.Reflection.Limit = v
	}
}

func envBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return b, err == nil
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return n, err == nil
}

func envFloat(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f, err == nil
}

// ContextTokenTTL returns the configured context-token TTL as a duration.
func (c *Config) ContextTokenTTL() time.Duration {
	return time.Duration(c.Gate.ContextTokenTTLSeconds) * time.Second
}

// WatcherDebounce returns the configured debounce window as a duration.
func (c *Config) WatcherDebounce() time.Duration {
	return time.Duration(c.Watcher.DebounceSeconds * float64(time.Second))
}

// ReflectionInterval returns the configured reflection-scan interval as a duration.
func (c *Config) ReflectionInterval() time.Duration {
	return time.Duration(c.Reflection.IntervalSeconds * float64(time.Second))
}

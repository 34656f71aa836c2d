// Package config loads docpull configuration. Precedence, lowest to
// highest: built-in defaults, user config (~/.docpull/config.yaml),
// project config (.docpull/config.yaml), DOCPULL_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete docpull configuration.
type Config struct {
	Project   ProjectConfig   `yaml:"project" json:"project"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Catalog   CatalogConfig   `yaml:"catalog" json:"catalog"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ProjectConfig locates the data directory holding the catalog, the
// index snapshot and the lock file.
type ProjectConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ChunkingConfig configures the chunker. Sizes are in tokens.
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy" json:"strategy"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" json:"chunk_overlap"`
	MinChunkSize int    `yaml:"min_chunk_size" json:"min_chunk_size"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// IndexConfig configures the vector index.
type IndexConfig struct {
	Kind           string `yaml:"kind" json:"kind"`
	Metric         string `yaml:"metric" json:"metric"`
	M              int    `yaml:"m" json:"m"`
	EfConstruction int    `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int    `yaml:"ef_search" json:"ef_search"`
}

// CatalogConfig configures the metadata catalog backend.
type CatalogConfig struct {
	Backend string `yaml:"backend" json:"backend"`

	// DSN is the postgres connection string. Ignored for sqlite, which
	// stores its database inside the data dir.
	DSN string `yaml:"dsn" json:"dsn"`
}

// RetrievalConfig configures search behavior.
type RetrievalConfig struct {
	TopK       int `yaml:"top_k" json:"top_k"`
	Multiplier int `yaml:"multiplier" json:"multiplier"`

	// Rerank is a pointer so merging can tell "unset" apart from an
	// explicit false.
	Rerank        *bool   `yaml:"rerank" json:"rerank"`
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
}

// RerankEnabled reports whether lexical re-ranking is on. Unset means
// on.
func (r RetrievalConfig) RerankEnabled() bool {
	return r.Rerank == nil || *r.Rerank
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`

	// File is the log destination. Empty logs to stderr.
	File string `yaml:"file" json:"file"`
}

// NewConfig returns the full default configuration.
func NewConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			DataDir: ".docpull",
		},
		Chunking: ChunkingConfig{
			Strategy:     "boundary",
			ChunkSize:    512,
			ChunkOverlap: 50,
			MinChunkSize: 100,
		},
		Embedding: EmbeddingConfig{
			Provider:  "static",
			Model:     "static-fnv",
			BatchSize: 32,
			Endpoint:  "http://localhost:11434",
			CacheSize: 4096,
		},
		Index: IndexConfig{
			Kind:           "hnsw",
			Metric:         "ip",
			M:              16,
			EfConstruction: 128,
			EfSearch:       64,
		},
		Catalog: CatalogConfig{
			Backend: "sqlite",
		},
		Retrieval: RetrievalConfig{
			TopK:          10,
			Multiplier:    3,
			Rerank:        boolPtr(true),
			LexicalWeight: 0.3,
			VectorWeight:  0.7,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigPath returns the machine-level config file path.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docpull", "config.yaml")
	}
	return filepath.Join(home, ".docpull", "config.yaml")
}

// ProjectConfigPath returns the project-level config path under dir.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ".docpull", "config.yaml")
}

// Load builds the effective configuration for a project directory.
func Load(projectDir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(UserConfigPath()); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}
	if err := cfg.loadYAML(ProjectConfigPath(projectDir)); err != nil {
		return nil, fmt.Errorf("load project config: %w", err)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges a config file into c. A missing file is fine.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

func boolPtr(b bool) *bool { return &b }

// mergeWith overlays non-zero values from other onto c. Booleans are
// pointers so an absent key changes nothing.
func (c *Config) mergeWith(other *Config) {
	if other.Project.DataDir != "" {
		c.Project.DataDir = other.Project.DataDir
	}

	if other.Chunking.Strategy != "" {
		c.Chunking.Strategy = other.Chunking.Strategy
	}
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}
	if other.Chunking.MinChunkSize != 0 {
		c.Chunking.MinChunkSize = other.Chunking.MinChunkSize
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.Endpoint != "" {
		c.Embedding.Endpoint = other.Embedding.Endpoint
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Index.Kind != "" {
		c.Index.Kind = other.Index.Kind
	}
	if other.Index.Metric != "" {
		c.Index.Metric = other.Index.Metric
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfConstruction != 0 {
		c.Index.EfConstruction = other.Index.EfConstruction
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}

	if other.Catalog.Backend != "" {
		c.Catalog.Backend = other.Catalog.Backend
	}
	if other.Catalog.DSN != "" {
		c.Catalog.DSN = other.Catalog.DSN
	}

	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.Rerank != nil {
		c.Retrieval.Rerank = other.Retrieval.Rerank
	}
	if other.Retrieval.Multiplier != 0 {
		c.Retrieval.Multiplier = other.Retrieval.Multiplier
	}
	if other.Retrieval.LexicalWeight != 0 {
		c.Retrieval.LexicalWeight = other.Retrieval.LexicalWeight
	}
	if other.Retrieval.VectorWeight != 0 {
		c.Retrieval.VectorWeight = other.Retrieval.VectorWeight
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies DOCPULL_* environment variables, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCPULL_DATA_DIR"); v != "" {
		c.Project.DataDir = v
	}
	if v := os.Getenv("DOCPULL_CHUNK_STRATEGY"); v != "" {
		c.Chunking.Strategy = v
	}
	if v := os.Getenv("DOCPULL_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("DOCPULL_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("DOCPULL_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("DOCPULL_EMBED_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("DOCPULL_INDEX_KIND"); v != "" {
		c.Index.Kind = v
	}
	if v := os.Getenv("DOCPULL_INDEX_METRIC"); v != "" {
		c.Index.Metric = v
	}
	if v := os.Getenv("DOCPULL_CATALOG_BACKEND"); v != "" {
		c.Catalog.Backend = v
	}
	if v := os.Getenv("DOCPULL_CATALOG_DSN"); v != "" {
		c.Catalog.DSN = v
	}
	if v := os.Getenv("DOCPULL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("DOCPULL_RERANK"); v != "" {
		c.Retrieval.Rerank = boolPtr(strings.ToLower(v) == "true" || v == "1")
	}
	if v := os.Getenv("DOCPULL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate range-checks the effective configuration.
func (c *Config) Validate() error {
	switch c.Chunking.Strategy {
	case "boundary", "fixed":
	default:
		return fmt.Errorf("chunking.strategy must be 'boundary' or 'fixed', got %q", c.Chunking.Strategy)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "static", "ollama":
	default:
		return fmt.Errorf("embedding.provider must be 'static' or 'ollama', got %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}

	switch c.Index.Kind {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("index.kind must be 'flat' or 'hnsw', got %q", c.Index.Kind)
	}
	switch c.Index.Metric {
	case "l2", "ip":
	default:
		return fmt.Errorf("index.metric must be 'l2' or 'ip', got %q", c.Index.Metric)
	}

	switch c.Catalog.Backend {
	case "sqlite":
	case "postgres":
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("catalog.backend must be 'sqlite' or 'postgres', got %q", c.Catalog.Backend)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Multiplier <= 0 {
		return fmt.Errorf("retrieval.multiplier must be positive, got %d", c.Retrieval.Multiplier)
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.VectorWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

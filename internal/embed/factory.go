package embed

import (
	"fmt"
	"log/slog"
)

// Provider names an embedding implementation. The set is closed: an
// unrecognized provider is a configuration error, never a silent
// fallback to a different backend.
type Provider string

const (
	// ProviderStatic is the offline hash embedder.
	ProviderStatic Provider = "static"

	// ProviderOllama embeds via a local Ollama server.
	ProviderOllama Provider = "ollama"
)

// Valid reports whether p names a known provider.
func (p Provider) Valid() bool {
	return p == ProviderStatic || p == ProviderOllama
}

// Config configures embedder construction.
type Config struct {
	Provider   Provider
	Model      string
	Dimensions int
	BatchSize  int
	Endpoint   string
	CacheSize  int
}

// NewEmbedder builds the configured embedder wrapped in an LRU cache.
func NewEmbedder(cfg Config, logger *slog.Logger) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case ProviderStatic:
		inner = NewStaticEmbedderWithDimensions(cfg.Dimensions)
	case ProviderOllama:
		ollama, err := NewOllamaEmbedder(OllamaConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = ollama
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

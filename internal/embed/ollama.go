package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	docerrors "github.com/docpull/docpull/internal/errors"
)

// OllamaConfig configures the Ollama HTTP embedder.
type OllamaConfig struct {
	Endpoint   string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// DefaultOllamaConfig returns the standard Ollama configuration.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Endpoint:   "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultTimeout,
	}
}

// OllamaEmbedder generates embeddings via the Ollama /api/embed endpoint.
// Transient failures (timeouts, 5xx) are retried with backoff.
type OllamaEmbedder struct {
	config OllamaConfig
	client *http.Client
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedder. The endpoint is not
// contacted here; the first request surfaces connectivity errors.
func NewOllamaEmbedder(cfg OllamaConfig, logger *slog.Logger) (*OllamaEmbedder, error) {
	def := DefaultOllamaConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &OllamaEmbedder{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts, splitting into requests of
// at most the configured batch size.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("ollama embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OllamaEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	start := time.Now()
	vecs, err := docerrors.RetryWithResult(ctx, docerrors.DefaultRetryConfig(),
		func() ([][]float32, error) {
			return e.doRequest(ctx, body, len(texts))
		})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("embedded batch",
		slog.Int("texts", len(texts)),
		slog.Duration("elapsed", time.Since(start)))
	return vecs, nil
}

func (e *OllamaEmbedder) doRequest(ctx context.Context, body []byte, want int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.config.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, docerrors.NetworkError("embedding request failed", err).
			WithDetail("endpoint", e.config.Endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, docerrors.NetworkError(
			fmt.Sprintf("embedding server returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding request rejected: %d: %s", resp.StatusCode, raw)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Embeddings) != want {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
			want, len(parsed.Embeddings))
	}
	for _, v := range parsed.Embeddings {
		if len(v) != e.config.Dimensions {
			return nil, fmt.Errorf("model %s returned %d dimensions, expected %d",
				e.config.Model, len(v), e.config.Dimensions)
		}
	}
	return parsed.Embeddings, nil
}

// Dimensions returns the embedding dimensionality.
func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Close shuts down idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}

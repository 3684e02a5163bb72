// ABOUTME: Embedding providers that turn text into fixed-length float vectors
// ABOUTME: OllamaEmbedder talks to a local /api/embeddings endpoint; OpenAIClient also implements Embedder
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harper/ragchat/internal/util"
	"github.com/rs/zerolog"
)

// Embedder encodes text into a vector of the index dimension.
// Implementations are created once and reused across calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder implements Embedder using Ollama's embeddings API
type OllamaEmbedder struct {
	baseURL    string
	model      string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// OllamaOptions configures an OllamaEmbedder
type OllamaOptions struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

// NewOllamaEmbedder creates an embedder for the given Ollama server
func NewOllamaEmbedder(opts OllamaOptions) *OllamaEmbedder {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "all-minilm"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		client:     &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger.With().Str("component", "ollama_embedder").Logger(),
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	err := util.Retry(ctx, e.maxRetries, e.retryDelay, func(ctx context.Context) error {
		var err error
		embedding, err = e.embedOnce(ctx, text)
		if err != nil {
			e.logger.Debug().Err(err).Msg("embedding attempt failed")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding with %s: %w", e.model, err)
	}
	return embedding, nil
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}

	e.logger.Debug().Int("dimensions", len(embedResp.Embedding)).Msg("embedded text")
	return embedResp.Embedding, nil
}

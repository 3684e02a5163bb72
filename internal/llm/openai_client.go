// ABOUTME: OpenAI-compatible client for embeddings and text-to-speech
// ABOUTME: Works against api.openai.com or any compatible base URL (SiliconFlow, vLLM, LocalAI)
package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harper/ragchat/internal/util"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultSpeechModel is the default text-to-speech model
	DefaultSpeechModel = openai.TTSModel1
	// DefaultVoice is used when no voice is requested
	DefaultVoice = openai.VoiceAlloy
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel openai.EmbeddingModel
	SpeechModel    openai.SpeechModel
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Logger         zerolog.Logger
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:         apiKey,
		EmbeddingModel: DefaultEmbeddingModel,
		SpeechModel:    DefaultSpeechModel,
		Timeout:        30 * time.Second,
		MaxRetries:     0,
		RetryDelay:     2 * time.Second,
		Logger:         zerolog.Nop(),
	}
}

// OpenAIClient wraps the OpenAI API client with retry logic
type OpenAIClient struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	speechModel    openai.SpeechModel
	timeout        time.Duration
	maxRetries     int
	retryDelay     time.Duration
	logger         zerolog.Logger
}

// NewOpenAIClient creates a new OpenAI client with the given API key using default configuration
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	return NewOpenAIClientWithConfig(DefaultConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultEmbeddingModel
	}
	if config.SpeechModel == "" {
		config.SpeechModel = DefaultSpeechModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(oc),
		embeddingModel: config.EmbeddingModel,
		speechModel:    config.SpeechModel,
		timeout:        config.Timeout,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		logger:         config.Logger.With().Str("component", "openai_client").Logger(),
	}, nil
}

// GetClient returns the underlying OpenAI client for direct use
func (c *OpenAIClient) GetClient() *openai.Client {
	return c.client
}

// Embed implements Embedder
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	attempt := 0
	err := util.Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateEmbeddings(callCtx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: c.embeddingModel,
		})
		if err != nil {
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("embedding attempt failed")
			return fmt.Errorf("attempt %d: %w", attempt, err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("attempt %d: no embeddings returned", attempt)
		}
		embedding = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding after %d attempts: %w", attempt, err)
	}
	return embedding, nil
}

// Synthesize returns an mp3 stream for text spoken with voice.
// The caller closes the returned reader.
func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	if voice == "" {
		voice = string(DefaultVoice)
	}
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.speechModel,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("creating speech: %w", err)
	}
	return resp.ReadCloser, nil
}

// ABOUTME: Centralized configuration for the ragchat CLI and MCP server
// ABOUTME: Resolves defaults, an optional YAML file and RAGCHAT_* environment variables via viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName is used for XDG directories and the env prefix
const AppName = "ragchat"

// Endpoint styles
const (
	StyleLocal = "local"
	StyleCloud = "cloud"
)

// Retrieval failure policies
const (
	PolicySkip  = "skip"
	PolicyAbort = "abort"
)

// Config holds all configuration for ragchat
type Config struct {
	Endpoint  EndpointConfig  `mapstructure:"endpoint"`
	Local     LocalConfig     `mapstructure:"local"`
	Cloud     CloudConfig     `mapstructure:"cloud"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Chat      ChatConfig      `mapstructure:"chat"`
	History   HistoryConfig   `mapstructure:"history"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Log       LogConfig       `mapstructure:"log"`
}

// EndpointConfig selects which generation endpoint a turn streams from
type EndpointConfig struct {
	Style string `mapstructure:"style"` // "local" or "cloud"
}

// LocalConfig is the Ollama-style generate endpoint
type LocalConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// CloudConfig is the OpenAI-compatible chat-completions endpoint
type CloudConfig struct {
	URL         string  `mapstructure:"url"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float32 `mapstructure:"temperature"`
	TopP        float32 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// StreamConfig holds the two independent streaming timeouts
type StreamConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

// ChatConfig shapes the prompt and the live display
type ChatConfig struct {
	SystemPrompt string `mapstructure:"system_prompt"`
	Cursor       string `mapstructure:"cursor"`
}

// HistoryConfig bounds the conversation log and picks a snapshot backend
type HistoryConfig struct {
	Capacity  int    `mapstructure:"capacity"`
	Window    int    `mapstructure:"window"`
	PinSystem bool   `mapstructure:"pin_system"`
	Backend   string `mapstructure:"backend"` // "file", "charm" or "none"
	Dir       string `mapstructure:"dir"`
	CharmDB   string `mapstructure:"charm_db"`
	CharmHost string `mapstructure:"charm_host"`
}

// RetrievalConfig controls the knowledge lookup before each turn
type RetrievalConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	TopK              int    `mapstructure:"top_k"`
	Policy            string `mapstructure:"policy"` // "skip" or "abort"
	RememberUserTurns bool   `mapstructure:"remember_user_turns"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"` // "ollama" or "openai"
	URL               string        `mapstructure:"url"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	Dimension         int           `mapstructure:"dimension"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// IndexConfig selects the vector index backend
type IndexConfig struct {
	Backend    string `mapstructure:"backend"` // "sqlite" or "milvus"
	Path       string `mapstructure:"path"`
	URI        string `mapstructure:"uri"`
	Token      string `mapstructure:"token"`
	Collection string `mapstructure:"collection"`
}

// IngestConfig controls document chunking
type IngestConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	Concurrency  int `mapstructure:"concurrency"`
}

// SpeechConfig controls text-to-speech playback
type SpeechConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"` // "openai" or "command"
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Voice    string `mapstructure:"voice"`
	Command  string `mapstructure:"command"`
	Player   string `mapstructure:"player"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultSystemPrompt is the preamble used when none is configured
const DefaultSystemPrompt = "You are a helpful AI assistant. Answer clearly and concisely, using the reference material below when it is relevant."

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint.style", StyleLocal)

	v.SetDefault("local.url", "http://localhost:11434/api/generate")
	v.SetDefault("local.model", "deepseek-r1")

	v.SetDefault("cloud.url", "https://api.siliconflow.cn/v1/chat/completions")
	v.SetDefault("cloud.model", "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B")
	v.SetDefault("cloud.api_key", "")
	v.SetDefault("cloud.temperature", 0.7)
	v.SetDefault("cloud.top_p", 0.9)
	v.SetDefault("cloud.max_tokens", 1024)

	v.SetDefault("stream.connect_timeout", 10*time.Second)
	v.SetDefault("stream.idle_timeout", 30*time.Second)

	v.SetDefault("chat.system_prompt", DefaultSystemPrompt)
	v.SetDefault("chat.cursor", "▌")

	v.SetDefault("history.capacity", 20)
	v.SetDefault("history.window", 10)
	v.SetDefault("history.pin_system", true)
	v.SetDefault("history.backend", "file")
	v.SetDefault("history.dir", filepath.Join(StateHome(), AppName, "history"))
	v.SetDefault("history.charm_db", AppName)
	v.SetDefault("history.charm_host", "")

	v.SetDefault("retrieval.enabled", true)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.policy", PolicySkip)
	v.SetDefault("retrieval.remember_user_turns", false)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.url", "http://localhost:11434")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("embedding.max_retries", 0)
	v.SetDefault("embedding.retry_delay", 2*time.Second)
	v.SetDefault("embedding.requests_per_second", 0.0)

	v.SetDefault("index.backend", "sqlite")
	v.SetDefault("index.path", filepath.Join(DataHome(), AppName, "index.db"))
	v.SetDefault("index.uri", "")
	v.SetDefault("index.token", "")
	v.SetDefault("index.collection", "chatbot_collection")

	v.SetDefault("ingest.chunk_size", 300)
	v.SetDefault("ingest.chunk_overlap", 50)
	v.SetDefault("ingest.concurrency", 4)

	v.SetDefault("speech.enabled", false)
	v.SetDefault("speech.provider", "command")
	v.SetDefault("speech.url", "")
	v.SetDefault("speech.api_key", "")
	v.SetDefault("speech.model", "tts-1")
	v.SetDefault("speech.voice", "")
	v.SetDefault("speech.command", "espeak --stdout")
	v.SetDefault("speech.player", "ffplay -nodisp -autoexit -loglevel quiet -")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load resolves configuration from defaults, the config file at path (or the
// XDG default location when path is empty) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by OpenAI-compatible tooling
	_ = v.BindEnv("cloud.api_key", "RAGCHAT_CLOUD_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.api_key", "RAGCHAT_EMBEDDING_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("speech.api_key", "RAGCHAT_SPEECH_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(ConfigHome(), AppName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks ranges and enum values
func (c *Config) Validate() error {
	switch c.Endpoint.Style {
	case StyleLocal:
	case StyleCloud:
		if c.Cloud.APIKey == "" {
			return errors.New("cloud endpoint requires cloud.api_key (or OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("endpoint.style must be local or cloud, got %q", c.Endpoint.Style)
	}
	if c.Stream.ConnectTimeout <= 0 || c.Stream.IdleTimeout <= 0 {
		return errors.New("stream timeouts must be positive")
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive, got %d", c.History.Capacity)
	}
	if c.History.Window <= 0 {
		return fmt.Errorf("history.window must be positive, got %d", c.History.Window)
	}
	switch c.History.Backend {
	case "file", "charm", "none":
	default:
		return fmt.Errorf("history.backend must be file, charm or none, got %q", c.History.Backend)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Policy != PolicySkip && c.Retrieval.Policy != PolicyAbort {
		return fmt.Errorf("retrieval.policy must be skip or abort, got %q", c.Retrieval.Policy)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider must be ollama or openai, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.MaxRetries < 0 || c.Embedding.MaxRetries > 10 {
		return fmt.Errorf("embedding.max_retries must be 0-10, got %d", c.Embedding.MaxRetries)
	}
	switch c.Index.Backend {
	case "sqlite":
	case "milvus":
		if c.Index.URI == "" {
			return errors.New("milvus index requires index.uri")
		}
	default:
		return fmt.Errorf("index.backend must be sqlite or milvus, got %q", c.Index.Backend)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	switch c.Speech.Provider {
	case "openai", "command":
	default:
		return fmt.Errorf("speech.provider must be openai or command, got %q", c.Speech.Provider)
	}
	return nil
}

// DataHome respects an XDG_DATA_HOME override set after process start (tests)
func DataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return xdg.DataHome
}

// ConfigHome respects an XDG_CONFIG_HOME override set after process start
func ConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return xdg.ConfigHome
}

// StateHome respects an XDG_STATE_HOME override set after process start
func StateHome() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return v
	}
	return xdg.StateHome
}

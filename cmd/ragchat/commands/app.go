// ABOUTME: Builds the chat components from configuration
// ABOUTME: Every command opens only the pieces it needs and closes them when done
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harper/ragchat/internal/charm"
	"github.com/harper/ragchat/internal/config"
	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/history"
	"github.com/harper/ragchat/internal/llm"
	"github.com/harper/ragchat/internal/speech"
	"github.com/harper/ragchat/internal/storage"
	"github.com/harper/ragchat/internal/storage/milvus"
	"github.com/harper/ragchat/internal/storage/sqlite"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// newEmbedder returns the configured embedding provider
func newEmbedder(c *config.Config, log zerolog.Logger) (llm.Embedder, error) {
	switch c.Embedding.Provider {
	case "openai":
		key := c.Embedding.APIKey
		if key == "" {
			return nil, errors.New("openai embeddings require embedding.api_key (or OPENAI_API_KEY)")
		}
		oc := llm.DefaultConfig(key)
		oc.BaseURL = c.Embedding.URL
		if c.Embedding.Model != "" {
			oc.EmbeddingModel = openai.EmbeddingModel(c.Embedding.Model)
		}
		oc.Timeout = c.Embedding.Timeout
		oc.MaxRetries = c.Embedding.MaxRetries
		oc.RetryDelay = c.Embedding.RetryDelay
		oc.Logger = log
		return llm.NewOpenAIClientWithConfig(oc)
	default:
		return llm.NewOllamaEmbedder(llm.OllamaOptions{
			BaseURL:    c.Embedding.URL,
			Model:      c.Embedding.Model,
			Timeout:    c.Embedding.Timeout,
			MaxRetries: c.Embedding.MaxRetries,
			RetryDelay: c.Embedding.RetryDelay,
			Logger:     log,
		}), nil
	}
}

// openIndex opens the configured vector index, creating its collection if needed
func openIndex(ctx context.Context, c *config.Config, log zerolog.Logger) (storage.VectorIndex, error) {
	switch c.Index.Backend {
	case "milvus":
		return milvus.Open(ctx, milvus.Options{
			URI:        c.Index.URI,
			Token:      c.Index.Token,
			Collection: c.Index.Collection,
			Dimension:  c.Embedding.Dimension,
			Logger:     log,
		})
	default:
		if err := os.MkdirAll(filepath.Dir(c.Index.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		return sqlite.OpenIndex(ctx, c.Index.Path, c.Index.Collection, c.Embedding.Dimension)
	}
}

// newIngestor wires chunking and embedding fan-out to an index
func newIngestor(c *config.Config, emb llm.Embedder, index storage.VectorIndex, log zerolog.Logger) *core.Ingestor {
	return core.NewIngestor(emb, index, core.IngestOptions{
		ChunkSize:         c.Ingest.ChunkSize,
		ChunkOverlap:      c.Ingest.ChunkOverlap,
		Concurrency:       c.Ingest.Concurrency,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
		Logger:            log,
	})
}

// newCompleter binds the stream client to the configured endpoint
func newCompleter(c *config.Config, log zerolog.Logger) llm.Completer {
	client := llm.NewStreamClient(c.Stream.ConnectTimeout, c.Stream.IdleTimeout, log)
	ep := llm.Endpoint{
		Style: c.Endpoint.Style,
		URL:   c.Local.URL,
		Model: c.Local.Model,
	}
	if c.Endpoint.Style == config.StyleCloud {
		ep = llm.Endpoint{
			Style:       llm.StyleCloud,
			URL:         c.Cloud.URL,
			Model:       c.Cloud.Model,
			APIKey:      c.Cloud.APIKey,
			Temperature: c.Cloud.Temperature,
			TopP:        c.Cloud.TopP,
			MaxTokens:   c.Cloud.MaxTokens,
		}
	}
	return client.Bind(ep)
}

// newSpeaker builds the speech task register from speech.* settings
func newSpeaker(c *config.Config, log zerolog.Logger) (*speech.Speaker, error) {
	var synth speech.Synthesizer
	switch c.Speech.Provider {
	case "openai":
		if c.Speech.APIKey == "" {
			return nil, errors.New("openai speech requires speech.api_key (or OPENAI_API_KEY)")
		}
		oc := llm.DefaultConfig(c.Speech.APIKey)
		oc.BaseURL = c.Speech.URL
		if c.Speech.Model != "" {
			oc.SpeechModel = openai.SpeechModel(c.Speech.Model)
		}
		oc.Logger = log
		client, err := llm.NewOpenAIClientWithConfig(oc)
		if err != nil {
			return nil, err
		}
		synth = client
	default:
		s, err := speech.NewCommandSynthesizer(c.Speech.Command)
		if err != nil {
			return nil, err
		}
		synth = s
	}

	var player speech.Player
	if c.Speech.Player != "" {
		p, err := speech.NewExecPlayer(c.Speech.Player)
		if err != nil {
			return nil, err
		}
		player = p
	}
	return speech.NewSpeaker(synth, player, log), nil
}

// openHistory returns the snapshot store and a close func; backend "none" yields a nil store
func openHistory(c *config.Config) (history.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.History.Backend {
	case "none":
		return nil, noop, nil
	case "charm":
		client, err := newCharmClient(c)
		if err != nil {
			return nil, noop, err
		}
		return history.NewCharmStore(client), client.Close, nil
	default:
		store, err := history.NewFileStore(c.History.Dir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
}

// newCharmClient opens the Charm KV database used for synced history
func newCharmClient(c *config.Config) (*charm.Client, error) {
	cc := charm.DefaultConfig()
	if c.History.CharmHost != "" {
		cc.Host = c.History.CharmHost
	}
	if c.History.CharmDB != "" {
		cc.DBName = c.History.CharmDB
	}
	return charm.NewClient(cc)
}

// session bundles everything a chat turn needs
type session struct {
	name      string
	index     storage.VectorIndex
	embedder  llm.Embedder
	retriever *core.WeightedRetriever
	ingestor  *core.Ingestor
	speaker   *speech.Speaker
	store     history.Store
	orch      *core.Orchestrator

	closeStore func() error
}

type sessionOptions struct {
	name      string
	display   core.Display
	retrieval bool
	speak     bool
	voice     string
}

// openSession wires index, retriever, model, speech and history into an orchestrator.
// The conversation log is restored from the history store when a snapshot exists.
func openSession(ctx context.Context, c *config.Config, log zerolog.Logger, opts sessionOptions) (*session, error) {
	if opts.name == "" {
		opts.name = history.DefaultSession
	}
	if err := history.ValidateSession(opts.name); err != nil {
		return nil, err
	}

	s := &session{name: opts.name, closeStore: func() error { return nil }}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	emb, err := newEmbedder(c, log)
	if err != nil {
		return nil, err
	}
	s.embedder = emb

	if opts.retrieval || c.Retrieval.RememberUserTurns {
		index, err := openIndex(ctx, c, log)
		if err != nil {
			if c.Retrieval.Policy == config.PolicyAbort {
				return nil, fmt.Errorf("opening index: %w", err)
			}
			log.Warn().Err(err).Msg("knowledge index unavailable, continuing without retrieval")
			opts.retrieval = false
		} else {
			s.index = index
			s.retriever = core.NewWeightedRetriever(emb, index, log)
			s.ingestor = newIngestor(c, emb, index, log)
		}
	}

	if opts.speak {
		sp, err := newSpeaker(c, log)
		if err != nil {
			return nil, err
		}
		s.speaker = sp
	}

	store, closeStore, err := openHistory(c)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.closeStore = closeStore

	convo := core.NewConversationLog(c.History.Capacity, c.History.PinSystem)
	if store != nil {
		snap, err := store.Load(ctx, s.name)
		switch {
		case err == nil:
			convo.Replace(snap.Messages)
		case errors.Is(err, history.ErrNotFound):
		default:
			log.Warn().Err(err).Str("session", s.name).Msg("could not restore history")
		}
	}

	deps := core.Deps{
		Completer: newCompleter(c, log),
		Log:       convo,
		Display:   opts.display,
		Embedder:  emb,
		Logger:    log,
	}
	if s.retriever != nil {
		deps.Retriever = s.retriever
		deps.Index = s.index
	}
	if s.speaker != nil {
		deps.Speaker = s.speaker
	}

	voice := opts.voice
	if voice == "" {
		voice = c.Speech.Voice
	}

	orch, err := core.NewOrchestrator(deps, core.Options{
		UseRetrieval:      opts.retrieval && s.retriever != nil,
		UseSpeech:         s.speaker != nil,
		TopK:              c.Retrieval.TopK,
		HistoryWindow:     c.History.Window,
		RetrievalPolicy:   c.Retrieval.Policy,
		SystemPreamble:    c.Chat.SystemPrompt,
		Cursor:            c.Chat.Cursor,
		RememberUserTurns: c.Retrieval.RememberUserTurns && s.index != nil,
		Voice:             voice,
	})
	if err != nil {
		return nil, err
	}
	s.orch = orch

	ok = true
	return s, nil
}

// save writes the conversation log to the history store
func (s *session) save(ctx context.Context, log zerolog.Logger) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, history.NewSnapshot(s.name, s.orch.Log().Messages())); err != nil {
		log.Warn().Err(err).Str("session", s.name).Msg("failed to save history")
	}
}

// Close releases the index and history store
func (s *session) Close() {
	if s.speaker != nil {
		s.speaker.Stop()
	}
	if s.index != nil {
		_ = s.index.Close()
	}
	if s.closeStore != nil {
		_ = s.closeStore()
	}
}

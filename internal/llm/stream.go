// ABOUTME: Streaming completion client for local (NDJSON) and cloud (SSE) generation endpoints
// ABOUTME: Exposes a lazy, finite delta sequence with connect and idle-between-chunks timeouts
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harper/ragchat/internal/models"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Endpoint styles
const (
	StyleLocal = "local"
	StyleCloud = "cloud"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultIdleTimeout    = 30 * time.Second
)

var errIdleTimeout = errors.New("no data received within idle timeout")

// Endpoint describes one generation target
type Endpoint struct {
	Style       string // StyleLocal or StyleCloud
	URL         string
	Model       string
	APIKey      string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Deltas is a started completion. Recv returns io.EOF once the stream ends.
type Deltas interface {
	Recv() (string, error)
	Close() error
	Skipped() int
}

// Completer starts a completion for an assembled context
type Completer interface {
	Complete(ctx context.Context, messages []models.Message) (Deltas, error)
}

// StreamClient issues streaming generation requests
type StreamClient struct {
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration

	httpClient *http.Client
	logger     zerolog.Logger
}

// NewStreamClient creates a client. Zero timeouts fall back to 10s connect and 30s idle.
func NewStreamClient(connectTimeout, idleTimeout time.Duration, logger zerolog.Logger) *StreamClient {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout

	return &StreamClient{
		ConnectTimeout: connectTimeout,
		IdleTimeout:    idleTimeout,
		// no overall client timeout: a long answer may stream for minutes
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With().Str("component", "stream").Logger(),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

func buildRequest(ep Endpoint, messages []models.Message) ([]byte, FrameDecoder, error) {
	switch ep.Style {
	case StyleLocal, "":
		body, err := json.Marshal(generateRequest{
			Model:  ep.Model,
			Prompt: RenderPrompt(messages),
			Stream: true,
		})
		return body, LineDelimited{}, err
	case StyleCloud:
		body, err := json.Marshal(openai.ChatCompletionRequest{
			Model:       ep.Model,
			Messages:    models.ToOpenAI(messages),
			Stream:      true,
			Temperature: ep.Temperature,
			TopP:        ep.TopP,
			MaxTokens:   ep.MaxTokens,
		})
		return body, ServerSentEvents{}, err
	default:
		return nil, nil, fmt.Errorf("unknown endpoint style %q", ep.Style)
	}
}

// Stream posts messages to ep and returns the delta sequence. Issuing the
// same call again re-executes the remote request.
func (c *StreamClient) Stream(ctx context.Context, ep Endpoint, messages []models.Message) (*Stream, error) {
	payload, decoder, err := buildRequest(ep, messages)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	// the idle clock also covers the wait for response headers
	timer := time.AfterFunc(c.IdleTimeout, func() { cancel(errIdleTimeout) })

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		timer.Stop()
		cancel(nil)
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Style == StyleCloud {
		req.Header.Set("Accept", "text/event-stream")
	}
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	c.logger.Debug().Str("url", ep.URL).Str("model", ep.Model).Int("messages", len(messages)).Msg("starting stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		timer.Stop()
		cause := context.Cause(ctx)
		cancel(nil)
		return nil, c.classify(err, cause)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
		resp.Body.Close()
		timer.Stop()
		cancel(nil)
		return nil, &StreamError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	timer.Stop()

	return &Stream{
		ctx:     ctx,
		cancel:  cancel,
		timer:   timer,
		idle:    c.IdleTimeout,
		body:    resp.Body,
		reader:  bufio.NewReader(resp.Body),
		decoder: decoder,
		logger:  c.logger,
	}, nil
}

func (c *StreamClient) classify(err, cause error) error {
	if errors.Is(cause, errIdleTimeout) {
		return &TimeoutError{Phase: PhaseIdle, After: c.IdleTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Phase: PhaseConnect, After: c.ConnectTimeout, Err: err}
	}
	return &StreamError{Err: err}
}

// Bind returns a Completer that always streams from ep
func (c *StreamClient) Bind(ep Endpoint) Completer {
	return &endpointCompleter{client: c, endpoint: ep}
}

type endpointCompleter struct {
	client   *StreamClient
	endpoint Endpoint
}

func (e *endpointCompleter) Complete(ctx context.Context, messages []models.Message) (Deltas, error) {
	return e.client.Stream(ctx, e.endpoint, messages)
}

// Stream is a single in-flight response. It is not safe for concurrent Recv calls.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	timer   *time.Timer
	idle    time.Duration
	body    io.ReadCloser
	reader  *bufio.Reader
	decoder FrameDecoder
	logger  zerolog.Logger

	skipped   int
	err       error
	closeOnce sync.Once
}

// Recv blocks for the next non-empty delta. It returns io.EOF when the
// stream ends normally, or a *StreamError / *TimeoutError on failure.
func (s *Stream) Recv() (string, error) {
	for {
		if s.err != nil {
			return "", s.err
		}

		s.timer.Reset(s.idle)
		line, readErr := s.reader.ReadBytes('\n')
		s.timer.Stop()

		var delta string
		if len(line) > 0 {
			d, done, err := s.decoder.Decode(line)
			switch {
			case err != nil:
				s.skipped++
				s.logger.Warn().Err(err).Msg("skipping malformed frame")
			case done:
				s.finish(io.EOF)
				return "", io.EOF
			default:
				delta = d
			}
		}

		if readErr != nil {
			s.finish(s.readError(readErr))
		}
		if delta != "" {
			return delta, nil
		}
	}
}

func (s *Stream) readError(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if errors.Is(context.Cause(s.ctx), errIdleTimeout) {
		return &TimeoutError{Phase: PhaseIdle, After: s.idle, Err: err}
	}
	return &StreamError{Err: err}
}

func (s *Stream) finish(err error) {
	s.err = err
	s.Close()
}

// Skipped reports how many malformed frames were dropped
func (s *Stream) Skipped() int {
	return s.skipped
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.timer.Stop()
		err = s.body.Close()
		s.cancel(nil)
	})
	return err
}

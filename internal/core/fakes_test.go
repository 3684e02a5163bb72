// ABOUTME: Hand-written fakes shared by the core package tests
package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/harper/ragchat/internal/llm"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
)

// hashEmbedder maps text to a deterministic 3-d vector
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.fail[text]
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []float32{float32(len(text)), float32(strings.Count(text, " ")), 1}, nil
}

func (e *hashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// staticIndex returns fixed hits and records the requested limit
type staticIndex struct {
	storage.VectorIndex
	hits      []models.SearchHit
	err       error
	lastLimit int
}

func (s *staticIndex) Search(_ context.Context, _ []float32, limit int) ([]models.SearchHit, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > limit {
		return s.hits[:limit], nil
	}
	return s.hits, nil
}

// scriptedDeltas replays a fixed list of deltas, optionally ending in an error
type scriptedDeltas struct {
	deltas  []string
	err     error
	skipped int
	wait    <-chan struct{}
	closed  bool
}

func (d *scriptedDeltas) Recv() (string, error) {
	if d.wait != nil {
		<-d.wait
		d.wait = nil
	}
	if len(d.deltas) == 0 {
		if d.err != nil {
			return "", d.err
		}
		return "", io.EOF
	}
	next := d.deltas[0]
	d.deltas = d.deltas[1:]
	return next, nil
}

func (d *scriptedDeltas) Close() error {
	d.closed = true
	return nil
}

func (d *scriptedDeltas) Skipped() int { return d.skipped }

// fakeCompleter hands out a scripted stream and records what it was sent
type fakeCompleter struct {
	mu       sync.Mutex
	stream   *scriptedDeltas
	err      error
	received [][]models.Message
}

func (c *fakeCompleter) Complete(_ context.Context, messages []models.Message) (llm.Deltas, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, messages)
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

func (c *fakeCompleter) Last() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.received) == 0 {
		return nil
	}
	return c.received[len(c.received)-1]
}

type recordingDisplay struct {
	mu      sync.Mutex
	updates []string
	done    []string
	fails   []error
}

func (d *recordingDisplay) Update(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, text)
}

func (d *recordingDisplay) Done(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = append(d.done, text)
}

func (d *recordingDisplay) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fails = append(d.fails, err)
}

type recordingSpeaker struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSpeaker) Speak(text, voice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "speak:"+text+"|"+voice)
}

func (s *recordingSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "stop")
}

func (s *recordingSpeaker) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// stubRetriever returns fixed knowledge or an error
type stubRetriever struct {
	knowledge []string
	err       error
}

func (r stubRetriever) Retrieve(context.Context, string, int) ([]string, error) {
	return r.knowledge, r.err
}

var errBoom = errors.New("boom")

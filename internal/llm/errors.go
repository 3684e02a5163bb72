// ABOUTME: Typed errors for the completion stream client
// ABOUTME: StreamError aborts a turn, TimeoutError covers connect/idle deadlines, PartialDecodeError is skipped
package llm

import (
	"fmt"
	"time"
)

// MaxErrorBody is how much of an upstream error body is kept
const MaxErrorBody = 512

// StreamError is a network failure or non-2xx response from a generation endpoint
type StreamError struct {
	StatusCode int    // 0 when no response was received
	Body       string // truncated to MaxErrorBody bytes
	Err        error
}

func (e *StreamError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("stream failed: status %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("stream failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("stream failed: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Timeout phases
const (
	PhaseConnect = "connect"
	PhaseIdle    = "idle"
)

// TimeoutError reports that connecting or waiting for the next chunk took too long
type TimeoutError struct {
	Phase string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stream %s timeout after %s", e.Phase, e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout lets TimeoutError satisfy net.Error-style checks
func (e *TimeoutError) Timeout() bool { return true }

// PartialDecodeError is a single malformed frame. The stream continues past it.
type PartialDecodeError struct {
	Frame string
	Err   error
}

func (e *PartialDecodeError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", e.Frame, e.Err)
}

func (e *PartialDecodeError) Unwrap() error { return e.Err }

// ABOUTME: Frame decoders for the two streaming wire formats
// ABOUTME: LineDelimited reads NDJSON "response" fields; ServerSentEvents reads "data: " chat-completion chunks
package llm

import (
	"bytes"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// FrameDecoder turns one line of a response body into a text delta.
// done reports the end-of-stream sentinel; err is a *PartialDecodeError for
// a malformed frame that should be skipped.
type FrameDecoder interface {
	Decode(line []byte) (delta string, done bool, err error)
}

// LineDelimited decodes newline-delimited JSON objects with a "response" field.
// There is no sentinel: the stream ends when the body does.
type LineDelimited struct{}

type lineFrame struct {
	Response *string `json:"response"`
	Error    string  `json:"error,omitempty"`
}

func (LineDelimited) Decode(line []byte) (string, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", false, nil
	}

	var frame lineFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		return "", false, &PartialDecodeError{Frame: truncate(line), Err: err}
	}
	if frame.Error != "" {
		return "", false, &PartialDecodeError{Frame: truncate(line), Err: errString(frame.Error)}
	}
	if frame.Response == nil {
		return "", false, nil
	}
	return *frame.Response, false, nil
}

var (
	ssePrefix   = []byte("data: ")
	sseSentinel = []byte("data: [DONE]")
)

// ServerSentEvents decodes "data: {json}" frames carrying choices[0].delta.content,
// terminated by the literal, case-sensitive "data: [DONE]" line.
type ServerSentEvents struct{}

func (ServerSentEvents) Decode(line []byte) (string, bool, error) {
	line = bytes.TrimSpace(line)
	if bytes.Equal(line, sseSentinel) {
		return "", true, nil
	}
	// comments, event names, ids and blank separators carry no delta
	if !bytes.HasPrefix(line, ssePrefix) {
		return "", false, nil
	}

	payload := line[len(ssePrefix):]
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false, &PartialDecodeError{Frame: truncate(line), Err: err}
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

type errString string

func (e errString) Error() string { return string(e) }

func truncate(b []byte) string {
	if len(b) > MaxErrorBody {
		return string(b[:MaxErrorBody])
	}
	return string(b)
}

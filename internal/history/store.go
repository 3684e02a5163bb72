// ABOUTME: Persists conversation logs between runs, keyed by session ID
// ABOUTME: FileStore writes YAML snapshots locally; CharmStore syncs them through Charm KV
package history

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/harper/ragchat/internal/models"
)

// DefaultSession is used when no session ID is given
const DefaultSession = "default"

// ErrNotFound is returned when a session has no stored snapshot
var ErrNotFound = errors.New("session not found")

var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Snapshot is a saved conversation log
type Snapshot struct {
	Session   string           `yaml:"session" json:"session"`
	UpdatedAt time.Time        `yaml:"updated_at" json:"updated_at"`
	Messages  []models.Message `yaml:"messages" json:"messages"`
}

// Store saves and restores snapshots
type Store interface {
	Load(ctx context.Context, session string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, session string) error
	List(ctx context.Context) ([]string, error)
}

// ValidateSession rejects IDs that could escape a directory or key namespace
func ValidateSession(session string) error {
	if !validID.MatchString(session) || session == "." || session == ".." {
		return fmt.Errorf("invalid session id %q", session)
	}
	return nil
}

// NewSnapshot captures messages for session at the current time
func NewSnapshot(session string, messages []models.Message) *Snapshot {
	return &Snapshot{
		Session:   session,
		UpdatedAt: time.Now().UTC(),
		Messages:  messages,
	}
}

// ABOUTME: CharmStore keeps snapshots in Charm KV so history follows the user across machines
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harper/ragchat/internal/charm"
)

// KV is the subset of the charm client CharmStore needs
type KV interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	ListKeys(prefix string) ([]string, error)
}

// CharmStore implements Store on a KV
type CharmStore struct {
	kv KV
}

// NewCharmStore wraps kv (usually a *charm.Client)
func NewCharmStore(kv KV) *CharmStore {
	return &CharmStore{kv: kv}
}

// Load implements Store
func (s *CharmStore) Load(_ context.Context, session string) (*Snapshot, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	data, err := s.kv.Get(charm.SessionKey(session))
	if errors.Is(err, charm.ErrNotFound) || (err == nil && data == nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", session, err)
	}
	return &snap, nil
}

// Save implements Store
func (s *CharmStore) Save(_ context.Context, snap *Snapshot) error {
	if err := ValidateSession(snap.Session); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return s.kv.Set(charm.SessionKey(snap.Session), data)
}

// Delete implements Store
func (s *CharmStore) Delete(_ context.Context, session string) error {
	if err := ValidateSession(session); err != nil {
		return err
	}
	err := s.kv.Delete(charm.SessionKey(session))
	if errors.Is(err, charm.ErrNotFound) {
		return nil
	}
	return err
}

// List implements Store
func (s *CharmStore) List(_ context.Context) ([]string, error) {
	keys, err := s.kv.ListKeys(charm.SessionPrefix)
	if err != nil {
		return nil, err
	}
	sessions := make([]string, 0, len(keys))
	for _, k := range keys {
		sessions = append(sessions, strings.TrimPrefix(k, charm.SessionPrefix))
	}
	sort.Strings(sessions)
	return sessions, nil
}

// ABOUTME: FileStore keeps one YAML file per session under a state directory
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileStore implements Store on the local filesystem
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(session string) string {
	return filepath.Join(s.dir, session+".yaml")
}

// Load implements Store
func (s *FileStore) Load(_ context.Context, session string) (*Snapshot, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(session))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path(session), err)
	}
	if snap.Session == "" {
		snap.Session = session
	}
	return &snap, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	if err := ValidateSession(snap.Session); err != nil {
		return err
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+snap.Session+"-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(snap.Session))
}

// Delete implements Store; deleting a missing session is not an error
func (s *FileStore) Delete(_ context.Context, session string) error {
	if err := ValidateSession(session); err != nil {
		return err
	}
	err := os.Remove(s.path(session))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// List implements Store
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var sessions []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(sessions)
	return sessions, nil
}

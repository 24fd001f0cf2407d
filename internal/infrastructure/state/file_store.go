package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

// FileStore keeps the state envelope in a single JSON document. Writes go to
// a temp file in the same directory which is synced and renamed over the
// target, so a crash leaves either the old or the new document.
type FileStore struct {
	path string
}

var _ ports.StateStore = (*FileStore)(nil)

// NewFileStore binds the store to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the document. A missing file is an empty state.
func (s *FileStore) Load(ctx context.Context) (domain.PersistedState, error) {
	if err := ctx.Err(); err != nil {
		return domain.PersistedState{}, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.PersistedState{Version: domain.CurrentStateVersion}, nil
	}
	if err != nil {
		return domain.PersistedState{}, fmt.Errorf("%w: read %s: %v", domain.ErrPersistence, s.path, err)
	}

	var state domain.PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.PersistedState{}, fmt.Errorf("%w: decode %s: %v", domain.ErrPersistence, s.path, err)
	}
	if state.Version > domain.CurrentStateVersion {
		return domain.PersistedState{}, fmt.Errorf("%w: unsupported state version %d", domain.ErrPersistence, state.Version)
	}
	return state, nil
}

// Save replaces the document atomically.
func (s *FileStore) Save(ctx context.Context, state domain.PersistedState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pead-drift/internal/research/pead"
)

// FileStore keeps one JSON file per snapshot key under dir
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

var _ pead.SnapshotStore = (*FileStore)(nil)

// NewFileStore creates the snapshot directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "data/snapshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads the snapshot for key. A missing file is pead.ErrSnapshotNotFound.
func (s *FileStore) Load(ctx context.Context, key string) (*pead.IVSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, pead.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}

	var snap pead.IVSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Save writes the snapshot through a temp file so readers never see a
// partial document
func (s *FileStore) Save(ctx context.Context, key string, snap pead.IVSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	// keys are TICKER_date_phase; tickers like BRK/B must not escape dir
	safe := strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(key)
	return filepath.Join(s.dir, safe+".json")
}

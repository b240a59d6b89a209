package adjust

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// FileStore persists model artifacts as JSON files under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating model directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// SaveModel writes through a temp file so a crash never leaves a truncated
// artifact behind.
func (s *FileStore) SaveModel(_ context.Context, name string, blob []byte) error {
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("writing model file: %w", err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("replacing model file: %w", err)
	}
	return nil
}

// LoadModel returns ErrNotFound when no artifact exists yet.
func (s *FileStore) LoadModel(_ context.Context, name string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	return blob, nil
}

package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileStore keeps one JSON document per key under a base directory.
// Writes are atomic: temp file then rename.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (f *FileStore) path(key string) string {
	// Keys are namespace-ish ("scheduler", "circadian"); keep them
	// filesystem-safe.
	safe := strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(f.dir, safe+".json")
}

func (f *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read state %s: %w", key, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("state %s: %w", key, ErrCorrupt)
	}
	return data, nil
}

func (f *FileStore) Save(_ context.Context, key string, data []byte) error {
	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("commit state %s: %w", key, err)
	}
	f.logger.Debug("state saved", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/adstrategy/backend/pkg/logger"
)

const indexFileName = "index.json"

// FileStore keeps each index as a JSON file inside the location directory.
type FileStore struct{}

func NewFileStore() *FileStore {
	return &FileStore{}
}

func (s *FileStore) Load(_ context.Context, location string) (*Index, error) {
	path := filepath.Join(location, indexFileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrIndexNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", path, err)
	}

	return &index, nil
}

// Save writes to a temporary file and renames it so readers never observe a
// partial index.
func (s *FileStore) Save(ctx context.Context, location string, index *Index) error {
	if err := os.MkdirAll(location, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	tmp, err := os.CreateTemp(location, indexFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(location, indexFileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move index into place: %w", err)
	}

	logger.Debug("Index persisted", zap.String("path", path), zap.Int("documents", len(index.Documents)))
	return nil
}

func (s *FileStore) Delete(_ context.Context, location string) error {
	err := os.Remove(filepath.Join(location, indexFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}

// Package retrieval builds, persists and queries the embedding index over
// interaction documents.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adstrategy/backend/internal/corpus"
)

// FormatVersion tags persisted indexes; an index with another tag is rebuilt.
const FormatVersion = "adindex/v1"

var ErrIndexNotFound = errors.New("index not found")

type Index struct {
	Format      string            `json:"format"`
	Fingerprint string            `json:"fingerprint"`
	Dim         int               `json:"dim"`
	Documents   []corpus.Document `json:"documents"`
	Embeddings  [][]float32       `json:"embeddings"`
	Chunks      []corpus.Chunk    `json:"chunks"`
	BuiltAt     time.Time         `json:"built_at"`
}

// Validate checks that a loaded index can be queried.
func (ix *Index) Validate() error {
	switch {
	case ix == nil:
		return errors.New("nil index")
	case ix.Format != FormatVersion:
		return fmt.Errorf("unsupported index format %q", ix.Format)
	case len(ix.Documents) == 0:
		return errors.New("index has no documents")
	case len(ix.Documents) != len(ix.Embeddings):
		return fmt.Errorf("index has %d documents but %d embeddings", len(ix.Documents), len(ix.Embeddings))
	case ix.Dim <= 0:
		return fmt.Errorf("invalid embedding dimension %d", ix.Dim)
	}
	for i, e := range ix.Embeddings {
		if len(e) != ix.Dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(e), ix.Dim)
		}
	}
	return nil
}

// Compatible validates the index and, when dim is positive, checks that it
// was built with embeddings of that dimension.
func (ix *Index) Compatible(dim int) error {
	if err := ix.Validate(); err != nil {
		return err
	}
	if dim > 0 && ix.Dim != dim {
		return fmt.Errorf("index built with dimension %d, embedder produces %d", ix.Dim, dim)
	}
	return nil
}

// IndexStore persists indexes by location. Load returns ErrIndexNotFound
// (possibly wrapped) when nothing is stored.
type IndexStore interface {
	Load(ctx context.Context, location string) (*Index, error)
	Save(ctx context.Context, location string, index *Index) error
	Delete(ctx context.Context, location string) error
}

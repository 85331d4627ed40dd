package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/apperr"
	"github.com/adstrategy/backend/internal/corpus"
	"github.com/adstrategy/backend/internal/llm"
	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/pkg/logger"
	"github.com/adstrategy/backend/pkg/utils"
)

// AnalysisQuestion is asked of every interaction index during strategy runs.
const AnalysisQuestion = `Analyze the advertising data and provide insights on:
1. Best performing ad positions
2. Engagement patterns
3. Click-through rate trends
4. Key performance indicators
5. Recommendations for improvement`

const systemPrompt = `You are an advertising analytics assistant. Answer using only the ad interaction records provided as context. Quote concrete numbers from the records where they support a point.`

const DefaultTopK = 8

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// EmbeddingCache is consulted before the embedder. The redis client
// satisfies it.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

type Options struct {
	TopK           int
	ChunkSize      int
	ChunkOverlap   int
	PersistTimeout time.Duration
	// Dim is the dimension the embedder produces. A stored index of another
	// dimension is rebuilt. Zero accepts whatever the first build yields.
	Dim int
	// Backend labels index metrics, e.g. "file" or "milvus".
	Backend string
}

type Retriever struct {
	embedder       Embedder
	generator      Generator
	store          IndexStore
	cache          EmbeddingCache
	chunker        *corpus.Chunker
	topK           int
	persistTimeout time.Duration
	dim            int
	backend        string

	mu    sync.Mutex
	slots map[string]*slot
}

// slot guards one location. Builds hold the write lock; queries of a built
// index only need the read lock.
type slot struct {
	mu    sync.RWMutex
	index *Index
}

// NewRetriever wires a retriever. cache may be nil.
func NewRetriever(embedder Embedder, generator Generator, store IndexStore, cache EmbeddingCache, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 600
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 30 * time.Second
	}
	if opts.Backend == "" {
		opts.Backend = "file"
	}

	return &Retriever{
		embedder:       embedder,
		generator:      generator,
		store:          store,
		cache:          cache,
		chunker:        corpus.NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		topK:           opts.TopK,
		persistTimeout: opts.PersistTimeout,
		dim:            opts.Dim,
		backend:        opts.Backend,
		slots:          make(map[string]*slot),
	}
}

func (r *Retriever) slot(location string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[location]
	if !ok {
		s = &slot{}
		r.slots[location] = s
	}
	return s
}

// BuildOrLoad returns the index for location. An index already held in
// memory or readable from the store is reused as is; otherwise docs are
// embedded and the new index is persisted. A failed persist is logged and
// the built index is still returned.
func (r *Retriever) BuildOrLoad(ctx context.Context, docs []corpus.Document, location string) (*Index, error) {
	s := r.slot(location)

	s.mu.RLock()
	if s.index != nil {
		index := s.index
		s.mu.RUnlock()
		metrics.IndexOperations.WithLabelValues("reuse", r.backend).Inc()
		return index, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		metrics.IndexOperations.WithLabelValues("reuse", r.backend).Inc()
		return s.index, nil
	}

	fingerprint := utils.HashStrings(corpus.Texts(docs))

	index, err := r.store.Load(ctx, location)
	if err == nil {
		err = index.Compatible(r.dim)
	}
	if err == nil {
		if index.Fingerprint != fingerprint {
			logger.Info("Persisted index differs from current documents, reusing until invalidated",
				zap.String("location", location),
			)
		}
		metrics.IndexOperations.WithLabelValues("load", r.backend).Inc()
		logger.Info("Index loaded", zap.String("location", location), zap.Int("documents", len(index.Documents)))
		s.index = index
		return index, nil
	}

	if !errors.Is(err, ErrIndexNotFound) {
		logger.Warn("Stored index unusable, rebuilding", zap.String("location", location), zap.Error(err))
	}

	index, err = r.build(ctx, docs, fingerprint)
	if err != nil {
		return nil, err
	}

	r.persist(ctx, location, index)
	s.index = index

	return index, nil
}

func (r *Retriever) build(ctx context.Context, docs []corpus.Document, fingerprint string) (*Index, error) {
	if len(docs) == 0 {
		return nil, apperr.NoData("build index", "no documents to index")
	}

	start := time.Now()

	embeddings, err := r.embedAll(ctx, corpus.Texts(docs))
	if err != nil {
		return nil, apperr.ExternalService("embed documents", err)
	}

	dim := r.dim
	if dim <= 0 {
		dim = len(embeddings[0])
	}
	for i, e := range embeddings {
		if len(e) != dim || dim == 0 {
			return nil, apperr.ExternalService("embed documents",
				fmt.Errorf("embedding %d has dimension %d, want %d", i, len(e), dim))
		}
	}

	index := &Index{
		Format:      FormatVersion,
		Fingerprint: fingerprint,
		Dim:         dim,
		Documents:   docs,
		Embeddings:  embeddings,
		Chunks:      r.chunker.Chunk(docs),
		BuiltAt:     time.Now().UTC(),
	}

	metrics.IndexOperations.WithLabelValues("build", r.backend).Inc()
	logger.Info("Index built",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(index.Chunks)),
		zap.Int("dim", dim),
		zap.Duration("duration", time.Since(start)),
	)

	return index, nil
}

func (r *Retriever) persist(ctx context.Context, location string, index *Index) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	if err := r.store.Save(ctx, location, index); err != nil {
		metrics.IndexOperations.WithLabelValues("persist_failed", r.backend).Inc()
		logger.Warn("Failed to persist index", zap.String("location", location), zap.Error(err))
		return
	}
	metrics.IndexOperations.WithLabelValues("persist", r.backend).Inc()
}

// embedAll fills vectors from the cache where possible and embeds the rest
// in one batch.
func (r *Retriever) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))

	var missing []int
	for i, text := range texts {
		hashes[i] = utils.HashString(text)
		if r.cache != nil {
			emb, found, err := r.cache.GetEmbedding(ctx, hashes[i])
			if err != nil {
				logger.Debug("Embedding cache read failed", zap.Error(err))
			} else if found {
				out[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}

	embedded, err := r.embedder.GenerateBatchEmbeddings(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(batch))
	}

	for j, i := range missing {
		out[i] = embedded[j]
		if r.cache != nil {
			if err := r.cache.SetEmbedding(ctx, hashes[i], embedded[j]); err != nil {
				logger.Debug("Embedding cache write failed", zap.Error(err))
			}
		}
	}

	return out, nil
}

// Query answers question from the documents most similar to it.
func (r *Retriever) Query(ctx context.Context, index *Index, question string) (string, error) {
	if index == nil {
		return "", apperr.NoData("query index", "index not built")
	}

	qEmb, err := r.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return "", apperr.ExternalService("embed question", err)
	}
	if len(qEmb) != index.Dim {
		return "", apperr.Computation("query index",
			fmt.Sprintf("question embedding has dimension %d but the index has %d; invalidate the index", len(qEmb), index.Dim))
	}

	ranked := topK(qEmb, index.Embeddings, r.topK)

	var sb strings.Builder
	for i, s := range ranked {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(index.Documents[s.doc].Text)
	}

	resp, err := r.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Context:\n%s\n\nQuestion: %s", sb.String(), question),
	})
	if err != nil {
		return "", apperr.ExternalService("generate insight", err)
	}

	logger.Debug("Index queried", zap.Int("context_docs", len(ranked)))

	return resp.Content, nil
}

// Analyze asks the fixed analysis question.
func (r *Retriever) Analyze(ctx context.Context, index *Index) (string, error) {
	return r.Query(ctx, index, AnalysisQuestion)
}

// Invalidate forgets the cached index for location and deletes its
// persisted copy, forcing the next BuildOrLoad to rebuild.
func (r *Retriever) Invalidate(ctx context.Context, location string) error {
	s := r.slot(location)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = nil
	if err := r.store.Delete(ctx, location); err != nil {
		return apperr.ExternalService("delete index", err)
	}

	metrics.IndexOperations.WithLabelValues("invalidate", r.backend).Inc()
	logger.Info("Index invalidated", zap.String("location", location))
	return nil
}

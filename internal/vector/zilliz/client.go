package zilliz

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/corpus"
	"github.com/adstrategy/backend/internal/retrieval"
	"github.com/adstrategy/backend/pkg/config"
	"github.com/adstrategy/backend/pkg/logger"
	"github.com/adstrategy/backend/pkg/utils"
)

const (
	fieldSeq         = "seq"
	fieldAdID        = "ad_id"
	fieldText        = "text"
	fieldChunks      = "chunks"
	fieldEmbedding   = "embedding"
	fieldFingerprint = "fingerprint"
	fieldBuiltAt     = "built_at"
	fieldFormat      = "format"
)

// Row limits of the collection schema. Save rejects an index that would
// exceed them before touching the stored collection.
const (
	maxAdIDLen  = 512
	maxTextLen  = 4096
	maxChunkLen = 16384
)

const queryPageSize = 10000

var outputFields = []string{fieldSeq, fieldAdID, fieldText, fieldChunks, fieldEmbedding, fieldFingerprint, fieldBuiltAt, fieldFormat}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Store keeps one Milvus collection per index location. Each row is a
// document with its embedding and the chunks cut from it; index-level
// metadata is repeated on every row.
type Store struct {
	client client.Client
}

func NewClient(ctx context.Context, cfg config.MilvusConfig) (*Store, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized", zap.String("endpoint", cfg.Endpoint))

	return &Store{client: c}, nil
}

func (z *Store) Close() error {
	return z.client.Close()
}

// CollectionName maps a location to a valid collection name.
func CollectionName(location string) string {
	base := strings.Trim(unsafeChars.ReplaceAllString(location, "_"), "_")
	if len(base) > 32 {
		base = base[:32]
	}
	return fmt.Sprintf("adindex_%s_%s", base, utils.HashString(location)[:8])
}

func (z *Store) Load(ctx context.Context, location string) (*retrieval.Index, error) {
	name := CollectionName(location)

	has, err := z.client.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil, fmt.Errorf("collection %s: %w", name, retrieval.ErrIndexNotFound)
	}

	if err := z.client.LoadCollection(ctx, name, false); err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	// Milvus caps a single query at 16384 rows, so rows are read in seq
	// ranges below that cap.
	var pages []client.ResultSet
	for lo := int64(0); ; lo += queryPageSize {
		expr := fmt.Sprintf("%s >= %d && %s < %d", fieldSeq, lo, fieldSeq, lo+queryPageSize)
		rs, err := z.client.Query(ctx, name, nil, expr, outputFields)
		if err != nil {
			return nil, fmt.Errorf("failed to query collection: %w", err)
		}
		got := 0
		if col := rs.GetColumn(fieldSeq); col != nil {
			got = col.Len()
		}
		if got == 0 {
			break
		}
		pages = append(pages, rs)
		if got < queryPageSize {
			break
		}
	}

	return decodeRows(pages...)
}

// decodeRows rebuilds an index from query pages in any order. Rows are
// placed by their seq value.
func decodeRows(pages ...client.ResultSet) (*retrieval.Index, error) {
	var (
		seqs, built             []int64
		adIDs, texts, chunkJSON []string
		fingerprints, formats   []string
		embeddings              [][]float32
		dim                     int
	)
	for _, rs := range pages {
		seqCol, ok := rs.GetColumn(fieldSeq).(*entity.ColumnInt64)
		if !ok {
			return nil, fmt.Errorf("missing column %s", fieldSeq)
		}
		adCol, ok1 := rs.GetColumn(fieldAdID).(*entity.ColumnVarChar)
		textCol, ok2 := rs.GetColumn(fieldText).(*entity.ColumnVarChar)
		chunkCol, ok3 := rs.GetColumn(fieldChunks).(*entity.ColumnVarChar)
		embCol, ok4 := rs.GetColumn(fieldEmbedding).(*entity.ColumnFloatVector)
		fpCol, ok5 := rs.GetColumn(fieldFingerprint).(*entity.ColumnVarChar)
		builtCol, ok6 := rs.GetColumn(fieldBuiltAt).(*entity.ColumnInt64)
		formatCol, ok7 := rs.GetColumn(fieldFormat).(*entity.ColumnVarChar)
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
			return nil, fmt.Errorf("collection schema does not match index layout")
		}

		seqs = append(seqs, seqCol.Data()...)
		adIDs = append(adIDs, adCol.Data()...)
		texts = append(texts, textCol.Data()...)
		chunkJSON = append(chunkJSON, chunkCol.Data()...)
		embeddings = append(embeddings, embCol.Data()...)
		fingerprints = append(fingerprints, fpCol.Data()...)
		built = append(built, builtCol.Data()...)
		formats = append(formats, formatCol.Data()...)
		dim = embCol.Dim()
	}

	n := len(seqs)
	if n == 0 {
		return nil, retrieval.ErrIndexNotFound
	}

	rows := make([]int, n)
	for i := range rows {
		rows[i] = -1
	}
	for i, s := range seqs {
		if s < 0 || int(s) >= n {
			return nil, fmt.Errorf("row sequence %d out of range", s)
		}
		rows[s] = i
	}

	index := &retrieval.Index{
		Format:      formats[0],
		Fingerprint: fingerprints[0],
		Dim:         dim,
		BuiltAt:     time.Unix(built[0], 0).UTC(),
	}

	for seq, i := range rows {
		if i < 0 {
			return nil, fmt.Errorf("row sequence %d missing", seq)
		}
		index.Documents = append(index.Documents, corpus.Document{
			AdID: adIDs[i],
			Text: texts[i],
		})
		index.Embeddings = append(index.Embeddings, embeddings[i])

		var chunks []corpus.Chunk
		if err := json.Unmarshal([]byte(chunkJSON[i]), &chunks); err != nil {
			return nil, fmt.Errorf("failed to decode chunks for row %d: %w", seq, err)
		}
		index.Chunks = append(index.Chunks, chunks...)
	}

	return index, nil
}

// Save replaces the collection for location with the given index.
func (z *Store) Save(ctx context.Context, location string, index *retrieval.Index) error {
	name := CollectionName(location)

	n := len(index.Documents)
	seqs := make([]int64, n)
	adIDs := make([]string, n)
	texts := make([]string, n)
	chunkJSON := make([]string, n)
	fingerprints := make([]string, n)
	builtAt := make([]int64, n)
	formats := make([]string, n)

	byDoc := make(map[int][]corpus.Chunk)
	for _, c := range index.Chunks {
		byDoc[c.DocIndex] = append(byDoc[c.DocIndex], c)
	}

	for i, doc := range index.Documents {
		raw, err := json.Marshal(byDoc[i])
		if err != nil {
			return fmt.Errorf("failed to encode chunks: %w", err)
		}
		seqs[i] = int64(i)
		adIDs[i] = doc.AdID
		texts[i] = doc.Text
		chunkJSON[i] = string(raw)
		fingerprints[i] = index.Fingerprint
		builtAt[i] = index.BuiltAt.Unix()
		formats[i] = index.Format
	}

	if err := checkRowLimits(adIDs, texts, chunkJSON); err != nil {
		return err
	}

	if err := z.dropIfExists(ctx, name); err != nil {
		return err
	}

	if err := z.createCollection(ctx, name, index.Dim); err != nil {
		return err
	}

	_, err := z.client.Insert(
		ctx,
		name,
		"",
		entity.NewColumnInt64(fieldSeq, seqs),
		entity.NewColumnVarChar(fieldAdID, adIDs),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldChunks, chunkJSON),
		entity.NewColumnFloatVector(fieldEmbedding, index.Dim, index.Embeddings),
		entity.NewColumnVarChar(fieldFingerprint, fingerprints),
		entity.NewColumnInt64(fieldBuiltAt, builtAt),
		entity.NewColumnVarChar(fieldFormat, formats),
	)
	if err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}

	if err := z.client.Flush(ctx, name, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Index stored in vector DB", zap.String("collection", name), zap.Int("documents", n))

	return nil
}

// checkRowLimits reports the first row whose varchar values exceed the
// schema's max_length (counted in bytes).
func checkRowLimits(adIDs, texts, chunkJSON []string) error {
	for i := range adIDs {
		switch {
		case len(adIDs[i]) > maxAdIDLen:
			return fmt.Errorf("row %d: ad id is %d bytes, limit %d", i, len(adIDs[i]), maxAdIDLen)
		case len(texts[i]) > maxTextLen:
			return fmt.Errorf("row %d (ad %s): document text is %d bytes, limit %d", i, adIDs[i], len(texts[i]), maxTextLen)
		case len(chunkJSON[i]) > maxChunkLen:
			return fmt.Errorf("row %d (ad %s): chunk metadata is %d bytes, limit %d", i, adIDs[i], len(chunkJSON[i]), maxChunkLen)
		}
	}
	return nil
}

func (z *Store) Delete(ctx context.Context, location string) error {
	return z.dropIfExists(ctx, CollectionName(location))
}

func (z *Store) dropIfExists(ctx context.Context, name string) error {
	has, err := z.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil
	}
	if err := z.client.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

func (z *Store) createCollection(ctx context.Context, name string, dim int) error {
	varchar := func(field string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:       field,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)},
		}
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "Ad interaction documents",
		Fields: []*entity.Field{
			{
				Name:       fieldSeq,
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			varchar(fieldAdID, maxAdIDLen),
			varchar(fieldText, maxTextLen),
			varchar(fieldChunks, maxChunkLen),
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
			varchar(fieldFingerprint, 64),
			{
				Name:     fieldBuiltAt,
				DataType: entity.FieldTypeInt64,
			},
			varchar(fieldFormat, 32),
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexFlat(entity.L2)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := z.client.CreateIndex(ctx, name, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	logger.Info("Collection created", zap.String("collection", name))

	return nil
}

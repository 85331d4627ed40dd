package corpus

import (
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/pkg/logger"
)

// Chunk is a bounded slice of a document. Sizes are measured in bytes.
type Chunk struct {
	AdID     string `json:"ad_id"`
	DocIndex int    `json:"doc_index"`
	Seq      int    `json:"seq"`
	Text     string `json:"text"`
}

type Chunker struct {
	size    int
	overlap int
}

// NewChunker panics on a configuration that cannot make progress; callers
// pass values from validated config.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 || overlap < 0 || overlap >= size {
		panic("corpus: chunk overlap must be non-negative and smaller than chunk size")
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits every document on sentence boundaries and packs sentences
// into chunks of at most size bytes. Consecutive chunks of one document
// share up to overlap bytes of trailing text.
func (c *Chunker) Chunk(docs []Document) []Chunk {
	var out []Chunk
	for i, doc := range docs {
		for seq, text := range c.splitDocument(doc.Text) {
			out = append(out, Chunk{AdID: doc.AdID, DocIndex: i, Seq: seq, Text: text})
		}
	}
	return out
}

func (c *Chunker) splitDocument(text string) []string {
	// Units must leave room for the overlap carried into the next chunk.
	limit := c.size - c.overlap - 1
	if limit < 1 {
		limit = 1
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences(text) {
		for _, unit := range fit(sentence, limit) {
			if current.Len() > 0 && current.Len()+1+len(unit) > c.size {
				chunk := current.String()
				chunks = append(chunks, chunk)
				current.Reset()
				current.WriteString(overlapTail(chunk, c.overlap))
			}
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(unit)
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Debug("Sentence segmentation failed, using whole text", zap.Error(err))
		return []string{strings.Join(strings.Fields(text), " ")}
	}

	var out []string
	for _, s := range doc.Sentences() {
		normalized := strings.Join(strings.Fields(s.Text), " ")
		if normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

// fit breaks a sentence into word-aligned pieces no longer than limit.
// Single words over the limit are cut on rune boundaries.
func fit(sentence string, limit int) []string {
	if len(sentence) <= limit {
		return []string{sentence}
	}

	var pieces []string
	var current strings.Builder

	for _, word := range strings.Fields(sentence) {
		for len(word) > limit {
			if current.Len() > 0 {
				pieces = append(pieces, current.String())
				current.Reset()
			}
			cut := runeBoundary(word, limit)
			pieces = append(pieces, word[:cut])
			word = word[cut:]
		}
		if current.Len() > 0 && current.Len()+1+len(word) > limit {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return n
}

// overlapTail returns at most n trailing bytes of chunk, starting at a word.
func overlapTail(chunk string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(chunk) <= n {
		return chunk
	}
	tail := chunk[len(chunk)-n:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		return tail[idx+1:]
	}
	return ""
}

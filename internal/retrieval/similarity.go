package retrieval

import (
	"math"
	"sort"
)

type scored struct {
	doc   int
	score float64
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topK ranks embeddings by similarity to query. Ties keep document order.
func topK(query []float32, embeddings [][]float32, k int) []scored {
	ranked := make([]scored, len(embeddings))
	for i, e := range embeddings {
		ranked[i] = scored{doc: i, score: cosineSimilarity(query, e)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

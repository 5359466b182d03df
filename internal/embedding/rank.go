package embedding

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitisalign/vitisalign-backend/internal/types"
)

// Rank scores every index row against the query by cosine similarity
// and returns candidates in descending order. Ties keep insertion order
// (the earlier index row wins); there is no secondary key. A zero-norm
// query or row is an error: NaN similarity would sort unpredictably.
func Rank(query []float32, idx *Index) ([]types.AlignmentCandidate, error) {
	if idx == nil || len(idx.Vectors) == 0 {
		return nil, fmt.Errorf("empty index")
	}
	if len(idx.IDs) != len(idx.Vectors) {
		return nil, fmt.Errorf("index invariant violated: %d ids, %d vectors", len(idx.IDs), len(idx.Vectors))
	}

	qNorm := l2Norm(query)
	if qNorm == 0 {
		return nil, fmt.Errorf("query vector has zero norm; embedding is degenerate")
	}

	candidates := make([]types.AlignmentCandidate, len(idx.Vectors))
	for i, row := range idx.Vectors {
		if len(row) != len(query) {
			return nil, fmt.Errorf("dimension mismatch: query has %d, row %d (%s) has %d", len(query), i, idx.IDs[i], len(row))
		}
		rNorm := l2Norm(row)
		if rNorm == 0 {
			return nil, fmt.Errorf("index row %d (%s) has zero norm; rebuild the index", i, idx.IDs[i])
		}
		candidates[i] = types.AlignmentCandidate{
			RefID:           idx.IDs[i],
			SimilarityScore: dot(query, row) / (qNorm * rNorm),
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].SimilarityScore > candidates[b].SimilarityScore
	})
	return candidates, nil
}

// TopK truncates a ranked candidate list to its first k entries, with k
// clamped to [1, len(ranked)].
func TopK(ranked []types.AlignmentCandidate, k int) []types.AlignmentCandidate {
	if len(ranked) == 0 {
		return ranked
	}
	if k < 1 {
		k = 1
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2Norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

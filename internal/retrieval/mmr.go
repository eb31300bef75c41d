package retrieval

import (
	"math"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// MMR selects up to k candidates maximizing
//
//	lambda*relevance - (1-lambda)*max similarity to the already selected
//
// Candidates must be sorted by descending Score; the first pick is always
// candidates[0]. Ties keep the earlier candidate, so the result is
// deterministic for a deterministic input order.
func MMR(candidates []domain.ScoredChunk, lambda float64, k int) []domain.ScoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	lambda = math.Max(0, math.Min(1, lambda))
	k = min(k, len(candidates))

	selected := make([]domain.ScoredChunk, 0, k)
	picked := make([]bool, len(candidates))
	// maxSim[i] is candidate i's highest similarity to any selected chunk.
	maxSim := make([]float64, len(candidates))

	next := 0
	for {
		picked[next] = true
		chosen := candidates[next]
		selected = append(selected, chosen)
		if len(selected) == k {
			return selected
		}

		for i := range candidates {
			if picked[i] {
				continue
			}
			sim := Cosine(candidates[i].Embedding, chosen.Embedding)
			if len(selected) == 1 || sim > maxSim[i] {
				maxSim[i] = sim
			}
		}

		next = -1
		best := math.Inf(-1)
		for i, c := range candidates {
			if picked[i] {
				continue
			}
			score := lambda*c.Score - (1-lambda)*maxSim[i]
			if score > best {
				best = score
				next = i
			}
		}
		if next < 0 {
			return selected
		}
	}
}

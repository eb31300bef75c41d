package retrieval

import (
	"sort"

	"github.com/cloo-solutions/kbase/internal/domain"
)

const (
	DefaultMaxContexts = 6
	DefaultLambda      = 0.65
	// PoolFactor oversamples the MMR candidate pool relative to maxContexts.
	PoolFactor = 2
)

// Score ranks chunks by cosine similarity to the query, highest first.
// Equal scores are ordered by chunk id.
func Score(query []float32, chunks []domain.KnowledgeChunk) []domain.ScoredChunk {
	scored := make([]domain.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = domain.ScoredChunk{KnowledgeChunk: c, Score: Cosine(query, c.Embedding)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	return scored
}

// PoolSize is the MMR candidate pool for maxContexts over a corpus,
// clamped to the corpus size.
func PoolSize(maxContexts, corpus int) int {
	return min(maxContexts*PoolFactor, corpus)
}

// Result is the outcome of ranking a corpus.
type Result struct {
	Contexts   []domain.ScoredChunk
	Candidates int
	PoolSize   int
}

// Rank scores the corpus, keeps the top pool and selects up to maxContexts
// of them with MMR.
func Rank(query []float32, corpus []domain.KnowledgeChunk, maxContexts int, lambda float64) Result {
	if maxContexts <= 0 {
		maxContexts = DefaultMaxContexts
	}
	scored := Score(query, corpus)
	pool := scored[:PoolSize(maxContexts, len(scored))]
	return Result{
		Contexts:   MMR(pool, lambda, maxContexts),
		Candidates: len(corpus),
		PoolSize:   len(pool),
	}
}

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

// HashModel names the HashProvider embedding space.
const HashModel = "hash-bow"

// HashProvider is a deterministic bag-of-words embedder that hashes each
// lowercased word into a fixed number of dimensions. Texts sharing words
// get similar vectors, which is enough for local runs without an API key.
type HashProvider struct {
	Dims  int
	calls atomic.Int64
}

// NewHashProvider returns a hash embedder of the given dimensions.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = 256
	}
	return &HashProvider{Dims: dims}
}

// Embed implements Provider.
func (p *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return p.vector(text), nil
}

// EmbedBatch implements Provider. Usage counts one token per word.
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	res := &BatchResult{Vectors: make([][]float32, len(texts))}
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		res.Vectors[i] = vec
		n := len(strings.Fields(text))
		res.Usage.PromptTokens += n
		res.Usage.TotalTokens += n
	}
	return res, nil
}

// Model implements Provider.
func (p *HashProvider) Model() string {
	return HashModel
}

// Calls returns how many single embeddings were requested.
func (p *HashProvider) Calls() int {
	return int(p.calls.Load())
}

func (p *HashProvider) vector(text string) []float32 {
	dims := p.Dims
	if dims <= 0 {
		dims = 256
	}
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%dims] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

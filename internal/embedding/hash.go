package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultDimension = 256

// HashEmbedder returns deterministic bag-of-words vectors for offline use and tests.
// Texts that share words land close together; it carries no semantics beyond that.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder constructs a hash embedder.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultDimension
	}
	return &HashEmbedder{Dim: dim}
}

// EmbedDocuments embeds documents deterministically.
func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(s)
	}
	return out, nil
}

// EmbedQuery embeds a query deterministically.
func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		idx := int(sum % uint32(e.Dim))
		// second hash bit picks the sign so collisions partly cancel
		if sum&(1<<31) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}
	if len(words) == 0 {
		// chromem rejects zero vectors; fall back to a fixed unit vector
		v[0] = 1
		return v
	}
	l2normalize(v)
	return v
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		v[0] = 1
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}

package retrieval

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Embedder turns texts into vectors. Vectors of one Embedder all have the
// same length.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// HashEmbedder embeds text by feature hashing its lower-cased words into a
// fixed number of buckets. It needs no network access, and equal texts always
// get equal vectors, which makes it the embedder for tests and offline runs.
type HashEmbedder struct {
	// Dim is the vector length. Zero means 256.
	Dim int
}

const defaultHashDim = 256

// Embed implements Embedder. Vectors are L2-normalized; text without words
// yields the zero vector.
func (h HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := h.Dim
	if dim <= 0 {
		dim = defaultHashDim
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, dim)
		for _, word := range tokenize(text) {
			sum := xxhash.Sum64String(word)
			bucket := int(sum % uint64(dim))
			if sum&(1<<63) != 0 {
				vec[bucket]--
			} else {
				vec[bucket]++
			}
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= n
	}
}

// cosine returns the cosine similarity of a and b, or 0 when either is the
// zero vector or the lengths differ.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Package embed generates semantic vector embeddings for article text.
package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"primetime/internal/remote"
)

// Generator produces a fixed-dimension embedding for a piece of text.
type Generator interface {
	// Embed returns the embedding vector. Empty or whitespace-only text
	// yields a zero vector of length Dim without calling upstream.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dim is the output dimensionality of every vector this generator emits.
	Dim() int
}

// maxEmbedChars is a conservative input limit for gemini-embedding-001.
const maxEmbedChars = 8000

// GeminiGenerator generates embeddings with the Gemini embedding model,
// using Matryoshka truncation to the configured dimensionality.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	dim     int
	timeout time.Duration
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, dim int, timeout time.Duration) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, dim: dim, timeout: timeout}, nil
}

func (g *GeminiGenerator) Dim() int { return g.dim }

func (g *GeminiGenerator) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float64, g.dim), nil
	}
	text = truncate(text, maxEmbedChars)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}
	dims := int32(g.dim)
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	var vector []float64
	err := remote.Retry(ctx, func() error {
		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, config)
		if err != nil {
			return remote.Transient("embedder", err)
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
			return remote.Permanent("embedder", fmt.Errorf("no embedding values returned"))
		}
		values := resp.Embeddings[0].Values
		vector = make([]float64, len(values))
		for i, v := range values {
			vector[i] = float64(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// truncate cuts text to at most max bytes without splitting a UTF-8 sequence.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// HashGenerator is a deterministic offline Generator used in tests and local
// runs without an API key. Token hashes are bucketed into the vector, which
// is then L2-normalized; similar texts land near each other, nothing more.
type HashGenerator struct {
	Dims int
}

func (h *HashGenerator) Dim() int { return h.Dims }

func (h *HashGenerator) Embed(_ context.Context, text string) ([]float64, error) {
	vector := make([]float64, h.Dims)
	if strings.TrimSpace(text) == "" {
		return vector, nil
	}

	for _, token := range strings.Fields(strings.ToLower(text)) {
		hash := fnv.New32a()
		_, _ = hash.Write([]byte(token))
		vector[int(hash.Sum32())%h.Dims]++
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector, nil
}

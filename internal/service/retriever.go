package service

import (
	"context"
	"fmt"
	"strings"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/vectorstore"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 1

// Hit is a retrieved chunk with its score and parsed locator.
type Hit struct {
	Chunk  domain.Chunk
	Score  float64
	Source domain.Source
}

// Retriever answers similarity queries against the index.
type Retriever struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
}

func NewRetriever(embedder embedding.Embedder, store vectorstore.Storage) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns at most k hits for query, best first. An empty index or a
// query with no usable terms yields no hits and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(vec) {
		return nil, nil
	}
	results, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	results = vectorstore.Rank(results, k)

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{Chunk: res.Chunk, Score: res.Score, Source: domain.SourceOf(res.Chunk)})
	}
	return hits, nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// Package vectorstore defines the persistent index used by ingestion and
// retrieval, plus helpers shared by the backends.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"ragchat/internal/domain"
)

// Entry is a chunk and its embedding, keyed by the chunk identity.
type Entry struct {
	Chunk  domain.Chunk
	Vector []float32
}

// Storage persists vectors and supports similarity search. Upsert of a batch
// is all-or-nothing.
type Storage interface {
	// IDs returns every identity currently stored.
	IDs(ctx context.Context) (map[string]struct{}, error)
	// Exists returns the subset of ids that are stored.
	Exists(ctx context.Context, ids []string) (map[string]struct{}, error)
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Close() error
}

// Binder is implemented by stores that remember which embedder wrote them.
// Bind records name on first use and fails if a different embedder is used
// later, since vectors from different models are not comparable.
type Binder interface {
	Bind(ctx context.Context, embedder string) error
}

// ErrEmbedderMismatch is returned by Bind when the index was written by
// another embedder.
type ErrEmbedderMismatch struct {
	Stored, Requested string
}

func (e *ErrEmbedderMismatch) Error() string {
	return fmt.Sprintf("index was built with embedder %q, not %q", e.Stored, e.Requested)
}

// CheckEmbedder fails when a non-empty index was written by another
// embedder. An empty index accepts any embedder.
func CheckEmbedder(ctx context.Context, store Storage, embedder string) error {
	b, ok := store.(Binder)
	if !ok {
		return nil
	}
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return b.Bind(ctx, embedder)
}

// Cosine returns the cosine similarity of a and b, 0 for zero or mismatched vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank orders results by descending score, breaking ties by identity so the
// order is deterministic, and keeps at most topK.
func Rank(results []domain.SearchResult, topK int) []domain.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID() < results[j].Chunk.ID()
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}

// Validate checks that every entry has an identity and a vector of dim
// dimensions (dim <= 0 accepts the first entry's size).
func Validate(entries []Entry, dim int) (int, error) {
	for _, e := range entries {
		if e.Chunk.ID() == "" {
			return dim, fmt.Errorf("entry without identity (source %q)", e.Chunk.Metadata.Source)
		}
		if dim <= 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim || dim == 0 {
			return dim, fmt.Errorf("%w: entry %s has %d, want %d", domain.ErrDimensionMismatch, e.Chunk.ID(), len(e.Vector), dim)
		}
	}
	return dim, nil
}

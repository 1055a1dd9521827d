package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/hashing"
	"ragchat/internal/identity"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
)

const tetPath = "data/tet.pdf"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func page(text string, n int) domain.Document {
	return domain.Document{Content: text, Metadata: domain.Metadata{Source: tetPath, Page: n}}
}

func newIngestor(t *testing.T, store vectorstore.Storage) *Ingestor {
	t.Helper()
	c, err := chunker.NewRecursiveChunker(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)
	return NewIngestor(c, hashing.New(hashing.DefaultDimension), store, quietLogger())
}

// failingEmbedder fails on the call numbered failAt (1-based). A non-empty
// name replaces the inner embedder's name.
type failingEmbedder struct {
	inner  *hashing.Embedder
	name   string
	calls  int
	failAt int
}

func (f *failingEmbedder) Name() string {
	if f.name != "" {
		return f.name
	}
	return f.inner.Name()
}
func (f *failingEmbedder) Dimension() int { return f.inner.Dimension() }
func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errors.New("embedding backend unavailable")
	}
	return f.inner.Embed(ctx, text)
}

func TestIngest_SinglePageDocument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ing := newIngestor(t, store)

	report, err := ing.Ingest(ctx, []domain.Document{page("The capacitor stores charge.", 0)})
	require.NoError(t, err)
	assert.Equal(t, Report{Documents: 1, Chunks: 1, Added: 1}, report)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	want := identity.Digest("The capacitor stores charge.", tetPath, "0")
	assert.Equal(t, map[string]struct{}{want: {}}, ids)

	hits, err := NewRetriever(hashing.New(hashing.DefaultDimension), store).Retrieve(ctx, "capacitor charge", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.Source{Path: tetPath, Page: 0, Ordinal: 0}, hits[0].Source)
}

func TestIngest_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ing := newIngestor(t, store)
	docs := []domain.Document{page("The capacitor stores charge.", 0), page("Resistors limit current.", 1)}

	_, err := ing.Ingest(ctx, docs)
	require.NoError(t, err)
	report, err := ing.Ingest(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Added)
	assert.Equal(t, 2, report.Skipped)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngest_EditedTextAddsEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ing := newIngestor(t, store)

	_, err := ing.Ingest(ctx, []domain.Document{page("The capacitor stores charge.", 0)})
	require.NoError(t, err)
	report, err := ing.Ingest(ctx, []domain.Document{page("The capacitor stores electric charge.", 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngest_CollapsesDuplicatesWithinRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ing := newIngestor(t, store)

	report, err := ing.Ingest(ctx, []domain.Document{page("Same text.", 0), page("Same text.", 0)})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Skipped)
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	c, err := chunker.NewRecursiveChunker(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)
	emb := &failingEmbedder{inner: hashing.New(hashing.DefaultDimension), failAt: 2}
	ing := NewIngestor(c, emb, store, quietLogger())

	_, err = ing.Ingest(ctx, []domain.Document{page("First page.", 0), page("Second page.", 1)})
	require.Error(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func newNamedIngestor(t *testing.T, store vectorstore.Storage, name string, failAt int) *Ingestor {
	t.Helper()
	c, err := chunker.NewRecursiveChunker(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)
	emb := &failingEmbedder{inner: hashing.New(hashing.DefaultDimension), name: name, failAt: failAt}
	return NewIngestor(c, emb, store, quietLogger())
}

func TestIngest_RejectsIndexFromOtherEmbedder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	_, err := newNamedIngestor(t, store, "openai:nomic-embed-text", 0).Ingest(ctx, []domain.Document{page("Other text.", 0)})
	require.NoError(t, err)

	_, err = newIngestor(t, store).Ingest(ctx, []domain.Document{page("Text.", 0)})
	var mismatch *vectorstore.ErrEmbedderMismatch
	assert.ErrorAs(t, err, &mismatch)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngest_FailedWriteLeavesIndexUnbound(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	_, err := newNamedIngestor(t, store, "openai:nomic-embed-text", 1).Ingest(ctx, []domain.Document{page("Text.", 0)})
	require.Error(t, err)

	report, err := newIngestor(t, store).Ingest(ctx, []domain.Document{page("Text.", 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	require.NoError(t, store.Bind(ctx, hashing.New(hashing.DefaultDimension).Name()))
}

func TestSplit_AssignsDenseOrdinals(t *testing.T) {
	c, err := chunker.NewRecursiveChunker(20, 0)
	require.NoError(t, err)
	ing := NewIngestor(c, hashing.New(0), memory.NewStorage(), quietLogger())

	chunks, err := ing.Split([]domain.Document{page("alpha beta gamma delta epsilon zeta eta theta", 4)})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		src, err := domain.ParseSource(ch.Metadata.Display)
		require.NoError(t, err)
		assert.Equal(t, i, src.Ordinal)
		assert.Equal(t, 4, src.Page)
		assert.NotEmpty(t, ch.ID())
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	r := NewRetriever(hashing.New(0), memory.NewStorage())
	_, err := r.Retrieve(context.Background(), "   ", 1)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	r := NewRetriever(hashing.New(0), memory.NewStorage())
	hits, err := r.Retrieve(context.Background(), "capacitor", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieve_RanksAndLimits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	_, err := newIngestor(t, store).Ingest(ctx, []domain.Document{
		page("The capacitor stores charge between two plates.", 0),
		page("Resistors limit current in a circuit.", 1),
		page("Inductors resist changes in current.", 2),
	})
	require.NoError(t, err)
	r := NewRetriever(hashing.New(hashing.DefaultDimension), store)

	hits, err := r.Retrieve(ctx, "how does a capacitor store charge", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Source.Page)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	hits, err = r.Retrieve(ctx, "the and of", 2)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieve_FallsBackWhenLocatorMissing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	emb := hashing.New(hashing.DefaultDimension)
	vec, err := emb.Embed(ctx, "capacitor")
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, []vectorstore.Entry{{
		Chunk:  domain.Chunk{Text: "capacitor", Metadata: domain.Metadata{HashID: "x", Source: "notes.pdf", Page: 7}},
		Vector: vec,
	}}))

	hits, err := NewRetriever(emb, store).Retrieve(ctx, "capacitor", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "notes.pdf:7:0", hits[0].Source.String())
}

package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTemp(t *testing.T) (*Storage, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chroma")
	s, err := Open(dir, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func entry(id, text string, page int, vec ...float32) vectorstore.Entry {
	return vectorstore.Entry{
		Chunk: domain.Chunk{
			Text: text,
			Metadata: domain.Metadata{
				HashID:  id,
				Source:  "data/tet.pdf",
				Page:    page,
				Display: domain.Source{Path: "data/tet.pdf", Page: page}.String(),
			},
		},
		Vector: vec,
	}
}

func TestOpen_CreatesDatabase(t *testing.T) {
	s, dir := openTemp(t)
	assert.Equal(t, filepath.Join(dir, FileName), s.Path())
	assert.FileExists(t, s.Path())
}

func TestStorage_RoundTripsChunksAndVectors(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{
		entry("a", "along x", 0, 1, 0),
		entry("b", "along y", 2, 0, 1),
	}))

	res, err := s.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	got := res[0].Chunk
	assert.Equal(t, "b", got.ID())
	assert.Equal(t, "along y", got.Text)
	assert.Equal(t, 2, got.Metadata.Page)
	assert.Equal(t, "data/tet.pdf:2:0", got.Metadata.Display)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chroma")

	s, err := Open(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("a", "x", 0, 1, 0)}))
	require.NoError(t, s.Close())

	s, err = Open(dir, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}}, ids)
}

func TestStorage_Exists(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("a", "x", 0, 1)}))

	got, err := s.Exists(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}}, got)

	got, err = s.Exists(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorage_FailedBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("a", "x", 0, 1, 0)}))

	err := s.Upsert(ctx, []vectorstore.Entry{
		entry("b", "ok", 0, 0, 1),
		entry("c", "wrong size", 0, 0, 1, 0),
	})
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorage_SearchEmptyIndex(t *testing.T) {
	s, _ := openTemp(t)
	res, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStorage_SearchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("a", "x", 0, 1, 0)}))

	_, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestStorage_BindAndReset(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	require.NoError(t, s.Bind(ctx, "hashing"))
	require.NoError(t, s.Bind(ctx, "hashing"))
	var mismatch *vectorstore.ErrEmbedderMismatch
	require.ErrorAs(t, s.Bind(ctx, "openai:nomic-embed-text"), &mismatch)

	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("a", "x", 0, 1)}))
	require.NoError(t, s.Reset(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, s.Bind(ctx, "openai:nomic-embed-text"))
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}

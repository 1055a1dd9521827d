package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

func entry(id, text string, vec ...float32) vectorstore.Entry {
	return vectorstore.Entry{
		Chunk:  domain.Chunk{Text: text, Metadata: domain.Metadata{HashID: id, Source: "a.pdf"}},
		Vector: vec,
	}
}

func TestStorage_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{
		entry("x", "along x", 1, 0),
		entry("y", "along y", 0, 1),
		entry("xy", "diagonal", 1, 1),
	}))

	res, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "x", res[0].Chunk.ID())
	assert.Equal(t, "xy", res[1].Chunk.ID())
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestStorage_EmptySearch(t *testing.T) {
	res, err := NewStorage().Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestStorage_UpsertKeepsOneEntryPerID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("x", "v1", 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("x", "v2", 1, 0)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorage_FailedBatchLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("x", "x", 1, 0)}))

	err := s.Upsert(ctx, []vectorstore.Entry{
		entry("y", "ok", 0, 1),
		entry("z", "bad", 1, 0, 0),
	})
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"x": {}}, ids)
}

func TestStorage_Exists(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("x", "x", 1)}))

	got, err := s.Exists(ctx, []string{"x", "nope"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"x": {}}, got)
}

func TestStorage_BindRejectsOtherEmbedder(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Bind(ctx, "hashing"))
	require.NoError(t, s.Bind(ctx, "hashing"))

	var mismatch *vectorstore.ErrEmbedderMismatch
	require.ErrorAs(t, s.Bind(ctx, "openai:nomic"), &mismatch)
	assert.Equal(t, "hashing", mismatch.Stored)
}

func TestStorage_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("x", "x", 1)}))
	require.NoError(t, s.Reset(ctx))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	// a reset index accepts a new dimension
	require.NoError(t, s.Upsert(ctx, []vectorstore.Entry{entry("y", "y", 1, 2, 3)}))
}

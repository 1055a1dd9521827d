package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_StringRoundTrip(t *testing.T) {
	s := Source{Path: "data/tet.pdf", Page: 12, Ordinal: 2}
	assert.Equal(t, "data/tet.pdf:12:2", s.String())

	parsed, err := ParseSource(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, parsed)
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Source
	}{
		{"three fields", "data/a.pdf:0:0", Source{Path: "data/a.pdf", Page: 0}},
		{"two fields", "data/a.pdf:4", Source{Path: "data/a.pdf", Page: 4}},
		{"windows drive", `C:\docs\a.pdf:3:1`, Source{Path: `C:\docs\a.pdf`, Page: 3, Ordinal: 1}},
		{"surrounding space", "  data/a.pdf:1:5 ", Source{Path: "data/a.pdf", Page: 1, Ordinal: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSource(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSource_Malformed(t *testing.T) {
	for _, raw := range []string{"", "data/a.pdf", "data/a.pdf:x", ":3:0", "data/a.pdf:-1:0", "data/a.pdf:2:z"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseSource(raw)
			assert.ErrorIs(t, err, ErrMalformedSource)
		})
	}
}

func TestSource_FilePathNormalisesSeparators(t *testing.T) {
	s := Source{Path: `data\sub\a.pdf`, Page: 1}
	assert.Equal(t, "data/sub/a.pdf", s.FilePath())
}

func TestSourceOf(t *testing.T) {
	t.Run("uses stored locator", func(t *testing.T) {
		c := Chunk{Metadata: Metadata{Source: "a.pdf", Page: 3, Display: "a.pdf:3:7"}}
		assert.Equal(t, Source{Path: "a.pdf", Page: 3, Ordinal: 7}, SourceOf(c))
	})

	t.Run("falls back to source and page", func(t *testing.T) {
		c := Chunk{Metadata: Metadata{Source: "a.pdf", Page: 3}}
		assert.Equal(t, "a.pdf:3:0", SourceOf(c).String())
	})

	t.Run("missing metadata does not panic", func(t *testing.T) {
		assert.Equal(t, ":0:0", SourceOf(Chunk{}).String())
	})

	t.Run("unreadable locator falls back", func(t *testing.T) {
		c := Chunk{Metadata: Metadata{Source: "b.pdf", Page: 1, Display: "garbage"}}
		assert.Equal(t, "b.pdf:1:0", SourceOf(c).String())
	})
}

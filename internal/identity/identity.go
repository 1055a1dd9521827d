// Package identity derives the stable storage key and display locator of
// each chunk.
package identity

import (
	"crypto/sha1"
	"encoding/hex"

	"ragchat/internal/domain"
)

// Digest is the hex SHA-1 of content|source|page. Missing metadata enters
// the digest as an empty source and page 0, so it stays deterministic.
func Digest(content, source, page string) string {
	h := sha1.New()
	h.Write([]byte(content))
	h.Write([]byte("|" + source + "|" + page))
	return hex.EncodeToString(h.Sum(nil))
}

// Of computes the identity of a chunk from its text and provenance.
func Of(c domain.Chunk) string {
	return Digest(c.Text, c.Metadata.Source, c.Metadata.PageString())
}

type groupKey struct {
	source string
	page   int
}

// Assigner numbers chunks per (source, page) in processing order. Use one
// Assigner per ingestion run; ordinals are not persisted separately.
type Assigner struct {
	counters map[groupKey]int
}

func NewAssigner() *Assigner {
	return &Assigner{counters: make(map[groupKey]int)}
}

// Assign returns a copy of c with HashID and Display filled in.
func (a *Assigner) Assign(c domain.Chunk) domain.Chunk {
	key := groupKey{source: c.Metadata.Source, page: c.Metadata.Page}
	ordinal := a.counters[key]
	a.counters[key] = ordinal + 1

	c.Metadata.Display = domain.Source{
		Path:    c.Metadata.Source,
		Page:    c.Metadata.Page,
		Ordinal: ordinal,
	}.String()
	c.Metadata.HashID = Of(c)
	return c
}

// AssignAll assigns identities to chunks in order.
func (a *Assigner) AssignAll(chunks []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = a.Assign(c)
	}
	return out
}

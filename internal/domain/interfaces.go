package domain

import "strconv"

// Metadata is the provenance attached to documents and chunks.
type Metadata struct {
	Source string
	Page   int
	// HashID and Display are filled by the identity assigner before indexing.
	HashID  string
	Display string
}

// PageString renders the page the way it enters identity digests.
func (m Metadata) PageString() string { return strconv.Itoa(m.Page) }

// Document represents a single loaded page (or a whole plain-text file).
type Document struct {
	Content  string
	Metadata Metadata
}

// Chunk is a bounded part of a document used for indexing and retrieval.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// ID returns the chunk identity, empty until assigned.
func (c Chunk) ID() string { return c.Metadata.HashID }

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

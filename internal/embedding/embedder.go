// Package embedding holds the text embedders shared by the ingestion and
// query paths. An index must be written and read with the same embedder.
package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

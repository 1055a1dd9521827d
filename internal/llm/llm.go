// Package llm defines the text generator used to answer questions.
package llm

import "context"

// Generator produces a completion for a single prompt.
type Generator interface {
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
}

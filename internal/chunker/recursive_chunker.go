// Package chunker splits loaded documents into overlapping, size-bounded chunks.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// Defaults used by the populate command.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits on paragraph, line and word boundaries in that order,
// falling back to single characters, then merges the pieces back up to the
// size budget while carrying up to overlap characters between neighbours.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveChunker validates size and overlap (in characters).
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: defaultSeparators}, nil
}

func validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", domain.ErrInvalidChunking, size, overlap)
	}
	return nil
}

// Chunk splits the document, copying its metadata onto every chunk.
func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	texts := c.split(document.Content, c.separators)
	return toChunks(document, texts), nil
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, fitting []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= c.size {
			fitting = append(fitting, p)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, c.merge(fitting, sep)...)
			fitting = nil
		}
		out = append(out, c.split(p, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, c.merge(fitting, sep)...)
	}
	return out
}

// merge packs splits into chunks of at most c.size runes. After each emitted
// chunk the window is shrunk from the front until at most c.overlap runes
// remain and the next split fits.
func (c *RecursiveChunker) merge(splits []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var docs, window []string
	total := 0

	joinLen := func() int {
		if len(window) > 0 {
			return sepLen
		}
		return 0
	}

	for _, s := range splits {
		n := utf8.RuneCountInString(s)
		if len(window) > 0 && total+joinLen()+n > c.size {
			if doc := strings.TrimSpace(strings.Join(window, sep)); doc != "" {
				docs = append(docs, doc)
			}
			for len(window) > 0 && (total > c.overlap || total+joinLen()+n > c.size) {
				total -= utf8.RuneCountInString(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		total += joinLen() + n
		window = append(window, s)
	}
	if doc := strings.TrimSpace(strings.Join(window, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func toChunks(document domain.Document, texts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Text: t,
			Metadata: domain.Metadata{
				Source: document.Metadata.Source,
				Page:   document.Metadata.Page,
			},
		})
	}
	return chunks
}

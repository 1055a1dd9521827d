package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Source locates a chunk for display: file, zero-based page and the ordinal
// of the chunk among those sharing the same file and page.
type Source struct {
	Path    string
	Page    int
	Ordinal int
}

// String renders the "<path>:<page>:<ordinal>" wire format.
func (s Source) String() string {
	return s.Path + ":" + strconv.Itoa(s.Page) + ":" + strconv.Itoa(s.Ordinal)
}

// FilePath returns the path with Windows separators normalised to '/'.
func (s Source) FilePath() string {
	return strings.ReplaceAll(s.Path, `\`, "/")
}

// FallbackSource is used for chunks indexed without a display locator.
func FallbackSource(m Metadata) Source {
	return Source{Path: m.Source, Page: m.Page}
}

// SourceOf returns the chunk's display locator, falling back to
// "<source>:<page>:0" when the stored one is missing or unreadable.
func SourceOf(c Chunk) Source {
	if c.Metadata.Display != "" {
		if s, err := ParseSource(c.Metadata.Display); err == nil {
			return s
		}
	}
	return FallbackSource(c.Metadata)
}

// ParseSource parses "<path>:<page>[:<ordinal>]". Numeric fields are taken
// from the right so paths containing ':' (drive letters) survive.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if raw == "" || len(parts) < 2 {
		return Source{}, fmt.Errorf("%w: %q", ErrMalformedSource, raw)
	}

	last := len(parts) - 1
	if len(parts) >= 3 {
		page, perr := strconv.Atoi(parts[last-1])
		ordinal, oerr := strconv.Atoi(parts[last])
		if perr == nil && oerr == nil {
			return newSource(strings.Join(parts[:last-1], ":"), page, ordinal, raw)
		}
	}
	page, err := strconv.Atoi(parts[last])
	if err != nil {
		return Source{}, fmt.Errorf("%w: page %q in %q", ErrMalformedSource, parts[last], raw)
	}
	return newSource(strings.Join(parts[:last], ":"), page, 0, raw)
}

func newSource(path string, page, ordinal int, raw string) (Source, error) {
	if path == "" {
		return Source{}, fmt.Errorf("%w: empty path in %q", ErrMalformedSource, raw)
	}
	if page < 0 || ordinal < 0 {
		return Source{}, fmt.Errorf("%w: negative index in %q", ErrMalformedSource, raw)
	}
	return Source{Path: path, Page: page, Ordinal: ordinal}, nil
}

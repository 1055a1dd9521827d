package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// SentenceChunker packs whole sentences into chunks of at most size
// characters and repeats trailing sentences (up to overlap characters) at the
// start of the next chunk. Sentences longer than size are hard-cut.
type SentenceChunker struct {
	size     int
	overlap  int
	splitter *regexp.Regexp
}

func NewSentenceChunker(size, overlap int) (*SentenceChunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &SentenceChunker{
		size:     size,
		overlap:  overlap,
		splitter: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}, nil
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := c.sentences(document.Content)
	if len(sentences) == 0 {
		return nil, nil
	}

	var texts, window []string
	total := 0
	fresh := false

	flush := func() {
		texts = append(texts, strings.Join(window, " "))
		fresh = false
		// keep the longest tail that fits in the overlap budget
		keep, tail := 0, 0
		for i := len(window) - 1; i >= 0; i-- {
			n := utf8.RuneCountInString(window[i])
			if keep > 0 {
				n++
			}
			if tail+n > c.overlap {
				break
			}
			tail += n
			keep++
		}
		window = window[len(window)-keep:]
		total = tail
	}

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if len(window) > 0 && total+1+n > c.size {
			if fresh {
				flush()
			}
			for len(window) > 0 && total+1+n > c.size {
				total -= utf8.RuneCountInString(window[0])
				if len(window) > 1 {
					total--
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total++
		}
		total += n
		window = append(window, s)
		fresh = true
	}
	if fresh {
		texts = append(texts, strings.Join(window, " "))
	}
	return toChunks(document, texts), nil
}

// sentences returns trimmed sentences; text after the last terminator counts
// as a sentence, and sentences over the size budget are cut into pieces.
func (c *SentenceChunker) sentences(text string) []string {
	var raw []string
	end := 0
	for _, loc := range c.splitter.FindAllStringIndex(text, -1) {
		raw = append(raw, text[loc[0]:loc[1]])
		end = loc[1]
	}
	raw = append(raw, text[end:])

	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, hardCut(s, c.size, c.overlap)...)
	}
	return out
}

func hardCut(s string, size, overlap int) []string {
	runes := []rune(s)
	if len(runes) <= size {
		return []string{s}
	}
	step := size - overlap
	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		if part := strings.TrimSpace(string(runes[i:end])); part != "" {
			out = append(out, part)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

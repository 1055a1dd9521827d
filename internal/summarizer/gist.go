// Package summarizer picks the most representative sentences of a page for
// the source viewer.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "so", "such", "into", "about", "between", "through", "than", "can", "will", "should",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Gist returns up to n sentences of text ranked by content-word frequency,
// in their original order. Text without sentence punctuation is returned
// whole as a single entry.
func Gist(text string, n int) []string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return nil
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return []string{text}
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, sent := range sentences {
		for _, tok := range contentWords(sent) {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := contentWords(sent)
		s := 0.0
		for _, tok := range toks {
			s += freq[tok] / maxF
		}
		// length-normalised so long sentences do not always win
		if len(toks) > 0 {
			s /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if n > len(scores) {
		n = len(scores)
	}

	picked := make([]int, n)
	for i := range picked {
		picked[i] = scores[i].idx
	}
	sort.Ints(picked)
	out := make([]string, n)
	for i, idx := range picked {
		out[i] = strings.Join(strings.Fields(sentences[idx]), " ")
	}
	return out
}

func contentWords(s string) []string {
	raw := wordRe.FindAllString(strings.ToLower(s), -1)
	out := raw[:0]
	for _, w := range raw {
		if _, stop := stopwords[w]; !stop {
			out = append(out, w)
		}
	}
	return out
}

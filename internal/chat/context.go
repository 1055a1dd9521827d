package chat

import "strings"

// Separator joins retrieved passages inside a topic context.
const Separator = "\n\n---\n\n"

// Fold appends the passages in texts to previous. The result always starts
// with previous; no texts leaves previous unchanged. Growth is unbounded.
func Fold(previous string, texts []string) string {
	if len(texts) == 0 {
		return previous
	}
	next := strings.Join(texts, Separator)
	if previous == "" {
		return next
	}
	return previous + Separator + next
}

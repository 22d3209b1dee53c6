// Package textclean normalises raw tweet text before tokenization.
package textclean

import (
	"regexp"
	"strings"
)

var (
	// mentions, then http/https links; the last alternative also eats the
	// truncated "http:x" fragments Twitter leaves behind
	noisePattern    = regexp.MustCompile(`@\S+|https?:\S+|http?:\S`)
	nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// Cleaner lowercases text, strips mentions, URLs and punctuation, and drops
// stop words. It is safe for concurrent use.
type Cleaner struct {
	stopWords *StopWords
}

// NewCleaner returns a Cleaner that drops the given stop words. A nil set
// keeps every token.
func NewCleaner(stopWords *StopWords) *Cleaner {
	return &Cleaner{stopWords: stopWords}
}

// Clean always returns a string containing only [a-z0-9] and single spaces,
// possibly empty.
func (c *Cleaner) Clean(text string) string {
	text = strings.ToLower(text)
	text = noisePattern.ReplaceAllString(text, " ")
	text = nonAlnumPattern.ReplaceAllString(text, " ")

	fields := strings.Fields(text)
	kept := fields[:0]
	for _, tok := range fields {
		if c.stopWords.Contains(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// CleanAll cleans every text in place order.
func (c *Cleaner) CleanAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = c.Clean(t)
	}
	return out
}

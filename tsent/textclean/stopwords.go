package textclean

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

//go:embed english.txt
var englishStopWords string

// ErrEmptyStopWords is returned when a stop-word source yields no words.
var ErrEmptyStopWords = errors.New("stop-word list is empty")

// StopWords is an immutable set of words dropped by the Cleaner.
type StopWords struct {
	words map[string]struct{}
}

// NewStopWords builds a set from words. Entries are lowercased and trimmed.
func NewStopWords(words ...string) *StopWords {
	sw := &StopWords{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		sw.words[w] = struct{}{}
	}
	return sw
}

// English returns the NLTK English stop-word list.
func English() *StopWords {
	sw, _ := parseStopWords(strings.NewReader(englishStopWords))
	return sw
}

// LoadStopWords resolves source into a stop-word set. source may be empty or
// "english" for the embedded list, an http(s) URL fetched once, or a local
// file with one word per line.
func LoadStopWords(ctx context.Context, source string) (*StopWords, error) {
	src := strings.TrimSpace(source)
	switch {
	case src == "" || strings.EqualFold(src, "english"):
		return English(), nil
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		return fetchStopWords(ctx, src)
	default:
		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("failed to open stop-word list %s: %w", src, err)
		}
		defer f.Close()
		sw, err := parseStopWords(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read stop-word list %s: %w", src, err)
		}
		return sw, nil
	}
}

func fetchStopWords(ctx context.Context, url string) (*StopWords, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stop-word request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stop-word list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch stop-word list: unexpected status code: %d", resp.StatusCode)
	}
	sw, err := parseStopWords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stop-word list %s: %w", url, err)
	}
	return sw, nil
}

func parseStopWords(r io.Reader) (*StopWords, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, ErrEmptyStopWords
	}
	return NewStopWords(words...), nil
}

// Contains reports whether word is a stop word.
func (s *StopWords) Contains(word string) bool {
	if s == nil {
		return false
	}
	_, ok := s.words[word]
	return ok
}

func (s *StopWords) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

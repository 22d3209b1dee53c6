package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tokenizer converts raw text to model-ready token IDs and attention masks.
// Every returned row has exactly the configured max length.
type Tokenizer interface {
	Tokenize(texts []string) (inputIDs [][]int64, attentionMasks [][]int64, err error)
}

// Config holds basic tokenizer settings
type Config struct {
	VocabPath string
	MaxSeqLen int
}

// ErrUnsupported indicates the tokenizer could not be initialized
var ErrUnsupported = fmt.Errorf("unsupported tokenizer configuration")

// ErrMaxSeqLen is returned when the max length cannot hold [CLS] and [SEP].
var ErrMaxSeqLen = errors.New("max sequence length must be at least 2")

// Special token ids of bert-base-uncased, used when the vocab does not list them.
const (
	defaultPadID int64 = 0
	defaultUnkID int64 = 100
	defaultClsID int64 = 101
	defaultSepID int64 = 102
)

// New loads the BERT WordPiece tokenizer for cfg, preferring the sugarme
// implementation and falling back to the vocab-only WordPiece.
func New(cfg Config) (Tokenizer, error) {
	if cfg.MaxSeqLen < 2 {
		return nil, ErrMaxSeqLen
	}
	if swp, err := NewSugarWordPiece(cfg.VocabPath, cfg.MaxSeqLen); err == nil {
		return swp, nil
	}
	wp, err := LoadWordPieceFromVocab(cfg.VocabPath, cfg.MaxSeqLen)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	return wp, nil
}

// specialIDs holds the ids of the tokens the BERT template needs.
type specialIDs struct {
	pad, unk, cls, sep int64
}

// resolveVocabPath accepts either vocab.txt itself or the directory holding it.
func resolveVocabPath(path string) string {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return filepath.Join(path, "vocab.txt")
	}
	return path
}

func readVocab(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty vocab %s", ErrUnsupported, path)
	}
	return tokens, nil
}

func discoverSpecialIDs(tokens []string) specialIDs {
	ids := specialIDs{pad: defaultPadID, unk: defaultUnkID, cls: defaultClsID, sep: defaultSepID}
	for i, tok := range tokens {
		switch tok {
		case "[PAD]":
			ids.pad = int64(i)
		case "[UNK]":
			ids.unk = int64(i)
		case "[CLS]":
			ids.cls = int64(i)
		case "[SEP]":
			ids.sep = int64(i)
		}
	}
	return ids
}

// fixLength pads with padID or truncates raw ids to n, keeping sep as the
// last real token when truncation happens.
func fixLength(raw []int64, n int, sep, pad int64) ([]int64, []int64) {
	ids := make([]int64, n)
	mask := make([]int64, n)
	real := len(raw)
	if real > n {
		real = n
	}
	copy(ids, raw[:real])
	if len(raw) > n {
		ids[n-1] = sep
	}
	for j := 0; j < n; j++ {
		if j < real {
			mask[j] = 1
		} else {
			ids[j] = pad
		}
	}
	return ids, mask
}

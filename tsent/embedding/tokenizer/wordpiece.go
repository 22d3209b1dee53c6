package tokenizer

import (
	"strings"
	"unicode"

	radix "github.com/armon/go-radix"
)

const (
	continuationPrefix = "##"
	maxCharsPerWord    = 100
)

// WordPiece is a vocab-only greedy longest-match-first WordPiece tokenizer.
// Word-initial pieces and "##" continuation pieces live in separate radix
// trees so each step is a single LongestPrefix lookup.
type WordPiece struct {
	initial   *radix.Tree
	suffix    *radix.Tree
	special   specialIDs
	maxSeqLen int
}

// LoadWordPieceFromVocab reads a BERT vocab.txt (one token per line, id =
// line index) from path or the directory holding it.
func LoadWordPieceFromVocab(path string, maxSeq int) (*WordPiece, error) {
	if maxSeq < 2 {
		return nil, ErrMaxSeqLen
	}
	tokens, err := readVocab(resolveVocabPath(path))
	if err != nil {
		return nil, err
	}
	return NewWordPiece(tokens, maxSeq), nil
}

// NewWordPiece builds a WordPiece over tokens where each token's id is its index.
func NewWordPiece(tokens []string, maxSeq int) *WordPiece {
	wp := &WordPiece{
		initial:   radix.New(),
		suffix:    radix.New(),
		special:   discoverSpecialIDs(tokens),
		maxSeqLen: maxSeq,
	}
	for i, tok := range tokens {
		if rest, ok := strings.CutPrefix(tok, continuationPrefix); ok && rest != "" {
			wp.suffix.Insert(rest, int64(i))
			continue
		}
		wp.initial.Insert(tok, int64(i))
	}
	return wp
}

func (w *WordPiece) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i, t := range texts {
		seq := make([]int64, 0, w.maxSeqLen)
		seq = append(seq, w.special.cls)
		for _, word := range splitWords(t) {
			seq = append(seq, w.pieces(word)...)
			if len(seq) >= w.maxSeqLen-1 {
				break
			}
		}
		seq = append(seq, w.special.sep)
		ids[i], masks[i] = fixLength(seq, w.maxSeqLen, w.special.sep, w.special.pad)
	}
	return ids, masks, nil
}

// pieces splits one word into vocab ids. A word that cannot be fully covered
// maps to a single [UNK].
func (w *WordPiece) pieces(word string) []int64 {
	if len(word) > maxCharsPerWord {
		return []int64{w.special.unk}
	}
	var out []int64
	tree := w.initial
	for start := 0; start < len(word); {
		match, v, ok := tree.LongestPrefix(word[start:])
		if !ok || match == "" {
			return []int64{w.special.unk}
		}
		out = append(out, v.(int64))
		start += len(match)
		tree = w.suffix
	}
	return out
}

// splitWords lowercases and splits on whitespace, isolating punctuation the
// way the BERT pre-tokenizer does.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

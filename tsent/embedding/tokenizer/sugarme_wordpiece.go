package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

// SugarWordPiece wraps sugarme/tokenizer WordPiece (BERT-style)
type SugarWordPiece struct {
	t         *tk.Tokenizer
	special   specialIDs
	maxSeqLen int
}

// NewSugarWordPiece loads vocab.txt and builds a BERT WordPiece tokenizer.
// vocabPath may name the file or the directory holding it.
func NewSugarWordPiece(vocabPath string, maxSeq int) (*SugarWordPiece, error) {
	if maxSeq < 2 {
		return nil, ErrMaxSeqLen
	}
	vocabPath = resolveVocabPath(vocabPath)
	tokens, err := readVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, "[UNK]")
	if err != nil {
		return nil, fmt.Errorf("build wordpiece: %w", err)
	}

	t := tk.NewTokenizer(wp)

	// lowercase, strip accents, split on punctuation like bert-base-uncased
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	special := discoverSpecialIDs(tokens)
	// tokenizer.json next to the vocab wins over the vocab order
	if cls, sep, ok := specialIDsFromJSON(filepath.Join(filepath.Dir(vocabPath), "tokenizer.json")); ok {
		special.cls, special.sep = cls, sep
	}

	// Post-processor to add special tokens with discovered ids
	template := processor.NewBertProcessing(
		processor.PostToken{Value: "[SEP]", Id: int(special.sep)},
		processor.PostToken{Value: "[CLS]", Id: int(special.cls)},
	)
	t.WithPostProcessor(template)
	// truncation happens in fixLength; sugarme's truncation params are shared
	// across calls
	return &SugarWordPiece{t: t, special: special, maxSeqLen: maxSeq}, nil
}

func (s *SugarWordPiece) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i, txt := range texts {
		if strings.TrimSpace(txt) == "" {
			ids[i], masks[i] = fixLength([]int64{s.special.cls, s.special.sep}, s.maxSeqLen, s.special.sep, s.special.pad)
			continue
		}
		enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(txt)), true)
		if err != nil {
			return nil, nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		uids := enc.GetIds()
		raw := make([]int64, len(uids))
		for j, id := range uids {
			raw[j] = int64(id)
		}
		// enforce fixed-length output (pad/truncate to maxSeqLen)
		ids[i], masks[i] = fixLength(raw, s.maxSeqLen, s.special.sep, s.special.pad)
	}
	return ids, masks, nil
}

// specialIDsFromJSON reads [CLS] and [SEP] ids from a HuggingFace tokenizer.json.
func specialIDsFromJSON(path string) (cls, sep int64, ok bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}
	var doc struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return 0, 0, false
	}
	c, okC := doc.Model.Vocab["[CLS]"]
	s, okS := doc.Model.Vocab["[SEP]"]
	if !okC || !okS {
		return 0, 0, false
	}
	return c, s, true
}

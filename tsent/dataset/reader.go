// Package dataset reads the Sentiment140 corpus and turns it into encoded,
// partitioned examples ready for batching.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/text/encoding/charmap"
)

// Column layout of the corpus: target, id, date, flag, user, text.
const numColumns = 6

var (
	// ErrMalformedRow is returned for rows with the wrong column count or a
	// non-integer target.
	ErrMalformedRow = errors.New("malformed corpus row")
	// ErrUnknownPolarity is returned for polarity codes other than 0 and 4.
	ErrUnknownPolarity = errors.New("unknown polarity code")
)

// RawRecord is one corpus row. Label is only meaningful after RemapAll.
type RawRecord struct {
	Polarity int
	Label    int
	ID       string
	Date     string
	Flag     string
	User     string
	Text     string
}

// ReadCorpus reads the ISO-8859-1 encoded corpus file at path.
func ReadCorpus(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}
	defer f.Close()
	records, err := ParseCorpus(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}
	return records, nil
}

// ParseCorpus decodes ISO-8859-1 CSV rows without a header.
func ParseCorpus(r io.Reader) ([]RawRecord, error) {
	cr := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	cr.FieldsPerRecord = numColumns
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var records []RawRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, pe.Line, pe.Err)
			}
			return nil, err
		}
		polarity, err := strconv.Atoi(row[0])
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: target %q is not an integer", ErrMalformedRow, line, row[0])
		}
		records = append(records, RawRecord{
			Polarity: polarity,
			ID:       row[1],
			Date:     row[2],
			Flag:     row[3],
			User:     row[4],
			Text:     row[5],
		})
	}
}

// RemapPolarity maps the corpus codes 0 (negative) and 4 (positive) to the
// labels 0 and 1.
func RemapPolarity(raw int) (int, error) {
	switch raw {
	case 0:
		return 0, nil
	case 4:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownPolarity, raw)
	}
}

// RemapAll sets Label on every record from its Polarity.
func RemapAll(records []RawRecord) error {
	for i := range records {
		label, err := RemapPolarity(records[i].Polarity)
		if err != nil {
			return fmt.Errorf("record %s: %w", records[i].ID, err)
		}
		records[i].Label = label
	}
	return nil
}

package document

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// LoadCSV reads the text column of a CSV file. The whole file is decoded
// before any row is returned, so an encoding mismatch fails the load.
func LoadCSV(path string, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	data, err := readDecoded(path, opts.Encoding)
	if err != nil {
		return nil, err
	}

	docs, err := ReadCSV(strings.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// ReadCSV reads already-decoded CSV text.
func ReadCSV(r io.Reader, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv has no header", internalerr.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %w", internalerr.ErrInvalidInput, err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == opts.TextColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: csv has no %q column", internalerr.ErrConfiguration, opts.TextColumn)
	}

	var docs []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %w", internalerr.ErrInvalidInput, err)
		}
		text := ""
		if col < len(rec) {
			text = rec[col]
		}
		docs = append(docs, clean(text, opts))
	}
	return docs, nil
}

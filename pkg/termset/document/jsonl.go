package document

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// LoadJSONL reads one JSON object per line and takes the note text from
// opts.TextField. Blank lines are skipped.
func LoadJSONL(path string, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	data, err := readDecoded(path, opts.Encoding)
	if err != nil {
		return nil, err
	}

	docs, err := ReadJSONL(strings.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// ReadJSONL reads already-decoded JSONL text.
func ReadJSONL(r io.Reader, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var docs []string
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", internalerr.ErrInvalidInput, line, err)
		}
		field, ok := obj[opts.TextField]
		if !ok {
			return nil, fmt.Errorf("%w: line %d: no %q field", internalerr.ErrInvalidInput, line, opts.TextField)
		}
		var text string
		if err := json.Unmarshal(field, &text); err != nil {
			return nil, fmt.Errorf("%w: line %d: %q is not a string", internalerr.ErrInvalidInput, line, opts.TextField)
		}
		docs = append(docs, clean(text, opts))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: jsonl: %w", internalerr.ErrInvalidInput, err)
	}
	return docs, nil
}

// Package document loads clinical note corpora and cleans their text before
// annotation.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// DefaultTextColumn is the CSV column holding note text.
const DefaultTextColumn = "TEXT"

// DefaultTextField is the JSONL field holding note text.
const DefaultTextField = "text"

// Options controls how a corpus file is read.
type Options struct {
	// Encoding is an IANA charset name. Empty means UTF-8.
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
	// TextColumn names the CSV column with the note text.
	TextColumn string `mapstructure:"text_column" yaml:"text_column"`
	// TextField names the JSONL field with the note text.
	TextField string `mapstructure:"text_field" yaml:"text_field"`
	// StripHTML removes markup before Fixup runs.
	StripHTML bool `mapstructure:"strip_html" yaml:"strip_html"`
}

func (o Options) withDefaults() Options {
	if o.Encoding == "" {
		o.Encoding = "utf-8"
	}
	if o.TextColumn == "" {
		o.TextColumn = DefaultTextColumn
	}
	if o.TextField == "" {
		o.TextField = DefaultTextField
	}
	return o
}

var fixups = strings.NewReplacer(
	"Â\u0091", "'",
	"Â\u0092", "'",
	"Â\u0093", `"`,
	"Â\u0094", `"`,
	"–", "-",
	"“", `"`,
	"”", `"`,
)

// Fixup replaces stylized quotes and dashes, including their common
// mis-decoded forms, with ASCII equivalents.
func Fixup(text string) string {
	return fixups.Replace(text)
}

// Decode converts data in the named charset to a UTF-8 string. UTF-8 input
// is validated rather than repaired.
func Decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		data = trimBOM(data)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: input is not valid utf-8; specify a different encoding", internalerr.ErrEncoding)
		}
		return string(data), nil
	case "ascii", "us-ascii":
		for i, b := range data {
			if b >= utf8.RuneSelf {
				return "", fmt.Errorf("%w: non-ascii byte 0x%02x at offset %d", internalerr.ErrEncoding, b, i)
			}
		}
		return string(data), nil
	}

	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil || enc == nil {
		return "", fmt.Errorf("%w: unsupported encoding %q", internalerr.ErrConfiguration, encoding)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", internalerr.ErrEncoding, encoding, err)
	}
	return string(out), nil
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xef && data[1] == 0xbb && data[2] == 0xbf {
		return data[3:]
	}
	return data
}

// Load reads a corpus file, picking the format from its extension: .csv, or
// .jsonl/.ndjson. Every text is cleaned with Fixup.
func Load(path string, opts Options) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path, opts)
	case ".jsonl", ".ndjson":
		return LoadJSONL(path, opts)
	default:
		return nil, fmt.Errorf("%w: unknown corpus format %q", internalerr.ErrConfiguration, filepath.Ext(path))
	}
}

func readDecoded(path, encoding string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	text, err := Decode(data, encoding)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

func clean(text string, opts Options) string {
	if opts.StripHTML {
		text = StripHTML(text)
	}
	return Fixup(text)
}

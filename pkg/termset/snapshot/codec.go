// Package snapshot persists accumulated indexes.
//
// The file format is a JSON object keyed by concept id:
//
//	{
//	  "C0020538": {
//	    "name": "Hypertensive disease",
//	    "terms": [
//	      {"text": "hypertension", "score": 1, "count": 2}
//	    ]
//	  }
//	}
//
// Keys appear in the order concepts were first observed. Output is UTF-8
// with non-ASCII text written literally and two-space indentation.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

type conceptJSON struct {
	Name  string                    `json:"name"`
	Terms []accumulate.VariantEntry `json:"terms"`
}

// Encode writes idx in the snapshot format.
func Encode(w io.Writer, idx *accumulate.Index) error {
	bw := bufio.NewWriter(w)

	if idx.Len() == 0 {
		if _, err := bw.WriteString("{}\n"); err != nil {
			return err
		}
		return bw.Flush()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")

	// bufio.Writer keeps its first write error and returns it from Flush.
	bw.WriteString("{\n")
	for i, e := range idx.Entries() {
		buf.Reset()
		if err := enc.Encode(e.ID); err != nil {
			return err
		}
		key := bytes.TrimRight(buf.Bytes(), "\n")
		bw.WriteString("  ")
		bw.Write(key)
		bw.WriteString(": ")

		buf.Reset()
		terms := e.Variants
		if terms == nil {
			terms = []accumulate.VariantEntry{}
		}
		if err := enc.Encode(conceptJSON{Name: e.Name, Terms: terms}); err != nil {
			return err
		}
		bw.Write(bytes.TrimRight(buf.Bytes(), "\n"))
		if i < idx.Len()-1 {
			bw.WriteByte(',')
		}
		bw.WriteByte('\n')
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// Marshal returns the encoded snapshot.
func Marshal(idx *accumulate.Index) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, idx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot, keeping the file's key order.
func Decode(r io.Reader) (*accumulate.Index, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", internalerr.ErrInvalidInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: snapshot: expected object, got %v", internalerr.ErrInvalidInput, tok)
	}

	idx := accumulate.NewIndex()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: snapshot: %w", internalerr.ErrInvalidInput, err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: snapshot: unexpected token %v", internalerr.ErrInvalidInput, tok)
		}

		var c conceptJSON
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("%w: snapshot: concept %s: %w", internalerr.ErrInvalidInput, id, err)
		}
		if c.Terms == nil {
			c.Terms = []accumulate.VariantEntry{}
		}
		idx.Put(accumulate.ConceptEntry{ID: id, Name: c.Name, Variants: c.Terms})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", internalerr.ErrInvalidInput, err)
	}
	return idx, nil
}

package dictionary

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// MRCONSO.RRF column positions.
const (
	colCUI    = 0
	colLAT    = 1
	colISPREF = 6
	colSAB    = 11
	colSTR    = 14
	mrconsoN  = 18
)

// RRFOptions filters rows read from MRCONSO.RRF.
type RRFOptions struct {
	// Sources restricts rows to these source vocabularies (SAB). Empty keeps all.
	Sources []string
	// Language defaults to ENG.
	Language string
}

// LoadMRCONSO builds a dictionary from a UMLS MRCONSO.RRF file. Every
// string of a concept becomes a synonym; the first preferred string names
// the concept.
func LoadMRCONSO(path string, opts RRFOptions) (*Dictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open MRCONSO: %w", internalerr.ErrConfiguration, err)
	}
	defer file.Close()

	lang := opts.Language
	if lang == "" {
		lang = "ENG"
	}
	sources := make(map[string]struct{}, len(opts.Sources))
	for _, s := range opts.Sources {
		sources[strings.ToUpper(s)] = struct{}{}
	}

	var entries []Entry
	index := make(map[string]int)
	named := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "|")
		if len(fields) < mrconsoN {
			continue
		}
		if fields[colLAT] != lang {
			continue
		}
		if len(sources) > 0 {
			if _, ok := sources[fields[colSAB]]; !ok {
				continue
			}
		}

		cui, str := fields[colCUI], fields[colSTR]
		idx, ok := index[cui]
		if !ok {
			idx = len(entries)
			index[cui] = idx
			entries = append(entries, Entry{ID: cui, Name: str})
		}
		if fields[colISPREF] == "Y" && !named[cui] {
			entries[idx].Name = str
			named[cui] = true
		}
		entries[idx].Synonyms = append(entries[idx].Synonyms, str)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read MRCONSO line %d: %w", internalerr.ErrConfiguration, line, err)
	}

	return nonEmpty(New(entries), path)
}

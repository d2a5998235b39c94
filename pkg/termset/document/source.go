package document

// SliceSource yields texts from a slice in order. It satisfies
// accumulate.Source.
type SliceSource struct {
	docs []string
	pos  int
}

// NewSliceSource wraps docs.
func NewSliceSource(docs []string) *SliceSource {
	return &SliceSource{docs: docs}
}

// Next returns the next text.
func (s *SliceSource) Next() (string, bool) {
	if s.pos >= len(s.docs) {
		return "", false
	}
	text := s.docs[s.pos]
	s.pos++
	return text, true
}

// Len returns the total number of documents.
func (s *SliceSource) Len() int { return len(s.docs) }

// Remaining returns the number of documents not yet read.
func (s *SliceSource) Remaining() int { return len(s.docs) - s.pos }

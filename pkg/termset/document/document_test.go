package document

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/termset/pkg/termset/internalerr"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFixup(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"patientÂ\u0092s chart", "patient's chart"},
		{"Â\u0091quotedÂ\u0092", "'quoted'"},
		{"Â\u0093hiÂ\u0094", `"hi"`},
		{"2–3 days", "2-3 days"},
		{"“normal”", `"normal"`},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fixup(tt.in), tt.in)
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode([]byte("caf\xc3\xa9"), "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "café", got)

	got, err = Decode([]byte("\xef\xbb\xbfTEXT"), "")
	require.NoError(t, err)
	assert.Equal(t, "TEXT", got)

	got, err = Decode([]byte("caf\xe9"), "ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "café", got)

	got, err = Decode([]byte("\x93ok\x94"), "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "“ok”", got)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte("caf\xe9"), "utf-8")
	assert.True(t, errors.Is(err, internalerr.ErrEncoding))

	_, err = Decode([]byte("caf\xe9"), "ascii")
	assert.True(t, errors.Is(err, internalerr.ErrEncoding))

	_, err = Decode([]byte("x"), "no-such-charset")
	assert.True(t, errors.Is(err, internalerr.ErrConfiguration))
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "notes.csv", []byte("ROW_ID,TEXT\n1,\"Denies chest pain.\nHTN.\"\n2,“stable”\n3,\n"))

	docs, err := LoadCSV(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Denies chest pain.\nHTN.", `"stable"`, ""}, docs)
}

func TestLoadCSVLatin1(t *testing.T) {
	path := writeFile(t, "notes.csv", []byte("TEXT\ncaf\xe9 au lait spots\n"))

	_, err := LoadCSV(path, Options{})
	assert.True(t, errors.Is(err, internalerr.ErrEncoding))

	docs, err := LoadCSV(path, Options{Encoding: "latin1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"café au lait spots"}, docs)
}

func TestLoadCSVColumn(t *testing.T) {
	path := writeFile(t, "notes.csv", []byte("id,note\n1,fever\n"))

	_, err := LoadCSV(path, Options{})
	assert.True(t, errors.Is(err, internalerr.ErrConfiguration))

	docs, err := LoadCSV(path, Options{TextColumn: "note"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fever"}, docs)
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), Options{})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestLoadJSONL(t *testing.T) {
	path := writeFile(t, "notes.jsonl", []byte(`{"id": 1, "text": "Hypertension – controlled"}

{"id": 2, "text": "<p>No <b>fever</b></p>"}
`))

	docs, err := LoadJSONL(path, Options{StripHTML: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hypertension - controlled", "No fever"}, docs)
}

func TestLoadJSONLErrors(t *testing.T) {
	path := writeFile(t, "notes.jsonl", []byte("{\"text\": \"ok\"}\n{bad\n"))
	_, err := LoadJSONL(path, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
	assert.Contains(t, err.Error(), "line 2")

	path = writeFile(t, "notes.jsonl", []byte("{\"body\": \"ok\"}\n"))
	_, err = LoadJSONL(path, Options{})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))

	docs, err := LoadJSONL(path, Options{TextField: "body"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, docs)
}

func TestLoadDispatch(t *testing.T) {
	csvPath := writeFile(t, "a.csv", []byte("TEXT\none\n"))
	docs, err := Load(csvPath, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, docs)

	_, err = Load(filepath.Join(t.TempDir(), "a.xlsx"), Options{})
	assert.True(t, errors.Is(err, internalerr.ErrConfiguration))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Assessment: HTN", StripHTML("<div>Assessment: <i>HTN</i></div>"))
	assert.Equal(t, "kept", StripHTML("<script>var x = 1;</script>kept"))
	assert.Equal(t, "plain", StripHTML("plain"))
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource([]string{"a", "b"})
	assert.Equal(t, 2, src.Len())

	text, ok := src.Next()
	assert.True(t, ok)
	assert.Equal(t, "a", text)
	assert.Equal(t, 1, src.Remaining())

	text, ok = src.Next()
	assert.True(t, ok)
	assert.Equal(t, "b", text)

	_, ok = src.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, src.Remaining())
}

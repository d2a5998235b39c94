package termset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func corpusIndex() *accumulate.Index {
	idx := accumulate.NewIndex()
	idx.Put(accumulate.ConceptEntry{
		ID:   "C0020538",
		Name: "Hypertensive disease",
		Variants: []accumulate.VariantEntry{
			{Text: "hypertension", Score: 0.98, Count: 12},
			{Text: "HTN", Score: 0.85, Count: 7},
			{Text: "high blood pressure", Score: 0.75, Count: 2},
		},
	})
	idx.Put(accumulate.ConceptEntry{
		ID:       "C0085580",
		Name:     "Essential Hypertension",
		Variants: []accumulate.VariantEntry{{Text: "hypertension", Score: 0.9, Count: 3}},
	})
	idx.Put(accumulate.ConceptEntry{
		ID:       "C0011849",
		Name:     "Diabetes Mellitus",
		Variants: []accumulate.VariantEntry{{Text: "diabetes", Score: 0.99, Count: 5}, {Text: "dm", Score: 0.92, Count: 4}},
	})
	return idx
}

func TestLoadConceptsCSV(t *testing.T) {
	path := writeFile(t, "concepts.csv", "concept,cui\nhypertension,C0020538\ndiabetes,C0011849\nhypertension,C0085580\n")

	got, err := LoadConcepts(path)
	require.NoError(t, err)
	assert.Equal(t, []ConceptOfInterest{
		{Name: "hypertension", CUIs: []string{"C0020538", "C0085580"}},
		{Name: "diabetes", CUIs: []string{"C0011849"}},
	}, got)
}

func TestLoadConceptsJSON(t *testing.T) {
	path := writeFile(t, "concepts.json", `{
  "hypertension": ["C0020538", "C0085580"],
  "diabetes": {"0": "C0011849", "1": null},
  "fever": "C0015967"
}`)

	got, err := LoadConcepts(path)
	require.NoError(t, err)
	assert.Equal(t, []ConceptOfInterest{
		{Name: "hypertension", CUIs: []string{"C0020538", "C0085580"}},
		{Name: "diabetes", CUIs: []string{"C0011849"}},
		{Name: "fever", CUIs: []string{"C0015967"}},
	}, got)
}

func TestLoadConceptsErrors(t *testing.T) {
	_, err := LoadConcepts(writeFile(t, "concepts.txt", "x"))
	assert.True(t, errors.Is(err, internalerr.ErrConfiguration))

	_, err = LoadConcepts(writeFile(t, "concepts.csv", "name,id\na,b\n"))
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))

	_, err = LoadConcepts(writeFile(t, "concepts.json", `["C1"]`))
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

func TestPhraseDict(t *testing.T) {
	concepts := []ConceptOfInterest{
		{Name: "hypertension", CUIs: []string{"C0020538", "C0085580"}},
		{Name: "diabetes", CUIs: []string{"C0011849"}},
		{Name: "fever", CUIs: []string{"C0015967"}},
	}

	got := PhraseDict(corpusIndex(), concepts, nil, 0.8)
	require.Len(t, got, 3)

	assert.Equal(t, "hypertension", got[0].Concept)
	// the later id overwrites the shared spelling's count
	assert.Equal(t, map[string]int{"hypertension": 3, "HTN": 7}, got[0].Counts)
	assert.Equal(t, map[string]int{"diabetes": 5, "dm": 4}, got[1].Counts)
	assert.Empty(t, got[2].Counts)
	assert.Equal(t, "fever", got[2].Concept)
}

func TestPhraseDictSelected(t *testing.T) {
	concepts := []ConceptOfInterest{
		{Name: "hypertension", CUIs: []string{"C0020538"}},
		{Name: "diabetes", CUIs: []string{"C0011849"}},
	}

	got := PhraseDict(corpusIndex(), concepts, []string{"diabetes"}, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "diabetes", got[0].Concept)

	assert.Empty(t, PhraseDict(corpusIndex(), concepts, []string{}, 0))
}

func TestRank(t *testing.T) {
	got := Rank(map[string]int{"htn": 7, "hypertension": 12, "bp high": 7, "hbp": 1})
	assert.Equal(t, []TermCount{
		{Term: "hypertension", Count: 12},
		{Term: "bp high", Count: 7},
		{Term: "htn", Count: 7},
		{Term: "hbp", Count: 1},
	}, got)
}

func TestAddTerms(t *testing.T) {
	got := AddTerms([]string{"htn", "hypertension"}, " high bp ,HTN, htn,,")
	assert.Equal(t, []string{"HTN", "high bp", "htn", "hypertension"}, got)

	assert.Equal(t, []string{"a", "b"}, AddTerms([]string{"b", "a"}, ""))
}

func TestFromCounts(t *testing.T) {
	ts := FromCounts(PhraseCounts{Concept: "dm", Counts: map[string]int{"dm": 4, "diabetes": 5}})
	assert.Equal(t, Termset{Concept: "dm", Terms: []string{"diabetes", "dm"}}, ts)
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Saved Termsets")

	path, err := Save(dir, GeneratedSuffix, Termset{Concept: "hypertension", Terms: []string{"HTN", "hypertension"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "hypertension termset.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"hypertension\": [\n        \"HTN\",\n        \"hypertension\"\n    ]\n}", string(data))

	path, err = Save(dir, ReviewedSuffix, Termset{Concept: "fever"})
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"fever\": []\n}", string(data))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "a_b termset.json", Filename("a/b", GeneratedSuffix))
}

func TestLoadSaved(t *testing.T) {
	path := writeFile(t, "saved.json", `{"hypertension": ["htn", "HTN", "htn", null], "diabetes": ["dm"]}`)

	got, err := LoadSaved(path)
	require.NoError(t, err)
	assert.Equal(t, []Termset{
		{Concept: "diabetes", Terms: []string{"dm"}},
		{Concept: "hypertension", Terms: []string{"HTN", "htn"}},
	}, got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ts := Termset{Concept: "chest pain", Terms: []string{"chest pain", "cp"}}

	path, err := Save(dir, GeneratedSuffix, ts)
	require.NoError(t, err)

	got, err := LoadSaved(path)
	require.NoError(t, err)
	assert.Equal(t, []Termset{ts}, got)
}

func TestExportLexicon(t *testing.T) {
	var buf bytes.Buffer
	err := ExportLexicon(&buf, []Termset{
		{Concept: "hypertension", Terms: []string{"HTN", "hypertension"}},
		{Concept: "fever"},
	})
	require.NoError(t, err)

	var got struct {
		Synonyms []struct {
			Canonical string   `yaml:"canonical"`
			Variants  []string `yaml:"variants"`
		} `yaml:"synonyms"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Synonyms, 2)
	assert.Equal(t, "hypertension", got.Synonyms[0].Canonical)
	assert.Equal(t, []string{"HTN", "hypertension"}, got.Synonyms[0].Variants)
	assert.Empty(t, got.Synonyms[1].Variants)
}

func TestDescribe(t *testing.T) {
	idx := corpusIndex()

	all := Describe(idx, nil)
	assert.Equal(t, []string{
		"C0085580 Essential Hypertension [hypertension]",
		"C0011849 Diabetes Mellitus [diabetes, dm]",
		"C0020538 Hypertensive disease [hypertension, HTN, high blood pressure]",
	}, all)

	some := Describe(idx, []string{"C0011849", "C9999999"})
	assert.Equal(t, []string{"C0011849 Diabetes Mellitus [diabetes, dm]"}, some)
}

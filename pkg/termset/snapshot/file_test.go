package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

func checkpoint(docs int, final bool) accumulate.Checkpoint {
	return accumulate.Checkpoint{
		RunID:     "01HZRUN",
		Documents: docs,
		Final:     final,
		At:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Index:     sampleIndex(),
	}
}

func TestCompressionFor(t *testing.T) {
	assert.Equal(t, CompressionNone, CompressionFor("terms.json"))
	assert.Equal(t, CompressionGzip, CompressionFor("terms.json.gz"))
	assert.Equal(t, CompressionZstd, CompressionFor("terms.json.zst"))
	assert.Equal(t, CompressionZstd, CompressionFor("TERMS.ZSTD"))
}

func TestFileSinkOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.json")
	sink := &FileSink{Path: path}

	require.NoError(t, sink.Write(context.Background(), checkpoint(50, false)))

	cp := checkpoint(100, true)
	cp.Index.Put(accumulate.ConceptEntry{ID: "C9", Name: "Late"})
	require.NoError(t, sink.Write(context.Background(), cp))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := Marshal(cp.Index)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))
}

func TestFileSinkAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terms.json")
	sink := &FileSink{Path: path, Atomic: true}

	require.NoError(t, sink.Write(context.Background(), checkpoint(50, false)))
	require.NoError(t, sink.Write(context.Background(), checkpoint(100, true)))

	idx, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"C0020538", "C0011849"}, idx.IDs())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files left behind")
	assert.Equal(t, "terms.json", entries[0].Name())
}

func TestFileSinkCompressed(t *testing.T) {
	for _, name := range []string{"terms.json.gz", "terms.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			sink := &FileSink{Path: path, Atomic: true}
			require.NoError(t, sink.Write(context.Background(), checkpoint(10, true)))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotEqual(t, byte('{'), raw[0])

			idx, err := OpenFile(path)
			require.NoError(t, err)
			e, ok := idx.Get("C0020538")
			require.True(t, ok)
			assert.Equal(t, "Hypertensive disease", e.Name)
			assert.Len(t, e.Variants, 2)
		})
	}
}

func TestFileSinkExplicitCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.bin")
	sink := &FileSink{Path: path, Compression: CompressionGzip}
	require.NoError(t, sink.Write(context.Background(), checkpoint(10, true)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	idx, err := Read(f, CompressionGzip)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
}

func TestFileSinkProgress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.json")
	sink := &FileSink{Path: path, Progress: true}

	require.NoError(t, sink.Write(context.Background(), checkpoint(50, false)))
	p, err := ReadProgress(path)
	require.NoError(t, err)
	assert.Equal(t, "01HZRUN", p.RunID)
	assert.Equal(t, 50, p.Documents)
	assert.False(t, p.Final)
	assert.True(t, p.WrittenAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	require.NoError(t, sink.Write(context.Background(), checkpoint(75, true)))
	p, err = ReadProgress(path)
	require.NoError(t, err)
	assert.Equal(t, 75, p.Documents)
	assert.True(t, p.Final)
}

func TestFileSinkWriteError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "terms.json")

	for _, atomic := range []bool{false, true} {
		sink := &FileSink{Path: path, Atomic: atomic}
		err := sink.Write(context.Background(), checkpoint(1, true))
		require.Error(t, err)
		assert.True(t, errors.Is(err, internalerr.ErrPersistence))
	}
}

func TestReadUnknownCompression(t *testing.T) {
	_, err := Read(nil, Compression("lz4"))
	assert.True(t, errors.Is(err, internalerr.ErrInvalidInput))
}

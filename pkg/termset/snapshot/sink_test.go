package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/termset/pkg/termset/accumulate"
)

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, accumulate.Checkpoint) error { return f.err }

func TestMemorySink(t *testing.T) {
	var m MemorySink
	_, ok := m.Last()
	assert.False(t, ok)

	require.NoError(t, m.Write(context.Background(), checkpoint(50, false)))
	require.NoError(t, m.Write(context.Background(), checkpoint(60, true)))

	cps := m.Checkpoints()
	require.Len(t, cps, 2)
	assert.Equal(t, 50, cps[0].Documents)

	last, ok := m.Last()
	require.True(t, ok)
	assert.True(t, last.Final)
	assert.Equal(t, 60, last.Documents)
}

func TestMultiSink(t *testing.T) {
	var a, b MemorySink
	path := filepath.Join(t.TempDir(), "terms.json")

	multi := MultiSink{&a, &FileSink{Path: path}, &b}
	require.NoError(t, multi.Write(context.Background(), checkpoint(10, true)))

	assert.Len(t, a.Checkpoints(), 1)
	assert.Len(t, b.Checkpoints(), 1)
	idx, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
}

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	var after MemorySink
	boom := errors.New("boom")

	multi := MultiSink{failingSink{err: boom}, &after}
	err := multi.Write(context.Background(), checkpoint(10, true))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, after.Checkpoints())
}

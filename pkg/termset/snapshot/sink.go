package snapshot

import (
	"context"
	"sync"

	"github.com/cognicore/termset/pkg/termset/accumulate"
)

// MultiSink writes each checkpoint to every sink in order and stops at the
// first error.
type MultiSink []accumulate.Sink

// Write implements accumulate.Sink.
func (m MultiSink) Write(ctx context.Context, cp accumulate.Checkpoint) error {
	for _, s := range m {
		if err := s.Write(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// MemorySink keeps checkpoints in memory. It is used for dry runs and tests.
type MemorySink struct {
	mu          sync.Mutex
	checkpoints []accumulate.Checkpoint
}

// Write implements accumulate.Sink.
func (m *MemorySink) Write(_ context.Context, cp accumulate.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = append(m.checkpoints, cp)
	return nil
}

// Checkpoints returns the recorded checkpoints.
func (m *MemorySink) Checkpoints() []accumulate.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]accumulate.Checkpoint, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}

// Last returns the most recent checkpoint.
func (m *MemorySink) Last() (accumulate.Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.checkpoints) == 0 {
		return accumulate.Checkpoint{}, false
	}
	return m.checkpoints[len(m.checkpoints)-1], true
}

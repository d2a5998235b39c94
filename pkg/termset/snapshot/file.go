package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
)

// Compression selects how a snapshot file is compressed.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// CompressionFor picks the compression implied by a file name.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// FileSink writes every checkpoint to the same path.
type FileSink struct {
	Path string
	// Atomic writes to a temporary file in the same directory and renames
	// it over Path. Without it the file is truncated and rewritten in place.
	Atomic bool
	// Compression defaults to the one implied by Path's extension.
	Compression Compression
	// Progress also writes <Path>.progress.json with the run id and the
	// number of documents the snapshot covers.
	Progress bool
}

// Progress is the sidecar written next to a snapshot file.
type Progress struct {
	RunID     string    `json:"run_id"`
	Documents int       `json:"documents"`
	Final     bool      `json:"final"`
	WrittenAt time.Time `json:"written_at"`
}

// ProgressPath returns the sidecar path for a snapshot path.
func ProgressPath(path string) string { return path + ".progress.json" }

// Write implements accumulate.Sink.
func (s *FileSink) Write(_ context.Context, cp accumulate.Checkpoint) error {
	data, err := Marshal(cp.Index)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", internalerr.ErrPersistence, err)
	}
	data, err = Compress(data, s.compression())
	if err != nil {
		return fmt.Errorf("%w: compress snapshot: %w", internalerr.ErrPersistence, err)
	}
	if err := s.writeFile(s.Path, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", internalerr.ErrPersistence, s.Path, err)
	}

	if s.Progress {
		p, err := json.MarshalIndent(Progress{
			RunID:     cp.RunID,
			Documents: cp.Documents,
			Final:     cp.Final,
			WrittenAt: cp.At.UTC(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("%w: encode progress: %w", internalerr.ErrPersistence, err)
		}
		path := ProgressPath(s.Path)
		if err := s.writeFile(path, append(p, '\n')); err != nil {
			return fmt.Errorf("%w: write %s: %w", internalerr.ErrPersistence, path, err)
		}
	}
	return nil
}

func (s *FileSink) compression() Compression {
	if s.Compression == "" {
		return CompressionFor(s.Path)
	}
	return s.Compression
}

func (s *FileSink) writeFile(path string, data []byte) error {
	if !s.Atomic {
		return os.WriteFile(path, data, 0o644)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Compress applies c to an encoded snapshot.
func Compress(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case CompressionZstd:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
	return buf.Bytes(), nil
}

// Read decodes a snapshot, decompressing according to c.
func Read(r io.Reader, c Compression) (*accumulate.Index, error) {
	switch c {
	case CompressionNone, "":
		return Decode(r)
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", internalerr.ErrInvalidInput, err)
		}
		defer zr.Close()
		return Decode(zr)
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", internalerr.ErrInvalidInput, err)
		}
		defer zr.Close()
		return Decode(zr)
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", internalerr.ErrInvalidInput, c)
	}
}

// OpenFile reads a snapshot file, detecting compression from its name.
func OpenFile(path string) (*accumulate.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, CompressionFor(path))
}

// ReadProgress reads the sidecar written by a FileSink with Progress set.
func ReadProgress(path string) (Progress, error) {
	var p Progress
	data, err := os.ReadFile(ProgressPath(path))
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: progress: %w", internalerr.ErrInvalidInput, err)
	}
	return p, nil
}

// Ext returns the file suffix for c, including the leading ".json".
func (c Compression) Ext() string {
	switch c {
	case CompressionGzip:
		return ".json.gz"
	case CompressionZstd:
		return ".json.zst"
	default:
		return ".json"
	}
}

// Package objectstore uploads index checkpoints to S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cognicore/termset/pkg/termset/accumulate"
	"github.com/cognicore/termset/pkg/termset/internalerr"
	"github.com/cognicore/termset/pkg/termset/snapshot"
)

// LatestName is the object overwritten by every checkpoint.
const LatestName = "latest"

// API is the subset of *minio.Client the sink uses.
type API interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config describes the bucket checkpoints go to.
type Config struct {
	Endpoint    string               `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey   string               `mapstructure:"access_key" yaml:"access_key"`
	SecretKey   string               `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket      string               `mapstructure:"bucket" yaml:"bucket"`
	Prefix      string               `mapstructure:"prefix" yaml:"prefix"`
	Secure      bool                 `mapstructure:"secure" yaml:"secure"`
	Region      string               `mapstructure:"region" yaml:"region"`
	Compression snapshot.Compression `mapstructure:"compression" yaml:"compression"`
}

// Sink writes each checkpoint to <prefix>/<run id><ext> and <prefix>/latest<ext>.
type Sink struct {
	api    API
	bucket string
	prefix string
	comp   snapshot.Compression
}

// New connects a minio client for cfg. No request is made until the first
// write.
func New(cfg Config) (*Sink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: objectstore: endpoint and bucket are required", internalerr.ErrConfiguration)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: objectstore: %w", internalerr.ErrConfiguration, err)
	}
	return NewWithAPI(client, cfg), nil
}

// NewWithAPI builds a sink on an existing client.
func NewWithAPI(api API, cfg Config) *Sink {
	comp := cfg.Compression
	if comp == "" {
		comp = snapshot.CompressionNone
	}
	return &Sink{api: api, bucket: cfg.Bucket, prefix: cfg.Prefix, comp: comp}
}

// Key returns the object name for name.
func (s *Sink) Key(name string) string {
	return path.Join(s.prefix, name+s.comp.Ext())
}

// Write implements accumulate.Sink.
func (s *Sink) Write(ctx context.Context, cp accumulate.Checkpoint) error {
	data, err := snapshot.Marshal(cp.Index)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", internalerr.ErrPersistence, err)
	}
	data, err = snapshot.Compress(data, s.comp)
	if err != nil {
		return fmt.Errorf("%w: compress snapshot: %w", internalerr.ErrPersistence, err)
	}

	opts := minio.PutObjectOptions{
		ContentType: contentType(s.comp),
		UserMetadata: map[string]string{
			"run-id":    cp.RunID,
			"documents": strconv.Itoa(cp.Documents),
			"final":     strconv.FormatBool(cp.Final),
		},
	}
	for _, name := range []string{cp.RunID, LatestName} {
		key := s.Key(name)
		if _, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			return fmt.Errorf("%w: put %s/%s: %w", internalerr.ErrPersistence, s.bucket, key, err)
		}
	}
	return nil
}

func contentType(c snapshot.Compression) string {
	switch c {
	case snapshot.CompressionGzip:
		return "application/gzip"
	case snapshot.CompressionZstd:
		return "application/zstd"
	default:
		return "application/json"
	}
}

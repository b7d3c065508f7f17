// Package storage persists finished query and batch results. Blob stores
// (local filesystem, GCS, memory) receive one JSON document per result;
// database and notification sinks live in their own packages and all satisfy
// serp.ResultSink so they can be combined with Multi.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/vishalm/serp-forge/internal/serp"
)

// BlobWriter uploads one object and returns a URI describing where it landed.
type BlobWriter interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// BlobSink writes results as JSON objects under
// <prefix>/<queries|batches>/YYYY/MM/DD/<id>.json.
type BlobSink struct {
	writer BlobWriter
	prefix string
	logger *zap.Logger
}

// NewBlobSink wraps writer.
func NewBlobSink(writer BlobWriter, prefix string, logger *zap.Logger) *BlobSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobSink{writer: writer, prefix: prefix, logger: logger}
}

// ObjectPath builds the object key for a result of kind created at ts.
func ObjectPath(prefix, kind string, ts time.Time, id string) string {
	return path.Join(prefix, kind, ts.UTC().Format("2006/01/02"), id+".json")
}

// SaveQuery implements serp.ResultSink.
func (s *BlobSink) SaveQuery(ctx context.Context, res *serp.QueryResult) error {
	if res == nil {
		return nil
	}
	_, err := s.put(ctx, "queries", res.Timestamp, res.RequestID, res)
	return err
}

// SaveBatch implements serp.ResultSink.
func (s *BlobSink) SaveBatch(ctx context.Context, res *serp.BatchResult) error {
	if res == nil {
		return nil
	}
	_, err := s.put(ctx, "batches", res.Timestamp, res.BatchID, res)
	return err
}

func (s *BlobSink) put(ctx context.Context, kind string, ts time.Time, id string, v any) (string, error) {
	if id == "" {
		return "", fmt.Errorf("store %s result: id is required", kind)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s result %s: %w", kind, id, err)
	}
	uri, err := s.writer.PutObject(ctx, ObjectPath(s.prefix, kind, ts, id), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store %s result %s: %w", kind, id, err)
	}
	s.logger.Debug("stored result", zap.String("kind", kind), zap.String("id", id), zap.String("uri", uri))
	return uri, nil
}

// NoOpSink discards every result. It backs the "none" storage backend.
type NoOpSink struct{}

// SaveQuery does nothing and always returns nil.
func (NoOpSink) SaveQuery(context.Context, *serp.QueryResult) error { return nil }

// SaveBatch does nothing and always returns nil.
func (NoOpSink) SaveBatch(context.Context, *serp.BatchResult) error { return nil }

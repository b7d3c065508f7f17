package storage

import (
	"context"
	"errors"

	"github.com/vishalm/serp-forge/internal/serp"
)

// Multi fans results out to every sink. One failing sink does not stop the
// others; their errors are joined.
type Multi struct {
	sinks []serp.ResultSink
}

// NewMulti drops nil sinks.
func NewMulti(sinks ...serp.ResultSink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len is the number of wrapped sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// SaveQuery implements serp.ResultSink.
func (m *Multi) SaveQuery(ctx context.Context, res *serp.QueryResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.SaveQuery(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveBatch implements serp.ResultSink.
func (m *Multi) SaveBatch(ctx context.Context, res *serp.BatchResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.SaveBatch(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

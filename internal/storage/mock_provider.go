package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vishalm/serp-forge/internal/serp"
)

// MockSink is a testify mock of serp.ResultSink.
type MockSink struct {
	mock.Mock
}

// SaveQuery records the call.
func (m *MockSink) SaveQuery(ctx context.Context, res *serp.QueryResult) error {
	args := m.Called(ctx, res)
	return args.Error(0) //nolint:wrapcheck
}

// SaveBatch records the call.
func (m *MockSink) SaveBatch(ctx context.Context, res *serp.BatchResult) error {
	args := m.Called(ctx, res)
	return args.Error(0) //nolint:wrapcheck
}

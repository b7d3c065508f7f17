// Package postgres persists finished results as rows with a JSONB payload.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vishalm/serp-forge/internal/serp"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "search_results"

// Result kinds stored in the kind column.
const (
	KindQuery = "query"
	KindBatch = "batch"
)

// ResultStoreConfig controls the Postgres connection pool used for result rows.
type ResultStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultStore writes one row per query or batch result.
type ResultStore struct {
	pool  execCloser
	table string
}

// NewResultStore creates a Postgres-backed ResultStore using the provided config.
func NewResultStore(ctx context.Context, cfg ResultStoreConfig) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ResultStore{pool: pool, table: table}, nil
}

// NewResultStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewResultStoreWithPool(pool execCloser, table string) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ResultStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the results table when it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	query         TEXT NOT NULL,
	search_type   TEXT NOT NULL,
	success       BOOLEAN NOT NULL,
	total_results INTEGER NOT NULL,
	scraped       INTEGER NOT NULL,
	error_message TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	payload       JSONB NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create results table: %w", err)
	}
	return nil
}

// SaveQuery implements serp.ResultSink.
func (s *ResultStore) SaveQuery(ctx context.Context, res *serp.QueryResult) error {
	if res == nil {
		return nil
	}
	return s.insert(ctx, row{
		id:           res.RequestID,
		kind:         KindQuery,
		query:        res.Query,
		searchType:   string(res.SearchType),
		success:      res.Success,
		totalResults: res.TotalResults,
		scraped:      res.ScrapedSuccessfully,
		errorMessage: res.ErrorMessage,
		createdAt:    res.Timestamp,
	}, res)
}

// SaveBatch implements serp.ResultSink. Batch rows leave query and search_type empty.
func (s *ResultStore) SaveBatch(ctx context.Context, res *serp.BatchResult) error {
	if res == nil {
		return nil
	}
	return s.insert(ctx, row{
		id:           res.BatchID,
		kind:         KindBatch,
		success:      res.Success,
		totalResults: res.TotalResults,
		scraped:      res.TotalScraped,
		errorMessage: res.ErrorMessage,
		createdAt:    res.Timestamp,
	}, res)
}

type row struct {
	id           string
	kind         string
	query        string
	searchType   string
	success      bool
	totalResults int
	scraped      int
	errorMessage string
	createdAt    time.Time
}

func (s *ResultStore) insert(ctx context.Context, r row, payload any) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	if r.id == "" {
		return fmt.Errorf("%s id is required", r.kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", r.kind, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	kind,
	query,
	search_type,
	success,
	total_results,
	scraped,
	error_message,
	created_at,
	payload
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`, s.table)

	args := []any{
		r.id,
		r.kind,
		r.query,
		r.searchType,
		r.success,
		r.totalResults,
		r.scraped,
		r.errorMessage,
		r.createdAt,
		data,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s result: %w", r.kind, err)
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/vishalm/serp-forge/internal/serp"
)

func TestSaveQueryInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "results")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	res := serp.NewQueryResult("req-1", "golang", serp.SearchNews, now)
	res.Success = true
	res.TotalResults = 3
	res.ScrapedSuccessfully = 2
	payload, err := json.Marshal(res)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO results").
		WithArgs("req-1", KindQuery, "golang", "news", true, 3, 2, "", now, payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveQuery(context.Background(), res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBatchInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	res := &serp.BatchResult{
		BatchID:      "batch-1",
		Timestamp:    now,
		Success:      true,
		TotalResults: 10,
		TotalScraped: 7,
	}
	payload, err := json.Marshal(res)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO search_results").
		WithArgs("batch-1", KindBatch, "", "", true, 10, 7, "", now, payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveBatch(context.Background(), res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveQueryWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "results")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO results").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = store.SaveQuery(context.Background(), serp.NewQueryResult("req-2", "q", serp.SearchWeb, time.Now()))
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRejectsMissingID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "results")
	require.NoError(t, err)

	err = store.SaveBatch(context.Background(), &serp.BatchResult{})
	require.ErrorContains(t, err, "batch id is required")
	require.NoError(t, store.SaveQuery(context.Background(), nil))
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewResultStoreWithPool(mock, "results")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS results").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewResultStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewResultStoreWithPool(nil, "results")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewResultStoreWithPool(mock, "bad-name;drop")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewResultStore(context.Background(), ResultStoreConfig{})
	require.ErrorContains(t, err, "postgres_dsn is required")

	_, err = NewResultStore(context.Background(), ResultStoreConfig{DSN: "postgres://localhost/db", Table: "1bad"})
	require.ErrorContains(t, err, "invalid table name")
}

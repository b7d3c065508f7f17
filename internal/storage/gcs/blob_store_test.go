package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.ErrorContains(t, err, "bucket name is required")

	store, err := New(client, Config{Bucket: "results"})
	require.NoError(t, err)
	require.NoError(t, store.Close(), "borrowed clients are not closed")

	_, err = store.PutObject(context.Background(), "  ", "application/json", nil)
	require.ErrorContains(t, err, "path is required")
}

func TestOpenRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	require.ErrorContains(t, err, "bucket name is required")
}

func TestPutObjectUploadsToBucket(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		uploads []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		uploads = append(uploads, r.URL.Path+" "+string(body))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bucket":"results","name":"2025-01-02/query/req-1.json"}`))
	}))
	defer srv.Close()

	client, err := storage.NewClient(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "results"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "2025-01-02/query/req-1.json", "application/json",
		strings.NewReader(`{"request_id":"req-1"}`))
	require.NoError(t, err)
	require.Equal(t, "gs://results/2025-01-02/query/req-1.json", uri)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, uploads, 1)
	require.Contains(t, uploads[0], "/b/results/o")
	require.Contains(t, uploads[0], `{"request_id":"req-1"}`)
	require.Contains(t, uploads[0], `"producer":"serpforge"`)
}

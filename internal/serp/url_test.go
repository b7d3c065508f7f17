package serp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"trailing slash", "https://example.com/news/", "https://example.com/news"},
		{"root", "https://example.com/", "https://example.com"},
		{"case and port", "HTTPS://Example.COM:443/Path", "https://example.com/Path"},
		{"fragment", "http://example.com:80/a#top", "http://example.com/a"},
		{"query kept", "https://example.com/a/?q=1", "https://example.com/a?q=1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	t.Parallel()

	_, err := NormalizeURL("/just/a/path")
	require.Error(t, err)
	_, err = NormalizeURL("")
	require.Error(t, err)
}

func TestDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", Domain("https://www.Example.com/a"))
	assert.Equal(t, "news.example.com", Domain("https://news.example.com"))
	assert.Equal(t, "", Domain("://bad"))
}

func TestUpstreamErrorRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, (&UpstreamError{StatusCode: 429}).Retryable())
	assert.True(t, (&UpstreamError{StatusCode: 503}).Retryable())
	assert.True(t, (&UpstreamError{Message: "timeout"}).Retryable())
	assert.False(t, (&UpstreamError{StatusCode: 401}).Retryable())
	assert.Contains(t, (&UpstreamError{StatusCode: 429, Message: "Too Many Requests"}).Error(), "429")
}

func TestFetchErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("dial tcp: timeout")
	err := error(&FetchError{URL: "https://example.com", Err: inner})
	require.ErrorIs(t, err, inner)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "https://example.com", fe.URL)
}

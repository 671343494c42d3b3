package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/regalsync/errors"
)

func newTestClient(t *testing.T, baseURL string, retries int) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:     baseURL,
		MaxRetries:  retries,
		BaseBackoff: time.Millisecond,
		UserAgent:   "regalsync-test",
		Username:    "admin",
		Password:    "secret",
		Logger:      zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return c
}

func TestDo_SendsAuthAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "regalsync-test", r.UserAgent())
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.Equal(t, "/api/resource/edoweb:1", r.URL.Path)
		assert.Equal(t, "hbz", r.URL.Query().Get("snid"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/api", 0)
	resp, err := c.Do(context.Background(), Request{
		Method:      http.MethodPut,
		Path:        "/resource/edoweb:1",
		Query:       url.Values{"snid": {"hbz"}},
		Body:        BytesBody([]byte("payload")),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "again", string(body), "body must be resent on retry")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	_, err := c.Do(context.Background(), Request{Method: http.MethodPut, Path: "/x", Body: BytesBody([]byte("again"))})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	_, err := c.Do(context.Background(), Request{Path: "/x"})
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_PostIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/utils/addUrn"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusNotFound, errors.ErrNotFound},
		{http.StatusUnauthorized, errors.ErrUnauthorized},
		{http.StatusForbidden, errors.ErrUnauthorized},
		{http.StatusConflict, errors.ErrConflict},
		{http.StatusBadRequest, errors.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("detail"))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 0)
			_, err := c.Do(context.Background(), Request{Path: "/resource/x"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "detail", statusErr.Body)
		})
	}
}

func TestDo_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Do(ctx, Request{Path: "/x"})
	require.Error(t, err)
}

func TestDo_ClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, err := New(Options{
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
		Logger:  zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Path: "/slow"})
	require.Error(t, err)
	assert.True(t, errors.IsTimeoutError(err))
	assert.True(t, errors.IsServiceUnavailableError(err))
}

func TestDo_LongErrorBodyIsTruncated(t *testing.T) {
	body := strings.Repeat("a", maxExcerpt-1) + strings.Repeat("ü", 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(body))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0)
	_, err := c.Do(context.Background(), Request{Path: "/x"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, utf8.ValidString(statusErr.Body))
	assert.Equal(t, strings.Repeat("a", maxExcerpt-1)+"...", statusErr.Body)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "a...", truncate("aé", 2))
	assert.Equal(t, "aé...", truncate("aéz", 3))
}

func TestResolveAndValidate(t *testing.T) {
	c, err := New(Options{BaseURL: "http://repo.example/api/"})
	require.NoError(t, err)

	u, err := c.Resolve("/resource/edoweb:9/parts", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://repo.example/api/resource/edoweb:9/parts", u.String())

	abs, err := c.Resolve("https://files.example/x.pdf", nil)
	require.NoError(t, err)
	assert.Equal(t, "files.example", abs.Host)

	_, err = c.Resolve("file:///etc/passwd", nil)
	assert.Error(t, err)

	_, err = c.Resolve("http://user:pw@evil.example/", nil)
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "gopher://old.example"})
	assert.Error(t, err)

	noBase, err := New(Options{})
	require.NoError(t, err)
	_, err = noBase.Resolve("/relative", nil)
	assert.Error(t, err)
}

package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/internal/httpclient"
)

type recorded struct {
	Method      string
	Path        string
	Query       string
	ContentType string
	Body        string
	User        string
}

type fakeRepo struct {
	mu       sync.Mutex
	requests []recorded
	status   map[string]int
	bodies   map[string]string
}

func (f *fakeRepo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, _, _ := r.BasicAuth()
	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
		User:        user,
	})
	key := r.Method + " " + r.URL.Path
	status, ok := f.status[key]
	out := f.bodies[key]
	f.mu.Unlock()
	if !ok {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, out)
}

func (f *fakeRepo) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T) (*Client, *fakeRepo) {
	t.Helper()
	fake := &fakeRepo{status: map[string]int{}, bodies: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	hc, err := httpclient.New(httpclient.Options{
		BaseURL:     srv.URL,
		Username:    "edoweb-admin",
		Password:    "secret",
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return NewClient(hc, zaptest.NewLogger(t).Sugar()), fake
}

func TestCreateOrUpdateResource(t *testing.T) {
	c, fake := newTestClient(t)
	err := c.CreateOrUpdateResource(context.Background(), Resource{
		PID:          entity.NewPID("edoweb", "1001"),
		Type:         entity.TypeVolume,
		ParentPID:    entity.NewPID("edoweb", "1000"),
		CreatedBy:    "regalsync",
		ImportedFrom: "digitool",
		LegacyID:     "1001",
	})
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/resource/edoweb:1001", req.Path)
	assert.Equal(t, "application/json", req.ContentType)
	assert.Equal(t, "edoweb-admin", req.User)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &doc))
	assert.Equal(t, "volume", doc["contentType"])
	assert.Equal(t, "edoweb:1000", doc["parentPid"])
	assert.Equal(t, "public", doc["accessScheme"])
	assert.Equal(t, "public", doc["publishScheme"])
	described := doc["isDescribedBy"].(map[string]any)
	assert.Equal(t, "1001", described["legacyId"])
}

func TestTopLevelResourceHasNoParent(t *testing.T) {
	c, fake := newTestClient(t)
	require.NoError(t, c.CreateOrUpdateResource(context.Background(), Resource{
		PID:  entity.NewPID("edoweb", "1000"),
		Type: entity.TypeJournal,
	}))
	assert.NotContains(t, fake.last().Body, "parentPid")
}

func TestAttachDataStream(t *testing.T) {
	c, fake := newTestClient(t)
	path := filepath.Join(t.TempDir(), "article.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))

	err := c.AttachDataStream(context.Background(), entity.NewPID("edoweb", "7"), entity.Stream{
		Kind:     entity.StreamData,
		Path:     path,
		FileName: "article.pdf",
		MimeType: "application/pdf",
	})
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, "/resource/edoweb:7/data", req.Path)
	assert.Contains(t, req.ContentType, "multipart/form-data; boundary=")
	assert.Contains(t, req.Body, `name="data"; filename="article.pdf"`)
	assert.Contains(t, req.Body, "Content-Type: application/pdf")
	assert.Contains(t, req.Body, "%PDF-1.4 test")
}

func TestAttachDataStreamRetriesWithSameBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Contains(t, string(body), "payload")
	}))
	defer srv.Close()

	hc, err := httpclient.New(httpclient.Options{BaseURL: srv.URL, MaxRetries: 2, BaseBackoff: time.Millisecond})
	require.NoError(t, err)
	c := NewClient(hc, nil)

	require.NoError(t, c.AttachDataStream(context.Background(), entity.NewPID("edoweb", "1"),
		entity.Stream{Path: path}))
	assert.Equal(t, 2, calls)
}

func TestAttachDataStreamMissingFile(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.AttachDataStream(context.Background(), entity.NewPID("edoweb", "1"),
		entity.Stream{Path: filepath.Join(t.TempDir(), "gone.pdf")})
	require.Error(t, err)
}

func TestSetMetadataAndSequence(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	pid := entity.NewPID("edoweb", "5")

	require.NoError(t, c.SetMetadata(ctx, pid, "<a> <b> \"c\" .\n"))
	req := fake.last()
	assert.Equal(t, "/resource/edoweb:5/metadata", req.Path)
	assert.Contains(t, req.ContentType, "text/plain")
	assert.Equal(t, "<a> <b> \"c\" .\n", req.Body)

	require.NoError(t, c.CreateOrderedSequence(ctx, pid, []entity.PID{
		entity.NewPID("edoweb", "6"), entity.NewPID("edoweb", "7"),
	}))
	req = fake.last()
	assert.Equal(t, "/resource/edoweb:5/parts", req.Path)
	assert.JSONEq(t, `["edoweb:6","edoweb:7"]`, req.Body)
}

func TestAddCatalogIdentifier(t *testing.T) {
	c, fake := newTestClient(t)
	require.NoError(t, c.AddCatalogIdentifier(context.Background(), entity.NewPID("edoweb", "9"), "hbz:929:02"))

	req := fake.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/utils/addUrn", req.Path)
	assert.Contains(t, req.Query, "id=9")
	assert.Contains(t, req.Query, "namespace=edoweb")
	assert.Contains(t, req.Query, "snid=hbz%3A929%3A02")
}

func TestAddCatalogIdentifierConflictIsSuccess(t *testing.T) {
	c, fake := newTestClient(t)
	fake.status["POST /utils/addUrn"] = http.StatusConflict
	assert.NoError(t, c.AddCatalogIdentifier(context.Background(), entity.NewPID("edoweb", "9"), "hbz:929:02"))
}

func TestAutoGenerateMetadata(t *testing.T) {
	c, fake := newTestClient(t)
	require.NoError(t, c.AutoGenerateMetadata(context.Background(), entity.NewPID("edoweb", "3"), []string{"HT012345"}))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.requests, 2)
	assert.Equal(t, "/resource/edoweb:3/dc", fake.requests[0].Path)
	assert.JSONEq(t, `{"identifier":["HT012345"]}`, fake.requests[0].Body)
	assert.Equal(t, "/utils/lobidify/edoweb:3", fake.requests[1].Path)
}

func TestDeleteNotFound(t *testing.T) {
	c, fake := newTestClient(t)
	fake.status["DELETE /resource/edoweb:404"] = http.StatusNotFound

	err := c.Delete(context.Background(), entity.NewPID("edoweb", "404"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestReadAndExists(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	fake.bodies["GET /resource/edoweb:2"] = `{"contentType":"issue","parentPid":"edoweb:1","accessScheme":"public","publishScheme":"public","isDescribedBy":{"legacyId":"2"}}`
	fake.status["GET /resource/edoweb:3"] = http.StatusNotFound

	r, err := c.Read(ctx, entity.NewPID("edoweb", "2"))
	require.NoError(t, err)
	assert.Equal(t, entity.TypeIssue, r.Type)
	assert.Equal(t, "edoweb:1", r.ParentPID.String())
	assert.Equal(t, "2", r.LegacyID)

	ok, err := c.Exists(ctx, entity.NewPID("edoweb", "2"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, entity.NewPID("edoweb", "3"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		constraint string
		wantErr    bool
	}{
		{"json body satisfied", `{"version":"2.3.1"}`, ">= 2.0.0, < 3.0.0", false},
		{"plain body satisfied", "2.0.0\n", "^2", false},
		{"too old", `{"version":"1.9.0"}`, ">= 2.0.0", true},
		{"empty constraint skips", "garbage", "", false},
		{"unparseable", "not-a-version", ">= 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestClient(t)
			fake.bodies["GET /version"] = tt.body
			err := c.CheckVersion(context.Background(), tt.constraint)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInitContentModels(t *testing.T) {
	c, fake := newTestClient(t)
	require.NoError(t, c.InitContentModels(context.Background(), "edoweb"))
	req := fake.last()
	assert.Equal(t, "/utils/initContentModels", req.Path)
	assert.Equal(t, "namespace=edoweb", req.Query)
}

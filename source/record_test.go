package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/internal/httpclient"
)

func TestParse(t *testing.T) {
	rec, err := Parse([]byte(`{
		"pid": "5086631",
		"partition": "EJO01",
		"is_parent": true,
		"relations": [
			{"relation": "part_of", "pid": "5086632", "order": 2},
			{"relation": "manifestation_of", "pid": "9"},
			{"relation": "part_of", "pid": "5086633"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "EJO01", rec.Partition)
	assert.True(t, rec.IsParent)
	assert.Equal(t, []string{"5086632", "5086633"}, rec.PartPIDs())
	require.NotNil(t, rec.Relations[0].Order)
	assert.Equal(t, 2, *rec.Relations[0].Order)

	_, err = Parse([]byte(`{"label": "no pid"}`))
	assert.Error(t, err)
	_, err = Parse([]byte(`{`))
	assert.Error(t, err)
}

func TestStreamFileName(t *testing.T) {
	tests := []struct {
		ref  StreamRef
		want string
	}{
		{StreamRef{File: "article.pdf"}, "article.pdf"},
		{StreamRef{File: "../../etc/passwd"}, "passwd"},
		{StreamRef{URL: "http://dtl.example/files/scan.zip?x=1"}, "scan.zip"},
		{StreamRef{Kind: "DATA"}, "data"},
		{StreamRef{}, "stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ref.FileName())
	}
}

func TestLayout(t *testing.T) {
	root := CacheDir("/cache", "123")
	assert.Equal(t, filepath.Join("/cache", "123"), root)
	assert.Equal(t, filepath.Join(root, "124.json"), RecordPath(root, "124"))
	assert.Equal(t, filepath.Join(root, "streams", "124", "a.pdf"), StreamPath(root, "124", StreamRef{File: "a.pdf"}))
	assert.Equal(t, filepath.Join("/cache", "a_b"), CacheDir("/cache", "a/b"))
}

func TestFetchRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/records/42" {
			w.Write([]byte(`{"pid":"42"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	hc, err := httpclient.New(httpclient.Options{BaseURL: server.URL})
	require.NoError(t, err)
	c := NewClient(hc)

	data, err := c.FetchRecord(context.Background(), "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pid":"42"}`, string(data))

	_, err = c.FetchRecord(context.Background(), "43")
	assert.True(t, errors.IsNotFoundError(err))
}

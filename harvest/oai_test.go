package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/internal/httpclient"
	regaltest "github.com/teranos/regalsync/internal/testing"
)

const pageOne = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListIdentifiers>
    <header><identifier>oai:digitool.hbz-nrw.de:3</identifier></header>
    <header status="deleted"><identifier>oai:digitool.hbz-nrw.de:99</identifier></header>
    <header><identifier>oai:digitool.hbz-nrw.de:1</identifier></header>
    <resumptionToken cursor="0">page2</resumptionToken>
  </ListIdentifiers>
</OAI-PMH>`

const pageTwo = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListIdentifiers>
    <header><identifier>oai:digitool.hbz-nrw.de:2</identifier></header>
    <header><identifier>oai:digitool.hbz-nrw.de:1</identifier></header>
    <resumptionToken/>
  </ListIdentifiers>
</OAI-PMH>`

const noRecords = `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <error code="noRecordsMatch">nothing changed</error>
</OAI-PMH>`

type oaiServer struct {
	*httptest.Server
	requests []map[string]string
}

func newOAIServer(t *testing.T, respond func(q map[string]string) string) *oaiServer {
	s := &oaiServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		s.requests = append(s.requests, q)
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, respond(q))
	}))
	t.Cleanup(s.Close)
	return s
}

func newHarvester(t *testing.T, srv *oaiServer, store CheckpointStore) *OAIHarvester {
	client, err := httpclient.New(httpclient.Options{BaseURL: srv.URL, BaseBackoff: time.Millisecond})
	require.NoError(t, err)
	h := NewOAIHarvester(client, "/oai", store, zaptest.NewLogger(t).Sugar())
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestHarvest_FollowsResumptionTokens(t *testing.T) {
	srv := newOAIServer(t, func(q map[string]string) string {
		if q["resumptionToken"] == "page2" {
			return pageTwo
		}
		return pageOne
	})
	h := newHarvester(t, srv, nil)

	ids, err := h.Harvest(context.Background(), Request{Sets: []string{"edoweb"}, FromScratch: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1", "2"}, ids)

	require.Len(t, srv.requests, 2)
	assert.Equal(t, "ListIdentifiers", srv.requests[0]["verb"])
	assert.Equal(t, "edoweb", srv.requests[0]["set"])
	assert.Equal(t, "oai_dc", srv.requests[0]["metadataPrefix"])
	assert.Empty(t, srv.requests[0]["from"])
	// a resumption request carries only the token
	assert.Empty(t, srv.requests[1]["set"])
}

func TestHarvest_IncrementalUsesCheckpoint(t *testing.T) {
	store := NewSQLCheckpointStore(regaltest.CreateTestDB(t))
	ctx := context.Background()
	prior := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, "/oai", "edoweb", prior))

	srv := newOAIServer(t, func(map[string]string) string { return noRecords })
	h := newHarvester(t, srv, store)

	ids, err := h.Harvest(ctx, Request{Sets: []string{"edoweb"}})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, "2026-02-01T08:30:00Z", srv.requests[0]["from"])

	at, ok, err := store.Get(ctx, "/oai", "edoweb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), "checkpoint advanced to harvest start, got %s", at)
}

func TestHarvest_FromScratchIgnoresCheckpoint(t *testing.T) {
	store := NewSQLCheckpointStore(regaltest.CreateTestDB(t))
	require.NoError(t, store.Put(context.Background(), "/oai", "", time.Now()))

	srv := newOAIServer(t, func(map[string]string) string { return pageTwo })
	h := newHarvester(t, srv, store)

	ids, err := h.Harvest(context.Background(), Request{FromScratch: true, Strategy: IdentityStrategy{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"oai:digitool.hbz-nrw.de:2", "oai:digitool.hbz-nrw.de:1"}, ids)
	assert.Empty(t, srv.requests[0]["from"])
	assert.Empty(t, srv.requests[0]["set"])
}

func TestHarvest_MultipleSetsDeduplicate(t *testing.T) {
	srv := newOAIServer(t, func(q map[string]string) string {
		if q["set"] == "b" {
			return pageTwo
		}
		return noRecords
	})
	h := newHarvester(t, srv, nil)

	ids, err := h.Harvest(context.Background(), Request{Sets: ParseSets("a, b,,"), FromScratch: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids)
}

func TestHarvest_FailureIsFatalAndKeepsCheckpoint(t *testing.T) {
	store := NewSQLCheckpointStore(regaltest.CreateTestDB(t))
	srv := newOAIServer(t, func(map[string]string) string {
		return `<OAI-PMH><error code="badArgument">bad set</error></OAI-PMH>`
	})
	h := newHarvester(t, srv, store)

	_, err := h.Harvest(context.Background(), Request{Sets: []string{"x"}})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "badArgument")

	_, ok, err := store.Get(context.Background(), "/oai", "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHarvest_MalformedXML(t *testing.T) {
	srv := newOAIServer(t, func(map[string]string) string { return "<html>maintenance" })
	h := newHarvester(t, srv, nil)

	_, err := h.Harvest(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestStrategies(t *testing.T) {
	assert.Equal(t, "1750717", DigitoolStrategy{}.LocalID("oai:digitool.hbz-nrw.de:1750717"))
	assert.Equal(t, "plain", DigitoolStrategy{}.LocalID("plain"))
	assert.Equal(t, "a:b", IdentityStrategy{}.LocalID(" a:b "))
	assert.IsType(t, IdentityStrategy{}, StrategyByName("identity"))
	assert.IsType(t, DigitoolStrategy{}, StrategyByName(""))
	assert.Nil(t, ParseSets(" , "))
}

func TestHarvest_ReadOnlyCheckpointsDoNotAdvance(t *testing.T) {
	store := NewSQLCheckpointStore(regaltest.CreateTestDB(t))
	ctx := context.Background()
	prior := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, "/oai", "edoweb", prior))

	srv := newOAIServer(t, func(map[string]string) string { return noRecords })
	h := newHarvester(t, srv, ReadOnly(store))

	_, err := h.Harvest(ctx, Request{Sets: []string{"edoweb"}})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T08:30:00Z", srv.requests[0]["from"])

	at, ok, err := store.Get(ctx, "/oai", "edoweb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(prior))
}

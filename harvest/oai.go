// Package harvest lists the identifiers a sync run works on, using the
// OAI-PMH ListIdentifiers verb of the legacy source system.
package harvest

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/internal/httpclient"
)

// DateLayout is the OAI-PMH seconds granularity used for the from argument
const DateLayout = "2006-01-02T15:04:05Z"

// Request selects what to harvest
type Request struct {
	Sets           []string // empty = whole repository
	FromScratch    bool     // ignore the stored checkpoint
	Strategy       IDStrategy
	MetadataFormat string
}

// Harvester produces the candidate identifiers of a run
type Harvester interface {
	Harvest(ctx context.Context, req Request) ([]string, error)
}

// OAIHarvester harvests with ListIdentifiers and follows resumption tokens
type OAIHarvester struct {
	client      *httpclient.Client
	endpoint    string
	checkpoints CheckpointStore
	logger      *zap.SugaredLogger
	now         func() time.Time
}

// NewOAIHarvester creates a harvester. checkpoints may be nil, in which case
// every harvest is a full one.
func NewOAIHarvester(client *httpclient.Client, endpoint string, checkpoints CheckpointStore, logger *zap.SugaredLogger) *OAIHarvester {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &OAIHarvester{
		client:      client,
		endpoint:    endpoint,
		checkpoints: checkpoints,
		logger:      logger,
		now:         time.Now,
	}
}

type oaiResponse struct {
	XMLName         xml.Name `xml:"OAI-PMH"`
	Error           *oaiError `xml:"error"`
	ListIdentifiers *struct {
		Headers []struct {
			Status     string `xml:"status,attr"`
			Identifier string `xml:"identifier"`
		} `xml:"header"`
		ResumptionToken string `xml:"resumptionToken"`
	} `xml:"ListIdentifiers"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// Harvest returns local identifiers in the order the endpoint reported them.
// Identifiers seen in an earlier set are not repeated. Any failure is fatal
// for the run; checkpoints only advance when every set succeeded.
func (h *OAIHarvester) Harvest(ctx context.Context, req Request) ([]string, error) {
	if req.Strategy == nil {
		req.Strategy = DigitoolStrategy{}
	}
	if req.MetadataFormat == "" {
		req.MetadataFormat = "oai_dc"
	}
	sets := req.Sets
	if len(sets) == 0 {
		sets = []string{""}
	}

	startedAt := h.now().UTC()
	seen := make(map[string]bool)
	var ids []string

	for _, set := range sets {
		var from time.Time
		if !req.FromScratch && h.checkpoints != nil {
			at, ok, err := h.checkpoints.Get(ctx, h.endpoint, set)
			if err != nil {
				return nil, errors.MarkFatal(err)
			}
			if ok {
				from = at
			}
		}

		setIDs, err := h.listIdentifiers(ctx, set, from, req.MetadataFormat)
		if err != nil {
			return nil, errors.MarkFatal(errors.Wrapf(err, "harvest of set %q failed", set))
		}

		for _, oaiID := range setIDs {
			id := req.Strategy.LocalID(oaiID)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}

		h.logger.Infow("Harvested set",
			"set", set,
			"from", formatFrom(from),
			"count", len(setIDs),
		)
	}

	if h.checkpoints != nil {
		for _, set := range sets {
			if err := h.checkpoints.Put(ctx, h.endpoint, set, startedAt); err != nil {
				return nil, errors.MarkFatal(err)
			}
		}
	}

	return ids, nil
}

func (h *OAIHarvester) listIdentifiers(ctx context.Context, set string, from time.Time, prefix string) ([]string, error) {
	query := url.Values{
		"verb":           {"ListIdentifiers"},
		"metadataPrefix": {prefix},
	}
	if set != "" {
		query.Set("set", set)
	}
	if !from.IsZero() {
		query.Set("from", from.UTC().Format(DateLayout))
	}

	var ids []string
	for page := 1; ; page++ {
		resp, err := h.client.Do(ctx, httpclient.Request{
			Method: http.MethodGet,
			Path:   h.endpoint,
			Query:  query,
			Accept: "text/xml",
		})
		if err != nil {
			return nil, err
		}

		var parsed oaiResponse
		if err := xml.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, errors.Wrapf(err, "malformed OAI-PMH response on page %d", page)
		}
		if parsed.Error != nil {
			if parsed.Error.Code == "noRecordsMatch" {
				return ids, nil
			}
			return nil, errors.Newf("OAI-PMH error %s: %s", parsed.Error.Code, parsed.Error.Message)
		}
		if parsed.ListIdentifiers == nil {
			return nil, errors.Newf("OAI-PMH response on page %d has no ListIdentifiers", page)
		}

		for _, header := range parsed.ListIdentifiers.Headers {
			if header.Status == "deleted" {
				continue
			}
			ids = append(ids, header.Identifier)
		}

		token := parsed.ListIdentifiers.ResumptionToken
		if token == "" {
			return ids, nil
		}
		query = url.Values{
			"verb":            {"ListIdentifiers"},
			"resumptionToken": {token},
		}
	}
}

func formatFrom(t time.Time) string {
	if t.IsZero() {
		return "beginning"
	}
	return t.Format(DateLayout)
}

package source

import (
	"context"
	"net/http"
	"net/url"

	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/internal/httpclient"
)

// Client fetches raw records from the legacy record API
type Client struct {
	http *httpclient.Client
}

// NewClient wraps a transport configured with the source base URL
func NewClient(http *httpclient.Client) *Client {
	return &Client{http: http}
}

// FetchRecord returns the raw JSON record of pid. A missing record is
// reported as errors.ErrNotFound.
func (c *Client) FetchRecord(ctx context.Context, pid string) ([]byte, error) {
	resp, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/records/" + url.PathEscape(pid),
		Accept: "application/json",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch record %s", pid)
	}
	return resp.Body, nil
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/teranos/regalsync/entity"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/internal/httpclient"
)

// Client is the REST client for the target repository
type Client struct {
	http   *httpclient.Client
	logger *zap.SugaredLogger
}

// NewClient wraps a transport configured with the repository endpoint and
// credentials.
func NewClient(http *httpclient.Client, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{http: http, logger: logger}
}

func resourcePath(pid entity.PID, sub ...string) string {
	p := "/resource/" + url.PathEscape(pid.String())
	for _, s := range sub {
		p += "/" + s
	}
	return p
}

func (c *Client) putJSON(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}
	_, err = c.http.Do(ctx, httpclient.Request{
		Method:      http.MethodPut,
		Path:        path,
		Body:        httpclient.BytesBody(body),
		ContentType: "application/json",
		Accept:      "application/json",
	})
	return err
}

// CreateOrUpdateResource upserts the object record
func (c *Client) CreateOrUpdateResource(ctx context.Context, r Resource) error {
	if err := c.putJSON(ctx, resourcePath(r.PID), toDoc(r)); err != nil {
		return errors.Wrapf(err, "failed to write resource %s", r.PID)
	}
	return nil
}

// AttachDataStream uploads the local file of s as the DATA stream of pid
func (c *Client) AttachDataStream(ctx context.Context, pid entity.PID, s entity.Stream) error {
	if _, err := os.Stat(s.Path); err != nil {
		return errors.Wrapf(err, "data stream of %s", pid)
	}
	name := s.FileName
	if name == "" {
		name = filepath.Base(s.Path)
	}
	mimeType := s.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()
	build := func() (io.Reader, error) {
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "data stream of %s", pid)
		}
		defer f.Close()

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.SetBoundary(boundary); err != nil {
			return nil, err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="data"; filename="`+escapeQuotes(name)+`"`)
		h.Set("Content-Type", mimeType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		return &buf, nil
	}

	_, err := c.http.Do(ctx, httpclient.Request{
		Method:      http.MethodPut,
		Path:        resourcePath(pid, "data"),
		Body:        build,
		ContentType: "multipart/form-data; boundary=" + boundary,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upload data stream of %s", pid)
	}
	return nil
}

// SetMetadata replaces the descriptive metadata of pid with N-Triples
func (c *Client) SetMetadata(ctx context.Context, pid entity.PID, ntriples string) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Method:      http.MethodPut,
		Path:        resourcePath(pid, "metadata"),
		Body:        httpclient.BytesBody([]byte(ntriples)),
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set metadata of %s", pid)
	}
	return nil
}

// CreateOrderedSequence replaces the ordered part list of pid
func (c *Client) CreateOrderedSequence(ctx context.Context, pid entity.PID, children []entity.PID) error {
	seq := make([]string, len(children))
	for i, child := range children {
		seq[i] = child.String()
	}
	if err := c.putJSON(ctx, resourcePath(pid, "parts"), seq); err != nil {
		return errors.Wrapf(err, "failed to write sequence of %s", pid)
	}
	return nil
}

// AddCatalogIdentifier mints a URN for pid under the given subnamespace.
// A conflict means the URN already exists and is not an error.
func (c *Client) AddCatalogIdentifier(ctx context.Context, pid entity.PID, subnamespace string) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/utils/addUrn",
		Query: url.Values{
			"id":        {pid.ID},
			"namespace": {pid.Namespace},
			"snid":      {subnamespace},
		},
	})
	if errors.Is(err, errors.ErrConflict) {
		c.logger.Debugw("URN already present", "pid", pid.String())
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to add URN to %s", pid)
	}
	return nil
}

// CreateDiscoverySet registers pid with the OAI-PMH provider sets
func (c *Client) CreateDiscoverySet(ctx context.Context, pid entity.PID) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   resourcePath(pid, "oaisets"),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create OAI sets for %s", pid)
	}
	return nil
}

// AutoGenerateMetadata stores the catalog identifiers of pid as Dublin Core
// and asks the repository to enrich the metadata from the catalog.
func (c *Client) AutoGenerateMetadata(ctx context.Context, pid entity.PID, identifiers []string) error {
	dc := struct {
		Identifier []string `json:"identifier"`
	}{Identifier: identifiers}
	if dc.Identifier == nil {
		dc.Identifier = []string{}
	}
	if err := c.putJSON(ctx, resourcePath(pid, "dc"), dc); err != nil {
		return errors.Wrapf(err, "failed to write identifiers of %s", pid)
	}
	_, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/utils/lobidify/" + url.PathEscape(pid.String()),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to generate metadata for %s", pid)
	}
	return nil
}

// Delete removes pid and, server side, its parts
func (c *Client) Delete(ctx context.Context, pid entity.PID) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodDelete,
		Path:   resourcePath(pid),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete %s", pid)
	}
	return nil
}

// Read fetches the object record of pid
func (c *Client) Read(ctx context.Context, pid entity.PID) (*Resource, error) {
	resp, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   resourcePath(pid),
		Accept: "application/json",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", pid)
	}
	var doc resourceDoc
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, errors.Wrapf(err, "invalid resource document for %s", pid)
	}
	r := fromDoc(pid, doc)
	return &r, nil
}

// Exists reports whether pid is present in the repository
func (c *Client) Exists(ctx context.Context, pid entity.PID) (bool, error) {
	_, err := c.Read(ctx, pid)
	if errors.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InitContentModels installs the content models of namespace. Needed once
// per fresh repository.
func (c *Client) InitContentModels(ctx context.Context, namespace string) error {
	_, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/utils/initContentModels",
		Query:  url.Values{"namespace": {namespace}},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to init content models for %s", namespace)
	}
	return nil
}

// Version returns the API version reported by the repository
func (c *Client) Version(ctx context.Context) (*semver.Version, error) {
	resp, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/version",
		Accept: "application/json",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query repository version")
	}
	raw := strings.TrimSpace(string(resp.Body))
	var doc struct {
		Version string `json:"version"`
	}
	if json.Unmarshal(resp.Body, &doc) == nil && doc.Version != "" {
		raw = doc.Version
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "repository reported unparseable version %q", raw)
	}
	return v, nil
}

// CheckVersion fails fatally when the repository API does not satisfy
// constraint. An empty constraint skips the check.
func (c *Client) CheckVersion(ctx context.Context, constraint string) error {
	if constraint == "" {
		return nil
	}
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.MarkFatal(errors.Wrapf(err, "invalid repository.api_version constraint %q", constraint))
	}
	v, err := c.Version(ctx)
	if err != nil {
		return errors.MarkFatal(err)
	}
	if !cons.Check(v) {
		err := errors.Newf("repository API %s does not satisfy %s", v, constraint)
		return errors.MarkFatal(errors.WithHint(err, "upgrade the repository or relax repository.api_version"))
	}
	c.logger.Debugw("Repository version accepted", "version", v.String(), "constraint", constraint)
	return nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

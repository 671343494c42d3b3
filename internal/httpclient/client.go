// Package httpclient is the HTTP transport shared by the source and
// repository clients: base URL resolution, basic auth, rate limiting,
// bounded retries with exponential backoff and status-to-error mapping.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/regalsync/errors"
)

// Options configures a Client. Zero values pick conservative defaults.
type Options struct {
	BaseURL           string
	Timeout           time.Duration // default 60s
	RequestsPerSecond float64       // 0 = unlimited
	MaxRetries        int
	BaseBackoff       time.Duration // first retry delay, doubled per attempt; default 1s
	UserAgent         string
	Username          string
	Password          string
	AllowedSchemes    []string // default http, https
	MaxRedirects      int      // default 10
	Logger            *zap.SugaredLogger
}

// Client wraps http.Client with the policies above
type Client struct {
	http    *http.Client
	base    *url.URL
	opts    Options
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// New creates a Client. An invalid BaseURL is reported here rather than on
// the first request.
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if len(opts.AllowedSchemes) == 0 {
		opts.AllowedSchemes = []string{"http", "https"}
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	c := &Client{
		opts:   opts,
		logger: opts.Logger,
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}

	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.Wrapf(err, "invalid base URL %q", opts.BaseURL)
		}
		if err := c.validateURL(base); err != nil {
			return nil, err
		}
		c.base = base
	}

	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	c.http = &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= c.opts.MaxRedirects {
				return errors.Newf("stopped after %d redirects", c.opts.MaxRedirects)
			}
			if err := c.validateURL(req.URL); err != nil {
				return errors.Wrap(err, "redirect blocked")
			}
			return nil
		},
	}
	return c, nil
}

// Request describes one call. Body is a factory so a retry can resend it.
type Request struct {
	Method      string
	Path        string // relative to BaseURL, or absolute
	Query       url.Values
	Body        func() (io.Reader, error)
	ContentType string
	Accept      string
}

// Response is a fully read response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BytesBody returns a Body factory for a fixed payload
func BytesBody(b []byte) func() (io.Reader, error) {
	return func() (io.Reader, error) { return bytes.NewReader(b), nil }
}

// StatusError is returned for non-2xx responses. It is marked with the
// matching sentinel from the errors package (ErrNotFound, ErrUnauthorized, ...).
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := e.Method + " " + e.URL + ": " + http.StatusText(e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Resolve turns a request path into an absolute URL
func (c *Client) Resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid request path %q", path)
	}
	var u *url.URL
	switch {
	case ref.IsAbs():
		u = ref
	case c.base != nil:
		u = c.base.ResolveReference(&url.URL{Path: strings.TrimLeft(ref.Path, "/"), RawQuery: ref.RawQuery})
	default:
		return nil, errors.Newf("relative path %q without base URL", path)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do executes req, retrying transport errors, 429 and 5xx for idempotent
// methods. Non-2xx responses are returned as *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	u, err := c.Resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	attempts := 1
	if isIdempotent(req.Method) {
		attempts += c.opts.MaxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * c.opts.BaseBackoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "request cancelled during backoff")
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "rate limiter")
			}
		}

		resp, err := c.once(ctx, req, u)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Debugw("Retrying request",
			"method", req.Method,
			"url", u.Redacted(),
			"attempt", i+1,
			"error", err,
		)
	}
	if attempts > 1 {
		return nil, errors.Wrapf(lastErr, "after %d retries", attempts-1)
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, req Request, u *url.URL) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := req.Body()
		if err != nil {
			return nil, errors.Wrap(err, "failed to build request body")
		}
		body = b
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if c.opts.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if c.opts.Username != "" {
		httpReq.SetBasicAuth(c.opts.Username, c.opts.Password)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(errors.Wrapf(err, "%s %s", req.Method, u.Redacted()))
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read response body"), errors.ErrServiceUnavailable)
	}

	c.logger.Debugw("HTTP request",
		"method", req.Method,
		"url", u.Redacted(),
		"status", httpResp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, statusError(req.Method, u, httpResp.StatusCode, data)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// transportError marks a failed round trip as unavailable, and also as a
// timeout when the client or the caller's deadline expired.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		err = errors.Mark(err, errors.ErrTimeout)
	}
	return errors.Mark(err, errors.ErrServiceUnavailable)
}

const maxExcerpt = 200

func statusError(method string, u *url.URL, status int, body []byte) error {
	excerpt := truncate(strings.TrimSpace(string(body)), maxExcerpt)
	err := error(&StatusError{Method: method, URL: u.Redacted(), StatusCode: status, Body: excerpt})

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return errors.Mark(err, errors.ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Mark(err, errors.ErrUnauthorized)
	case status == http.StatusConflict:
		return errors.Mark(err, errors.ErrConflict)
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.Mark(err, errors.ErrServiceUnavailable)
	default:
		return errors.Mark(err, errors.ErrInvalidRequest)
	}
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func retryable(err error) bool {
	return errors.Is(err, errors.ErrServiceUnavailable)
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// validateURL rejects schemes outside the allow list and userinfo in URLs;
// credentials travel in the Authorization header only.
func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.opts.AllowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.opts.AllowedSchemes)
	}
	if u.User != nil {
		return errors.New("URL must not embed credentials")
	}
	if u.Hostname() == "" {
		return errors.New("URL missing hostname")
	}
	return nil
}

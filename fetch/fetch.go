// Package fetch is the network gateway used by every remote lookup: catalog
// batches, service metadata, and raw layer files. Each call merges the
// caller's context with an optional per-call timeout and reports failures as
// typed transport errors.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
)

const logPrefix = "fetch:gateway"

var (
	// ErrTimeout reports that the per-call timeout fired first. Callers may retry.
	ErrTimeout = errors.New("fetch: timed out")
	// ErrCanceled reports that the caller's context ended the request.
	ErrCanceled = errors.New("fetch: canceled")
	// ErrEmptyBody reports a successful response without content.
	ErrEmptyBody = errors.New("fetch: empty body")
	// ErrDecode reports a body that could not be parsed in the requested format.
	ErrDecode = errors.New("fetch: undecodable body")
)

// errTimeoutCause tags the context the gateway creates for a timeout so the
// two cancellation sources can be told apart.
var errTimeoutCause = errors.New("fetch: per-call timeout")

// HTTPStatusError is returned for any non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetch: %s returned HTTP %d", e.URL, e.StatusCode)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the default per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// CallOption adjusts a single request.
type CallOption func(*call)

type call struct {
	timeout time.Duration
	query   url.Values
	prefix  int64
}

// Timeout overrides the client's timeout for one call. Zero disables it.
func Timeout(d time.Duration) CallOption {
	return func(c *call) {
		c.timeout = d
	}
}

// Query adds query parameters to the request URL.
func Query(key string, values ...string) CallOption {
	return func(c *call) {
		if c.query == nil {
			c.query = url.Values{}
		}
		for _, v := range values {
			c.query.Add(key, v)
		}
	}
}

// Prefix asks for the first n bytes of the resource with a Range header and
// stops reading after n bytes, whether or not the server honors the range.
func Prefix(n int64) CallOption {
	return func(c *call) {
		if n > 0 {
			c.prefix = n
		}
	}
}

// Client performs cancellable GET requests.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
	headers http.Header
}

// DefaultTimeout applies when no timeout option is given.
const DefaultTimeout = 30 * time.Second

// New builds a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		headers: http.Header{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// FetchJSON decodes a JSON response into out.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, out any, opts ...CallOption) error {
	body, err := c.get(ctx, rawURL, "application/json", opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: json from %s: %v", ErrDecode, rawURL, err)
	}
	return nil
}

// FetchXML decodes an XML response into out.
func (c *Client) FetchXML(ctx context.Context, rawURL string, out any, opts ...CallOption) error {
	body, err := c.get(ctx, rawURL, "application/xml, text/xml", opts)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: xml from %s: %v", ErrDecode, rawURL, err)
	}
	return nil
}

// FetchText returns the response body as a string.
func (c *Client) FetchText(ctx context.Context, rawURL string, opts ...CallOption) (string, error) {
	body, err := c.get(ctx, rawURL, "text/plain, */*", opts)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchBlob returns the raw response body.
func (c *Client) FetchBlob(ctx context.Context, rawURL string, opts ...CallOption) ([]byte, error) {
	return c.get(ctx, rawURL, "*/*", opts)
}

func (c *Client) get(parent context.Context, rawURL, accept string, opts []CallOption) ([]byte, error) {
	if parent == nil {
		parent = context.Background()
	}
	cfg := call{timeout: c.timeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	target, err := withQuery(rawURL, cfg.query)
	if err != nil {
		return nil, geoview.NewTransportError("fetch", rawURL, err)
	}

	ctx := parent
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(parent, cfg.timeout, errTimeoutCause)
		defer cancel()
	}

	start := time.Now()
	body, err := c.do(ctx, target, accept, cfg.prefix)
	if err != nil {
		err = classify(parent, ctx, err)
		c.logger.Debug(fmt.Sprintf("%s - GET %s failed after %s: %v", logPrefix, target, time.Since(start), err))
		return nil, geoview.NewTransportError("fetch", target, err)
	}
	c.logger.Debug(fmt.Sprintf("%s - GET %s (%d bytes) in %s", logPrefix, target, len(body), time.Since(start)))
	return body, nil
}

func (c *Client) do(ctx context.Context, target, accept string, prefix int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", accept)
	if prefix > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", prefix-1))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: target}
	}
	var src io.Reader = resp.Body
	if prefix > 0 {
		src = io.LimitReader(resp.Body, prefix)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// classify maps context failures to ErrTimeout or ErrCanceled depending on
// which context fired first.
func classify(parent, ctx context.Context, err error) error {
	var status *HTTPStatusError
	if errors.As(err, &status) || errors.Is(err, ErrEmptyBody) {
		return err
	}
	if ctx.Err() != nil && errors.Is(context.Cause(ctx), errTimeoutCause) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCanceled, context.Cause(parent))
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func withQuery(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if len(query) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for key, values := range query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package polygon is a caching, self-retrying client for the Polygon
// reference-data API.
package polygon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/briangreenhill/tickerscope/cache"
	"github.com/briangreenhill/tickerscope/internal/apierr"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.polygon.io"
	DefaultTimeout = 10 * time.Second

	TickersPath = "/v3/reference/tickers"

	// ReferenceTTL applies to the tickers endpoint, EndpointTTL to every other GET
	ReferenceTTL = 30 * time.Minute
	EndpointTTL  = 5 * time.Minute
)

var ErrAPIKeyRequired = errors.New("polygon: apiKey required")

type Client struct {
	http    *http.Client
	baseURL *url.URL
	apiKey  string
	timeout time.Duration

	mem        *cache.Store
	persister  cache.Persister
	cache      *cache.Layered
	refTTL     time.Duration
	defaultTTL time.Duration
	offline    bool
	pageSize   int

	log zerolog.Logger

	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	extraRequest         []RequestInterceptor
	extraResponse        []ResponseInterceptor
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil && raw != "" {
			c.baseURL = u
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCache shares a memory store between clients
func WithCache(s *cache.Store) Option {
	return func(c *Client) { c.mem = s }
}

// WithPersister adds a persistent tier behind the memory store
func WithPersister(p cache.Persister) Option {
	return func(c *Client) { c.persister = p }
}

// WithTTL overrides the reference and default endpoint TTLs. Zero keeps the default.
func WithTTL(reference, other time.Duration) Option {
	return func(c *Client) {
		if reference > 0 {
			c.refTTL = reference
		}
		if other > 0 {
			c.defaultTTL = other
		}
	}
}

// WithOfflineFallback serves expired cached pages when the upstream fails
// with a retryable error.
func WithOfflineFallback(enabled bool) Option {
	return func(c *Client) { c.offline = enabled }
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRequestInterceptor appends fn after the built-in request interceptors
func WithRequestInterceptor(fn RequestInterceptor) Option {
	return func(c *Client) { c.extraRequest = append(c.extraRequest, fn) }
}

// WithResponseInterceptor appends fn after the built-in response interceptors
func WithResponseInterceptor(fn ResponseInterceptor) Option {
	return func(c *Client) { c.extraResponse = append(c.extraResponse, fn) }
}

func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL:    u,
		apiKey:     apiKey,
		timeout:    DefaultTimeout,
		refTTL:     ReferenceTTL,
		defaultTTL: EndpointTTL,
		pageSize:   100,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	c.log = c.log.With().Str("component", "polygon").Logger()
	c.cache = cache.NewLayered(c.mem, c.persister, c.log)
	c.mem = c.cache.Memory()

	c.requestInterceptors = append([]RequestInterceptor{c.lookupCache, c.injectAuth}, c.extraRequest...)
	c.responseInterceptors = append([]ResponseInterceptor{c.serveCached, c.storeResponse}, c.extraResponse...)
	return c, nil
}

// Cache returns the client's memory tier
func (c *Client) Cache() *cache.Store {
	return c.mem
}

// Do runs req through the interceptor chain. Exactly one of the results is
// non-nil; a failure is always a *RequestError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, req, retryContext{})
}

// Get is Do for a GET of p with params
func (c *Client) Get(ctx context.Context, p string, params cache.Params) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: p, Params: params})
}

func (c *Client) do(ctx context.Context, orig *Request, rc retryContext) (*Response, error) {
	req := orig
	var err error
	for _, ic := range c.requestInterceptors {
		if req, err = ic(ctx, req); err != nil {
			return nil, c.fail(orig, rc, err)
		}
	}

	resp, err := c.send(ctx, req)
	if err == nil {
		for _, ic := range c.responseInterceptors {
			if resp, err = ic(ctx, resp); err != nil {
				break
			}
		}
	}
	if err == nil {
		return resp, nil
	}

	if !rc.retried() {
		next := rc.next()
		c.log.Debug().Err(err).Str("path", orig.Path).Int("attempt", next.attempt).Msg("Retrying request")
		return c.do(ctx, orig, next)
	}

	if fallback, ok := c.offlineFallback(ctx, req, err); ok {
		return fallback, nil
	}
	return nil, c.fail(orig, rc, err)
}

func (c *Client) fail(req *Request, rc retryContext, err error) error {
	apierr.Log(c.log, err, req.Method+" "+req.Path)

	re := &RequestError{
		Info:       apierr.Classify(err),
		RetryCount: rc.attempt,
		Err:        err,
	}
	var resp *apierr.ResponseError
	if errors.As(err, &resp) {
		re.Status = resp.Status
	}
	return re
}

func (c *Client) offlineFallback(ctx context.Context, req *Request, err error) (*Response, bool) {
	if !c.offline || !req.isGET() || !apierr.Classify(err).Retryable {
		return nil, false
	}
	data, ok := c.cache.Stale(ctx, req.cacheKey)
	if !ok {
		return nil, false
	}
	c.log.Warn().Err(err).Str("key", req.cacheKey).Msg("Serving stale cache entry")
	return &Response{Status: http.StatusOK, Header: http.Header{}, Body: data, Request: req, Stale: true}, true
}

// send issues the HTTP call. Transport failures come back as
// *apierr.NetworkError, non-2xx statuses as *apierr.ResponseError.
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", req.Method).Str("path", req.Path).Bool("cached", req.cacheHit).Msg("API request")

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, &apierr.NetworkError{Code: apierr.CodeNetwork, Err: err}
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, &apierr.NetworkError{Code: apierr.CodeNetwork, Err: err}
	}
	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return nil, apierr.NewResponseError(hresp.StatusCode, data)
	}

	return &Response{
		Status:  hresp.StatusCode,
		Header:  hresp.Header,
		Body:    json.RawMessage(data),
		Request: req,
	}, nil
}

// resolve builds the wire URL. An absolute Path (a pagination cursor) is used
// verbatim apart from the wire params, which are merged into its query.
func (c *Client) resolve(req *Request) (string, error) {
	var u url.URL
	if strings.HasPrefix(req.Path, "http://") || strings.HasPrefix(req.Path, "https://") {
		parsed, err := url.Parse(req.Path)
		if err != nil {
			return "", fmt.Errorf("parse cursor %q: %w", req.Path, err)
		}
		u = *parsed
	} else {
		u = *c.baseURL
		u.Path = path.Join(u.Path, req.Path)
	}

	q := u.Query()
	for k, vs := range req.wireParams().Values() {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) ttlFor(p string) time.Duration {
	if strings.Contains(p, TickersPath) {
		return c.refTTL
	}
	return c.defaultTTL
}

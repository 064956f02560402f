package polygon

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/briangreenhill/tickerscope/cache"
	"github.com/briangreenhill/tickerscope/internal/apierr"
)

// Request is what callers hand to Do. Interceptors never mutate a Request;
// they return a modified copy.
type Request struct {
	Method string
	// Path is relative to the base URL, or an absolute cursor URL
	Path   string
	Params cache.Params
	Header http.Header
	Body   []byte

	// set by the built-in interceptors
	auth     string
	cacheKey string
	cacheHit bool
	cached   json.RawMessage
}

func (r *Request) clone() *Request {
	cp := *r
	cp.Params = r.Params.Clone()
	if r.Header != nil {
		cp.Header = r.Header.Clone()
	}
	return &cp
}

func (r *Request) isGET() bool {
	return r.Method == "" || strings.EqualFold(r.Method, http.MethodGet)
}

// CacheHit reports whether the response body will come from the cache
func (r *Request) CacheHit() bool { return r.cacheHit }

// CacheKey is the key the request is cached under ("" for non-GET)
func (r *Request) CacheKey() string { return r.cacheKey }

// wireParams are the params sent upstream: the caller's plus the credential
func (r *Request) wireParams() cache.Params {
	p := r.Params.Clone()
	if r.auth != "" {
		p[cache.AuthParam] = r.auth
	}
	return p
}

// Response is a successful upstream reply after the response interceptors ran
type Response struct {
	Status  int
	Header  http.Header
	Body    json.RawMessage
	Request *Request

	// Stale marks a body served from an expired cache entry
	Stale bool
}

type (
	RequestInterceptor  func(ctx context.Context, req *Request) (*Request, error)
	ResponseInterceptor func(ctx context.Context, resp *Response) (*Response, error)
)

// retryContext travels with one originating request through its retries
type retryContext struct {
	attempt int
}

func (rc retryContext) retried() bool { return rc.attempt > 0 }

func (rc retryContext) next() retryContext { return retryContext{attempt: rc.attempt + 1} }

// RequestError is the classified failure of a request after its automatic retry
type RequestError struct {
	Info       apierr.Info
	RetryCount int
	// Status is the upstream HTTP status, 0 when no response arrived
	Status int
	Err    error
}

func (e *RequestError) Error() string { return e.Info.Message }

func (e *RequestError) Unwrap() error { return e.Err }

// lookupCache marks GETs that have a fresh cached payload. The key is built
// from the caller's params only, before the credential is injected.
func (c *Client) lookupCache(ctx context.Context, req *Request) (*Request, error) {
	if !req.isGET() {
		return req, nil
	}
	out := req.clone()
	out.cacheKey = cache.GenerateKey(req.Path, req.Params)
	if data, ok := c.cache.Lookup(ctx, out.cacheKey); ok {
		out.cacheHit = true
		out.cached = data
		c.log.Debug().Str("key", out.cacheKey).Msg("Serving from cache")
	}
	return out, nil
}

func (c *Client) injectAuth(_ context.Context, req *Request) (*Request, error) {
	out := req.clone()
	out.auth = c.apiKey
	return out, nil
}

// serveCached swaps in the cached body; status and headers are kept
func (c *Client) serveCached(_ context.Context, resp *Response) (*Response, error) {
	if resp.Request == nil || !resp.Request.cacheHit {
		return resp, nil
	}
	out := *resp
	out.Body = resp.Request.cached
	return &out, nil
}

// storeResponse caches fresh GET bodies under the caller-params key
func (c *Client) storeResponse(ctx context.Context, resp *Response) (*Response, error) {
	req := resp.Request
	if req == nil || req.cacheHit || !req.isGET() {
		return resp, nil
	}
	key := cache.GenerateKey(req.Path, req.Params.Without(cache.AuthParam))
	c.cache.Save(ctx, key, resp.Body, c.ttlFor(req.Path))
	c.log.Debug().Str("key", key).Msg("Cached response")
	return resp, nil
}

package streamcache

import (
	"context"
	"io"
	"net/http"
)

// FetchResult is the Go realization of spec section 4.5's HTTP Fetcher
// contract: "{ data, status_code, fail, error, redirected_url,
// get_header(name), finalize() }". Data is read fully into memory here
// (ranged fetches are capped at BlockSize, whole-mode fetches are by
// definition small live fragments — spec section 1 scopes this engine to
// bounded block/fragment fetches, not arbitrarily large streamed bodies).
type FetchResult struct {
	Data          []byte
	StatusCode    int
	Fail          bool
	Err           error
	RedirectedURL string
	Header        http.Header
}

// GetHeader returns the named response header, or "" if absent.
func (r *FetchResult) GetHeader(name string) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(name)
}

// Finalize releases any transport resources held by the result. The
// default Fetcher already fully drains and closes the response body before
// returning, so this is a no-op kept for symmetry with the spec contract
// and for Fetcher implementations that stream lazily.
func (r *FetchResult) Finalize() {}

// Fetcher is the external HTTP collaborator (spec section 4.5, component
// E). The core only ever calls Fetch; TLS, connection reuse, and redirect
// following are explicitly out of scope (spec section 1) and left to
// whatever *http.Client the Fetcher wraps.
type Fetcher interface {
	Fetch(ctx context.Context, session *http.Client, url string, headers map[string]string) *FetchResult
}

// httpFetcher is the default Fetcher, built directly on net/http.Client.
type httpFetcher struct {
	client *http.Client
}

func newHTTPFetcher() *httpFetcher {
	return &httpFetcher{client: &http.Client{}}
}

func (f *httpFetcher) Fetch(ctx context.Context, session *http.Client, url string, headers map[string]string) *FetchResult {
	client := session
	if client == nil {
		client = f.client
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchResult{Fail: true, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &FetchResult{Fail: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchResult{Fail: true, Err: err, StatusCode: resp.StatusCode}
	}

	redirected := url
	if resp.Request != nil && resp.Request.URL != nil {
		redirected = resp.Request.URL.String()
	}

	return &FetchResult{
		Data:          data,
		StatusCode:    resp.StatusCode,
		RedirectedURL: redirected,
		Header:        resp.Header,
	}
}

func statusIsSuccess(code int) bool { return code >= 200 && code < 300 }

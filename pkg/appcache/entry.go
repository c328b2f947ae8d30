package appcache

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Entry is a stored response.
type Entry struct {
	// Key identifies the entry within its cache, see RequestKey.
	Key      string      `json:"key"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"-"`
	StoredAt time.Time   `json:"storedAt"`
}

// Source tells where a Response came from.
type Source int

const (
	SourceCache Source = iota
	SourceNetwork
	// SourceError marks a synthetic network-error response.
	SourceError
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	default:
		return "error"
	}
}

// Response is the outcome of a Worker fetch.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}

// IsError reports whether the response is a network error, i.e. neither the
// cache nor the network could answer.
func (r *Response) IsError() bool { return r.Source == SourceError }

// OK reports whether Status is in the 2xx range.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

func errorResponse() *Response {
	return &Response{Header: http.Header{}, Source: SourceError}
}

func (e *Entry) response() *Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &Response{Status: e.Status, Header: h, Body: e.Body, Source: SourceCache}
}

// RequestKey builds the cache key for a request method and a request URI
// (path and optional query).
func RequestKey(method, uri string) string {
	if method == "" {
		method = http.MethodGet
	}
	if uri == "" {
		uri = "/"
	}
	return strings.ToUpper(method) + " " + uri
}

// relaxedKey drops the method and query string from a key.
func relaxedKey(key string) string {
	_, uri, ok := strings.Cut(key, " ")
	if !ok {
		uri = key
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	return uri
}

var scopeRoot = &url.URL{Path: "/"}

// ResolveAsset turns a manifest path such as "./index.html" into the request
// URI it is served under.
func ResolveAsset(asset string) (string, error) {
	ref, err := url.Parse(asset)
	if err != nil {
		return "", err
	}
	return scopeRoot.ResolveReference(ref).RequestURI(), nil
}

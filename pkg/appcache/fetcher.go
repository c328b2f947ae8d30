package appcache

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
)

// MaxBodySize bounds the response bodies read from the network.
const MaxBodySize = 32 << 20

// hopHeaders are not forwarded to the origin.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Fetcher performs live network requests.
type Fetcher interface {
	// Fetch sends req, whose URL is relative to the scope root. Any HTTP
	// response, whatever its status, is a success; only transport failures
	// return an error.
	Fetch(ctx context.Context, req *http.Request) (*Response, error)
}

// HTTPFetcher fetches from an origin base URL.
type HTTPFetcher struct {
	Client *http.Client
	Origin *url.URL
}

// NewHTTPFetcher creates a fetcher for origin. A nil client selects
// http.DefaultClient.
func NewHTTPFetcher(client *http.Client, origin string) (*HTTPFetcher, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("invalid origin %q: missing scheme", origin)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client, Origin: u}, nil
}

// NewFSFetcher serves fsys as the origin through http.NewFileTransport.
func NewFSFetcher(fsys fs.FS) *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{Transport: http.NewFileTransport(http.FS(fsys))},
		Origin: &url.URL{Scheme: "file", Path: "/"},
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	target := f.resolve(req.URL)
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, err
	}
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	resp, err := f.Client.Do(out)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("read %s: body exceeds %d bytes", target, MaxBodySize)
	}
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
		Source: SourceNetwork,
	}, nil
}

// resolve maps a scope-relative URL onto the origin, keeping the origin's
// base path.
func (f *HTTPFetcher) resolve(u *url.URL) *url.URL {
	ref := &url.URL{Path: u.Path, RawQuery: u.RawQuery}
	if len(ref.Path) > 0 && ref.Path[0] == '/' {
		ref.Path = ref.Path[1:]
	}
	base := *f.Origin
	if base.Path == "" || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}
	return base.ResolveReference(ref)
}

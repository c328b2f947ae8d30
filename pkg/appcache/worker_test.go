package appcache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/meditate001/meditate/pkg/logger"
	"github.com/spf13/afero"
)

var errOffline = errors.New("network unreachable")

// fakeNetwork answers from a fixed table of bodies keyed by path. Paths
// missing from the table get a 404.
type fakeNetwork struct {
	mu      sync.Mutex
	bodies  map[string]string
	failAll bool
	fail    map[string]bool
	calls   []string
}

func newFakeNetwork(bodies map[string]string) *fakeNetwork {
	return &fakeNetwork{bodies: bodies, fail: map[string]bool{}}
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req.URL.RequestURI())
	if n.failAll || n.fail[req.URL.Path] {
		return nil, errOffline
	}
	body, ok := n.bodies[req.URL.Path]
	if !ok {
		return &Response{Status: http.StatusNotFound, Header: http.Header{}, Source: SourceNetwork}, nil
	}
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
		Source: SourceNetwork,
	}, nil
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	n.failAll = v
	n.mu.Unlock()
}

func newTestWorker(t *testing.T, version string, assets []string, net Fetcher) (*Worker, Storage) {
	t.Helper()
	store, err := NewFSStorage(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorker(WorkerOptions{
		Manifest: Manifest{Version: version, Assets: assets},
		Storage:  store,
		Network:  net,
	})
	return w, store
}

func cacheKeys(t *testing.T, s Storage, name string) []string {
	t.Helper()
	c, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	keys, err := c.Keys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

func get(t *testing.T, uri string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, uri, nil)
}

func TestWorker_InstallStoresEveryAsset(t *testing.T) {
	net := newFakeNetwork(map[string]string{"/a": "A", "/b": "B"})
	w, store := newTestWorker(t, "v1", []string{"/a", "/b"}, net)

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if w.State() != StateInstalled {
		t.Fatalf("State() = %v, want installed", w.State())
	}
	keys := cacheKeys(t, store, "v1")
	if len(keys) != 2 || keys[0] != "GET /a" || keys[1] != "GET /b" {
		t.Fatalf("cache keys = %v, want [GET /a GET /b]", keys)
	}
}

func TestWorker_InstallIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name       string
		fail       bool
		wantStatus int
	}{
		{"not found", false, http.StatusNotFound},
		{"network error", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := newFakeNetwork(map[string]string{"/a": "A"})
			if tt.fail {
				net.bodies["/b"] = "B"
				net.fail["/b"] = true
			}
			w, store := newTestWorker(t, "v1", []string{"/a", "/b"}, net)

			err := w.Install(context.Background())
			if err == nil {
				t.Fatal("Install() should fail")
			}
			var ie *InstallError
			if !errors.As(err, &ie) {
				t.Fatalf("error %v is not an InstallError", err)
			}
			if ie.Asset != "/b" || ie.Status != tt.wantStatus {
				t.Fatalf("InstallError = %+v", ie)
			}
			if tt.fail && !errors.Is(err, errOffline) {
				t.Fatalf("error %v does not wrap the network error", err)
			}
			if w.State() != StateRedundant {
				t.Fatalf("State() = %v, want redundant", w.State())
			}
			if keys := cacheKeys(t, store, "v1"); len(keys) != 0 {
				t.Fatalf("partial install stored %v", keys)
			}
			if err := w.Activate(context.Background()); !errors.Is(err, ErrNotInstalled) {
				t.Fatalf("Activate() after failed install = %v, want ErrNotInstalled", err)
			}
		})
	}
}

func TestWorker_ActivateBeforeInstall(t *testing.T) {
	w, _ := newTestWorker(t, "v1", nil, newFakeNetwork(nil))
	if err := w.Activate(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("Activate() = %v, want ErrNotInstalled", err)
	}
}

func TestWorker_ActivateSweepsStaleCaches(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(map[string]string{"/a": "A"})
	w, store := newTestWorker(t, "meditate-v2", []string{"/a"}, net)
	for _, name := range []string{"meditate-v0", "meditate-v1"} {
		if _, err := store.Open(ctx, name); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.Install(ctx); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	names, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "meditate-v2" {
		t.Fatalf("caches after activate = %v, want [meditate-v2]", names)
	}
	if w.State() != StateActivated {
		t.Fatalf("State() = %v, want activated", w.State())
	}
	// Activating again is harmless.
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("second Activate() error: %v", err)
	}
}

func TestWorker_Fetch(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(map[string]string{"/": "shell", "/app.js": "js"})
	w, _ := newTestWorker(t, "v1", []string{"./", "./app.js"}, net)
	if err := w.Install(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatal(err)
	}

	t.Run("cache hit while offline", func(t *testing.T) {
		net.setOffline(true)
		defer net.setOffline(false)
		resp := w.Fetch(ctx, get(t, "/app.js"))
		if resp.Source != SourceCache || string(resp.Body) != "js" {
			t.Fatalf("Fetch() = %+v, want cached js", resp)
		}
	})

	t.Run("miss goes to network and is not stored", func(t *testing.T) {
		net.mu.Lock()
		net.bodies["/extra"] = "extra"
		net.mu.Unlock()
		resp := w.Fetch(ctx, get(t, "/extra"))
		if resp.Source != SourceNetwork || string(resp.Body) != "extra" {
			t.Fatalf("Fetch() = %+v, want network extra", resp)
		}
		net.setOffline(true)
		defer net.setOffline(false)
		if resp := w.Fetch(ctx, get(t, "/extra")); !resp.IsError() {
			t.Fatalf("runtime fetch was cached: %+v", resp)
		}
	})

	t.Run("relaxed match ignores query", func(t *testing.T) {
		net.setOffline(true)
		defer net.setOffline(false)
		resp := w.Fetch(ctx, get(t, "/app.js?v=3"))
		if resp.Source != SourceCache || string(resp.Body) != "js" {
			t.Fatalf("Fetch() = %+v, want relaxed cache hit", resp)
		}
	})

	t.Run("relaxed match ignores method", func(t *testing.T) {
		net.setOffline(true)
		defer net.setOffline(false)
		req := httptest.NewRequest(http.MethodHead, "/app.js", nil)
		resp := w.Fetch(ctx, req)
		if resp.Source != SourceCache {
			t.Fatalf("Fetch(HEAD) = %+v, want relaxed cache hit", resp)
		}
	})

	t.Run("network error without cache", func(t *testing.T) {
		net.setOffline(true)
		defer net.setOffline(false)
		resp := w.Fetch(ctx, get(t, "/nowhere"))
		if !resp.IsError() {
			t.Fatalf("Fetch() = %+v, want error response", resp)
		}
	})

	t.Run("network status passes through", func(t *testing.T) {
		resp := w.Fetch(ctx, get(t, "/missing"))
		if resp.Source != SourceNetwork || resp.Status != http.StatusNotFound {
			t.Fatalf("Fetch() = %+v, want network 404", resp)
		}
	})
}

func TestWorker_ServeHTTP(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(map[string]string{"/": "shell"})
	w, _ := newTestWorker(t, "v1", []string{"./"}, net)

	// Before activation the network serves directly.
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, get(t, "/"))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "network" {
		t.Fatalf("pre-activation response = %d %q", rec.Code, rec.Header().Get("X-Cache"))
	}

	if err := w.Install(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatal(err)
	}

	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, get(t, "/"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Cache"); got != "cache" {
		t.Errorf("X-Cache = %q, want cache", got)
	}
	if got := rec.Body.String(); got != "shell" {
		t.Errorf("body = %q, want shell", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "5" {
		t.Errorf("Content-Length = %q, want 5", got)
	}

	net.setOffline(true)
	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, get(t, "/gone"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("HEAD = %d with %d body bytes", rec.Code, rec.Body.Len())
	}
}

func TestWorker_LogsInstallFailure(t *testing.T) {
	mock := logger.NewMockLogger()
	store, _ := NewFSStorage(afero.NewMemMapFs(), "/c")
	w := NewWorker(WorkerOptions{
		Manifest: Manifest{Version: "v1", Assets: []string{"/a"}},
		Storage:  store,
		Network:  newFakeNetwork(nil),
		Logger:   mock,
	})
	if err := w.Install(context.Background()); err == nil {
		t.Fatal("Install() should fail")
	}
	if len(mock.Errors()) != 1 {
		t.Fatalf("error logs = %v, want one", mock.Errors())
	}
}

func TestHTTPFetcher_Origin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Connection") != "" {
			t.Errorf("hop header forwarded")
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(r.URL.RequestURI()))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.Client(), srv.URL+"/base")
	if err != nil {
		t.Fatalf("NewHTTPFetcher() error: %v", err)
	}
	req := get(t, "/app.js?v=2")
	req.Header.Set("Connection", "keep-alive")
	resp, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if string(resp.Body) != "/base/app.js?v=2" {
		t.Fatalf("origin saw %q, want /base/app.js?v=2", resp.Body)
	}
	if resp.Source != SourceNetwork || !resp.OK() {
		t.Fatalf("Fetch() = %+v", resp)
	}
}

func TestNewHTTPFetcher_InvalidOrigin(t *testing.T) {
	for _, origin := range []string{"/no/scheme", "::bad"} {
		if _, err := NewHTTPFetcher(nil, origin); err == nil {
			t.Errorf("NewHTTPFetcher(%q) should fail", origin)
		}
	}
}

func TestHTTPFetcher_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	f, _ := NewHTTPFetcher(nil, url)
	if _, err := f.Fetch(context.Background(), get(t, "/")); err == nil {
		t.Fatal("Fetch() against a closed server should fail")
	}
}

func TestFSFetcher_InstallFromEmbeddedShell(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html": {Data: []byte("<html>shell</html>")},
		"app.js":     {Data: []byte("console.log(1)")},
	}
	net := NewFSFetcher(fsys)
	w, store := newTestWorker(t, "v1", []string{"./", "./index.html", "./app.js"}, net)
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if keys := cacheKeys(t, store, "v1"); len(keys) != 3 {
		t.Fatalf("cache keys = %v", keys)
	}
	c, _ := store.Open(context.Background(), "v1")
	e, err := c.Match(context.Background(), "GET /")
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Body) != "<html>shell</html>" {
		t.Fatalf("GET / body = %q", e.Body)
	}

	resp, err := net.Fetch(context.Background(), get(t, "/missing.css"))
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Fatalf("missing file status = %d, want 404", resp.Status)
	}
}

func TestWorker_Restore(t *testing.T) {
	net := newFakeNetwork(map[string]string{"/a": "A", "/b": "B"})
	first, store := newTestWorker(t, "v1", []string{"/a", "/b"}, net)
	ctx := context.Background()

	if ok, err := first.Restore(ctx); err != nil || ok {
		t.Fatalf("Restore() on empty storage = %v, %v; want false, nil", ok, err)
	}
	if err := first.Install(ctx); err != nil {
		t.Fatal(err)
	}

	second := NewWorker(WorkerOptions{
		Manifest: Manifest{Version: "v1", Assets: []string{"/a", "/b"}},
		Storage:  store,
		Network:  net,
	})
	ok, err := second.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("Restore() = %v, %v; want true, nil", ok, err)
	}
	if second.State() != StateInstalled {
		t.Fatalf("State() = %v, want installed", second.State())
	}
	if err := second.Activate(ctx); err != nil {
		t.Fatalf("Activate() after Restore: %v", err)
	}

	// A manifest with an asset the cache lacks cannot be restored.
	third := NewWorker(WorkerOptions{
		Manifest: Manifest{Version: "v1", Assets: []string{"/a", "/b", "/c"}},
		Storage:  store,
		Network:  net,
	})
	if ok, err := third.Restore(ctx); err != nil || ok {
		t.Fatalf("Restore() with missing asset = %v, %v; want false, nil", ok, err)
	}
	if third.State() != StateParsed {
		t.Fatalf("State() = %v, want parsed", third.State())
	}
}

func TestWorker_Match(t *testing.T) {
	net := newFakeNetwork(map[string]string{"/a": "A"})
	w, _ := newTestWorker(t, "v1", []string{"/a"}, net)
	ctx := context.Background()

	if _, err := w.Match(ctx, get(t, "/a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Match() before install error = %v, want ErrNotFound", err)
	}
	if err := w.Install(ctx); err != nil {
		t.Fatal(err)
	}
	net.setOffline(true)
	calls := len(net.calls)

	resp, err := w.Match(ctx, get(t, "/a?v=3"))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if string(resp.Body) != "A" || resp.Source != SourceCache {
		t.Fatalf("Match() = %q from %v, want A from cache", resp.Body, resp.Source)
	}
	if _, err := w.Match(ctx, get(t, "/missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Match(/missing) error = %v, want ErrNotFound", err)
	}
	if len(net.calls) != calls {
		t.Fatal("Match() must not touch the network")
	}
}

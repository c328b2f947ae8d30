package appcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/meditate001/meditate/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel asset fetches during Install.
const DefaultConcurrency = 4

// ErrNotInstalled is returned by Activate before a successful Install.
var ErrNotInstalled = errors.New("worker is not installed")

// WorkerState is the lifecycle position of a Worker.
type WorkerState int

const (
	StateParsed WorkerState = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	// StateRedundant follows a failed install.
	StateRedundant
)

func (s WorkerState) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// InstallError reports the asset that aborted an install.
type InstallError struct {
	Asset  string
	Status int
	Err    error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.Asset, e.Err)
	}
	return fmt.Sprintf("fetch %s: bad status %d", e.Asset, e.Status)
}

func (e *InstallError) Unwrap() error { return e.Err }

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Manifest Manifest
	Storage  Storage
	Network  Fetcher
	// Logger defaults to a NopLogger.
	Logger logger.Logger
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int
}

// Worker runs the install/activate/fetch lifecycle of one cache version.
type Worker struct {
	manifest    Manifest
	store       Storage
	net         Fetcher
	log         logger.Logger
	concurrency int

	mu    sync.RWMutex
	state WorkerState
}

// NewWorker creates a Worker in StateParsed.
func NewWorker(opts WorkerOptions) *Worker {
	l := opts.Logger
	if l == nil {
		l = logger.NewNopLogger()
	}
	c := opts.Concurrency
	if c <= 0 {
		c = DefaultConcurrency
	}
	return &Worker{
		manifest:    opts.Manifest,
		store:       opts.Storage,
		net:         opts.Network,
		log:         l,
		concurrency: c,
	}
}

// Version returns the cache name this worker owns.
func (w *Worker) Version() string { return w.manifest.Version }

// State returns the lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Install fetches every manifest asset and stores them in the current
// cache. A single failed fetch, or a non-2xx status, aborts the install and
// nothing is stored. On success the worker is ready immediately without
// waiting for an older version to stop serving.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	if err := w.install(ctx); err != nil {
		w.setState(StateRedundant)
		w.log.Error("install %s failed: %v", w.manifest.Version, err)
		return fmt.Errorf("install %s: %w", w.manifest.Version, err)
	}
	w.setState(StateInstalled)
	w.log.Info("installed %s (%d assets)", w.manifest.Version, len(w.manifest.Assets))
	return nil
}

func (w *Worker) install(ctx context.Context) error {
	uris, err := w.manifest.URIs()
	if err != nil {
		return err
	}
	cache, err := w.store.Open(ctx, w.manifest.Version)
	if err != nil {
		return err
	}

	entries := make([]*Entry, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, uri := range uris {
		i, uri := i, uri
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, uri, nil)
			if err != nil {
				return &InstallError{Asset: uri, Err: err}
			}
			resp, err := w.net.Fetch(gctx, req)
			if err != nil {
				return &InstallError{Asset: uri, Err: err}
			}
			if !resp.OK() {
				return &InstallError{Asset: uri, Status: resp.Status}
			}
			entries[i] = &Entry{
				Key:    RequestKey(http.MethodGet, uri),
				URL:    uri,
				Status: resp.Status,
				Header: resp.Header,
				Body:   resp.Body,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return cache.PutAll(ctx, entries)
}

// Restore marks the worker installed when the current cache already holds
// every manifest asset, as left by an earlier process. It reports whether
// the cache was complete; an incomplete cache is left for Install to
// overwrite.
func (w *Worker) Restore(ctx context.Context) (bool, error) {
	uris, err := w.manifest.URIs()
	if err != nil {
		return false, err
	}
	cache, err := w.current(ctx)
	if err != nil || cache == nil {
		return false, err
	}
	keys, err := cache.Keys(ctx)
	if err != nil {
		return false, err
	}
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		have[k] = true
	}
	for _, uri := range uris {
		if !have[RequestKey(http.MethodGet, uri)] {
			return false, nil
		}
	}
	w.setState(StateInstalled)
	w.log.Info("restored %s from storage", w.manifest.Version)
	return true, nil
}

// Activate deletes every cache other than the current version and takes
// control: from then on ServeHTTP answers from the cache.
func (w *Worker) Activate(ctx context.Context) error {
	switch w.State() {
	case StateInstalled, StateActivated:
	default:
		return ErrNotInstalled
	}
	w.setState(StateActivating)
	names, err := w.store.Keys(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("activate %s: %w", w.manifest.Version, err)
	}
	for _, name := range names {
		if name == w.manifest.Version {
			continue
		}
		if _, err := w.store.Delete(ctx, name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("activate %s: delete %s: %w", w.manifest.Version, name, err)
		}
		w.log.Info("deleted stale cache %s", name)
	}
	w.setState(StateActivated)
	w.log.Info("activated %s", w.manifest.Version)
	return nil
}

// Fetch answers req from the current cache, then the network. When the
// network fails it retries the cache ignoring method and query string and
// finally returns an error response. It never returns nil.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) *Response {
	key := RequestKey(req.Method, req.URL.RequestURI())
	cache, err := w.current(ctx)
	if err != nil {
		w.log.Warning("cache lookup %s: %v", key, err)
	}
	if cache != nil {
		if e, err := cache.Match(ctx, key); err == nil {
			return e.response()
		} else if !errors.Is(err, ErrNotFound) {
			w.log.Warning("cache match %s: %v", key, err)
		}
	}

	resp, err := w.net.Fetch(ctx, req)
	if err == nil {
		return resp
	}
	w.log.Warning("network fetch %s: %v", key, err)

	if cache != nil {
		if e, err := matchRelaxed(ctx, cache, key); err == nil {
			return e.response()
		}
	}
	return errorResponse()
}

// Match looks req up in the current cache only: exact key first, then
// ignoring method and query string. It returns ErrNotFound on a miss.
func (w *Worker) Match(ctx context.Context, req *http.Request) (*Response, error) {
	cache, err := w.current(ctx)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, ErrNotFound
	}
	key := RequestKey(req.Method, req.URL.RequestURI())
	e, err := cache.Match(ctx, key)
	if errors.Is(err, ErrNotFound) {
		e, err = matchRelaxed(ctx, cache, key)
	}
	if err != nil {
		return nil, err
	}
	return e.response(), nil
}

// current returns the current cache, or nil if it does not exist.
func (w *Worker) current(ctx context.Context) (Cache, error) {
	ok, err := w.store.Has(ctx, w.manifest.Version)
	if err != nil || !ok {
		return nil, err
	}
	return w.store.Open(ctx, w.manifest.Version)
}

// ServeHTTP serves through Fetch once the worker is activated and straight
// from the network before that. Error responses become 503.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var resp *Response
	if w.State() == StateActivated {
		resp = w.Fetch(r.Context(), r)
	} else {
		var err error
		resp, err = w.net.Fetch(r.Context(), r)
		if err != nil {
			w.log.Warning("network fetch %s: %v", r.URL.RequestURI(), err)
			resp = errorResponse()
		}
	}
	writeResponse(rw, r, resp)
}

func writeResponse(rw http.ResponseWriter, r *http.Request, resp *Response) {
	if resp.IsError() {
		http.Error(rw, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	h := rw.Header()
	for k, v := range resp.Header {
		h[k] = append([]string(nil), v...)
	}
	h.Del("Content-Length")
	h.Del("Transfer-Encoding")
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	h.Set("X-Cache", resp.Source.String())
	rw.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = rw.Write(resp.Body)
	}
}

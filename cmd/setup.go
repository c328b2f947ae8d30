package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meditate001/meditate/common"
	"github.com/meditate001/meditate/pkg/appcache"
	"github.com/meditate001/meditate/pkg/chime"
	"github.com/meditate001/meditate/pkg/logger"
	"github.com/meditate001/meditate/web"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
)

// originTimeout bounds a single asset request to a remote origin.
const originTimeout = 30 * time.Second

var (
	cacheDir      string
	storeKind     string
	origin        string
	frameInterval string
	debugLog      bool

	// audioOutput opens the device chimes play on.
	audioOutput = chime.Speaker

	cacheFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "cache-dir, d",
			Usage:       "directory holding the asset cache (default: user cache dir)",
			EnvVar:      common.CacheDirEnv,
			Destination: &cacheDir,
		},
		cli.StringFlag{
			Name:        "store",
			Usage:       "cache backend, fs or sqlite",
			EnvVar:      common.StoreEnv,
			Value:       DEF_STORE,
			Destination: &storeKind,
		},
		cli.StringFlag{
			Name:        "origin, o",
			Usage:       "fetch assets from this base URL instead of the built-in web app",
			EnvVar:      common.OriginEnv,
			Destination: &origin,
		},
		debugFlag,
	}

	debugFlag = cli.BoolFlag{
		Name:        "debug",
		Usage:       "enable debug logging",
		EnvVar:      common.DebugEnv,
		Destination: &debugLog,
	}

	frameIntervalFlag = cli.StringFlag{
		Name:        "frame-interval",
		Usage:       "countdown redraw interval, e.g. 16ms or 1s",
		EnvVar:      common.FrameIntervalEnv,
		Destination: &frameInterval,
	}
)

// resolveCacheDir returns dir, or the per-user cache directory when empty.
func resolveCacheDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "meditate"), nil
}

// openStorage opens the cache backend kind under dir.
func openStorage(kind, dir string) (appcache.Storage, error) {
	switch strings.ToLower(kind) {
	case "", "fs":
		return appcache.NewOSStorage(filepath.Join(dir, "caches"))
	case "sqlite":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return appcache.OpenSQLStorage(filepath.Join(dir, DEF_CACHE_DB))
	default:
		return nil, fmt.Errorf("unknown store %q (want fs or sqlite)", kind)
	}
}

// newFetcher returns the network side of the cache: the embedded web app,
// or base when set.
func newFetcher(base string) (appcache.Fetcher, error) {
	if base == "" {
		return appcache.NewFSFetcher(web.FS()), nil
	}
	return appcache.NewHTTPFetcher(&http.Client{Timeout: originTimeout}, base)
}

// newConsoleLogger logs to stderr.
func newConsoleLogger(debug bool) logger.Logger {
	return logger.NewStandardLogger(log.New(os.Stderr, "meditate: ", log.LstdFlags)).SetDebug(debug)
}

// newServeLogger logs to stderr and, when path is set, appends to path too.
func newServeLogger(debug bool, path string) (logger.Logger, error) {
	console := newConsoleLogger(debug)
	if path == "" {
		return console, nil
	}
	file, err := logger.NewFileLogger(path)
	if err != nil {
		return nil, err
	}
	return logger.NewMultiLogger(console, file.SetDebug(debug)), nil
}

// parseFrameInterval parses a Go duration. Empty selects the default.
func parseFrameInterval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("frame interval must be positive")
	}
	return d, nil
}

// cacheSetup is a worker with the storage it owns.
type cacheSetup struct {
	dir    string
	store  appcache.Storage
	worker *appcache.Worker
}

func (c *cacheSetup) Close() error { return c.store.Close() }

// newCacheSetup opens the configured storage and builds a worker for the
// default manifest. wrap, when set, decorates the network fetcher.
func newCacheSetup(l logger.Logger, wrap func(appcache.Fetcher) appcache.Fetcher) (*cacheSetup, error) {
	dir, err := resolveCacheDir(cacheDir)
	if err != nil {
		return nil, err
	}
	store, err := openStorage(storeKind, dir)
	if err != nil {
		return nil, err
	}
	net, err := newFetcher(origin)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if wrap != nil {
		net = wrap(net)
	}
	w := appcache.NewWorker(appcache.WorkerOptions{
		Manifest: appcache.DefaultManifest,
		Storage:  store,
		Network:  net,
		Logger:   logger.WithPrefix(l, "cache"),
	})
	return &cacheSetup{dir: dir, store: store, worker: w}, nil
}

// countingFetcher advances bar for every successful fetch.
type countingFetcher struct {
	appcache.Fetcher
	bar *mpb.Bar
}

func (f *countingFetcher) Fetch(ctx context.Context, req *http.Request) (*appcache.Response, error) {
	resp, err := f.Fetcher.Fetch(ctx, req)
	if err == nil && resp.OK() {
		f.bar.Increment()
	}
	return resp, err
}

// unlockAudio opens the output for gate within DEF_UNLOCK_TIMEOUT.
func unlockAudio(ctx context.Context, gate *chime.Gate) error {
	ctx, cancel := context.WithTimeout(ctx, DEF_UNLOCK_TIMEOUT)
	defer cancel()
	return gate.Unlock(ctx)
}

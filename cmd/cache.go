package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meditate001/meditate/cmd/common"
	"github.com/meditate001/meditate/pkg/appcache"
	"github.com/meditate001/meditate/pkg/logger"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
)

// rootContext returns the top-level context. Subcommand contexts carry a
// derived app whose HelpName is not "meditate".
func rootContext(ctx *cli.Context) *cli.Context {
	for ctx.Parent() != nil {
		ctx = ctx.Parent()
	}
	return ctx
}

// withCache runs fn against the configured storage, reporting failures
// under the cache command.
func withCache(ctx *cli.Context, action string, wrap func(appcache.Fetcher) appcache.Fetcher, fn func(context.Context, *cacheSetup) error) error {
	ctx = rootContext(ctx)
	rctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var l logger.Logger = logger.NewNopLogger()
	if debugLog {
		l = newConsoleLogger(true)
	}
	cs, err := newCacheSetup(l, wrap)
	if err != nil {
		common.PrintRuntimeErr(ctx, "cache", "open", err)
		return nil
	}
	defer cs.Close()
	if err := fn(rctx, cs); err != nil {
		common.PrintRuntimeErr(ctx, "cache", action, err)
	}
	return nil
}

func cacheInstall(ctx *cli.Context) error {
	uris, err := appcache.DefaultManifest.URIs()
	if err != nil {
		common.PrintRuntimeErr(rootContext(ctx), "cache", "manifest", err)
		return nil
	}
	pctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := mpb.NewWithContext(pctx, mpb.WithWidth(sitBarWidth))
	bar := common.InitAssetBar(p, "", int64(len(uris)))
	wrap := func(f appcache.Fetcher) appcache.Fetcher {
		return &countingFetcher{Fetcher: f, bar: bar}
	}
	return withCache(ctx, "install", wrap, func(rctx context.Context, cs *cacheSetup) error {
		err := cs.worker.Install(rctx)
		if err != nil {
			bar.Abort(false)
		}
		p.Wait()
		if err != nil {
			return err
		}
		fmt.Printf("Installed %s (%d assets) in %s\n", cs.worker.Version(), len(uris), cs.dir)
		return nil
	})
}

func cacheActivate(ctx *cli.Context) error {
	return withCache(ctx, "activate", nil, func(rctx context.Context, cs *cacheSetup) error {
		ok, err := cs.worker.Restore(rctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not installed, run \"meditate cache install\" first", cs.worker.Version())
		}
		if err := cs.worker.Activate(rctx); err != nil {
			return err
		}
		fmt.Printf("Activated %s\n", cs.worker.Version())
		return nil
	})
}

func cacheList(ctx *cli.Context) error {
	return withCache(ctx, "list", nil, func(rctx context.Context, cs *cacheSetup) error {
		names, err := cs.store.Keys(rctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("meditate: no caches found")
			return nil
		}
		fmt.Printf("Caches in %s:\n", cs.dir)
		for _, name := range names {
			c, err := cs.store.Open(rctx, name)
			if err != nil {
				return err
			}
			keys, err := c.Keys(rctx)
			if err != nil {
				return err
			}
			tag := ""
			if name == cs.worker.Version() {
				tag = ", current"
			}
			fmt.Printf("\n%s (%d entries%s)\n", name, len(keys), tag)
			for _, k := range keys {
				fmt.Printf("  %s\n", k)
			}
		}
		return nil
	})
}

func cacheMatch(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" || path == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	return withCache(ctx, "match", nil, func(rctx context.Context, cs *cacheSetup) error {
		req, err := http.NewRequestWithContext(rctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		resp, err := cs.worker.Match(rctx, req)
		if errors.Is(err, appcache.ErrNotFound) {
			fmt.Printf("%s: not cached\n", path)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d %s, %d bytes", path, resp.Status, http.StatusText(resp.Status), len(resp.Body))
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			fmt.Printf(", %s", ct)
		}
		fmt.Println()
		return nil
	})
}

func cachePurge(ctx *cli.Context) error {
	return withCache(ctx, "purge", nil, func(rctx context.Context, cs *cacheSetup) error {
		names, err := cs.store.Keys(rctx)
		if err != nil {
			return err
		}
		n := 0
		for _, name := range names {
			ok, err := cs.store.Delete(rctx, name)
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		fmt.Printf("Deleted %d cache(s)\n", n)
		return nil
	})
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdCommon "github.com/meditate001/meditate/cmd/common"
	"github.com/meditate001/meditate/common"
	"github.com/meditate001/meditate/internal/daemon"
	"github.com/meditate001/meditate/internal/server"
	"github.com/meditate001/meditate/internal/session"
	"github.com/meditate001/meditate/pkg/appcache"
	"github.com/meditate001/meditate/pkg/chime"
	"github.com/meditate001/meditate/pkg/logger"
	"github.com/urfave/cli"
)

var (
	serveHost      string
	servePort      int
	serveSecret    string
	serveReinstall bool
	serveLogFile   string

	serveFlags = append([]cli.Flag{
		cli.StringFlag{
			Name:        "host",
			Usage:       "interface to listen on",
			Value:       daemon.DefaultHost,
			Destination: &serveHost,
		},
		cli.IntFlag{
			Name:        "port, l",
			Usage:       "port to listen on (0 picks a free one)",
			EnvVar:      common.PortEnv,
			Value:       DEF_PORT,
			Destination: &servePort,
		},
		cli.StringFlag{
			Name:        "secret",
			Usage:       "require this Bearer token on the RPC endpoint",
			EnvVar:      common.RPCSecretEnv,
			Destination: &serveSecret,
		},
		cli.BoolFlag{
			Name:        "reinstall",
			Usage:       "fetch every asset again even if the cache is complete",
			Destination: &serveReinstall,
		},
		cli.StringFlag{
			Name:        "log-file",
			Usage:       "also append logs to this file",
			EnvVar:      common.LogFileEnv,
			Destination: &serveLogFile,
		},
		frameIntervalFlag,
	}, cacheFlags...)
)

func serve(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	interval, err := parseFrameInterval(frameInterval)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "serve", "frame_interval", err)
		return nil
	}
	l, err := newServeLogger(debugLog, serveLogFile)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "serve", "open_log", err)
		return nil
	}
	defer l.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cs, err := newCacheSetup(l, nil)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "serve", "open_cache", err)
		return nil
	}
	defer cs.Close()
	if err := prepareWorker(sigCtx, cs.worker, serveReinstall); err != nil {
		// Requests go straight to the network until a later install.
		l.Warning("serving without offline cache: %v", err)
	}

	sessCtx, cancelSess := context.WithCancel(context.Background())
	defer cancelSess()
	sess := session.New(sessCtx, session.Options{
		FrameInterval: interval,
		// Locked until a client calls audio.unlock.
		Audio:  chime.NewGate(audioOutput(), chime.DefaultTone),
		Logger: logger.WithPrefix(l, "session"),
	})

	ws := server.NewWebServer(l, sess, cs.worker, &server.RPCConfig{
		Secret:    serveSecret,
		Version:   buildInfo.Version,
		Commit:    buildInfo.Commit,
		BuildType: buildInfo.BuildType,
	})
	runner := daemon.New(&daemon.Config{
		Host:            serveHost,
		Port:            servePort,
		ShutdownTimeout: DEF_SHUTDOWN_TIMEOUT,
	}, &daemon.Dependencies{
		Serve: ws.Serve,
		ShutdownFunc: func() error {
			sctx, cancel := context.WithTimeout(context.Background(), DEF_SHUTDOWN_TIMEOUT)
			defer cancel()
			return ws.Shutdown(sctx)
		},
	})

	go func() {
		<-sigCtx.Done()
		if err := runner.Shutdown(); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
			l.Warning("shutdown: %v", err)
		}
	}()

	err = runner.Start(context.Background())
	stop()
	ws.Close()
	cancelSess()
	<-sess.Done()
	if err != nil && !errors.Is(err, context.Canceled) {
		cmdCommon.PrintRuntimeErr(ctx, "serve", "listen", err)
		return nil
	}
	fmt.Println("meditate: server stopped")
	return nil
}

// prepareWorker brings w to the activated state, reusing a complete cache
// from an earlier run unless reinstall is set.
func prepareWorker(ctx context.Context, w *appcache.Worker, reinstall bool) error {
	restored := false
	if !reinstall {
		var err error
		restored, err = w.Restore(ctx)
		if err != nil {
			return err
		}
	}
	if !restored {
		if err := w.Install(ctx); err != nil {
			return err
		}
	}
	return w.Activate(ctx)
}

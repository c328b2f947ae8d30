package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdCommon "github.com/meditate001/meditate/cmd/common"
	"github.com/meditate001/meditate/common"
	"github.com/meditate001/meditate/pkg/remote"
	"github.com/meditate001/meditate/pkg/timer"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
)

var (
	remoteAddr    string
	remoteSecret  string
	remoteMinutes int
	remoteSeconds int
	remoteJSON    bool

	remoteFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "addr, a",
			Usage:       "server address, host:port or URL",
			EnvVar:      common.RemoteAddrEnv,
			Value:       DEF_REMOTE_ADDR,
			Destination: &remoteAddr,
		},
		cli.StringFlag{
			Name:        "secret",
			Usage:       "Bearer token for the RPC endpoint",
			EnvVar:      common.RPCSecretEnv,
			Destination: &remoteSecret,
		},
		cli.IntFlag{
			Name:        "minutes, m",
			Usage:       "length for start and select",
			Destination: &remoteMinutes,
		},
		cli.IntFlag{
			Name:        "seconds, s",
			Usage:       "length seconds for start and select",
			Destination: &remoteSeconds,
		},
		cli.BoolFlag{
			Name:        "json, j",
			Usage:       "print the raw result as JSON",
			Destination: &remoteJSON,
		},
	}
)

var errNoLength = errors.New("select needs --minutes or --seconds")

func remoteCmd(ctx *cli.Context) error {
	method := ctx.Args().First()
	if method == "" || method == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	var d *time.Duration
	if ctx.IsSet("minutes") || ctx.IsSet("seconds") {
		custom := timer.Custom(remoteMinutes, remoteSeconds)
		d = &custom
	}
	rctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if method == "watch" {
		if err := watchRemote(rctx, os.Stdout); err != nil {
			cmdCommon.PrintRuntimeErr(ctx, "remote", "watch", err)
		}
		return nil
	}

	c, err := remote.Dial(rctx, remoteAddr, &remote.Options{Secret: remoteSecret})
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "remote", "dial", err)
		return nil
	}
	defer c.Close()
	res, err := callRemote(rctx, c, method, d)
	if err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "remote", method, err)
		return nil
	}
	if err := printResult(os.Stdout, res, remoteJSON); err != nil {
		cmdCommon.PrintRuntimeErr(ctx, "remote", "print", err)
	}
	return nil
}

// callRemote invokes the RPC method behind a remote subcommand name. A nil d
// starts the selected length.
func callRemote(ctx context.Context, c *remote.Client, method string, d *time.Duration) (any, error) {
	switch method {
	case "status":
		return c.Status(ctx)
	case "start":
		if d == nil {
			return c.StartSelected(ctx)
		}
		return c.Start(ctx, *d)
	case "pause":
		return c.Pause(ctx)
	case "resume":
		return c.Resume(ctx)
	case "reset":
		return c.Reset(ctx)
	case "select":
		if d == nil {
			return nil, errNoLength
		}
		return c.Select(ctx, *d)
	case "refresh":
		return c.Refresh(ctx)
	case "unlock":
		return c.UnlockAudio(ctx)
	case "tone":
		return c.TestTone(ctx)
	case "version":
		return c.Version(ctx)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func printResult(w io.Writer, res any, asJSON bool) error {
	if asJSON {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	switch r := res.(type) {
	case *common.StatusResult:
		fmt.Fprintf(w, "%s %s (%d°)\n", r.Text, r.State, r.Degrees)
		if r.Target != "" {
			fmt.Fprintf(w, "ends at %s\n", r.Target)
		}
		fmt.Fprintln(w, r.Hint)
	case *common.AudioResult:
		if r.Unlocked {
			fmt.Fprintln(w, "audio unlocked")
		} else {
			fmt.Fprintln(w, "audio locked")
		}
		fmt.Fprintln(w, r.Hint)
	case *common.VersionResult:
		fmt.Fprintf(w, "server %s", r.Version)
		if r.Commit != "" {
			fmt.Fprintf(w, " (%s)", r.Commit)
		}
		fmt.Fprintln(w)
	default:
		return fmt.Errorf("unexpected result %T", res)
	}
	return nil
}

// watchRemote draws the server's countdown until its session completes or
// ctx is done.
func watchRemote(ctx context.Context, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := &syncWriter{w: out}
	p := mpb.NewWithContext(ctx, mpb.WithOutput(w), mpb.WithWidth(sitBarWidth))
	view := newRingView(p, "remote")
	done := make(chan common.CompleteNotification, 1)

	c, err := remote.Dial(ctx, remoteAddr, &remote.Options{
		Secret: remoteSecret,
		OnTick: func(t common.TickNotification) { view.show(t.Text, t.State, t.Degrees) },
		OnComplete: func(n common.CompleteNotification) {
			select {
			case done <- n:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	view.show(st.Text, st.State, st.Degrees)

	select {
	case n := <-done:
		fmt.Fprintf(w, "Session of %s complete.\n", timer.Format(time.Duration(n.DurationMs)*time.Millisecond))
	case <-ctx.Done():
	}
	cancel()
	p.Wait()
	return nil
}

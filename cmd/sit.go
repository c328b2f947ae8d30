package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/meditate001/meditate/cmd/common"
	"github.com/meditate001/meditate/internal/session"
	"github.com/meditate001/meditate/pkg/chime"
	"github.com/meditate001/meditate/pkg/logger"
	"github.com/meditate001/meditate/pkg/timer"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
)

const sitBarWidth = 40

var (
	sitMinutes int
	sitSeconds int
	sitPreset  int
	sitMute    bool
	sitStay    bool

	// toneTail is how long sit lingers after a chime so it is not cut off.
	toneTail = chime.DefaultTone.Duration

	sitFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "minutes, m",
			Usage:       fmt.Sprintf("custom length in minutes (0-%d)", timer.MaxCustomMinutes),
			Destination: &sitMinutes,
		},
		cli.IntFlag{
			Name:        "seconds, s",
			Usage:       fmt.Sprintf("custom length seconds (0-%d)", timer.MaxCustomSeconds),
			Destination: &sitSeconds,
		},
		cli.IntFlag{
			Name:        "preset, p",
			Usage:       "quick-pick length in minutes, see \"meditate presets\"",
			Destination: &sitPreset,
		},
		cli.BoolFlag{
			Name:        "mute",
			Usage:       "end the session without a tone",
			Destination: &sitMute,
		},
		cli.BoolFlag{
			Name:        "stay",
			Usage:       "keep running after the session ends, even without input",
			Destination: &sitStay,
		},
		frameIntervalFlag,
		debugFlag,
	}
)

// sitDuration picks the session length. Custom minutes and seconds win over
// a preset; neither selects the default.
func sitDuration(preset, minutes, seconds int, custom bool) time.Duration {
	switch {
	case custom:
		return timer.Custom(minutes, seconds)
	case preset > 0:
		return timer.Preset(preset)
	default:
		return timer.DefaultDuration
	}
}

func sit(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	interval, err := parseFrameInterval(frameInterval)
	if err != nil {
		common.PrintRuntimeErr(ctx, "sit", "frame_interval", err)
		return nil
	}
	var l logger.Logger = logger.NewNopLogger()
	if debugLog {
		l = newConsoleLogger(true)
	}
	rctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runSit(rctx, os.Stdin, os.Stdout, sitOptions{
		Duration:      sitDuration(sitPreset, sitMinutes, sitSeconds, ctx.IsSet("minutes") || ctx.IsSet("seconds")),
		FrameInterval: interval,
		Mute:          sitMute,
		Stay:          sitStay,
		Logger:        l,
	})
	if err != nil {
		common.PrintRuntimeErr(ctx, "sit", "run", err)
	}
	return nil
}

type sitOptions struct {
	Duration      time.Duration
	FrameInterval time.Duration
	Mute          bool
	// Stay keeps the session open after completion until "q".
	Stay   bool
	Clock  timer.Clock
	Logger logger.Logger
}

// runSit runs one terminal session, reading commands from in and drawing
// the ring to out. When a session ends it asks whether to replay it. It
// returns on "q", when ctx is done, or once a session has ended and in is
// exhausted.
func runSit(ctx context.Context, in io.Reader, out io.Writer, opts sitOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := &syncWriter{w: out}

	var gate *chime.Gate
	if !opts.Mute {
		gate = chime.NewGate(audioOutput(), chime.DefaultTone)
		if err := unlockAudio(ctx, gate); err != nil {
			fmt.Fprintf(w, "sound unavailable (%v), the session will end silently\n", err)
		}
	}

	sess := session.New(ctx, session.Options{
		Clock:         opts.Clock,
		FrameInterval: opts.FrameInterval,
		Default:       &opts.Duration,
		Audio:         gate,
		Logger:        opts.Logger,
	})
	p := mpb.NewWithContext(ctx, mpb.WithOutput(w), mpb.WithWidth(sitBarWidth))
	view := newRingView(p, "sit")
	finished := make(chan timer.Completion, 1)
	unsub := sess.Subscribe(session.Funcs{
		Tick: view.OnTick,
		Complete: func(c timer.Completion) {
			select {
			case finished <- c:
			default:
			}
		},
	})
	defer unsub()

	go refreshOnSignal(ctx, sess)
	lines := make(chan string)
	go readLines(ctx, in, lines)

	err := sess.Start()
	if err == nil {
		err = sitLoop(ctx, sess, lines, finished, w, opts.Stay)
	}
	cancel()
	p.Wait()
	<-sess.Done()
	return err
}

const completePrompt = "[r]eplay the same length, [c]hoose another, or [q]uit"

func sitLoop(ctx context.Context, s *session.Session, lines <-chan string, finished <-chan timer.Completion, out io.Writer, stay bool) error {
	prompting := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-finished:
			prompting = lines != nil
			fmt.Fprintf(out, "Session of %s complete.\n", timer.Format(c.Duration))
			if prompting {
				fmt.Fprintln(out, completePrompt)
				continue
			}
			if stay {
				continue
			}
			if c.Chimed {
				select {
				case <-time.After(toneTail):
				case <-ctx.Done():
				}
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep counting down
				lines = nil
				if prompting && !stay {
					return nil
				}
				continue
			}
			if prompting && strings.TrimSpace(line) != "" {
				prompting = false
				answered, msg, err := completeCommand(s, line)
				if answered {
					report(out, msg, err)
					continue
				}
			}
			quit, msg, err := sitCommand(s, line)
			report(out, msg, err)
			if quit {
				return nil
			}
		}
	}
}

func report(out io.Writer, msg string, err error) {
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
	}
	if msg != "" {
		fmt.Fprintln(out, msg)
	}
}

// completeCommand answers the prompt shown after a session ends. Other
// lines are left to sitCommand.
func completeCommand(s *session.Session, line string) (answered bool, msg string, err error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "replay":
		return true, "", s.Start()
	case "c", "choose":
		return true, "type a length (m or m:ss), then s to start", s.Reset()
	}
	return false, "", nil
}

// sitCommand applies one line of terminal input to s.
func sitCommand(s *session.Session, line string) (quit bool, msg string, err error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
	case "q", "quit", "exit":
		return true, "", nil
	case "p", "pause":
		err = s.Pause()
	case "r", "resume":
		err = s.Resume()
	case "x", "reset":
		err = s.Reset()
	case "s", "start":
		err = s.Start()
	case "t", "tone":
		var played bool
		played, err = s.TestTone()
		if err == nil && !played {
			msg = "sound unavailable"
		}
	default:
		d, ok := parseLength(line)
		if !ok {
			return false, "", fmt.Errorf("unknown command %q", strings.TrimSpace(line))
		}
		err = s.Select(d)
		if err == nil {
			msg = "selected " + timer.Format(d)
		}
	}
	return false, msg, err
}

// parseLength reads "m" or "m:ss". Both parts must be whole numbers; the
// result is clamped like the custom inputs.
func parseLength(s string) (time.Duration, bool) {
	mins, secs, _ := strings.Cut(strings.TrimSpace(s), ":")
	if _, err := strconv.Atoi(mins); err != nil {
		return 0, false
	}
	if secs != "" {
		if _, err := strconv.Atoi(secs); err != nil {
			return 0, false
		}
	}
	return timer.ParseCustom(mins, secs), true
}

func readLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}

// refreshOnSignal redraws from the deadline when the process is resumed
// after being stopped, since frames are not delivered while suspended.
func refreshOnSignal(ctx context.Context, s *session.Session) {
	if len(refreshSignals) == 0 {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, refreshSignals...)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			_ = s.Refresh()
		}
	}
}

// ringView draws ticks as a progress bar. A finished bar is replaced by a
// fresh one on the next session.
type ringView struct {
	p     *mpb.Progress
	name  string
	label atomic.Value

	mu  sync.Mutex
	bar *mpb.Bar
}

func newRingView(p *mpb.Progress, name string) *ringView {
	v := &ringView{p: p, name: name}
	v.label.Store("")
	return v
}

func (v *ringView) text() string { return v.label.Load().(string) }

func (v *ringView) show(text, state string, degrees int) {
	v.label.Store(text + " " + state)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bar == nil || v.bar.Completed() {
		if v.bar != nil && degrees >= common.RingTotal {
			return
		}
		bar, err := common.InitRing(v.p, v.name, v.text)
		if err != nil {
			return
		}
		v.bar = bar
	}
	v.bar.SetCurrent(int64(degrees))
}

func (v *ringView) OnTick(t timer.Tick) { v.show(t.Text, t.State.String(), t.Degrees) }

// syncWriter serializes the bar renderer and status messages.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}

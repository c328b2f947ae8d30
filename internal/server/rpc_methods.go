package server

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/meditate001/meditate/common"
	"github.com/meditate001/meditate/internal/session"
	"github.com/meditate001/meditate/pkg/chime"
	"github.com/meditate001/meditate/pkg/timer"
)

// Custom JSON-RPC error codes for timer operations.
const (
	codeSessionClosed    = jrpc2.Code(-32001)
	codeAudioUnavailable = jrpc2.Code(-32002)
	codeInvalidParams    = jrpc2.Code(-32602)
)

// unlockTimeout bounds opening the audio device.
const unlockTimeout = 5 * time.Second

// RPCConfig holds configuration for the JSON-RPC endpoint.
type RPCConfig struct {
	Secret    string // Bearer token; empty disables authentication
	Version   string
	Commit    string
	BuildType string
}

// RPCServer holds the method table shared by every WebSocket connection.
type RPCServer struct {
	methods   handler.Map
	session   *session.Session
	version   string
	commit    string
	buildType string
}

// NewRPCServer creates the timer and audio method handlers for s.
func NewRPCServer(cfg *RPCConfig, s *session.Session) *RPCServer {
	rs := &RPCServer{
		session:   s,
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
	}
	rs.methods = handler.Map{
		common.MethodGetVersion:   handler.New(rs.systemGetVersion),
		common.MethodTimerStart:   handler.New(rs.timerStart),
		common.MethodTimerPause:   handler.New(rs.timerPause),
		common.MethodTimerResume:  handler.New(rs.timerResume),
		common.MethodTimerReset:   handler.New(rs.timerReset),
		common.MethodTimerSelect:  handler.New(rs.timerSelect),
		common.MethodTimerStatus:  handler.New(rs.timerStatus),
		common.MethodTimerRefresh: handler.New(rs.timerRefresh),
		common.MethodAudioUnlock:  handler.New(rs.audioUnlock),
		common.MethodAudioTest:    handler.New(rs.audioTestTone),
	}
	return rs
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*common.VersionResult, error) {
	return &common.VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

// timerStart starts a session, with the given duration when one is passed.
func (rs *RPCServer) timerStart(_ context.Context, p *common.DurationParams) (*common.StatusResult, error) {
	var err error
	if p.Empty() {
		err = rs.session.Start()
	} else {
		err = rs.session.StartWith(durationOf(p))
	}
	if err != nil {
		return nil, sessionError(err)
	}
	return rs.status()
}

func (rs *RPCServer) timerPause(_ context.Context) (*common.StatusResult, error) {
	return rs.apply(rs.session.Pause)
}

func (rs *RPCServer) timerResume(_ context.Context) (*common.StatusResult, error) {
	return rs.apply(rs.session.Resume)
}

func (rs *RPCServer) timerReset(_ context.Context) (*common.StatusResult, error) {
	return rs.apply(rs.session.Reset)
}

func (rs *RPCServer) timerRefresh(_ context.Context) (*common.StatusResult, error) {
	return rs.apply(rs.session.Refresh)
}

// timerSelect changes the duration for the next start.
func (rs *RPCServer) timerSelect(_ context.Context, p *common.DurationParams) (*common.StatusResult, error) {
	if p.Empty() {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: durationMs or minutes/seconds"}
	}
	return rs.apply(func() error { return rs.session.Select(durationOf(p)) })
}

func (rs *RPCServer) timerStatus(_ context.Context) (*common.StatusResult, error) {
	return rs.status()
}

// audioUnlock opens the audio output so completions are audible.
func (rs *RPCServer) audioUnlock(ctx context.Context) (*common.AudioResult, error) {
	ctx, cancel := context.WithTimeout(ctx, unlockTimeout)
	defer cancel()
	if err := rs.session.UnlockAudio(ctx); err != nil {
		if errors.Is(err, chime.ErrAudioUnavailable) {
			return nil, &jrpc2.Error{Code: codeAudioUnavailable, Message: err.Error()}
		}
		return nil, err
	}
	return rs.audio(false), nil
}

// audioTestTone plays the completion chime if audio is unlocked.
func (rs *RPCServer) audioTestTone(_ context.Context) (*common.AudioResult, error) {
	played, err := rs.session.TestTone()
	if err != nil {
		return nil, sessionError(err)
	}
	return rs.audio(played), nil
}

func (rs *RPCServer) apply(op func() error) (*common.StatusResult, error) {
	if err := op(); err != nil {
		return nil, sessionError(err)
	}
	return rs.status()
}

func (rs *RPCServer) status() (*common.StatusResult, error) {
	snap, err := rs.session.Status()
	if err != nil {
		return nil, sessionError(err)
	}
	res := statusResult(snap)
	res.AudioUnlocked = rs.session.AudioUnlocked()
	res.Hint = rs.session.Hint()
	return res, nil
}

func (rs *RPCServer) audio(played bool) *common.AudioResult {
	return &common.AudioResult{
		Unlocked: rs.session.AudioUnlocked(),
		Played:   played,
		Hint:     rs.session.Hint(),
	}
}

func sessionError(err error) error {
	return &jrpc2.Error{Code: codeSessionClosed, Message: err.Error()}
}

func durationOf(p *common.DurationParams) time.Duration {
	if p.DurationMs != nil {
		return timer.ClampDuration(time.Duration(*p.DurationMs) * time.Millisecond)
	}
	var m, s int
	if p.Minutes != nil {
		m = *p.Minutes
	}
	if p.Seconds != nil {
		s = *p.Seconds
	}
	return timer.Custom(m, s)
}

// statusResult renders a snapshot the way the display shows it.
func statusResult(snap timer.Snapshot) *common.StatusResult {
	var frac float64
	switch snap.State {
	case timer.StateRunning, timer.StatePaused:
		frac = timer.Progress(snap.Remaining, snap.Duration)
	case timer.StateCompleted:
		frac = 1
	}
	res := &common.StatusResult{
		State:       snap.State.String(),
		DurationMs:  snap.Duration.Milliseconds(),
		RemainingMs: snap.Remaining.Milliseconds(),
		SelectedMs:  snap.Selected.Milliseconds(),
		Text:        timer.Format(snap.Remaining),
		Fraction:    frac,
		Degrees:     timer.Degrees(frac),
	}
	if !snap.Target.IsZero() {
		res.Target = snap.Target.UTC().Format(time.RFC3339Nano)
	}
	return res
}

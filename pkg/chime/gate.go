package chime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// ErrAudioUnavailable is returned by Unlock when the output device could not
// be opened.
var ErrAudioUnavailable = errors.New("audio output unavailable")

// Hints shown next to the controls.
const (
	HintEnabled = "• end tone enabled"
	HintBlocked = "• tap \"test tone\" if sound is blocked"
)

// Output is an audio sink.
type Output interface {
	Init(sr beep.SampleRate, bufferSize int) error
	// Play starts s and calls done once it has been fully consumed.
	Play(s beep.Streamer, done func())
}

type speakerOutput struct{}

// Speaker returns the system audio device via beep/speaker.
func Speaker() Output { return speakerOutput{} }

func (speakerOutput) Init(sr beep.SampleRate, bufferSize int) error {
	return speaker.Init(sr, bufferSize)
}

func (speakerOutput) Play(s beep.Streamer, done func()) {
	speaker.Play(beep.Seq(s, beep.Callback(done)))
}

// Gate holds the audio output locked until Unlock succeeds. Nothing is
// played while it is locked.
type Gate struct {
	out  Output
	tone Tone
	sr   beep.SampleRate

	unlockMu sync.Mutex
	mu       sync.Mutex
	unlocked bool
}

// NewGate creates a locked gate that plays tone on out.
func NewGate(out Output, tone Tone) *Gate {
	return &Gate{out: out, tone: tone, sr: DefaultSampleRate}
}

// Unlock opens the output device. It is safe to call repeatedly; once the
// gate is unlocked further calls return nil immediately.
func (g *Gate) Unlock(ctx context.Context) error {
	g.unlockMu.Lock()
	defer g.unlockMu.Unlock()
	if g.Unlocked() {
		return nil
	}
	if g.out == nil {
		return ErrAudioUnavailable
	}

	res := make(chan error, 1)
	go func() {
		res <- g.out.Init(g.sr, g.sr.N(100*time.Millisecond))
	}()

	select {
	case err := <-res:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrAudioUnavailable, ctx.Err())
	}

	g.mu.Lock()
	g.unlocked = true
	g.mu.Unlock()
	return nil
}

// Unlocked reports whether the output is available.
func (g *Gate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// Hint describes the audio state for display.
func (g *Gate) Hint() string {
	if g.Unlocked() {
		return HintEnabled
	}
	return HintBlocked
}

// Chime starts the tone without waiting for it. It returns false when the
// gate is locked.
func (g *Gate) Chime() bool {
	if !g.Unlocked() {
		return false
	}
	g.out.Play(g.tone.Streamer(g.sr), func() {})
	return true
}

// PlayWait plays the tone and blocks until playback ends or ctx is done.
func (g *Gate) PlayWait(ctx context.Context) error {
	if !g.Unlocked() {
		return ErrAudioUnavailable
	}
	done := make(chan struct{})
	var once sync.Once
	g.out.Play(g.tone.Streamer(g.sr), func() { once.Do(func() { close(done) }) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package chime synthesizes the end-of-session tone and guards audio output
// behind an explicit unlock step.
package chime

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

// DefaultSampleRate is used for playback and WAV rendering.
const DefaultSampleRate beep.SampleRate = 44100

// Tone is a sine sweep with an exponential attack/decay envelope.
type Tone struct {
	Duration time.Duration
	StartHz  float64
	EndHz    float64
	// Floor is the gain at the start and end of the tone. It must be
	// positive for the exponential ramps.
	Floor float64
	Peak  float64
	// Attack is the time from Floor to Peak.
	Attack time.Duration
}

// DefaultTone is a soft rising two-tone glide: 520 Hz to 660 Hz over 1.25s,
// peaking at 0.08 gain after 60ms.
var DefaultTone = Tone{
	Duration: 1250 * time.Millisecond,
	StartHz:  520,
	EndHz:    660,
	Floor:    0.0001,
	Peak:     0.08,
	Attack:   60 * time.Millisecond,
}

// Frequency returns the oscillator frequency at offset at into the tone.
func (t Tone) Frequency(at time.Duration) float64 {
	if t.Duration <= 0 {
		return t.StartHz
	}
	p := clamp01(at.Seconds() / t.Duration.Seconds())
	return t.StartHz + (t.EndHz-t.StartHz)*p
}

// Gain returns the envelope value at offset at into the tone.
func (t Tone) Gain(at time.Duration) float64 {
	if at <= 0 {
		return t.Floor
	}
	if at < t.Attack {
		return expRamp(t.Floor, t.Peak, at.Seconds()/t.Attack.Seconds())
	}
	decay := t.Duration - t.Attack
	if decay <= 0 || at >= t.Duration {
		return t.Floor
	}
	return expRamp(t.Peak, t.Floor, (at-t.Attack).Seconds()/decay.Seconds())
}

// Samples returns the number of frames the tone spans at sr.
func (t Tone) Samples(sr beep.SampleRate) int {
	return sr.N(t.Duration)
}

// Streamer renders the tone as stereo samples at sr.
func (t Tone) Streamer(sr beep.SampleRate) beep.Streamer {
	total := t.Samples(sr)
	pos := 0
	phase := 0.0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= total {
			return 0, false
		}
		for i := range samples {
			if pos >= total {
				break
			}
			at := sr.D(pos)
			v := t.Gain(at) * math.Sin(phase)
			samples[i][0], samples[i][1] = v, v
			phase += 2 * math.Pi * t.Frequency(at) / float64(sr)
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
			pos++
			n++
		}
		return n, true
	})
}

func expRamp(from, to, p float64) float64 {
	return from * math.Pow(to/from, clamp01(p))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

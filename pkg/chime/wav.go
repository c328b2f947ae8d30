package chime

import (
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// WriteWAV renders tone as a 16-bit stereo WAV file.
func WriteWAV(w io.WriteSeeker, tone Tone, sr beep.SampleRate) error {
	if sr <= 0 {
		sr = DefaultSampleRate
	}
	format := beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2}
	return wav.Encode(w, tone.Streamer(sr), format)
}

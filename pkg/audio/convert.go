// Package audio provides PCM utilities for the voice pipeline: the canonical
// 16 kHz mono frame format, input normalization for clients that capture at
// other rates, and WAV encoding for batch STT requests.
package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the pipeline's native format.
var Canonical = Format{SampleRate: SampleRate, Channels: Channels}

// Normalizer converts incoming PCM to the canonical 16 kHz mono format. It
// logs a warning on the first format mismatch and validates PCM alignment.
// Create one per stream; not designed for shared use across goroutines.
type Normalizer struct {
	Source         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize converts a PCM chunk from the source format to canonical. If the
// source already matches, the input is returned unchanged (zero allocation).
// Conversion order: downmix first, then resample, so we never resample a
// stereo signal. Malformed input (odd byte count) yields nil.
func (n *Normalizer) Normalize(pcm []byte) []byte {
	if len(pcm)%2 != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: odd byte count in PCM data, dropping chunk",
				"bytes", len(pcm),
				"source", formatString(n.Source),
			)
		})
		return nil
	}

	if n.Source == Canonical || n.Source == (Format{}) {
		return pcm
	}

	n.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: normalizing",
			"from", formatString(n.Source),
			"to", formatString(Canonical),
		)
	})

	if n.Source.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if n.Source.SampleRate != SampleRate {
		pcm = ResampleMono16(pcm, n.Source.SampleRate, SampleRate)
	}
	return pcm
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// formatString returns a human-readable string for a format, e.g. "48000Hz stereo".
func formatString(f Format) string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Package audiofile decodes WAV files into per-channel float sample
// buffers, optionally converting the sample rate.
package audiofile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Audio is decoded PCM audio, one slice per channel, in [-1, 1).
type Audio struct {
	Channels   [][]float32
	SampleRate float64
	BitDepth   int
}

// ChannelCount is the number of channels.
func (a Audio) ChannelCount() int { return len(a.Channels) }

// Length is the number of sample frames.
func (a Audio) Length() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0])
}

// Duration is the length in seconds.
func (a Audio) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(a.Length()) / a.SampleRate
}

// Read decodes the WAV file at path.
func Read(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, err
	}
	defer f.Close()
	a, err := Decode(f)
	if err != nil {
		return Audio{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Decode reads a whole WAV stream.
func Decode(r io.ReadSeeker) (Audio, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return Audio{}, errors.New("invalid WAV file format")
	}
	divisor, err := divisor(int(decoder.BitDepth))
	if err != nil {
		return Audio{}, err
	}
	channels := int(decoder.NumChans)
	if channels < 1 {
		return Audio{}, fmt.Errorf("unsupported number of channels: %d", channels)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Audio{}, fmt.Errorf("decode PCM: %w", err)
	}
	frames := len(buf.Data) / channels
	out := Audio{
		Channels:   make([][]float32, channels),
		SampleRate: float64(decoder.SampleRate),
		BitDepth:   int(decoder.BitDepth),
	}
	for c := range out.Channels {
		out.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames*channels; i++ {
		out.Channels[i%channels][i/channels] = float32(buf.Data[i]) / divisor
	}
	return out, nil
}

func divisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768, nil
	case 24:
		return 8388608, nil
	case 32:
		return 2147483648, nil
	}
	return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
}

// Resample converts a to rate. Audio already at rate is returned as is.
func Resample(a Audio, rate float64) (Audio, error) {
	if rate <= 0 {
		return Audio{}, fmt.Errorf("invalid target sample rate %v", rate)
	}
	if a.SampleRate == rate || a.ChannelCount() == 0 {
		return a, nil
	}
	if a.SampleRate <= 0 {
		return Audio{}, fmt.Errorf("invalid source sample rate %v", a.SampleRate)
	}
	frames := int(math.Round(float64(a.Length()) * rate / a.SampleRate))
	out := Audio{Channels: make([][]float32, 0, a.ChannelCount()), SampleRate: rate, BitDepth: a.BitDepth}
	for c, ch := range a.Channels {
		resampled, err := resampleChannel(ch, a.SampleRate, rate)
		if err != nil {
			return Audio{}, fmt.Errorf("resample channel %d: %w", c, err)
		}
		out.Channels = append(out.Channels, fit(resampled, frames))
	}
	return out, nil
}

// resampleChannel runs one channel through its own resampler, flushing the
// samples still held in the filter delay line.
func resampleChannel(ch []float32, from, to float64) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  from,
		OutputRate: to,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	in := make([]float64, len(ch))
	for i, v := range ch {
		in[i] = float64(v)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, err
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, err
	}
	return append(out, tail...), nil
}

// fit converts to float32, cut or zero padded to exactly frames samples.
func fit(samples []float64, frames int) []float32 {
	out := make([]float32, frames)
	for i := range min(frames, len(samples)) {
		out[i] = float32(samples[i])
	}
	return out
}

// Mono averages all channels into one.
func Mono(a Audio) Audio {
	if a.ChannelCount() <= 1 {
		return a
	}
	mixed := make([]float32, a.Length())
	for _, ch := range a.Channels {
		for i, v := range ch {
			mixed[i] += v
		}
	}
	n := float32(a.ChannelCount())
	for i := range mixed {
		mixed[i] /= n
	}
	return Audio{Channels: [][]float32{mixed}, SampleRate: a.SampleRate, BitDepth: a.BitDepth}
}

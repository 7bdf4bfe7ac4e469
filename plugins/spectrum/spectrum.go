// Package spectrum computes the windowed power spectrum of each block.
package spectrum

import (
	"fmt"
	"math/bits"
	"strconv"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

var Metadata = extractor.StaticData{
	Key:             "example:power-spectrum",
	Name:            "Power Spectrum",
	Description:     "Hann windowed power spectrum of each block",
	Maker:           "vamphost",
	Version:         1,
	Category:        []string{"Visualisation"},
	MinChannelCount: 1,
	MaxChannelCount: 1,
	InputDomain:     extractor.TimeDomain,
	Parameters: []extractor.ParameterDescriptor{{
		Identifier:   "decibels",
		Name:         "Decibels",
		Description:  "Report power in dB instead of linear units",
		MinValue:     0,
		MaxValue:     1,
		DefaultValue: 0,
		IsQuantized:  true,
	}},
	BasicOutputInfo: []extractor.BasicDescriptor{
		{Identifier: "power", Name: "Power", Description: "Power of each frequency bin from DC to Nyquist"},
	},
}

type Spectrum struct {
	extractor.Guard
	sampleRate float64
	decibels   bool
	fft        *fourier.FFT
	buf        []float64
	coeffs     []complex128
}

func New(sampleRate float64) (extractor.Extractor, error) {
	return &Spectrum{sampleRate: sampleRate}, nil
}

func (s *Spectrum) DefaultConfiguration() extractor.Configuration {
	return extractor.Configuration{ChannelCount: 1, Framing: extractor.Framing{BlockSize: 1024, StepSize: 512}}
}

// Configure requires a power of two block size.
func (s *Spectrum) Configure(c extractor.Configuration) (extractor.Configured, error) {
	if n := c.Framing.BlockSize; n > 0 && bits.OnesCount(uint(n)) != 1 {
		return extractor.Configured{}, fmt.Errorf("block size %d is not a power of two", n)
	}
	if err := s.Guard.Configure(c, Metadata.MinChannelCount, Metadata.MaxChannelCount); err != nil {
		return extractor.Configured{}, err
	}
	n := c.Framing.BlockSize
	s.decibels = c.ParameterValues["decibels"] > 0
	s.fft = fourier.NewFFT(n)
	s.buf = make([]float64, n)
	s.coeffs = make([]complex128, n/2+1)

	bins := n/2 + 1
	names := make([]string, bins)
	for i := range names {
		names[i] = strconv.FormatFloat(float64(i)*s.sampleRate/float64(n), 'f', 1, 64) + " Hz"
	}
	unit := "V^2"
	if s.decibels {
		unit = "dB"
	}
	return extractor.Configured{
		Outputs: []extractor.OutputDescriptor{{
			Basic: Metadata.BasicOutputInfo[0],
			Configured: extractor.ConfiguredDescriptor{
				BinCount:   bins,
				BinNames:   names,
				SampleType: extractor.OneSamplePerStep,
				Unit:       unit,
			},
		}},
		Framing: c.Framing,
	}, nil
}

func (s *Spectrum) Process(in extractor.ProcessInput) (*feature.Set, error) {
	if err := s.CheckProcess(in); err != nil {
		return nil, err
	}
	clear(s.buf)
	for i, v := range in.InputBuffers[0] {
		if i == len(s.buf) {
			break
		}
		s.buf[i] = float64(v)
	}
	window.Hann(s.buf)
	s.coeffs = s.fft.Coefficients(s.coeffs, s.buf)

	values := make([]float32, len(s.coeffs))
	for i, c := range s.coeffs {
		values[i] = float32(power(c, s.decibels))
	}
	out := feature.NewSet()
	out.Append("power", feature.Feature{Values: values})
	return out, nil
}

func (s *Spectrum) Finish() (*feature.Set, error) {
	if _, err := s.Guard.Finish(); err != nil {
		return nil, err
	}
	return feature.NewSet(), nil
}

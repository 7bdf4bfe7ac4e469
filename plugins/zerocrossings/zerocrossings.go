// Package zerocrossings counts and locates the points where a signal
// crosses zero.
package zerocrossings

import (
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

var Metadata = extractor.StaticData{
	Key:             "example:zerocrossings",
	Name:            "Zero Crossings",
	Description:     "Detect and count zero crossings",
	Maker:           "vamphost",
	Version:         2,
	Category:        []string{"Low Level Features"},
	MinChannelCount: 1,
	MaxChannelCount: 1,
	InputDomain:     extractor.TimeDomain,
	BasicOutputInfo: []extractor.BasicDescriptor{
		{Identifier: "counts", Name: "Zero Crossing Counts", Description: "The number of zero crossing points per processing block"},
		{Identifier: "crossings", Name: "Zero Crossings", Description: "The locations of zero crossing points"},
	},
}

// ZeroCrossings carries the last sample of each block into the next, so a
// crossing on a block boundary is counted once.
type ZeroCrossings struct {
	extractor.Guard
	sampleRate float64
	previous   float32
}

func New(sampleRate float64) (extractor.Extractor, error) {
	return &ZeroCrossings{sampleRate: sampleRate}, nil
}

func (z *ZeroCrossings) DefaultConfiguration() extractor.Configuration {
	return extractor.Configuration{ChannelCount: 1, Framing: extractor.Framing{BlockSize: 1024, StepSize: 1024}}
}

func (z *ZeroCrossings) Configure(c extractor.Configuration) (extractor.Configured, error) {
	if err := z.Guard.Configure(c, Metadata.MinChannelCount, Metadata.MaxChannelCount); err != nil {
		return extractor.Configured{}, err
	}
	return extractor.Configured{
		Outputs: []extractor.OutputDescriptor{
			{
				Basic: Metadata.BasicOutputInfo[0],
				Configured: extractor.ConfiguredDescriptor{
					BinCount:   1,
					BinNames:   []string{""},
					SampleType: extractor.OneSamplePerStep,
					Unit:       "crossings",
				},
			},
			{
				Basic: Metadata.BasicOutputInfo[1],
				Configured: extractor.ConfiguredDescriptor{
					BinCount:   0,
					SampleType: extractor.VariableSampleRate,
					SampleRate: z.sampleRate,
				},
			},
		},
		Framing: c.Framing,
	}, nil
}

// Process emits the block's crossing count and, when there are any, one
// crossings feature per crossing stamped at its sample.
func (z *ZeroCrossings) Process(in extractor.ProcessInput) (*feature.Set, error) {
	if err := z.CheckProcess(in); err != nil {
		return nil, err
	}
	var crossings feature.List
	for n, s := range in.InputBuffers[0] {
		if crossed(z.previous, s) {
			crossings = append(crossings, feature.Feature{}.WithTimestamp(in.Timestamp+feature.FromFrames(int64(n), z.sampleRate)))
		}
		z.previous = s
	}

	out := feature.NewSet()
	out.Append("counts", feature.Feature{Values: []float32{float32(len(crossings))}})
	if len(crossings) > 0 {
		out.Append("crossings", crossings...)
	}
	return out, nil
}

func crossed(prev, s float32) bool {
	return (prev > 0 && s <= 0) || (prev <= 0 && s > 0)
}

func (z *ZeroCrossings) Finish() (*feature.Set, error) {
	if _, err := z.Guard.Finish(); err != nil {
		return nil, err
	}
	return feature.NewSet(), nil
}

// Package stub provides small deterministic extractors whose output is easy
// to predict. They back the service and pipeline tests and are handy for
// trying the host out without real audio analysis.
package stub

import (
	"math"
	"slices"

	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

// SumMetadata describes "stub:sum".
var SumMetadata = extractor.StaticData{
	Key:             "stub:sum",
	Name:            "Summer",
	Description:     "Sums the first channel of each block",
	Maker:           "vamphost",
	Version:         1,
	MinChannelCount: 1,
	MaxChannelCount: 1,
	InputDomain:     extractor.TimeDomain,
	Parameters: []extractor.ParameterDescriptor{{
		Identifier:   "conditional",
		Name:         "Emit conditional output",
		MinValue:     0,
		MaxValue:     1,
		DefaultValue: 0,
		IsQuantized:  true,
	}},
	BasicOutputInfo: []extractor.BasicDescriptor{
		{Identifier: "sum", Name: "Sum", Description: "Sum of the block"},
		{Identifier: "cumsum", Name: "Cumulative sum", Description: "Running sum of all blocks so far"},
		{Identifier: "passthrough", Name: "Pass through", Description: "The block itself"},
		{Identifier: "finish", Name: "Finish", Description: "Running sum, emitted on finish"},
		{Identifier: "conditional", Name: "Conditional", Description: "Only emitted when enabled"},
	},
}

// Sum emits the sum of each block, the running sum and the block itself.
type Sum struct {
	extractor.Guard
	sampleRate  float64
	framing     extractor.Framing
	conditional bool
	cumsum      float64
	frames      int64
}

// NewSum is the extractor.NewFunc of "stub:sum".
func NewSum(sampleRate float64) (extractor.Extractor, error) {
	return &Sum{sampleRate: sampleRate}, nil
}

// DefaultConfiguration states no framing preference.
func (s *Sum) DefaultConfiguration() extractor.Configuration {
	return extractor.Configuration{ChannelCount: 1}
}

func (s *Sum) Configure(c extractor.Configuration) (extractor.Configured, error) {
	if err := s.Guard.Configure(c, SumMetadata.MinChannelCount, SumMetadata.MaxChannelCount); err != nil {
		return extractor.Configured{}, err
	}
	s.framing = c.Framing
	s.conditional = c.ParameterValues["conditional"] > 0

	outputs := make([]extractor.OutputDescriptor, 0, len(SumMetadata.BasicOutputInfo))
	for _, basic := range SumMetadata.BasicOutputInfo {
		configured := extractor.ConfiguredDescriptor{BinCount: 1, BinNames: []string{}, SampleType: extractor.OneSamplePerStep}
		switch basic.Identifier {
		case "passthrough":
			configured.BinCount = c.Framing.BlockSize
		case "finish":
			configured.SampleType = extractor.VariableSampleRate
		}
		outputs = append(outputs, extractor.OutputDescriptor{Basic: basic, Configured: configured})
	}
	return extractor.Configured{Outputs: outputs, Framing: c.Framing}, nil
}

func (s *Sum) Process(in extractor.ProcessInput) (*feature.Set, error) {
	if err := s.CheckProcess(in); err != nil {
		return nil, err
	}
	block := in.InputBuffers[0]
	var sum float64
	for _, v := range block {
		sum += float64(v)
	}
	s.cumsum += sum
	s.frames += int64(s.framing.StepSize)

	out := feature.NewSet()
	out.Append("sum", feature.Feature{Values: []float32{float32(sum)}})
	out.Append("passthrough", feature.Feature{Values: slices.Clone(block)})
	out.Append("cumsum", feature.Feature{Values: []float32{float32(s.cumsum)}})
	if s.conditional {
		out.Append("conditional", feature.Feature{Values: []float32{float32(sum)}})
	}
	return out, nil
}

// Finish emits the running sum stamped at the end of the processed audio.
func (s *Sum) Finish() (*feature.Set, error) {
	if _, err := s.Guard.Finish(); err != nil {
		return nil, err
	}
	out := feature.NewSet()
	out.Append("finish", feature.At(feature.FromFrames(s.frames, s.sampleRate), float32(s.cumsum)))
	return out, nil
}

// PassthroughMetadata describes "stub:passthrough".
var PassthroughMetadata = extractor.StaticData{
	Key:             "stub:passthrough",
	Name:            "Pass through",
	Description:     "Emits every block unchanged",
	Maker:           "vamphost",
	Version:         1,
	MinChannelCount: 1,
	MaxChannelCount: 8,
	BasicOutputInfo: []extractor.BasicDescriptor{
		{Identifier: "passthrough", Name: "Pass through", Description: "First channel of each block"},
	},
}

// Passthrough returns the first channel of each block as a feature.
type Passthrough struct {
	extractor.Guard
}

func NewPassthrough(float64) (extractor.Extractor, error) { return &Passthrough{}, nil }

func (p *Passthrough) DefaultConfiguration() extractor.Configuration {
	return extractor.Configuration{ChannelCount: 1, Framing: extractor.Framing{BlockSize: 8, StepSize: 8}}
}

func (p *Passthrough) Configure(c extractor.Configuration) (extractor.Configured, error) {
	if err := p.Guard.Configure(c, PassthroughMetadata.MinChannelCount, PassthroughMetadata.MaxChannelCount); err != nil {
		return extractor.Configured{}, err
	}
	return extractor.Configured{
		Outputs: []extractor.OutputDescriptor{{
			Basic:      PassthroughMetadata.BasicOutputInfo[0],
			Configured: extractor.ConfiguredDescriptor{BinCount: c.Framing.BlockSize, SampleType: extractor.OneSamplePerStep},
		}},
		Framing: c.Framing,
	}, nil
}

func (p *Passthrough) Process(in extractor.ProcessInput) (*feature.Set, error) {
	if err := p.CheckProcess(in); err != nil {
		return nil, err
	}
	out := feature.NewSet()
	out.Append("passthrough", feature.Feature{Values: slices.Clone(in.InputBuffers[0])})
	return out, nil
}

func (p *Passthrough) Finish() (*feature.Set, error) {
	if _, err := p.Guard.Finish(); err != nil {
		return nil, err
	}
	return feature.NewSet(), nil
}

// CurveMetadata describes "fixture:curve-fsr".
var CurveMetadata = extractor.StaticData{
	Key:             "fixture:curve-fsr",
	Name:            "Fixed rate curve",
	Description:     "Block peak on a fixed sample rate grid, optionally with a gap",
	Maker:           "vamphost",
	Version:         1,
	MinChannelCount: 1,
	MaxChannelCount: 1,
	Parameters: []extractor.ParameterDescriptor{{
		Identifier:   "skip",
		Name:         "Skip block",
		Description:  "Index of a block that produces no feature, -1 for none",
		MinValue:     -1,
		MaxValue:     math.MaxInt32,
		DefaultValue: -1,
		IsQuantized:  true,
	}},
	BasicOutputInfo: []extractor.BasicDescriptor{
		{Identifier: "curve", Name: "Curve", Description: "Peak absolute value of each block"},
		{Identifier: "grid", Name: "Grid", Description: "Two-bin min and max of each block"},
	},
}

// Curve emits timestamped features at a fixed rate of one per step.
type Curve struct {
	extractor.Guard
	sampleRate float64
	step       int
	skip       int
	block      int
}

func NewCurve(sampleRate float64) (extractor.Extractor, error) {
	return &Curve{sampleRate: sampleRate, skip: -1}, nil
}

func (c *Curve) DefaultConfiguration() extractor.Configuration {
	return extractor.Configuration{ChannelCount: 1, Framing: extractor.Framing{BlockSize: 4, StepSize: 4}}
}

func (c *Curve) Configure(cfg extractor.Configuration) (extractor.Configured, error) {
	if err := c.Guard.Configure(cfg, 1, 1); err != nil {
		return extractor.Configured{}, err
	}
	c.step = cfg.Framing.StepSize
	if v, ok := cfg.ParameterValues["skip"]; ok {
		c.skip = int(v)
	}
	rate := c.sampleRate / float64(c.step)
	return extractor.Configured{
		Outputs: []extractor.OutputDescriptor{
			{Basic: CurveMetadata.BasicOutputInfo[0], Configured: extractor.ConfiguredDescriptor{
				BinCount: 1, SampleType: extractor.FixedSampleRate, SampleRate: rate,
			}},
			{Basic: CurveMetadata.BasicOutputInfo[1], Configured: extractor.ConfiguredDescriptor{
				BinCount: 2, BinNames: []string{"min", "max"}, SampleType: extractor.FixedSampleRate, SampleRate: rate,
			}},
		},
		Framing: cfg.Framing,
	}, nil
}

func (c *Curve) Process(in extractor.ProcessInput) (*feature.Set, error) {
	if err := c.CheckProcess(in); err != nil {
		return nil, err
	}
	n := c.block
	c.block++
	out := feature.NewSet()
	if n == c.skip {
		return out, nil
	}
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	var peak float32
	for _, v := range in.InputBuffers[0] {
		lo, hi = min(lo, v), max(hi, v)
		peak = max(peak, float32(math.Abs(float64(v))))
	}
	t := feature.FromFrames(int64(n*c.step), c.sampleRate)
	out.Append("curve", feature.At(t, peak))
	out.Append("grid", feature.At(t, lo, hi))
	return out, nil
}

func (c *Curve) Finish() (*feature.Set, error) {
	if _, err := c.Guard.Finish(); err != nil {
		return nil, err
	}
	return feature.NewSet(), nil
}

// Factories returns the stub extractors in a fixed order.
func Factories() []extractor.Factory {
	return []extractor.Factory{
		{Metadata: SumMetadata, New: NewSum},
		{Metadata: CurveMetadata, New: NewCurve},
		{Metadata: PassthroughMetadata, New: NewPassthrough},
	}
}

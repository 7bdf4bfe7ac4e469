// Package extractor defines the boundary between the host and a feature
// extractor implementation: static metadata, configuration, output
// descriptors and the block processing interface.
package extractor

import (
	"fmt"
	"strings"
	"time"

	"github.com/maastricht-university/vamphost/feature"
)

// SampleType is an output's declared timing semantics.
type SampleType int

const (
	OneSamplePerStep SampleType = iota
	FixedSampleRate
	VariableSampleRate
)

func (t SampleType) String() string {
	switch t {
	case OneSamplePerStep:
		return "OneSamplePerStep"
	case FixedSampleRate:
		return "FixedSampleRate"
	case VariableSampleRate:
		return "VariableSampleRate"
	}
	return fmt.Sprintf("SampleType(%d)", int(t))
}

// InputDomain is the domain an extractor expects its input blocks in.
type InputDomain int

const (
	TimeDomain InputDomain = iota
	FrequencyDomain
)

// AdapterFlag asks the host to adapt the input for an extractor.
type AdapterFlag int

const (
	AdaptNone AdapterFlag = iota
	AdaptInputDomain
	AdaptChannelCount
	AdaptBufferSize
	AdaptAllSafe
	AdaptAll
)

// Framing is the block and step size, in sample frames.
type Framing struct {
	BlockSize int `json:"blockSize" yaml:"block_size" msgpack:"blockSize"`
	StepSize  int `json:"stepSize" yaml:"step_size" msgpack:"stepSize"`
}

// Configuration is what a caller applies to a loaded extractor.
type Configuration struct {
	ChannelCount    int                `json:"channelCount" yaml:"channel_count" msgpack:"channelCount"`
	Framing         Framing            `json:"framing" yaml:"framing" msgpack:"framing"`
	ParameterValues map[string]float64 `json:"parameterValues,omitempty" yaml:"parameter_values,omitempty" msgpack:"parameterValues,omitempty"`
}

// BasicDescriptor identifies an output independent of configuration.
type BasicDescriptor struct {
	Identifier  string `json:"identifier" yaml:"identifier" msgpack:"identifier"`
	Name        string `json:"name" yaml:"name" msgpack:"name"`
	Description string `json:"description" yaml:"description" msgpack:"description"`
}

// ConfiguredDescriptor describes an output once the extractor is configured.
type ConfiguredDescriptor struct {
	BinCount    int        `json:"binCount" yaml:"bin_count" msgpack:"binCount"`
	BinNames    []string   `json:"binNames" yaml:"bin_names" msgpack:"binNames"`
	HasDuration bool       `json:"hasDuration" yaml:"has_duration" msgpack:"hasDuration"`
	SampleType  SampleType `json:"sampleType" yaml:"sample_type" msgpack:"sampleType"`
	SampleRate  float64    `json:"sampleRate" yaml:"sample_rate" msgpack:"sampleRate"`
	Unit        string     `json:"unit,omitempty" yaml:"unit,omitempty" msgpack:"unit,omitempty"`
}

// OutputDescriptor is the full description of one configured output.
type OutputDescriptor struct {
	Basic      BasicDescriptor      `json:"basic" yaml:"basic" msgpack:"basic"`
	Configured ConfiguredDescriptor `json:"configured" yaml:"configured" msgpack:"configured"`
}

// ParameterDescriptor describes one tunable extractor parameter.
type ParameterDescriptor struct {
	Identifier   string  `json:"identifier" yaml:"identifier" msgpack:"identifier"`
	Name         string  `json:"name" yaml:"name" msgpack:"name"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty" msgpack:"description,omitempty"`
	Unit         string  `json:"unit,omitempty" yaml:"unit,omitempty" msgpack:"unit,omitempty"`
	MinValue     float64 `json:"minValue" yaml:"min_value" msgpack:"minValue"`
	MaxValue     float64 `json:"maxValue" yaml:"max_value" msgpack:"maxValue"`
	DefaultValue float64 `json:"defaultValue" yaml:"default_value" msgpack:"defaultValue"`
	IsQuantized  bool    `json:"isQuantized,omitempty" yaml:"is_quantized,omitempty" msgpack:"isQuantized,omitempty"`
}

// StaticData is the immutable metadata of one extractor kind.
type StaticData struct {
	Key             string                `json:"key" yaml:"key" msgpack:"key"`
	Name            string                `json:"name" yaml:"name" msgpack:"name"`
	Description     string                `json:"description" yaml:"description" msgpack:"description"`
	Maker           string                `json:"maker,omitempty" yaml:"maker,omitempty" msgpack:"maker,omitempty"`
	Version         int                   `json:"version" yaml:"version" msgpack:"version"`
	Category        []string              `json:"category,omitempty" yaml:"category,omitempty" msgpack:"category,omitempty"`
	MinChannelCount int                   `json:"minChannelCount" yaml:"min_channel_count" msgpack:"minChannelCount"`
	MaxChannelCount int                   `json:"maxChannelCount" yaml:"max_channel_count" msgpack:"maxChannelCount"`
	InputDomain     InputDomain           `json:"inputDomain" yaml:"input_domain" msgpack:"inputDomain"`
	Parameters      []ParameterDescriptor `json:"parameters,omitempty" yaml:"parameters,omitempty" msgpack:"parameters,omitempty"`
	BasicOutputInfo []BasicDescriptor     `json:"basicOutputInfo" yaml:"basic_output_info" msgpack:"basicOutputInfo"`
}

// Library is the library component of the key ("stub" for "stub:sum").
func (d StaticData) Library() string {
	lib, _, _ := strings.Cut(d.Key, ":")
	return lib
}

// ProcessInput is one block of multichannel audio and its start time.
type ProcessInput struct {
	Timestamp    time.Duration
	InputBuffers [][]float32
}

// Configured is the extractor's answer to Configure.
type Configured struct {
	Outputs []OutputDescriptor
	Framing Framing
}

// Output returns the descriptor of output id.
func (c Configured) Output(id string) (OutputDescriptor, bool) {
	for _, o := range c.Outputs {
		if o.Basic.Identifier == id {
			return o, true
		}
	}
	return OutputDescriptor{}, false
}

// Extractor is one loaded extractor instance. Configure succeeds at most
// once and Finish may only be called once.
type Extractor interface {
	DefaultConfiguration() Configuration
	Configure(Configuration) (Configured, error)
	Process(ProcessInput) (*feature.Set, error)
	Finish() (*feature.Set, error)
}

// NewFunc constructs an extractor bound to an input sample rate.
type NewFunc func(inputSampleRate float64) (Extractor, error)

// Factory pairs an extractor kind's metadata with its constructor.
type Factory struct {
	Metadata StaticData
	New      NewFunc
}

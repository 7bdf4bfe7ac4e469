package orchestrator

import (
	"github.com/maastricht-university/vamphost/collection"
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/service"
)

// AudioFormat describes the audio of a request.
type AudioFormat struct {
	ChannelCount int     `json:"channelCount" yaml:"channel_count"`
	SampleRate   float64 `json:"sampleRate" yaml:"sample_rate"`
	// Length in sample frames, 0 if unknown.
	Length int `json:"length,omitempty" yaml:"length,omitempty"`
}

// Request asks for one output of one extractor over a whole piece of audio.
type Request struct {
	Audio  [][]float32
	Format AudioFormat
	Key    string
	// OutputID defaults to the extractor's first output.
	OutputID        string
	ParameterValues map[string]float64
	// BlockSize and StepSize override the extractor's preferred framing.
	BlockSize int
	StepSize  int
}

// Response is the collected features of the requested output.
type Response struct {
	Features         collection.Collection      `json:"features" yaml:"features" msgpack:"features"`
	OutputDescriptor extractor.OutputDescriptor `json:"outputDescriptor" yaml:"output_descriptor" msgpack:"outputDescriptor"`
}

// Progress reports how far a streamed request has got. TotalBlockCount
// counts the trailing finish and is 0 when the audio length is unknown.
type Progress struct {
	ProcessedBlockCount int `json:"processedBlockCount"`
	TotalBlockCount     int `json:"totalBlockCount,omitempty"`
}

// StreamResponse is one partial result of a streamed request.
type StreamResponse struct {
	Progress
	Response
}

// Configured is a loaded and configured extractor ready to receive the
// blocks of a request.
type Configured struct {
	Handle           service.Handle
	InputSampleRate  float64
	OutputID         string
	BlockSize        int
	StepSize         int
	OutputDescriptor extractor.OutputDescriptor
}

// Package adjuster reconciles the timestamps and durations of raw extractor
// features with the timing semantics declared by their output.
//
// An Adjuster carries running state for the feature stream of a single
// output of a single loaded extractor. It must see that stream in order and
// must not be shared with another output or handle.
package adjuster

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

// ErrMissingTimestamp is returned when a variable sample rate feature
// arrives without a timestamp.
var ErrMissingTimestamp = errors.New("feature must have a timestamp")

// Adjuster assigns time fields to a feature. input is the start time of the
// block the feature was produced from, nil when there is none (finish).
// The returned feature is a new value; f is not modified.
type Adjuster interface {
	Adjust(f feature.Feature, input *time.Duration) (feature.Feature, error)
}

// New builds the adjuster matching the descriptor's sample type.
// stepSeconds is only used for OneSamplePerStep outputs.
func New(d extractor.ConfiguredDescriptor, stepSeconds float64) (Adjuster, error) {
	switch d.SampleType {
	case extractor.OneSamplePerStep:
		return NewOneSamplePerStep(stepSeconds)
	case extractor.FixedSampleRate:
		return NewFixedSampleRate(d)
	case extractor.VariableSampleRate:
		return NewVariableSampleRate(d), nil
	}
	return nil, fmt.Errorf("%w: unknown sample type %v", extractor.ErrAdjusterConstruction, d.SampleType)
}

// OneSamplePerStep stamps each feature with its block's start time, or one
// step after the previous feature when the block time is unknown. Duration
// is always dropped.
type OneSamplePerStep struct {
	step     time.Duration
	previous time.Duration
	started  bool
}

func NewOneSamplePerStep(stepSeconds float64) (*OneSamplePerStep, error) {
	if math.IsNaN(stepSeconds) || math.IsInf(stepSeconds, 0) || stepSeconds <= 0 {
		return nil, fmt.Errorf("%w: host must provide the step size in seconds, got %v", extractor.ErrAdjusterConstruction, stepSeconds)
	}
	return &OneSamplePerStep{step: feature.FromSeconds(stepSeconds)}, nil
}

func (a *OneSamplePerStep) Adjust(f feature.Feature, input *time.Duration) (feature.Feature, error) {
	var t time.Duration
	switch {
	case input != nil:
		t = *input
	case a.started:
		t = a.previous + a.step
	}
	a.previous, a.started = t, true
	return f.WithTimestamp(t).WithoutDuration(), nil
}

// VariableSampleRate leaves timestamps to the extractor and fills in a
// missing duration of one sample period.
type VariableSampleRate struct {
	sampleRate float64
}

func NewVariableSampleRate(d extractor.ConfiguredDescriptor) *VariableSampleRate {
	return &VariableSampleRate{sampleRate: d.SampleRate}
}

func (a *VariableSampleRate) Adjust(f feature.Feature, _ *time.Duration) (feature.Feature, error) {
	if !f.HasTimestamp() {
		return f, ErrMissingTimestamp
	}
	if f.HasDuration() {
		return f, nil
	}
	if a.sampleRate != 0 {
		return f.WithDuration(feature.FromFrames(1, a.sampleRate)), nil
	}
	return f.WithDuration(0), nil
}

// FixedSampleRate snaps timestamps and durations to the output's sample
// grid. Features without a timestamp follow the previous one.
type FixedSampleRate struct {
	sampleRate float64
	lastIndex  int64
}

func NewFixedSampleRate(d extractor.ConfiguredDescriptor) (*FixedSampleRate, error) {
	if d.SampleRate == 0 || math.IsNaN(d.SampleRate) {
		return nil, fmt.Errorf("%w: output descriptor must provide a sample rate", extractor.ErrAdjusterConstruction)
	}
	return &FixedSampleRate{sampleRate: d.SampleRate, lastIndex: -1}, nil
}

func (a *FixedSampleRate) Adjust(f feature.Feature, _ *time.Duration) (feature.Feature, error) {
	index := a.lastIndex + 1
	if f.HasTimestamp() {
		index = a.Index(*f.Timestamp)
	}
	f = f.WithTimestamp(feature.FromFrames(index, a.sampleRate))
	if f.HasDuration() {
		f = f.WithDuration(feature.FromFrames(a.Index(*f.Duration), a.sampleRate))
	} else {
		f = f.WithDuration(0)
	}
	a.lastIndex = index
	return f, nil
}

// Index is the grid index nearest to t.
func (a *FixedSampleRate) Index(t time.Duration) int64 {
	return int64(math.Round(t.Seconds() * a.sampleRate))
}

// LastIndex is the grid index of the most recently adjusted feature, -1
// before the first.
func (a *FixedSampleRate) LastIndex() int64 { return a.lastIndex }

// AdjustList runs every feature of l through a in order and returns the
// adjusted copy.
func AdjustList(a Adjuster, l feature.List, input *time.Duration) (feature.List, error) {
	out := make(feature.List, 0, len(l))
	for i, f := range l {
		adjusted, err := a.Adjust(f, input)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, adjusted)
	}
	return out, nil
}

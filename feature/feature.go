// Package feature holds the values produced by feature extractors: single
// features, per-output lists and the ordered per-call feature set.
package feature

import (
	"math"
	"slices"
	"time"
)

// Feature is one emitted value vector. A nil Timestamp or Duration means the
// extractor did not supply it.
type Feature struct {
	Timestamp *time.Duration `json:"timestamp,omitempty" yaml:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Duration  *time.Duration `json:"duration,omitempty" yaml:"duration,omitempty" msgpack:"duration,omitempty"`
	Label     string         `json:"label,omitempty" yaml:"label,omitempty" msgpack:"label,omitempty"`
	Values    []float32      `json:"values,omitempty" yaml:"values,omitempty" msgpack:"values,omitempty"`
}

// List is the ordered features of one output.
type List []Feature

// HasTimestamp reports whether the feature carries a timestamp.
func (f Feature) HasTimestamp() bool { return f.Timestamp != nil }

// HasDuration reports whether the feature carries a duration.
func (f Feature) HasDuration() bool { return f.Duration != nil }

// WithTimestamp returns a copy of f stamped at t.
func (f Feature) WithTimestamp(t time.Duration) Feature {
	f.Timestamp = &t
	return f
}

// WithDuration returns a copy of f with duration d.
func (f Feature) WithDuration(d time.Duration) Feature {
	f.Duration = &d
	return f
}

// WithoutDuration returns a copy of f with the duration removed.
func (f Feature) WithoutDuration() Feature {
	f.Duration = nil
	return f
}

// Clone returns a deep copy of f.
func (f Feature) Clone() Feature {
	out := Feature{Label: f.Label, Values: slices.Clone(f.Values)}
	if f.Timestamp != nil {
		out = out.WithTimestamp(*f.Timestamp)
	}
	if f.Duration != nil {
		out = out.WithDuration(*f.Duration)
	}
	return out
}

// At is shorthand for a feature with values stamped at t.
func At(t time.Duration, values ...float32) Feature {
	return Feature{Values: values}.WithTimestamp(t)
}

// FromSeconds converts seconds to a duration, rounded to the nanosecond.
func FromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// FromFrames converts a sample frame index at sampleRate to a duration.
func FromFrames(frame int64, sampleRate float64) time.Duration {
	return FromSeconds(float64(frame) / sampleRate)
}

// Ptr returns a pointer to d.
func Ptr(d time.Duration) *time.Duration { return &d }

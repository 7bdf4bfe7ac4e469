// Package collection turns the complete feature list of one output into a
// consolidated presentation shape: a vector, a matrix, several vector
// tracks, or a plain list.
package collection

import (
	"fmt"
	"math"
	"time"

	"github.com/maastricht-university/vamphost/adjuster"
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

type Shape string

const (
	ShapeVector Shape = "vector"
	ShapeMatrix Shape = "matrix"
	ShapeTracks Shape = "tracks"
	ShapeList   Shape = "list"
)

// Vector is a contiguous run of single-bin values.
type Vector struct {
	StartTime    time.Duration `json:"startTime" yaml:"start_time" msgpack:"startTime"`
	StepDuration time.Duration `json:"stepDuration" yaml:"step_duration" msgpack:"stepDuration"`
	Data         []float32     `json:"data" yaml:"data" msgpack:"data"`
}

// Matrix holds one row per feature.
type Matrix struct {
	StartTime    time.Duration `json:"startTime" yaml:"start_time" msgpack:"startTime"`
	StepDuration time.Duration `json:"stepDuration" yaml:"step_duration" msgpack:"stepDuration"`
	Data         [][]float32   `json:"data" yaml:"data" msgpack:"data"`
}

// Collection is a reshaped output. Exactly the field matching Shape is set.
type Collection struct {
	Shape  Shape        `json:"shape" yaml:"shape" msgpack:"shape"`
	Vector *Vector      `json:"vector,omitempty" yaml:"vector,omitempty" msgpack:"vector,omitempty"`
	Matrix *Matrix      `json:"matrix,omitempty" yaml:"matrix,omitempty" msgpack:"matrix,omitempty"`
	Tracks []Vector     `json:"tracks,omitempty" yaml:"tracks,omitempty" msgpack:"tracks,omitempty"`
	List   feature.List `json:"list,omitempty" yaml:"list,omitempty" msgpack:"list,omitempty"`
}

// Len is the number of values, rows, tracks or features held.
func (c Collection) Len() int {
	switch c.Shape {
	case ShapeVector:
		return len(c.Vector.Data)
	case ShapeMatrix:
		return len(c.Matrix.Data)
	case ShapeTracks:
		return len(c.Tracks)
	}
	return len(c.List)
}

// DeduceShape picks the candidate shape for an output. A vector candidate
// may still turn out to be tracks once the data is seen.
func DeduceShape(d extractor.ConfiguredDescriptor) Shape {
	switch {
	case d.HasDuration, d.SampleType == extractor.VariableSampleRate, d.BinCount <= 0:
		return ShapeList
	case d.BinCount == 1:
		return ShapeVector
	}
	return ShapeMatrix
}

// StepDuration is the time between successive features of an output, in
// seconds. Variable rate outputs have no step and report 1.
func StepDuration(inputSampleRate float64, stepSize int, d extractor.ConfiguredDescriptor) float64 {
	switch d.SampleType {
	case extractor.OneSamplePerStep:
		return float64(stepSize) / inputSampleRate
	case extractor.FixedSampleRate:
		return 1 / d.SampleRate
	}
	return 1
}

// Reshape builds the collection of an output's complete feature list.
// With adjust set, list-shaped features are run through a fresh time
// adjuster for the output. features is not modified.
func Reshape(features feature.List, inputSampleRate float64, stepSize int, d extractor.ConfiguredDescriptor, adjust bool) (Collection, error) {
	shape := DeduceShape(d)
	step := StepDuration(inputSampleRate, stepSize, d)

	switch shape {
	case ShapeVector, ShapeMatrix:
		if math.IsNaN(step) || math.IsInf(step, 0) || step <= 0 {
			return Collection{}, fmt.Errorf("%s output: invalid step duration %v", shape, step)
		}
		if shape == ShapeVector {
			return reshapeVector(features, step, d), nil
		}
		return reshapeMatrix(features, step, d), nil
	}

	list := make(feature.List, 0, len(features))
	if !adjust {
		for _, f := range features {
			list = append(list, f.Clone())
		}
		return Collection{Shape: ShapeList, List: list}, nil
	}
	a, err := adjuster.New(d, step)
	if err != nil {
		return Collection{}, err
	}
	for i, f := range features {
		adjusted, err := a.Adjust(f.Clone(), nil)
		if err != nil {
			return Collection{}, fmt.Errorf("feature %d: %w", i, err)
		}
		list = append(list, adjusted)
	}
	return Collection{Shape: ShapeList, List: list}, nil
}

// gridIndex is the position of f on the output's step grid, when the
// output declares a fixed rate and f carries a timestamp.
func gridIndex(f feature.Feature, step float64, d extractor.ConfiguredDescriptor) (int64, bool) {
	if d.SampleType != extractor.FixedSampleRate || !f.HasTimestamp() {
		return 0, false
	}
	return int64(math.Round(f.Timestamp.Seconds() / step)), true
}

// reshapeVector splits the features into runs of contiguous grid indices.
// A single run is a vector, more than one become tracks.
func reshapeVector(features feature.List, step float64, d extractor.ConfiguredDescriptor) Collection {
	stepDuration := feature.FromSeconds(step)
	var tracks []Vector
	var start time.Duration
	run := []float32{}
	n := int64(-1)
	for _, f := range features {
		n++
		if m, ok := gridIndex(f, step, d); ok && m != n {
			if len(run) > 0 {
				tracks = append(tracks, Vector{StartTime: start, StepDuration: stepDuration, Data: run})
				run = []float32{}
			}
			n = m
			start = feature.FromSeconds(float64(m) * step)
		}
		var v float32
		if len(f.Values) > 0 {
			v = f.Values[0]
		}
		run = append(run, v)
	}

	if len(tracks) == 0 {
		return Collection{Shape: ShapeVector, Vector: &Vector{StartTime: start, StepDuration: stepDuration, Data: run}}
	}
	if len(run) > 0 {
		tracks = append(tracks, Vector{StartTime: start, StepDuration: stepDuration, Data: run})
	}
	return Collection{Shape: ShapeTracks, Tracks: tracks}
}

func reshapeMatrix(features feature.List, step float64, d extractor.ConfiguredDescriptor) Collection {
	m := &Matrix{StepDuration: feature.FromSeconds(step), Data: make([][]float32, 0, len(features))}
	if len(features) > 0 {
		if idx, ok := gridIndex(features[0], step, d); ok {
			m.StartTime = feature.FromSeconds(float64(idx) * step)
		}
	}
	for _, f := range features {
		m.Data = append(m.Data, append([]float32(nil), f.Values...))
	}
	return Collection{Shape: ShapeMatrix, Matrix: m}
}

package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

// Output is one feature of one output, as yielded by Outputs.
type Output struct {
	ID      string
	Feature feature.Feature
}

// Outputs drives a configured extractor across a block stream and yields
// the features of the wanted outputs one at a time. After the last block
// the extractor is finished exactly once and its trailing features are
// yielded the same way.
type Outputs struct {
	inputs   *ProcessInputs
	ext      extractor.Extractor
	wanted   []string
	pending  []Output
	current  Output
	finished bool
	err      error
}

// ProcessConfiguredExtractor returns an Outputs iterator over frames for an
// extractor that has already been configured with stepSize.
func ProcessConfiguredExtractor(frames *Frames, sampleRate float64, stepSize int, ext extractor.Extractor, outputs []string) *Outputs {
	return &Outputs{
		inputs: NewProcessInputStream(frames, sampleRate, stepSize),
		ext:    ext,
		wanted: slices.Clone(outputs),
	}
}

func (o *Outputs) Next() bool {
	for len(o.pending) == 0 {
		if o.err != nil || o.finished {
			return false
		}
		var (
			fs  *feature.Set
			err error
		)
		if o.inputs.Next() {
			in := o.inputs.Input()
			if fs, err = o.ext.Process(in); err != nil {
				err = fmt.Errorf("process block at %v: %w", in.Timestamp, err)
			}
		} else {
			o.finished = true
			if fs, err = o.ext.Finish(); err != nil {
				err = fmt.Errorf("finish: %w", err)
			}
		}
		if err != nil {
			o.err = err
			return false
		}
		o.enqueue(fs)
	}
	o.current, o.pending = o.pending[0], o.pending[1:]
	return true
}

func (o *Outputs) enqueue(fs *feature.Set) {
	for _, id := range o.wanted {
		l, _ := fs.Get(id)
		for _, f := range l {
			o.pending = append(o.pending, Output{ID: id, Feature: f})
		}
	}
}

// Output is the current record.
func (o *Outputs) Output() Output { return o.current }

// Err is the first error hit by the extractor, if any.
func (o *Outputs) Err() error { return o.err }

// Features drains the iterator into the feature list of output id.
func (o *Outputs) Features(id string) (feature.List, error) {
	var l feature.List
	for o.Next() {
		if out := o.Output(); out.ID == id {
			l = append(l, out.Feature)
		}
	}
	return l, o.Err()
}

// InputStream is a single-pass sequence of process inputs.
type InputStream interface {
	Next() bool
	Input() extractor.ProcessInput
}

type (
	ProcessFunc func(context.Context, extractor.ProcessInput) (*feature.Set, error)
	FinishFunc  func(context.Context) (*feature.Set, error)
)

// BatchProcess calls process for each block and then finish, strictly one
// after the other, and concatenates the returned feature lists per output
// in call order. It stops at the first error.
func BatchProcess(ctx context.Context, blocks InputStream, process ProcessFunc, finish FinishFunc) (*feature.Set, error) {
	running := feature.NewSet()
	for n := 0; blocks.Next(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fs, err := process(ctx, blocks.Input())
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", n, err)
		}
		running.Concat(fs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs, err := finish(ctx)
	if err != nil {
		return nil, fmt.Errorf("finish: %w", err)
	}
	running.Concat(fs)
	return running, nil
}

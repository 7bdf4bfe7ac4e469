// Package service is the front door to the registered feature extractors.
// It hands out a handle per loaded extractor and enforces the
// load → configure → process* → finish protocol on it, reconciling feature
// timing on the way out.
package service

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/vamphost/adjuster"
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

type state int

const (
	loaded state = iota
	configured
	finished
)

type instance struct {
	mu         sync.Mutex
	static     extractor.StaticData
	ext        extractor.Extractor
	construct  extractor.NewFunc
	sampleRate float64
	state      state
	channels   int
	adjusters  map[string]adjuster.Adjuster
}

// Service is the extractor registry and handle table. It is safe for
// concurrent use; operations on one handle are serialised.
type Service struct {
	factories []extractor.Factory
	byKey     map[string]int

	mu        sync.Mutex
	last      Handle
	instances map[Handle]*instance

	log     *logrus.Entry
	monitor *Monitor
}

type Option func(*Service)

// WithLogger sets the logger the service writes to.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) { s.log = l.WithField("component", "service") }
}

// WithMonitor makes the service record metrics on m.
func WithMonitor(m *Monitor) Option {
	return func(s *Service) { s.monitor = m }
}

// New builds a service over the given extractor kinds. Listing preserves
// the order of factories.
func New(factories []extractor.Factory, opts ...Option) (*Service, error) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	s := &Service{
		factories: slices.Clone(factories),
		byKey:     make(map[string]int, len(factories)),
		instances: map[Handle]*instance{},
		log:       logrus.NewEntry(quiet),
	}
	for i, f := range s.factories {
		if f.New == nil {
			return nil, fmt.Errorf("extractor %q has no constructor", f.Metadata.Key)
		}
		if _, dup := s.byKey[f.Metadata.Key]; dup {
			return nil, fmt.Errorf("extractor %q registered twice", f.Metadata.Key)
		}
		s.byKey[f.Metadata.Key] = i
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns the static data of every registered extractor whose library
// is in req.From, or of all of them when From is empty.
func (s *Service) List(ctx context.Context, req ListRequest) (ListResponse, error) {
	if err := ctx.Err(); err != nil {
		return ListResponse{}, err
	}
	resp := ListResponse{Available: []extractor.StaticData{}}
	for _, f := range s.factories {
		if len(req.From) == 0 || slices.Contains(req.From, f.Metadata.Library()) {
			resp.Available = append(resp.Available, f.Metadata)
		}
	}
	return resp, nil
}

// Load constructs a new instance of the extractor req.Key bound to the
// input sample rate and returns its handle.
func (s *Service) Load(ctx context.Context, req LoadRequest) (resp LoadResponse, err error) {
	defer s.monitor.observe("load", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return LoadResponse{}, err
	}
	i, ok := s.byKey[req.Key]
	if !ok {
		return LoadResponse{}, fmt.Errorf("%w: %q", extractor.ErrInvalidKey, req.Key)
	}
	if req.InputSampleRate <= 0 {
		return LoadResponse{}, fmt.Errorf("load %q: invalid input sample rate %v", req.Key, req.InputSampleRate)
	}
	f := s.factories[i]
	ext, err := f.New(req.InputSampleRate)
	if err != nil {
		return LoadResponse{}, fmt.Errorf("load %q: %w", req.Key, err)
	}

	inst := &instance{static: f.Metadata, ext: ext, construct: f.New, sampleRate: req.InputSampleRate}
	s.mu.Lock()
	s.last++
	h := s.last
	s.instances[h] = inst
	s.mu.Unlock()
	s.monitor.loaded()

	s.log.WithFields(logrus.Fields{"handle": h, "key": req.Key, "sample_rate": req.InputSampleRate}).Debug("loaded extractor")
	return LoadResponse{
		Handle:               h,
		StaticData:           f.Metadata,
		DefaultConfiguration: ext.DefaultConfiguration(),
	}, nil
}

// Configure applies a configuration to a loaded extractor and prepares a
// time adjuster for each of its outputs.
func (s *Service) Configure(ctx context.Context, req ConfigurationRequest) (resp ConfigurationResponse, err error) {
	defer s.monitor.observe("configure", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return ConfigurationResponse{}, err
	}
	inst, err := s.lookup(req.Handle)
	if err != nil {
		return ConfigurationResponse{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch inst.state {
	case finished:
		return ConfigurationResponse{}, fmt.Errorf("%w: %d", extractor.ErrInvalidHandle, req.Handle)
	case configured:
		return ConfigurationResponse{}, fmt.Errorf("%w: handle %d", extractor.ErrAlreadyConfigured, req.Handle)
	}

	cfg := req.Configuration
	applied, err := inst.ext.Configure(cfg)
	if err != nil {
		return ConfigurationResponse{}, fmt.Errorf("configure handle %d: %w", req.Handle, err)
	}

	step := cfg.Framing.StepSize
	if step == 0 {
		step = applied.Framing.StepSize
	}
	stepSeconds := float64(step) / inst.sampleRate
	adjusters := make(map[string]adjuster.Adjuster, len(applied.Outputs))
	for _, o := range applied.Outputs {
		a, err := adjuster.New(o.Configured, stepSeconds)
		if err != nil {
			s.reload(inst, req.Handle)
			return ConfigurationResponse{}, fmt.Errorf("output %q: %w", o.Basic.Identifier, err)
		}
		adjusters[o.Basic.Identifier] = a
	}

	inst.adjusters = adjusters
	inst.channels = cfg.ChannelCount
	inst.state = configured
	s.log.WithFields(logrus.Fields{
		"handle":     req.Handle,
		"key":        inst.static.Key,
		"channels":   cfg.ChannelCount,
		"block_size": applied.Framing.BlockSize,
		"step_size":  applied.Framing.StepSize,
		"outputs":    len(applied.Outputs),
	}).Debug("configured extractor")

	return ConfigurationResponse{
		Handle:     req.Handle,
		OutputList: applied.Outputs,
		Framing:    applied.Framing,
	}, nil
}

// reload swaps the extractor of a handle whose configuration was rejected
// for a fresh one, so the handle can be configured again. Caller holds
// inst.mu.
func (s *Service) reload(inst *instance, h Handle) {
	log := s.log.WithFields(logrus.Fields{"handle": h, "key": inst.static.Key})
	if _, err := inst.ext.Finish(); err != nil {
		log.WithError(err).Debug("discarded extractor failed to finish")
	}
	fresh, err := inst.construct(inst.sampleRate)
	if err != nil {
		log.WithError(err).Warn("could not reload extractor")
		return
	}
	inst.ext = fresh
}

// Process feeds one block to a configured extractor and returns its
// features with reconciled timing.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (resp ProcessResponse, err error) {
	defer s.monitor.observe("process", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return ProcessResponse{}, err
	}
	inst, err := s.lookup(req.Handle)
	if err != nil {
		return ProcessResponse{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch inst.state {
	case finished:
		return ProcessResponse{}, fmt.Errorf("%w: %d", extractor.ErrInvalidHandle, req.Handle)
	case loaded:
		return ProcessResponse{}, fmt.Errorf("%w: handle %d", extractor.ErrNotConfigured, req.Handle)
	}
	in := req.ProcessInput
	if len(in.InputBuffers) != inst.channels {
		return ProcessResponse{}, fmt.Errorf("%w: handle %d configured for %d channels, got %d",
			extractor.ErrChannelCountMismatch, req.Handle, inst.channels, len(in.InputBuffers))
	}

	raw, err := inst.ext.Process(in)
	if err != nil {
		return ProcessResponse{}, fmt.Errorf("process handle %d: %w", req.Handle, err)
	}
	features, err := inst.adjust(raw, &in.Timestamp)
	if err != nil {
		return ProcessResponse{}, fmt.Errorf("process handle %d: %w", req.Handle, err)
	}
	return ProcessResponse{Handle: req.Handle, Features: features}, nil
}

// Finish retires the handle and returns any features the extractor still
// held. The handle is invalid afterwards even if the extractor fails, and
// a finish is never abandoned, so it takes no notice of cancellation.
func (s *Service) Finish(_ context.Context, req FinishRequest) (resp FinishResponse, err error) {
	defer s.monitor.observe("finish", time.Now(), &err)
	s.mu.Lock()
	inst, ok := s.instances[req.Handle]
	delete(s.instances, req.Handle)
	s.mu.Unlock()
	if !ok {
		return FinishResponse{}, fmt.Errorf("%w: %d", extractor.ErrInvalidHandle, req.Handle)
	}
	s.monitor.retired()

	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.state = finished
	log := s.log.WithFields(logrus.Fields{"handle": req.Handle, "key": inst.static.Key})

	raw, err := inst.ext.Finish()
	if err != nil {
		log.WithError(err).Warn("extractor failed to finish")
		return FinishResponse{}, fmt.Errorf("finish handle %d: %w", req.Handle, err)
	}
	features, err := inst.adjust(raw, nil)
	if err != nil {
		return FinishResponse{}, fmt.Errorf("finish handle %d: %w", req.Handle, err)
	}
	log.WithField("outputs", features.Len()).Debug("finished extractor")
	return FinishResponse{Handle: req.Handle, Features: features}, nil
}

// Loaded is the number of live handles.
func (s *Service) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

func (s *Service) lookup(h Handle) (*instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", extractor.ErrInvalidHandle, h)
	}
	return inst, nil
}

// adjust runs each output's features through its adjuster in list order.
// An instance that was never configured has no adjusters and its features
// pass through unchanged.
func (inst *instance) adjust(raw *feature.Set, input *time.Duration) (*feature.Set, error) {
	out := feature.NewSet()
	for _, id := range raw.Keys() {
		l, _ := raw.Get(id)
		if inst.adjusters == nil {
			out.Put(id, l)
			continue
		}
		a, ok := inst.adjusters[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", extractor.ErrInvalidOutputIdentifier, id)
		}
		adjusted, err := adjuster.AdjustList(a, l, input)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", id, err)
		}
		out.Put(id, adjusted)
	}
	return out, nil
}

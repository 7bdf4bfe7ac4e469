// Package orchestrator runs whole pieces of audio through the extractor
// service: it frames the audio into blocks, drives a handle through its
// lifecycle and collects the features of the requested output.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/vamphost/collection"
	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
	"github.com/maastricht-university/vamphost/service"
)

const defaultBlockSize = 1024

// Service is the part of the extractor service the client drives.
type Service interface {
	List(context.Context, service.ListRequest) (service.ListResponse, error)
	Load(context.Context, service.LoadRequest) (service.LoadResponse, error)
	Configure(context.Context, service.ConfigurationRequest) (service.ConfigurationResponse, error)
	Process(context.Context, service.ProcessRequest) (service.ProcessResponse, error)
	Finish(context.Context, service.FinishRequest) (service.FinishResponse, error)
}

// Client runs requests against a Service.
type Client struct {
	svc         Service
	log         *logrus.Entry
	concurrency int
}

type Option func(*Client)

func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.log = l.WithField("component", "orchestrator") }
}

// WithConcurrency bounds how many requests CollectAll runs at once.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.concurrency = n }
}

func NewClient(svc Service, opts ...Option) *Client {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	c := &Client{svc: svc, log: logrus.NewEntry(quiet), concurrency: 4}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Overrides are the caller's framing and parameter choices. Zero values
// leave the decision to the extractor's default configuration.
type Overrides struct {
	ChannelCount    int
	BlockSize       int
	StepSize        int
	ParameterValues map[string]float64
}

// DetermineConfiguration merges overrides over an extractor's default
// configuration. Without either, the block size is 1024, the step size
// equals the block size and there is one channel.
func DetermineConfiguration(defaults extractor.Configuration, o Overrides) extractor.Configuration {
	cfg := extractor.Configuration{
		ChannelCount: firstPositive(o.ChannelCount, defaults.ChannelCount, 1),
		Framing: extractor.Framing{
			BlockSize: firstPositive(o.BlockSize, defaults.Framing.BlockSize, defaultBlockSize),
		},
	}
	cfg.Framing.StepSize = firstPositive(o.StepSize, defaults.Framing.StepSize, cfg.Framing.BlockSize)
	if len(o.ParameterValues) > 0 {
		cfg.ParameterValues = o.ParameterValues
	}
	return cfg
}

func firstPositive(v ...int) int {
	for _, n := range v {
		if n > 0 {
			return n
		}
	}
	return 0
}

// LoadAndConfigure loads req.Key, configures it for the request's audio
// and resolves the requested output. On failure no handle is left loaded.
func LoadAndConfigure(ctx context.Context, svc Service, req Request) (Configured, error) {
	list, err := svc.List(ctx, service.ListRequest{})
	if err != nil {
		return Configured{}, err
	}
	matches := 0
	for _, d := range list.Available {
		if d.Key == req.Key {
			matches++
		}
	}
	if matches != 1 {
		return Configured{}, fmt.Errorf("%w: %q", extractor.ErrInvalidKey, req.Key)
	}

	loaded, err := svc.Load(ctx, service.LoadRequest{
		Key:             req.Key,
		InputSampleRate: req.Format.SampleRate,
		AdapterFlags:    []extractor.AdapterFlag{extractor.AdaptAllSafe},
	})
	if err != nil {
		return Configured{}, err
	}
	retire := func(cause error) (Configured, error) {
		_, _ = svc.Finish(context.WithoutCancel(ctx), service.FinishRequest{Handle: loaded.Handle})
		return Configured{}, cause
	}

	cfg := DetermineConfiguration(loaded.DefaultConfiguration, Overrides{
		ChannelCount:    req.Format.ChannelCount,
		BlockSize:       req.BlockSize,
		StepSize:        req.StepSize,
		ParameterValues: req.ParameterValues,
	})
	configured, err := svc.Configure(ctx, service.ConfigurationRequest{Handle: loaded.Handle, Configuration: cfg})
	if err != nil {
		return retire(err)
	}
	if len(configured.OutputList) == 0 {
		return retire(fmt.Errorf("%w: %q has no outputs", extractor.ErrInvalidOutputIdentifier, req.Key))
	}

	outputID := req.OutputID
	if outputID == "" {
		outputID = configured.OutputList[0].Basic.Identifier
	}
	var descriptor *extractor.OutputDescriptor
	for i := range configured.OutputList {
		if configured.OutputList[i].Basic.Identifier == outputID {
			descriptor = &configured.OutputList[i]
			break
		}
	}
	if descriptor == nil {
		return retire(fmt.Errorf("%w: %q", extractor.ErrInvalidOutputIdentifier, outputID))
	}

	return Configured{
		Handle:           configured.Handle,
		InputSampleRate:  req.Format.SampleRate,
		OutputID:         outputID,
		BlockSize:        cfg.Framing.BlockSize,
		StepSize:         cfg.Framing.StepSize,
		OutputDescriptor: *descriptor,
	}, nil
}

// List passes through to the service.
func (c *Client) List(ctx context.Context, req service.ListRequest) (service.ListResponse, error) {
	return c.svc.List(ctx, req)
}

// Process runs the request and returns the output's features as a list.
func (c *Client) Process(ctx context.Context, req Request) (Response, error) {
	return c.run(ctx, req, func(l feature.List, _ Configured) (collection.Collection, error) {
		return collection.Collection{Shape: collection.ShapeList, List: l}, nil
	})
}

// Collect runs the request and returns the output's features reshaped.
func (c *Client) Collect(ctx context.Context, req Request) (Response, error) {
	return c.run(ctx, req, reshape)
}

// CollectAll collects several requests concurrently, each on its own
// handle. Responses are in request order; the first failure cancels the
// rest.
func (c *Client) CollectAll(ctx context.Context, reqs []Request) ([]Response, error) {
	out := make([]Response, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.concurrency))
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := c.Collect(ctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", req.Key, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type shapeFunc func(feature.List, Configured) (collection.Collection, error)

func reshape(l feature.List, cfg Configured) (collection.Collection, error) {
	return collection.Reshape(l, cfg.InputSampleRate, cfg.StepSize, cfg.OutputDescriptor.Configured, false)
}

func (c *Client) run(ctx context.Context, req Request, shape shapeFunc) (Response, error) {
	cfg, err := LoadAndConfigure(ctx, c.svc, req)
	if err != nil {
		return Response{}, err
	}
	log := c.log.WithFields(logrus.Fields{"handle": cfg.Handle, "key": req.Key, "output": cfg.OutputID})
	start := time.Now()

	blocks := NewProcessInputStream(Segment(cfg.BlockSize, cfg.StepSize, req.Audio), cfg.InputSampleRate, cfg.StepSize)
	features, err := BatchProcess(ctx, blocks, c.processFunc(cfg.Handle), c.finishFunc(cfg.Handle))
	if err != nil {
		c.retire(ctx, cfg.Handle, log)
		return Response{}, err
	}
	l, _ := features.Get(cfg.OutputID)
	collected, err := shape(l, cfg)
	if err != nil {
		return Response{}, err
	}
	log.WithFields(logrus.Fields{
		"blocks":   blocks.Count(),
		"features": len(l),
		"shape":    collected.Shape,
		"elapsed":  time.Since(start),
	}).Debug("request complete")
	return Response{Features: collected, OutputDescriptor: cfg.OutputDescriptor}, nil
}

func (c *Client) processFunc(h service.Handle) ProcessFunc {
	return func(ctx context.Context, in extractor.ProcessInput) (*feature.Set, error) {
		resp, err := c.svc.Process(ctx, service.ProcessRequest{Handle: h, ProcessInput: in})
		return resp.Features, err
	}
}

func (c *Client) finishFunc(h service.Handle) FinishFunc {
	return func(ctx context.Context) (*feature.Set, error) {
		resp, err := c.svc.Finish(ctx, service.FinishRequest{Handle: h})
		return resp.Features, err
	}
}

// retire finishes a handle abandoned by a failed request. A handle the
// failed finish already retired is not an error.
func (c *Client) retire(ctx context.Context, h service.Handle, log *logrus.Entry) {
	_, err := c.svc.Finish(context.WithoutCancel(ctx), service.FinishRequest{Handle: h})
	if err != nil && !errors.Is(err, extractor.ErrInvalidHandle) {
		log.WithError(err).Warn("could not retire handle")
	}
}

// StreamFunc receives each partial response of a streamed request.
// Returning an error stops the stream.
type StreamFunc func(StreamResponse) error

// Stream runs the request block by block, handing fn the output's features
// of each block as a list.
func (c *Client) Stream(ctx context.Context, req Request, fn StreamFunc) error {
	return c.stream(ctx, req, func(l feature.List, _ Configured) (collection.Collection, error) {
		return collection.Collection{Shape: collection.ShapeList, List: l}, nil
	}, fn)
}

// StreamCollect is Stream with each block's features reshaped.
func (c *Client) StreamCollect(ctx context.Context, req Request, fn StreamFunc) error {
	return c.stream(ctx, req, reshape, fn)
}

func (c *Client) stream(ctx context.Context, req Request, shape shapeFunc, fn StreamFunc) error {
	cfg, err := LoadAndConfigure(ctx, c.svc, req)
	if err != nil {
		return err
	}
	log := c.log.WithFields(logrus.Fields{"handle": cfg.Handle, "key": req.Key, "output": cfg.OutputID})

	total := 0
	if req.Format.Length > 0 {
		total = (req.Format.Length+cfg.StepSize-1)/cfg.StepSize + 1
	}
	emitted := 0
	emit := func(fs *feature.Set) error {
		l, _ := fs.Get(cfg.OutputID)
		collected, err := shape(l, cfg)
		if err != nil {
			return err
		}
		resp := StreamResponse{
			Progress: Progress{ProcessedBlockCount: emitted, TotalBlockCount: total},
			Response: Response{Features: collected, OutputDescriptor: cfg.OutputDescriptor},
		}
		emitted++
		return fn(resp)
	}

	process, finish := c.processFunc(cfg.Handle), c.finishFunc(cfg.Handle)
	blocks := NewProcessInputStream(Segment(cfg.BlockSize, cfg.StepSize, req.Audio), cfg.InputSampleRate, cfg.StepSize)
	_, err = BatchProcess(ctx, blocks,
		func(ctx context.Context, in extractor.ProcessInput) (*feature.Set, error) {
			fs, err := process(ctx, in)
			if err != nil {
				return nil, err
			}
			return fs, emit(fs)
		},
		func(ctx context.Context) (*feature.Set, error) {
			fs, err := finish(ctx)
			if err != nil || !fs.Has(cfg.OutputID) {
				return fs, err
			}
			return fs, emit(fs)
		})
	if err != nil {
		c.retire(ctx, cfg.Handle, log)
		return err
	}
	log.WithField("responses", emitted).Debug("stream complete")
	return nil
}

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
	"github.com/maastricht-university/vamphost/plugins/stub"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var blockConfig = extractor.Configuration{
	ChannelCount: 1,
	Framing:      extractor.Framing{BlockSize: 8, StepSize: 8},
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s, err := New(stub.Factories(), opts...)
	require.NoError(t, err)
	return s
}

func load(t *testing.T, s *Service, key string) Handle {
	t.Helper()
	resp, err := s.Load(context.Background(), LoadRequest{Key: key, InputSampleRate: 16, AdapterFlags: []extractor.AdapterFlag{extractor.AdaptAllSafe}})
	require.NoError(t, err)
	return resp.Handle
}

func loadConfigured(t *testing.T, s *Service, key string) Handle {
	t.Helper()
	h := load(t, s, key)
	_, err := s.Configure(context.Background(), ConfigurationRequest{Handle: h, Configuration: blockConfig})
	require.NoError(t, err)
	return h
}

func ones(n int) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = 1
	}
	return b
}

func TestNewRejectsDuplicateKeys(t *testing.T) {
	t.Parallel()
	_, err := New([]extractor.Factory{
		{Metadata: stub.SumMetadata, New: stub.NewSum},
		{Metadata: stub.SumMetadata, New: stub.NewSum},
	})
	require.Error(t, err)

	_, err = New([]extractor.Factory{{Metadata: stub.SumMetadata}})
	require.Error(t, err)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newService(t)

	all, err := s.List(ctx, ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, []extractor.StaticData{stub.SumMetadata, stub.CurveMetadata, stub.PassthroughMetadata}, all.Available)

	empty, err := s.List(ctx, ListRequest{From: []string{}})
	require.NoError(t, err)
	assert.Equal(t, all, empty)

	stubs, err := s.List(ctx, ListRequest{From: []string{"stub"}})
	require.NoError(t, err)
	assert.Equal(t, []extractor.StaticData{stub.SumMetadata, stub.PassthroughMetadata}, stubs.Available)

	none, err := s.List(ctx, ListRequest{From: []string{"nope"}})
	require.NoError(t, err)
	assert.Empty(t, none.Available)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newService(t)

	_, err := s.Load(ctx, LoadRequest{Key: "not-a-real:plugin", InputSampleRate: 666})
	require.ErrorIs(t, err, extractor.ErrInvalidKey)

	_, err = s.Load(ctx, LoadRequest{Key: "stub:sum"})
	require.Error(t, err)

	resp, err := s.Load(ctx, LoadRequest{Key: "stub:sum", InputSampleRate: 16})
	require.NoError(t, err)
	assert.Equal(t, LoadResponse{
		Handle:               1,
		StaticData:           stub.SumMetadata,
		DefaultConfiguration: extractor.Configuration{ChannelCount: 1},
	}, resp)
}

func TestHandlesAreNeverReused(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newService(t)

	first := load(t, s, "stub:sum")
	_, err := s.Finish(ctx, FinishRequest{Handle: first})
	require.NoError(t, err)

	second := load(t, s, "stub:sum")
	assert.Greater(t, second, first)

	_, err = s.Configure(ctx, ConfigurationRequest{Handle: first, Configuration: blockConfig})
	require.ErrorIs(t, err, extractor.ErrInvalidHandle)
	assert.Equal(t, 1, s.Loaded())
}

func TestConfigure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("InvalidHandle", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		_, err := s.Configure(ctx, ConfigurationRequest{Handle: 1, Configuration: blockConfig})
		require.ErrorIs(t, err, extractor.ErrInvalidHandle)
	})

	t.Run("Response", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := load(t, s, "stub:sum")
		resp, err := s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig})
		require.NoError(t, err)
		assert.Equal(t, h, resp.Handle)
		assert.Equal(t, blockConfig.Framing, resp.Framing)
		require.Len(t, resp.OutputList, len(stub.SumMetadata.BasicOutputInfo))
		for i, o := range resp.OutputList {
			assert.Equal(t, stub.SumMetadata.BasicOutputInfo[i], o.Basic)
			switch o.Basic.Identifier {
			case "finish":
				assert.Equal(t, extractor.VariableSampleRate, o.Configured.SampleType)
			case "passthrough":
				assert.Equal(t, 8, o.Configured.BinCount)
			default:
				assert.Equal(t, extractor.OneSamplePerStep, o.Configured.SampleType)
				assert.Equal(t, 1, o.Configured.BinCount)
			}
		}
	})

	t.Run("Twice", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := loadConfigured(t, s, "stub:sum")
		_, err := s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig})
		require.ErrorIs(t, err, extractor.ErrAlreadyConfigured)
	})

	t.Run("Racing", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := load(t, s, "stub:sum")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig})
			}()
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, extractor.ErrAlreadyConfigured)
				failed++
			}
		}
		assert.Equal(t, 1, failed)
	})

	t.Run("MissingStepDuration", func(t *testing.T) {
		t.Parallel()
		s, err := New([]extractor.Factory{{Metadata: stub.SumMetadata, New: func(float64) (extractor.Extractor, error) {
			return &fakeExtractor{outputs: []extractor.OutputDescriptor{{
				Basic:      extractor.BasicDescriptor{Identifier: "rate"},
				Configured: extractor.ConfiguredDescriptor{BinCount: 1, SampleType: extractor.FixedSampleRate},
			}}}, nil
		}}})
		require.NoError(t, err)
		h := load(t, s, "stub:sum")
		_, err = s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig})
		require.ErrorIs(t, err, extractor.ErrAdjusterConstruction)

		_, err = s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}})
		require.ErrorIs(t, err, extractor.ErrNotConfigured)

		_, err = s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig})
		require.ErrorIs(t, err, extractor.ErrAdjusterConstruction)
		require.NotErrorIs(t, err, extractor.ErrAlreadyConfigured)
	})

	t.Run("RetryAfterRejectedConfiguration", func(t *testing.T) {
		t.Parallel()
		var built atomic.Int32
		s, err := New([]extractor.Factory{{Metadata: stub.SumMetadata, New: func(float64) (extractor.Extractor, error) {
			built.Add(1)
			return &fakeExtractor{outputs: []extractor.OutputDescriptor{{
				Basic:      extractor.BasicDescriptor{Identifier: "rate"},
				Configured: extractor.ConfiguredDescriptor{BinCount: 1, SampleType: extractor.FixedSampleRate},
			}}}, nil
		}}})
		require.NoError(t, err)
		h := load(t, s, "stub:sum")
		_, err = s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig})
		require.ErrorIs(t, err, extractor.ErrAdjusterConstruction)

		withRate := blockConfig
		withRate.ParameterValues = map[string]float64{"rate": 2}
		resp, err := s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: withRate})
		require.NoError(t, err)
		assert.InDelta(t, 2.0, resp.OutputList[0].Configured.SampleRate, 0)
		assert.Equal(t, int32(2), built.Load())

		_, err = s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}})
		require.NoError(t, err)
	})
}

func TestProcess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("InvalidHandle", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		_, err := s.Process(ctx, ProcessRequest{Handle: 666})
		require.ErrorIs(t, err, extractor.ErrInvalidHandle)
	})

	t.Run("BeforeConfigure", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := load(t, s, "stub:sum")
		_, err := s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}})
		require.ErrorIs(t, err, extractor.ErrNotConfigured)
	})

	t.Run("WrongChannelCount", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := loadConfigured(t, s, "stub:sum")
		_, err := s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{}}})
		require.ErrorIs(t, err, extractor.ErrChannelCountMismatch)
		_, err = s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8), ones(8)}}})
		require.ErrorIs(t, err, extractor.ErrChannelCountMismatch)
	})

	t.Run("AfterFinish", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := loadConfigured(t, s, "stub:sum")
		_, err := s.Finish(ctx, FinishRequest{Handle: h})
		require.NoError(t, err)
		_, err = s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}})
		require.ErrorIs(t, err, extractor.ErrInvalidHandle)
	})

	t.Run("Features", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := loadConfigured(t, s, "stub:sum")
		resp, err := s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{
			Timestamp:    0,
			InputBuffers: [][]float32{ones(8)},
		}})
		require.NoError(t, err)
		assert.Equal(t, []string{"sum", "passthrough", "cumsum"}, resp.Features.Keys())

		sum, _ := resp.Features.Get("sum")
		assert.Equal(t, feature.List{feature.At(0, 8)}, sum)
		pass, _ := resp.Features.Get("passthrough")
		assert.Equal(t, feature.List{feature.At(0, ones(8)...)}, pass)
	})

	t.Run("BlockTimestampsAreApplied", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := loadConfigured(t, s, "stub:sum")
		for i := 0; i < 3; i++ {
			ts := feature.FromFrames(int64(i*8), 16)
			resp, err := s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{
				Timestamp:    ts,
				InputBuffers: [][]float32{ones(8)},
			}})
			require.NoError(t, err)
			cumsum, _ := resp.Features.Get("cumsum")
			require.Len(t, cumsum, 1)
			assert.Equal(t, ts, *cumsum[0].Timestamp)
			assert.Equal(t, []float32{float32(8 * (i + 1))}, cumsum[0].Values)
			assert.False(t, cumsum[0].HasDuration())
		}
	})

	t.Run("UnknownOutput", func(t *testing.T) {
		t.Parallel()
		fake := &fakeExtractor{
			outputs: []extractor.OutputDescriptor{{Basic: extractor.BasicDescriptor{Identifier: "known"}}},
			emit:    "unknown",
		}
		s, err := New([]extractor.Factory{{Metadata: stub.SumMetadata, New: func(float64) (extractor.Extractor, error) { return fake, nil }}})
		require.NoError(t, err)
		h := loadConfigured(t, s, "stub:sum")
		_, err = s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}})
		require.ErrorIs(t, err, extractor.ErrInvalidOutputIdentifier)
	})
}

func TestFinish(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Loaded", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := load(t, s, "stub:sum")
		resp, err := s.Finish(ctx, FinishRequest{Handle: h})
		require.NoError(t, err)
		assert.True(t, resp.Features.Has("finish"))
	})

	t.Run("CancelledContextStillRetires", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := loadConfigured(t, s, "stub:sum")
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		resp, err := s.Finish(cancelled, FinishRequest{Handle: h})
		require.NoError(t, err)
		assert.True(t, resp.Features.Has("finish"))
		assert.Zero(t, s.Loaded())

		_, err = s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}})
		require.ErrorIs(t, err, extractor.ErrInvalidHandle)
	})

	t.Run("ConfiguredThenTwice", func(t *testing.T) {
		t.Parallel()
		s := newService(t)
		h := loadConfigured(t, s, "stub:sum")
		_, err := s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}})
		require.NoError(t, err)

		resp, err := s.Finish(ctx, FinishRequest{Handle: h})
		require.NoError(t, err)
		require.Equal(t, 1, resp.Features.Len())
		fin, _ := resp.Features.Get("finish")
		require.Len(t, fin, 1)
		assert.Equal(t, 500*time.Millisecond, *fin[0].Timestamp)
		assert.Equal(t, time.Duration(0), *fin[0].Duration)

		_, err = s.Finish(ctx, FinishRequest{Handle: h})
		require.ErrorIs(t, err, extractor.ErrInvalidHandle)
		assert.Zero(t, s.Loaded())
	})

	t.Run("RetiresOnExtractorError", func(t *testing.T) {
		t.Parallel()
		fake := &fakeExtractor{finishErr: errors.New("boom")}
		s, err := New([]extractor.Factory{{Metadata: stub.SumMetadata, New: func(float64) (extractor.Extractor, error) { return fake, nil }}})
		require.NoError(t, err)
		h := load(t, s, "stub:sum")
		_, err = s.Finish(ctx, FinishRequest{Handle: h})
		require.Error(t, err)
		_, err = s.Finish(ctx, FinishRequest{Handle: h})
		require.ErrorIs(t, err, extractor.ErrInvalidHandle)
	})
}

func TestIndependentHandlesConcurrently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newService(t)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]float32, workers)
	errs := make([]error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loaded, err := s.Load(ctx, LoadRequest{Key: "stub:sum", InputSampleRate: 16})
			if err != nil {
				errs[w] = err
				return
			}
			h := loaded.Handle
			if _, err := s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig}); err != nil {
				errs[w] = err
				return
			}
			for i := 0; i <= w; i++ {
				if _, err := s.Process(ctx, ProcessRequest{Handle: h, ProcessInput: extractor.ProcessInput{InputBuffers: [][]float32{ones(8)}}}); err != nil {
					errs[w] = err
					return
				}
			}
			resp, err := s.Finish(ctx, FinishRequest{Handle: h})
			if err != nil {
				errs[w] = err
				return
			}
			fin, _ := resp.Features.Get("finish")
			results[w] = fin[0].Values[0]
		}()
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.NoError(t, errs[w])
		assert.Equal(t, float32(8*(w+1)), results[w])
	}
	assert.Zero(t, s.Loaded())
}

func TestMonitor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewMonitor(reg)
	require.NoError(t, err)
	s := newService(t, WithMonitor(m))

	h := loadConfigured(t, s, "stub:sum")
	assert.InDelta(t, 1, testutil.ToFloat64(m.handlesActive), 0)

	_, err = s.Configure(ctx, ConfigurationRequest{Handle: h, Configuration: blockConfig})
	require.Error(t, err)
	_, err = s.Finish(ctx, FinishRequest{Handle: h})
	require.NoError(t, err)

	assert.InDelta(t, 0, testutil.ToFloat64(m.handlesActive), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("configure", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("configure", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("finish", "ok")), 0)

	_, err = NewMonitor(reg)
	require.Error(t, err, "registering twice must fail")
}

// fakeExtractor reports fixed outputs and emits one feature on a chosen output.
type fakeExtractor struct {
	extractor.Guard
	outputs   []extractor.OutputDescriptor
	emit      string
	finishErr error
}

func (f *fakeExtractor) DefaultConfiguration() extractor.Configuration {
	return blockConfig
}

func (f *fakeExtractor) Configure(c extractor.Configuration) (extractor.Configured, error) {
	if err := f.Guard.Configure(c, 1, 1); err != nil {
		return extractor.Configured{}, err
	}
	outputs := make([]extractor.OutputDescriptor, 0, len(f.outputs))
	for _, o := range f.outputs {
		if o.Configured.SampleType == extractor.FixedSampleRate && o.Configured.SampleRate == 0 {
			o.Configured.SampleRate = c.ParameterValues["rate"]
		}
		outputs = append(outputs, o)
	}
	return extractor.Configured{Outputs: outputs, Framing: c.Framing}, nil
}

func (f *fakeExtractor) Process(in extractor.ProcessInput) (*feature.Set, error) {
	if err := f.CheckProcess(in); err != nil {
		return nil, err
	}
	out := feature.NewSet()
	if f.emit != "" {
		out.Append(f.emit, feature.Feature{Values: []float32{1}})
	}
	return out, nil
}

func (f *fakeExtractor) Finish() (*feature.Set, error) {
	if _, err := f.Guard.Finish(); err != nil {
		return nil, err
	}
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	return feature.NewSet(), nil
}

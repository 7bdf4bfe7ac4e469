package adjuster

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/vamphost/extractor"
	"github.com/maastricht-university/vamphost/feature"
)

func TestNewSelectsVariant(t *testing.T) {
	t.Parallel()

	a, err := New(extractor.ConfiguredDescriptor{SampleType: extractor.OneSamplePerStep}, 0.5)
	require.NoError(t, err)
	assert.IsType(t, &OneSamplePerStep{}, a)

	a, err = New(extractor.ConfiguredDescriptor{SampleType: extractor.FixedSampleRate, SampleRate: 16}, 0)
	require.NoError(t, err)
	assert.IsType(t, &FixedSampleRate{}, a)

	a, err = New(extractor.ConfiguredDescriptor{SampleType: extractor.VariableSampleRate}, 0)
	require.NoError(t, err)
	assert.IsType(t, &VariableSampleRate{}, a)

	_, err = New(extractor.ConfiguredDescriptor{SampleType: extractor.SampleType(7)}, 0.5)
	require.ErrorIs(t, err, extractor.ErrAdjusterConstruction)
}

func TestConstructionFailures(t *testing.T) {
	t.Parallel()

	for _, step := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewOneSamplePerStep(step)
		require.ErrorIs(t, err, extractor.ErrAdjusterConstruction, "step %v", step)
	}

	_, err := NewFixedSampleRate(extractor.ConfiguredDescriptor{SampleType: extractor.FixedSampleRate})
	require.ErrorIs(t, err, extractor.ErrAdjusterConstruction)

	_, err = New(extractor.ConfiguredDescriptor{SampleType: extractor.FixedSampleRate}, 1)
	require.ErrorIs(t, err, extractor.ErrAdjusterConstruction)
}

func TestOneSamplePerStepSynthesisesTimestamps(t *testing.T) {
	t.Parallel()
	a, err := NewOneSamplePerStep(0.5)
	require.NoError(t, err)

	want := []time.Duration{0, 500 * time.Millisecond, time.Second}
	for i, w := range want {
		in := feature.Feature{Values: []float32{float32(i)}}.WithDuration(time.Second)
		out, err := a.Adjust(in, nil)
		require.NoError(t, err)
		require.True(t, out.HasTimestamp())
		assert.Equal(t, w, *out.Timestamp)
		assert.False(t, out.HasDuration())
		assert.True(t, in.HasDuration(), "input feature must not be modified")
	}
}

func TestOneSamplePerStepPrefersBlockTimestamp(t *testing.T) {
	t.Parallel()
	a, err := NewOneSamplePerStep(0.25)
	require.NoError(t, err)

	out, err := a.Adjust(feature.At(9*time.Second, 1), feature.Ptr(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, *out.Timestamp)

	// finish features have no block time and follow the last one
	out, err = a.Adjust(feature.Feature{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3250*time.Millisecond, *out.Timestamp)
}

func TestVariableSampleRate(t *testing.T) {
	t.Parallel()

	a := NewVariableSampleRate(extractor.ConfiguredDescriptor{SampleType: extractor.VariableSampleRate, SampleRate: 4})
	_, err := a.Adjust(feature.Feature{Values: []float32{1}}, nil)
	require.ErrorIs(t, err, ErrMissingTimestamp)

	out, err := a.Adjust(feature.At(time.Second, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second, *out.Timestamp)
	assert.Equal(t, 250*time.Millisecond, *out.Duration)

	out, err = a.Adjust(feature.At(time.Second).WithDuration(3*time.Second), nil)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, *out.Duration)

	unrated := NewVariableSampleRate(extractor.ConfiguredDescriptor{SampleType: extractor.VariableSampleRate})
	out, err = unrated.Adjust(feature.At(time.Second), nil)
	require.NoError(t, err)
	require.True(t, out.HasDuration())
	assert.Equal(t, time.Duration(0), *out.Duration)
}

func TestFixedSampleRateSnapsToGrid(t *testing.T) {
	t.Parallel()
	const sr = 16.0
	a, err := NewFixedSampleRate(extractor.ConfiguredDescriptor{SampleType: extractor.FixedSampleRate, SampleRate: sr})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), a.LastIndex())

	for i := int64(0); i < 8; i++ {
		// slightly off-grid input still lands on index i
		in := feature.At(feature.FromSeconds(float64(i)/sr)+time.Microsecond, 1)
		out, err := a.Adjust(in, nil)
		require.NoError(t, err)
		assert.Equal(t, feature.FromFrames(i, sr), *out.Timestamp)
		assert.Equal(t, i, a.LastIndex())
		assert.Equal(t, time.Duration(0), *out.Duration)
	}

	out, err := a.Adjust(feature.Feature{Values: []float32{2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), a.LastIndex())
	assert.Equal(t, 500*time.Millisecond, *out.Timestamp)

	out, err = a.Adjust(feature.At(time.Second).WithDuration(130*time.Millisecond), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(16), a.LastIndex())
	assert.Equal(t, 125*time.Millisecond, *out.Duration)
}

func TestAdjustList(t *testing.T) {
	t.Parallel()
	a, err := NewOneSamplePerStep(1)
	require.NoError(t, err)

	in := feature.List{{Values: []float32{1}}, {Values: []float32{2}}}
	out, err := AdjustList(a, in, feature.Ptr(2*time.Second))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2*time.Second, *out[1].Timestamp)
	assert.False(t, in[0].HasTimestamp())

	_, err = AdjustList(NewVariableSampleRate(extractor.ConfiguredDescriptor{}), in, nil)
	require.ErrorIs(t, err, ErrMissingTimestamp)
}

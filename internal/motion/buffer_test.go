package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagnitudeSumsAbsoluteAxes(t *testing.T) {
	s := Sample{X: 0.1, Y: -0.2, Z: 0.3}
	assert.InDelta(t, 0.6, s.Magnitude(), 1e-12)

	assert.Equal(t, 0.0, Sample{}.Magnitude())
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	b := NewSampleBuffer(8)
	for i := 0; i < 100; i++ {
		b.Append(Sample{X: float64(i)})
		require.LessOrEqual(t, b.Len(), 8)
	}
	assert.Equal(t, 8, b.Len())
	assert.Equal(t, 8, b.Cap())
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewSampleBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(Sample{X: float64(i)})
	}

	// Samples 1 and 2 were evicted; 3,4,5 remain oldest-first.
	assert.Equal(t, []float64{3, 0, 0, 4, 0, 0, 5, 0, 0}, b.Vector())
}

func TestVectorSampleMajorOrder(t *testing.T) {
	b := NewSampleBuffer(4)
	b.Append(Sample{X: 1, Y: 2, Z: 3})
	b.Append(Sample{X: 4, Y: 5, Z: 6})

	v := b.Vector()
	require.Len(t, v, 6)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v)
}

func TestVectorLengthTracksPartialFill(t *testing.T) {
	b := NewSampleBuffer(10)
	assert.Empty(t, b.Vector())

	for i := 0; i < 4; i++ {
		b.Append(Sample{})
	}
	assert.Len(t, b.Vector(), 12)
}

func TestVectorReproducibleForSameInput(t *testing.T) {
	feed := func() *SampleBuffer {
		b := NewSampleBuffer(5)
		for i := 0; i < 13; i++ {
			b.Append(Sample{X: float64(i), Y: float64(i) * 0.5, Z: -float64(i)})
		}
		return b
	}
	assert.Equal(t, feed().Vector(), feed().Vector())
}

func TestResetEmptiesBuffer(t *testing.T) {
	b := NewSampleBuffer(4)
	b.Append(Sample{X: 1})
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Vector())

	b.Append(Sample{X: 2})
	assert.Equal(t, []float64{2, 0, 0}, b.Vector())
}

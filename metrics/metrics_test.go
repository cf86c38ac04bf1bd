package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterIncAndValue(t *testing.T) {
	var c Counter
	c.Inc(3)
	c.Inc(4)
	require.Equal(t, int64(7), c.Value())
}

func TestGaugeSet(t *testing.T) {
	var g Gauge
	g.Set(10)
	g.Set(5)
	require.Equal(t, int64(5), g.Value())
}

func TestHistogramSnapshotEmpty(t *testing.T) {
	h := NewHistogram(4)
	count, mean, p95, max := h.Snapshot()
	require.Equal(t, 0, count)
	require.Equal(t, 0.0, mean)
	require.Equal(t, 0.0, p95)
	require.Equal(t, 0.0, max)
}

func TestHistogramSnapshotComputesMeanAndMax(t *testing.T) {
	h := NewHistogram(8)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.Observe(v)
	}
	count, mean, _, max := h.Snapshot()
	require.Equal(t, 5, count)
	require.Equal(t, 3.0, mean)
	require.Equal(t, 5.0, max)
}

func TestHistogramWrapsAtCapacity(t *testing.T) {
	h := NewHistogram(3)
	for _, v := range []float64{1, 2, 3, 4} {
		h.Observe(v)
	}
	count, _, _, max := h.Snapshot()
	require.Equal(t, 3, count)
	require.Equal(t, 4.0, max)
}

func TestNewRegistryHistogramReady(t *testing.T) {
	reg := NewRegistry()
	reg.TickDuration.Observe(1.5)
	count, _, _, _ := reg.TickDuration.Snapshot()
	require.Equal(t, 1, count)
}

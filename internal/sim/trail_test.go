package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

func sampleTimes(b *TrailBuffer) []float64 {
	var ts []float64
	for _, s := range b.Samples() {
		ts = append(ts, s.T)
	}
	return ts
}

func TestTrailBufferEvictsOldSamples(t *testing.T) {
	var b TrailBuffer
	for _, ts := range []float64{10, 11, 12, 13} {
		b.Push(gtfs.TrailSample{T: ts, Lat: ts, Lon: -ts}, 2)
	}
	assert.Equal(t, []float64{11, 12, 13}, sampleTimes(&b))

	b.Trim(14.5, 2)
	assert.Equal(t, []float64{13}, sampleTimes(&b))
}

func TestTrailBufferZeroWindow(t *testing.T) {
	var b TrailBuffer
	b.Push(gtfs.TrailSample{T: 10}, 5)
	b.Push(gtfs.TrailSample{T: 11}, 5)
	require.Equal(t, 2, b.Len())

	b.Push(gtfs.TrailSample{T: 12}, 0)
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Samples())

	b.Push(gtfs.TrailSample{T: 13}, 5)
	b.Trim(13, 0)
	assert.Equal(t, 0, b.Len())
}

func TestTrailBufferChunks(t *testing.T) {
	var b TrailBuffer
	assert.Nil(t, b.Chunks(5))

	b.Push(gtfs.TrailSample{T: 1, Lat: 1}, 100)
	assert.Nil(t, b.Chunks(5), "a single sample draws nothing")

	for i := 2; i <= 11; i++ {
		b.Push(gtfs.TrailSample{T: float64(i), Lat: float64(i)}, 100)
	}
	// 11 samples, 10 spans, 5 chunks of 2 spans each.
	chunks := b.Chunks(5)
	require.Len(t, chunks, 5)
	for c, ch := range chunks {
		assert.Len(t, ch.Points, 3)
		assert.InDelta(t, float64(c+1)/5, ch.Alpha, 1e-12)
		assert.Equal(t, float64(2*c+1), ch.Points[0].Lat)
	}
	assert.Equal(t, 1.0, chunks[4].Alpha)
}

func TestTrailBufferChunksSkipsEmptyRanges(t *testing.T) {
	var b TrailBuffer
	for i := 0; i < 3; i++ {
		b.Push(gtfs.TrailSample{T: float64(i), Lat: float64(i)}, 100)
	}
	// 2 spans over 5 chunks: ranges [0,0] [0,0] [0,1] [1,1] [1,2].
	chunks := b.Chunks(5)
	require.Len(t, chunks, 2)
	assert.InDelta(t, 0.6, chunks[0].Alpha, 1e-12)
	assert.Equal(t, []gtfs.Position{{Lat: 0}, {Lat: 1}}, chunks[0].Points)
	assert.Equal(t, 1.0, chunks[1].Alpha)
	assert.Equal(t, []gtfs.Position{{Lat: 1}, {Lat: 2}}, chunks[1].Points)
}

func TestTrailBufferPushEarlierSampleDropsLaterOnes(t *testing.T) {
	var b TrailBuffer
	for _, ts := range []float64{10, 11, 12} {
		b.Push(gtfs.TrailSample{T: ts}, 1000)
	}
	b.Push(gtfs.TrailSample{T: 10.5}, 1000)
	assert.Equal(t, []float64{10, 10.5}, sampleTimes(&b))

	b.Push(gtfs.TrailSample{T: 10.5}, 1000)
	assert.Equal(t, []float64{10, 10.5, 10.5}, sampleTimes(&b), "equal times are kept")
}

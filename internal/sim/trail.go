package sim

import "github.com/devbret/trimet-gtfs-visualization/internal/gtfs"

// DefaultTrailChunks is the number of fading pieces a trail is split into.
const DefaultTrailChunks = 5

// TrailBuffer keeps a trip's recent positions, oldest first.
type TrailBuffer struct {
	samples []gtfs.TrailSample
}

// Push appends s and evicts samples older than s.T - window. Samples later
// than s.T are dropped first, so a backward seek keeps the buffer in time
// order. A window of zero or less disables trails and empties the buffer.
func (b *TrailBuffer) Push(s gtfs.TrailSample, window float64) {
	if window <= 0 {
		b.Reset()
		return
	}
	n := len(b.samples)
	for n > 0 && b.samples[n-1].T > s.T {
		n--
	}
	b.samples = b.samples[:n]
	b.samples = append(b.samples, s)
	b.Trim(s.T, window)
}

// Trim evicts samples with T < now - window from the front.
func (b *TrailBuffer) Trim(now, window float64) {
	if window <= 0 {
		b.Reset()
		return
	}
	tmin := now - window
	i := 0
	for i < len(b.samples) && b.samples[i].T < tmin {
		i++
	}
	if i > 0 {
		b.samples = append(b.samples[:0], b.samples[i:]...)
	}
}

func (b *TrailBuffer) Reset() { b.samples = b.samples[:0] }

func (b *TrailBuffer) Len() int { return len(b.samples) }

// Samples returns a copy of the buffered samples.
func (b *TrailBuffer) Samples() []gtfs.TrailSample {
	if len(b.samples) == 0 {
		return nil
	}
	return append([]gtfs.TrailSample(nil), b.samples...)
}

// TrailChunk is one piece of a fading trail. Alpha grows from the oldest
// chunk to 1 for the newest.
type TrailChunk struct {
	Points []gtfs.Position `json:"points"`
	Alpha  float64         `json:"alpha"`
}

// Chunks splits the trail into n pieces of equal index span. Adjacent chunks
// share their boundary point. Fewer than two samples yield no chunks.
func (b *TrailBuffer) Chunks(n int) []TrailChunk {
	pts := b.samples
	if len(pts) < 2 || n <= 0 {
		return nil
	}
	last := len(pts) - 1
	var out []TrailChunk
	for c := 0; c < n; c++ {
		lo := c * last / n
		hi := (c + 1) * last / n
		if hi <= lo {
			continue
		}
		chunk := TrailChunk{Points: make([]gtfs.Position, 0, hi-lo+1), Alpha: float64(c+1) / float64(n)}
		for _, p := range pts[lo : hi+1] {
			chunk.Points = append(chunk.Points, gtfs.Position{Lat: p.Lat, Lon: p.Lon})
		}
		out = append(out, chunk)
	}
	return out
}

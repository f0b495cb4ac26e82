// Package bundle reads and writes the pre-computed trip bundle: routes,
// per-hour trip lists and delta-encoded movement segments.
package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devbret/trimet-gtfs-visualization/internal/codec"
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

// DefaultScale is the fixed-point divisor assumed when meta.q is absent.
const DefaultScale = 100000

var ErrShortStream = errors.New("bundle: packed stream shorter than declared segment count")

type Bundle struct {
	Meta        Meta                 `json:"meta"`
	Routes      map[string]RouteMeta `json:"routes"`
	StopsHourly []StopHourly         `json:"stops_hourly,omitempty"`
	TripsByHour []HourEntry          `json:"trips_by_hour"`
}

type Meta struct {
	Q      int     `json:"q,omitempty"`
	Window *Window `json:"window,omitempty"`
}

type Window struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

type RouteMeta struct {
	Color     string `json:"color"`
	ShortName string `json:"short_name"`
}

type StopHourly struct {
	StopID string  `json:"stop_id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Hourly []int   `json:"hourly"`
}

type HourEntry struct {
	Hour  int          `json:"hour"`
	Trips []TripRecord `json:"trips"`
}

type TripRecord struct {
	TripID         string          `json:"trip_id"`
	RouteID        string          `json:"route_id"`
	Headsign       string          `json:"headsign"`
	SegmentsPacked *PackedSegments `json:"segments_packed,omitempty"`
}

// PackedSegments holds base64 delta streams: T alternates segment start and
// end times, P alternates start lat, start lon, end lat, end lon.
type PackedSegments struct {
	T string `json:"t"`
	P string `json:"p"`
	N int    `json:"n"`
}

// Scale returns meta.q, or DefaultScale if it is unset.
func (b *Bundle) Scale() float64 {
	if b.Meta.Q > 0 {
		return float64(b.Meta.Q)
	}
	return DefaultScale
}

func Decode(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// Encode writes b as compact JSON.
func Encode(w io.Writer, b *Bundle) error {
	if err := json.NewEncoder(w).Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

// WriteFile encodes b to path through a temporary file so readers never see
// a partial bundle.
func WriteFile(path string, b *Bundle) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck
	if err := Encode(tmp, b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Open reads a bundle from a local path or an http(s) URL. Failures are not
// retried.
func Open(ctx context.Context, source string) (*Bundle, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetch(ctx, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func fetch(ctx context.Context, url string) (*Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle: %w", err)
	}
	defer resp.Body.Close() // nolint
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bundle: unexpected status %s", resp.Status)
	}
	return Decode(resp.Body)
}

// UnpackSegments pairs the decoded time and position streams into n segments.
func UnpackSegments(t, p []int32, n int) ([]gtfs.Segment, error) {
	if n < 0 || len(t) < 2*n || len(p) < 4*n {
		return nil, fmt.Errorf("%w: n=%d len(t)=%d len(p)=%d", ErrShortStream, n, len(t), len(p))
	}
	segs := make([]gtfs.Segment, n)
	for j := range segs {
		segs[j] = gtfs.Segment{
			Start:    t[2*j],
			End:      t[2*j+1],
			StartLat: p[4*j],
			StartLon: p[4*j+1],
			EndLat:   p[4*j+2],
			EndLon:   p[4*j+3],
		}
	}
	return segs, nil
}

// DecodePacked decodes both streams of one trip and unpacks them.
func DecodePacked(sp *PackedSegments) ([]gtfs.Segment, error) {
	t, err := codec.DecodeDeltasBase64(sp.T)
	if err != nil {
		return nil, fmt.Errorf("time stream: %w", err)
	}
	p, err := codec.DecodeDeltasBase64(sp.P)
	if err != nil {
		return nil, fmt.Errorf("position stream: %w", err)
	}
	return UnpackSegments(t, p, sp.N)
}

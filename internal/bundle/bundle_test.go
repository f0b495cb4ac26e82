package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devbret/trimet-gtfs-visualization/internal/codec"
	"github.com/devbret/trimet-gtfs-visualization/internal/gtfs"
)

func packed(t, p []int32, n int) *PackedSegments {
	return &PackedSegments{T: codec.EncodeDeltasBase64(t), P: codec.EncodeDeltasBase64(p), N: n}
}

func TestUnpackSegments(t *testing.T) {
	segs, err := UnpackSegments(
		[]int32{100, 200, 200, 260},
		[]int32{0, 0, 10, 20, 10, 20, 15, 25},
		2,
	)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, gtfs.Segment{Start: 100, End: 200, StartLat: 0, StartLon: 0, EndLat: 10, EndLon: 20}, segs[0])
	assert.Equal(t, gtfs.Segment{Start: 200, End: 260, StartLat: 10, StartLon: 20, EndLat: 15, EndLon: 25}, segs[1])
}

func TestUnpackSegmentsShortStream(t *testing.T) {
	_, err := UnpackSegments([]int32{100, 200}, []int32{0, 0, 10}, 1)
	assert.ErrorIs(t, err, ErrShortStream)

	_, err = UnpackSegments([]int32{100}, []int32{0, 0, 10, 20}, 1)
	assert.ErrorIs(t, err, ErrShortStream)
}

func TestDecodeAndUnpack(t *testing.T) {
	raw := `{
		"meta": {"q": 10},
		"routes": {"100": {"color": "#D81526", "short_name": "100"}},
		"trips_by_hour": [
			{"hour": 9, "trips": [
				{"trip_id": "a", "route_id": "100", "headsign": "Gresham"},
				{"trip_id": "b", "route_id": "100", "headsign": "Hillsboro", "segments_packed": {"t": "", "p": "", "n": 0}}
			]},
			{"hour": 10, "trips": []}
		]
	}`
	b, err := Decode(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Scale())

	b.TripsByHour[0].Trips[1].SegmentsPacked = packed([]int32{32400, 32500}, []int32{455000, -1226000, 455100, -1226100}, 1)
	l := b.Unpack()

	assert.Equal(t, 10.0, l.Q)
	require.Len(t, l.Buckets, 2)
	assert.Equal(t, 9, l.Buckets[0].Hour)
	require.Len(t, l.Buckets[0].Trips, 2)
	assert.False(t, l.Buckets[0].Trips[0].HasSegments())
	require.True(t, l.Buckets[0].Trips[1].HasSegments())
	assert.Equal(t, int32(-1226100), l.Buckets[0].Trips[1].Segments[0].EndLon)
	assert.Empty(t, l.Buckets[1].Trips)
	assert.Equal(t, UnpackStats{Trips: 2, Decoded: 1, Empty: 1}, l.Stats)
	assert.Equal(t, gtfs.Route{ID: "100", ShortName: "100", Headsign: "Gresham", Color: "#D81526"}, l.Routes["100"])
}

func TestUnpackSkipsMalformedTrip(t *testing.T) {
	good := packed([]int32{32400, 32500}, []int32{1, 2, 3, 4}, 1)
	b := &Bundle{
		TripsByHour: []HourEntry{{Hour: 9, Trips: []TripRecord{
			{TripID: "truncated", RouteID: "r", SegmentsPacked: &PackedSegments{T: "gA==", P: good.P, N: 1}},
			{TripID: "short", RouteID: "r", SegmentsPacked: &PackedSegments{T: good.T, P: good.P, N: 2}},
			{TripID: "ok", RouteID: "r", SegmentsPacked: good},
		}}},
	}
	l := b.Unpack()

	assert.Equal(t, float64(DefaultScale), l.Q)
	trips := l.Buckets[0].Trips
	require.Len(t, trips, 3)
	assert.Nil(t, trips[0].Segments)
	assert.Nil(t, trips[1].Segments)
	assert.Len(t, trips[2].Segments, 1)
	require.Len(t, l.Stats.Failures, 2)
	assert.ErrorIs(t, l.Stats.Failures[0].Err, codec.ErrTruncated)
	assert.ErrorIs(t, l.Stats.Failures[1].Err, ErrShortStream)
	assert.Equal(t, "short", l.Stats.Failures[1].TripID)
}

func TestOpenFileAndURL(t *testing.T) {
	b := &Bundle{
		Meta:        Meta{Q: 50000},
		Routes:      map[string]RouteMeta{"2": {Color: "#00FF00", ShortName: "2"}},
		TripsByHour: []HourEntry{{Hour: 12, Trips: []TripRecord{{TripID: "t", RouteID: "2"}}}},
	}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(b))

	path := filepath.Join(t.TempDir(), "all_trips.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	fromFile, err := Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, b, fromFile)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/all_trips.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	fromURL, err := Open(context.Background(), srv.URL+"/all_trips.json")
	require.NoError(t, err)
	assert.Equal(t, b, fromURL)

	_, err = Open(context.Background(), srv.URL+"/missing.json")
	assert.Error(t, err)

	_, err = Open(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestWriteFileRoundTrip(t *testing.T) {
	b := Build(sampleSchedule(), BuildOptions{Q: 100000, StartHour: 9, EndHour: 11})
	path := filepath.Join(t.TempDir(), "all_trips.json")
	require.NoError(t, WriteFile(path, b))

	got, err := Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is renamed away")
}

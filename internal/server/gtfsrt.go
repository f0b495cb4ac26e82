package server

import (
	"net/http"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/devbret/trimet-gtfs-visualization/internal/sim"
)

// VehiclePositionsFeed converts the active vehicles of f into a full-dataset
// GTFS-Realtime feed. Timestamps place the simulated time of day on the
// service day containing now.
func VehiclePositionsFeed(f *sim.Frame, now time.Time) *gtfsrtpb.FeedMessage {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	ts := uint64(day.Unix() + int64(f.SimTime))

	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
	}
	for _, v := range f.Vehicles {
		if !v.Active || v.Position == nil {
			continue
		}
		feed.Entity = append(feed.Entity, &gtfsrtpb.FeedEntity{
			Id: proto.String(v.TripID),
			Vehicle: &gtfsrtpb.VehiclePosition{
				Trip: &gtfsrtpb.TripDescriptor{
					TripId:  proto.String(v.TripID),
					RouteId: proto.String(v.RouteID),
				},
				Vehicle: &gtfsrtpb.VehicleDescriptor{
					Id:    proto.String(v.TripID),
					Label: proto.String(v.RouteName),
				},
				Position: &gtfsrtpb.Position{
					Latitude:  proto.Float32(float32(v.Position.Lat)),
					Longitude: proto.Float32(float32(v.Position.Lon)),
				},
				Timestamp: proto.Uint64(ts),
			},
		})
	}
	return feed
}

// vehiclePositionsHandler serves the current frame as protobuf, or as JSON
// with ?format=json.
func (s *Server) vehiclePositionsHandler(w http.ResponseWriter, r *http.Request) {
	f := s.pb.Latest()
	if f == nil {
		s.notLoadedResponse(w, r)
		return
	}
	feed := VehiclePositionsFeed(f, s.opts.Now())

	var (
		data        []byte
		err         error
		contentType string
	)
	if r.URL.Query().Get("format") == "json" {
		data, err = protojson.Marshal(feed)
		contentType = "application/json"
	} else {
		data, err = proto.Marshal(feed)
		contentType = "application/x-protobuf"
	}
	if err != nil {
		s.log.Error().Err(err).Msg("marshal gtfs-rt feed")
		s.serverErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		s.log.Debug().Err(err).Msg("write gtfs-rt feed")
	}
}

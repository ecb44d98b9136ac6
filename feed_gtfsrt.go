package main

import (
	"math"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const gtfsRealtimeVersion = "2.0"

// BuildVehiclePositions renders snapshots as a full-dataset GTFS-Realtime
// vehicle positions feed. asOf is the time of the last good merge.
func BuildVehiclePositions(snapshots []VehicleSnapshot, asOf time.Time) *gtfs.FeedMessage {
	ts := uint64(0)
	if !asOf.IsZero() {
		ts = uint64(asOf.Unix())
	}
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(snapshots)),
	}
	for _, s := range snapshots {
		pos := &gtfs.Position{
			Latitude:  proto.Float32(float32(s.GPS.Latitude)),
			Longitude: proto.Float32(float32(s.GPS.Longitude)),
		}
		if b, ok := bearingFromDelta(s.GPS, s.PositionDelta); ok {
			pos.Bearing = proto.Float32(float32(b))
		}
		vp := &gtfs.VehiclePosition{
			Vehicle:  &gtfs.VehicleDescriptor{Id: proto.String(s.VehicleID)},
			Position: pos,
		}
		if ts != 0 {
			vp.Timestamp = proto.Uint64(ts)
		}
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(s.VehicleID),
			Vehicle: vp,
		})
	}
	return feed
}

// bearingFromDelta is the initial great-circle bearing, in degrees from
// north, from pos to pos+delta. ok is false for a zero delta.
func bearingFromDelta(pos, delta Coordinate) (float64, bool) {
	if delta.Latitude == 0 && delta.Longitude == 0 {
		return 0, false
	}
	lat1 := radians(pos.Latitude)
	lat2 := radians(pos.Latitude + delta.Latitude)
	dlon := radians(delta.Longitude)
	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360), true
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

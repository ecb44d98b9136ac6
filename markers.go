package main

import (
	"fmt"
	"strings"
)

// MarkerState is one rendered map marker.
type MarkerState struct {
	VehicleID string  `json:"vehicle_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Popup     string  `json:"popup"`
}

type MarkerOpKind string

const (
	MarkerCreate MarkerOpKind = "create"
	MarkerUpdate MarkerOpKind = "update"
	MarkerRemove MarkerOpKind = "remove"
)

// MarkerOp is one instruction for the map layer. Remove ops carry only the id.
type MarkerOp struct {
	Op MarkerOpKind `json:"op"`
	MarkerState
}

// MarkerDiff groups a reconciliation's instructions by kind.
type MarkerDiff struct {
	Remove []MarkerOp
	Update []MarkerOp
	Create []MarkerOp
}

// Ops flattens the diff in application order: removals, updates, creations.
func (d MarkerDiff) Ops() []MarkerOp {
	out := make([]MarkerOp, 0, len(d.Remove)+len(d.Update)+len(d.Create))
	out = append(out, d.Remove...)
	out = append(out, d.Update...)
	return append(out, d.Create...)
}

func (d MarkerDiff) Empty() bool {
	return len(d.Remove) == 0 && len(d.Update) == 0 && len(d.Create) == 0
}

// Reconcile diffs the rendered markers against the latest snapshots. An id
// present on both sides is always an update, never a remove and create.
// Removals are emitted in sorted id order; updates and creations follow
// snapshot order.
func Reconcile(previous map[string]MarkerState, snapshots []VehicleSnapshot) MarkerDiff {
	var diff MarkerDiff
	next := make(map[string]struct{}, len(snapshots))
	for _, s := range snapshots {
		next[s.VehicleID] = struct{}{}
	}
	for _, id := range sortedKeys(previous) {
		if _, ok := next[id]; !ok {
			diff.Remove = append(diff.Remove, MarkerOp{Op: MarkerRemove, MarkerState: MarkerState{VehicleID: id}})
		}
	}

	emitted := make(map[string]struct{}, len(snapshots))
	for _, s := range snapshots {
		if _, dup := emitted[s.VehicleID]; dup {
			continue
		}
		emitted[s.VehicleID] = struct{}{}
		m := markerFor(s)
		if _, ok := previous[s.VehicleID]; ok {
			diff.Update = append(diff.Update, MarkerOp{Op: MarkerUpdate, MarkerState: m})
		} else {
			diff.Create = append(diff.Create, MarkerOp{Op: MarkerCreate, MarkerState: m})
		}
	}
	return diff
}

func markerFor(s VehicleSnapshot) MarkerState {
	return MarkerState{
		VehicleID: s.VehicleID,
		Lat:       s.GPS.Latitude,
		Lon:       s.GPS.Longitude,
		Popup:     PopupContent(s),
	}
}

// PopupContent renders the detail text shown when a marker is opened.
func PopupContent(s VehicleSnapshot) string {
	brake := "inactive"
	if s.EmergencyBrake {
		brake = "ACTIVE"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Vehicle %s\n", s.VehicleID)
	fmt.Fprintf(&b, "Position: %.6f, %.6f\n", s.GPS.Latitude, s.GPS.Longitude)
	fmt.Fprintf(&b, "Front distance: %.1f m (%+.1f)\n", s.Sensors.FrontDistance, s.Sensors.FrontDistanceChange)
	fmt.Fprintf(&b, "Rear distance: %.1f m (%+.1f)\n", s.Sensors.RearDistance, s.Sensors.RearDistanceChange)
	fmt.Fprintf(&b, "Emergency brake: %s", brake)
	return b.String()
}

// markerLayer owns the rendered markers. It is written only by apply.
type markerLayer struct {
	markers map[string]MarkerState
}

func newMarkerLayer() *markerLayer {
	return &markerLayer{markers: make(map[string]MarkerState)}
}

// reconcile computes the diff for snapshots and applies it.
func (l *markerLayer) reconcile(snapshots []VehicleSnapshot) MarkerDiff {
	diff := Reconcile(l.markers, snapshots)
	l.apply(diff)
	return diff
}

func (l *markerLayer) apply(diff MarkerDiff) {
	for _, op := range diff.Ops() {
		switch op.Op {
		case MarkerRemove:
			delete(l.markers, op.VehicleID)
		case MarkerUpdate, MarkerCreate:
			l.markers[op.VehicleID] = op.MarkerState
		}
	}
}

// createOps describes the whole layer as creations, for a client that has
// nothing rendered yet.
func (l *markerLayer) createOps() []MarkerOp {
	out := make([]MarkerOp, 0, len(l.markers))
	for _, id := range sortedKeys(l.markers) {
		out = append(out, MarkerOp{Op: MarkerCreate, MarkerState: l.markers[id]})
	}
	return out
}

func (l *markerLayer) ids() []string { return sortedKeys(l.markers) }

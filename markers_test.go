package main

import (
	"strings"
	"testing"
)

func snap(id string, lat, lon float64) VehicleSnapshot {
	return VehicleSnapshot{LocationRecord: loc(id, lat, lon)}
}

func opIDs(ops []MarkerOp) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = string(op.Op) + ":" + op.VehicleID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReconcileEmitsRemovalsUpdatesCreations(t *testing.T) {
	layer := newMarkerLayer()
	layer.reconcile([]VehicleSnapshot{snap("a", 1, 1), snap("b", 2, 2), snap("c", 3, 3)})

	diff := layer.reconcile([]VehicleSnapshot{snap("d", 4, 4), snap("b", 2.5, 2.5), snap("a", 1.5, 1.5)})

	got := opIDs(diff.Ops())
	want := []string{"remove:c", "update:b", "update:a", "create:d"}
	if !equalStrings(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	if m := layer.markers["b"]; m.Lat != 2.5 || m.Lon != 2.5 {
		t.Errorf("b not repositioned: %+v", m)
	}
}

func TestReconcilePersistingIDIsNeverRecreated(t *testing.T) {
	prev := map[string]MarkerState{"v1": {VehicleID: "v1"}}
	diff := Reconcile(prev, []VehicleSnapshot{snap("v1", 5, 5)})
	if len(diff.Remove) != 0 || len(diff.Create) != 0 {
		t.Fatalf("persisting id produced remove/create: %v", opIDs(diff.Ops()))
	}
	if len(diff.Update) != 1 || diff.Update[0].Lat != 5 {
		t.Fatalf("update = %+v", diff.Update)
	}
}

func TestReconcileConvergesToSnapshotIDs(t *testing.T) {
	ticks := [][]VehicleSnapshot{
		{snap("a", 0, 0), snap("b", 0, 0)},
		{},
		{snap("c", 0, 0), snap("c", 1, 1)},
		{snap("a", 0, 0), snap("c", 2, 2), snap("e", 0, 0)},
	}
	layer := newMarkerLayer()
	for i, snaps := range ticks {
		layer.reconcile(snaps)
		want := map[string]bool{}
		for _, s := range snaps {
			want[s.VehicleID] = true
		}
		if len(layer.markers) != len(want) {
			t.Fatalf("tick %d: %d markers, want %d (%v)", i, len(layer.markers), len(want), layer.ids())
		}
		for id := range want {
			if _, ok := layer.markers[id]; !ok {
				t.Errorf("tick %d: missing marker %s", i, id)
			}
		}
	}
}

func TestReconcileEmptyDiff(t *testing.T) {
	if d := Reconcile(nil, nil); !d.Empty() {
		t.Errorf("diff = %v, want empty", opIDs(d.Ops()))
	}
}

func TestPopupContentToleratesZeroSensors(t *testing.T) {
	got := PopupContent(snap("v9", 50.1, 14.4))
	for _, want := range []string{"Vehicle v9", "50.100000, 14.400000", "Front distance: 0.0 m", "Rear distance: 0.0 m", "Emergency brake: inactive"} {
		if !strings.Contains(got, want) {
			t.Errorf("popup missing %q:\n%s", want, got)
		}
	}

	braking := snap("v9", 0, 0)
	braking.EmergencyBrake = true
	braking.Sensors.FrontDistance = 8.25
	if got := PopupContent(braking); !strings.Contains(got, "ACTIVE") || !strings.Contains(got, "8.2 m") {
		t.Errorf("popup = %s", got)
	}
}

func TestCreateOpsDescribesLayer(t *testing.T) {
	layer := newMarkerLayer()
	layer.reconcile([]VehicleSnapshot{snap("b", 0, 0), snap("a", 0, 0)})
	got := opIDs(layer.createOps())
	if want := []string{"create:a", "create:b"}; !equalStrings(got, want) {
		t.Errorf("createOps = %v, want %v", got, want)
	}
}

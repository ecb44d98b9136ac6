package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func okLocations(recs ...LocationRecord) Result[[]LocationRecord] {
	return Result[[]LocationRecord]{Value: recs}
}

func okDetails(ds ...VehicleDetail) Result[[]VehicleDetail] {
	return Result[[]VehicleDetail]{Value: ds}
}

func failed[T any](feed string, kind FetchErrorKind) Result[T] {
	return Result[T]{Err: &FetchError{Feed: feed, Kind: kind, Reason: "test"}}
}

func newTestDashboard(policy MergePolicy) *Dashboard {
	clock := fixedNow
	return NewDashboard(discardLogger(), policy, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDashboardDetailsFailureKeepsSnapshots(t *testing.T) {
	d := newTestDashboard(MergeAtomic)
	first := d.ApplyFleet(FleetData{
		Locations: okLocations(loc("v1", 1, 1), loc("v2", 2, 2)),
		Details:   okDetails(VehicleDetail{VehicleID: "v2", Brake: true}),
	})
	if !first.Published || !first.Connectivity.Online {
		t.Fatalf("first tick = %+v", first)
	}
	before := mustJSON(t, d.View())

	u := d.ApplyFleet(FleetData{
		Locations: okLocations(loc("v1", 5, 5)),
		Details:   failed[[]VehicleDetail]("details", HTTPError),
	})
	if u.Published || !u.Diff.Empty() {
		t.Fatalf("tick with failed details published: %+v", u)
	}
	view := d.View()
	if view.Connectivity.Online {
		t.Error("online = true after failed tick")
	}
	if !view.Connectivity.LastUpdate.Equal(first.Connectivity.LastUpdate) {
		t.Errorf("last update moved: %v -> %v", first.Connectivity.LastUpdate, view.Connectivity.LastUpdate)
	}

	// Everything but the connectivity flag is byte-identical.
	view.Connectivity.Online = true
	if after := mustJSON(t, view); !bytes.Equal(before, after) {
		t.Errorf("state changed on skipped tick:\nbefore %s\nafter  %s", before, after)
	}
}

func TestDashboardPositionsFailureSkipsUnderEveryPolicy(t *testing.T) {
	for _, policy := range []MergePolicy{MergeAtomic, MergePartial} {
		d := newTestDashboard(policy)
		d.ApplyFleet(FleetData{Locations: okLocations(loc("v1", 1, 1)), Details: okDetails()})
		u := d.ApplyFleet(FleetData{
			Locations: failed[[]LocationRecord]("positions", NetworkFailure),
			Details:   okDetails(),
		})
		if u.Published {
			t.Errorf("%s: published without positions", policy)
		}
		if v := d.View(); len(v.Vehicles) != 1 || len(v.Markers) != 1 || v.Connectivity.Online {
			t.Errorf("%s: view = %+v", policy, v)
		}
	}
}

func TestDashboardPartialMergeUsesLastDetails(t *testing.T) {
	d := newTestDashboard(MergePartial)
	d.ApplyFleet(FleetData{
		Locations: okLocations(loc("v1", 1, 1), loc("v2", 2, 2)),
		Details:   okDetails(VehicleDetail{VehicleID: "v1", FrontDistance: ptr(15), Brake: true}),
	})

	u := d.ApplyFleet(FleetData{
		Locations: okLocations(loc("v1", 1.1, 1.1)),
		Details:   failed[[]VehicleDetail]("details", HTTPError),
	})
	if !u.Published || !u.Degraded {
		t.Fatalf("update = %+v, want degraded publish", u)
	}
	if got, want := opIDs(u.Diff.Ops()), []string{"remove:v2", "update:v1"}; !equalStrings(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if u.Connectivity.Online {
		t.Error("degraded tick reported online")
	}
	if s := u.Snapshots[0]; s.Sensors.FrontDistance != 15 || !s.EmergencyBrake {
		t.Errorf("v1 lost its last known details: %+v", s)
	}
}

func TestDashboardReplacesEventPage(t *testing.T) {
	d := newTestDashboard(MergeAtomic)
	old := EventPage{Events: []EventRecord{{Type: "old"}, {Type: "old"}, {Type: "old"}, {Type: "old"}, {Type: "old"}}}
	d.ApplyEvents(Result[EventPage]{Value: old})

	page := EventPage{
		Events: []EventRecord{
			{Timestamp: "2026-03-01T12:00:00", Type: "emergency_break", Details: "Published brake for v1"},
			{Timestamp: "2026-03-01T11:59:58", Type: "location_tracker", Details: "v2 at (1, 2)"},
			{Timestamp: "2026-03-01T11:59:57", Type: "distance_deviation", Details: "Vehicle v3"},
		},
		Pagination: PaginationInfo{Page: 1, Limit: 100, TotalCount: 3, TotalPages: 1},
	}
	d.ApplyEvents(Result[EventPage]{Value: page})

	got := d.View().Events
	if len(got.Events) != 3 {
		t.Fatalf("displayed %d events, want 3", len(got.Events))
	}
	for _, e := range got.Events {
		if e.Type == "old" {
			t.Error("old event survived replacement")
		}
	}
	if got.Pagination.HasNext || got.Pagination.TotalPages != 1 {
		t.Errorf("pagination = %+v", got.Pagination)
	}

	d.ApplyEvents(failed[EventPage]("events", ParseFailure))
	if n := len(d.View().Events.Events); n != 3 {
		t.Errorf("failed fetch changed the page: %d events", n)
	}
}

func TestDashboardSeedStaysOffline(t *testing.T) {
	d := newTestDashboard(MergeAtomic)
	d.Seed([]VehicleSnapshot{snap("cached", 3, 3)})
	v := d.View()
	if len(v.Markers) != 1 || v.Stats.ActiveVehicles != 1 {
		t.Errorf("seed not applied: %+v", v)
	}
	if v.Connectivity.Online {
		t.Error("seeded dashboard reported online")
	}

	u := d.ApplyFleet(FleetData{Locations: okLocations(loc("cached", 4, 4)), Details: okDetails()})
	if got := opIDs(u.Diff.Ops()); !equalStrings(got, []string{"update:cached"}) {
		t.Errorf("ops after seed = %v", got)
	}
}

func TestDashboardHooks(t *testing.T) {
	d := newTestDashboard(MergeAtomic)
	var fleet []FleetUpdate
	var pages []EventPage
	d.OnFleet(func(u FleetUpdate) { fleet = append(fleet, u) })
	d.OnEvents(func(p EventPage) { pages = append(pages, p) })

	d.ApplyFleet(FleetData{Locations: okLocations(loc("a", 0, 0)), Details: okDetails(VehicleDetail{VehicleID: "a", Brake: true})})
	d.ApplyFleet(FleetData{Locations: okLocations(), Details: failed[[]VehicleDetail]("details", NetworkFailure)})
	d.ApplyEvents(Result[EventPage]{Value: EventPage{}})
	d.ApplyEvents(failed[EventPage]("events", HTTPError))

	if len(fleet) != 2 || !fleet[0].Published || fleet[1].Published {
		t.Fatalf("fleet hooks = %+v", fleet)
	}
	if fleet[0].Stats != (Stats{ActiveVehicles: 1, EmergencyBrakes: 1}) {
		t.Errorf("stats = %+v", fleet[0].Stats)
	}
	if fleet[1].Stats != fleet[0].Stats {
		t.Error("skipped tick should carry the retained stats")
	}
	if len(pages) != 1 {
		t.Errorf("event hooks fired %d times, want 1", len(pages))
	}
}

func TestDashboardHookRegisteredDuringTick(t *testing.T) {
	d := newTestDashboard(MergeAtomic)
	var outer, inner int
	d.OnFleet(func(FleetUpdate) {
		outer++
		if outer == 1 {
			d.OnFleet(func(FleetUpdate) { inner++ })
		}
	})

	d.ApplyFleet(FleetData{Locations: okLocations(loc("a", 0, 0)), Details: okDetails()})
	if inner != 0 {
		t.Fatalf("hook added mid-tick ran %d times in that tick", inner)
	}
	d.ApplyFleet(FleetData{Locations: okLocations(loc("a", 1, 1)), Details: okDetails()})
	if outer != 2 || inner != 1 {
		t.Errorf("outer=%d inner=%d, want 2/1", outer, inner)
	}
}

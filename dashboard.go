package main

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// FleetUpdate describes what one fleet tick did to the dashboard.
// Published is false when the tick was skipped and nothing changed besides
// connectivity.
type FleetUpdate struct {
	Published    bool
	Degraded     bool
	Snapshots    []VehicleSnapshot
	Diff         MarkerDiff
	Stats        Stats
	Connectivity ConnectivityState
}

// View is a consistent copy of the dashboard for readers.
type View struct {
	Vehicles     []VehicleSnapshot `json:"vehicles"`
	Markers      []MarkerState     `json:"markers"`
	Stats        Stats             `json:"stats"`
	Connectivity ConnectivityState `json:"connectivity"`
	Events       EventPage         `json:"events"`
}

// Dashboard owns all long-lived display state. The fleet cycle is the only
// writer of snapshots, markers, stats and connectivity; the event cycle is
// the only writer of the event page. Readers go through View.
type Dashboard struct {
	log    *slog.Logger
	policy MergePolicy

	mu          sync.RWMutex
	snapshots   []VehicleSnapshot
	lastDetails []VehicleDetail
	markers     *markerLayer
	conn        *connectivityMonitor
	stats       Stats
	events      eventLog

	hookMu      sync.Mutex
	fleetHooks  []func(FleetUpdate)
	eventsHooks []func(EventPage)
}

func NewDashboard(log *slog.Logger, policy MergePolicy, now func() time.Time) *Dashboard {
	if policy == "" {
		policy = MergeAtomic
	}
	return &Dashboard{
		log:     log,
		policy:  policy,
		markers: newMarkerLayer(),
		conn:    newConnectivityMonitor(now),
	}
}

// OnFleet registers fn to run after every fleet tick, outside the state lock.
func (d *Dashboard) OnFleet(fn func(FleetUpdate)) {
	d.hookMu.Lock()
	d.fleetHooks = append(d.fleetHooks, fn)
	d.hookMu.Unlock()
}

// OnEvents registers fn to run after every replaced event page.
func (d *Dashboard) OnEvents(fn func(EventPage)) {
	d.hookMu.Lock()
	d.eventsHooks = append(d.eventsHooks, fn)
	d.hookMu.Unlock()
}

// Seed installs a previously cached snapshot set. Connectivity stays
// offline until a live tick succeeds.
func (d *Dashboard) Seed(snapshots []VehicleSnapshot) {
	d.mu.Lock()
	d.publish(snapshots)
	d.mu.Unlock()
}

// ApplyFleet folds one fleet tick into the dashboard.
func (d *Dashboard) ApplyFleet(data FleetData) FleetUpdate {
	d.mu.Lock()
	u := d.applyFleetLocked(data)
	d.mu.Unlock()

	if !u.Published {
		d.log.Warn("fleet tick skipped, keeping last snapshots", "err", firstFetchError(data), "vehicles", u.Stats.ActiveVehicles)
	} else if u.Degraded {
		d.log.Warn("details unavailable, merged with last known details", "err", data.Details.Err, "vehicles", len(u.Snapshots))
	} else {
		d.log.Debug("fleet tick merged", "vehicles", len(u.Snapshots),
			"created", len(u.Diff.Create), "updated", len(u.Diff.Update), "removed", len(u.Diff.Remove))
	}

	for _, fn := range d.fleetHookList() {
		fn(u)
	}
	return u
}

func (d *Dashboard) applyFleetLocked(data FleetData) FleetUpdate {
	if !data.Locations.OK() {
		d.conn.skipped()
		return d.skippedUpdate()
	}

	details := data.Details.Value
	degraded := false
	if !data.Details.OK() {
		if d.policy != MergePartial {
			d.conn.skipped()
			return d.skippedUpdate()
		}
		details = d.lastDetails
		degraded = true
	} else {
		d.lastDetails = details
	}

	merged := Merge(data.Locations.Value, details)
	diff := d.publish(merged)
	if degraded {
		d.conn.skipped()
	} else {
		d.conn.merged()
	}
	return FleetUpdate{
		Published:    true,
		Degraded:     degraded,
		Snapshots:    cloneSnapshots(merged),
		Diff:         diff,
		Stats:        d.stats,
		Connectivity: d.conn.State(),
	}
}

// publish replaces the snapshot collection and brings markers and stats in
// line with it.
func (d *Dashboard) publish(snapshots []VehicleSnapshot) MarkerDiff {
	d.snapshots = cloneSnapshots(snapshots)
	d.stats = Project(d.snapshots)
	return d.markers.reconcile(d.snapshots)
}

func (d *Dashboard) skippedUpdate() FleetUpdate {
	return FleetUpdate{Stats: d.stats, Connectivity: d.conn.State()}
}

// ApplyEvents replaces the displayed event page on success. A failed fetch
// keeps the page already shown.
func (d *Dashboard) ApplyEvents(res Result[EventPage]) {
	if !res.OK() {
		d.log.Warn("event log fetch failed, keeping current page", "feed", res.Err.Feed, "kind", res.Err.Kind, "err", res.Err)
		return
	}
	d.mu.Lock()
	d.events.replace(res.Value)
	page := d.events.current()
	d.mu.Unlock()

	for _, fn := range d.eventsHookList() {
		fn(page)
	}
}

func (d *Dashboard) View() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	markers := make([]MarkerState, 0, len(d.markers.markers))
	for _, id := range d.markers.ids() {
		markers = append(markers, d.markers.markers[id])
	}
	return View{
		Vehicles:     cloneSnapshots(d.snapshots),
		Markers:      markers,
		Stats:        d.stats,
		Connectivity: d.conn.State(),
		Events:       d.events.current(),
	}
}

// Snapshots returns a copy of the current snapshot collection.
func (d *Dashboard) Snapshots() ([]VehicleSnapshot, ConnectivityState) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneSnapshots(d.snapshots), d.conn.State()
}

// syncOps returns the whole marker layer as create instructions together
// with the rest of the state a newly connected client needs.
func (d *Dashboard) syncOps() ([]MarkerOp, Stats, ConnectivityState, EventPage) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.markers.createOps(), d.stats, d.conn.State(), d.events.current()
}

func (d *Dashboard) fleetHookList() []func(FleetUpdate) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	return slices.Clone(d.fleetHooks)
}

func (d *Dashboard) eventsHookList() []func(EventPage) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	return slices.Clone(d.eventsHooks)
}

func cloneSnapshots(in []VehicleSnapshot) []VehicleSnapshot {
	out := make([]VehicleSnapshot, len(in))
	copy(out, in)
	return out
}

func firstFetchError(data FleetData) *FetchError {
	if data.Locations.Err != nil {
		return data.Locations.Err
	}
	return data.Details.Err
}

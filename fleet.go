package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// FleetData is what one fleet tick fetched. Either side may have failed.
type FleetData struct {
	Locations Result[[]LocationRecord]
	Details   Result[[]VehicleDetail]
}

// fetchFleet fetches positions and details concurrently and returns once
// both have resolved. A failure on one side does not cancel the other.
func fetchFleet(ctx context.Context, f *Fetcher) FleetData {
	var out FleetData
	// Failures travel in each Result, so the goroutines never return an
	// error and Wait is only the join.
	var g errgroup.Group
	g.Go(func() error {
		out.Locations = FetchJSON[[]LocationRecord](ctx, f, "positions", locationsPath)
		return nil
	})
	g.Go(func() error {
		out.Details = FetchJSON[[]VehicleDetail](ctx, f, "details", detailsPath)
		return nil
	})
	_ = g.Wait()
	return out
}

// fleetFeed is the fast cycle: join both feeds, then merge and publish.
func fleetFeed(f *Fetcher, d *Dashboard, interval time.Duration) Feed {
	return Feed{
		Name:     "fleet",
		Interval: interval,
		Tick: func(ctx context.Context) {
			d.ApplyFleet(fetchFleet(ctx, f))
		},
	}
}

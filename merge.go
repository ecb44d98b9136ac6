package main

import "fmt"

// MergePolicy decides what a fleet tick publishes when one of its two
// fetches fails.
type MergePolicy string

const (
	// MergeAtomic skips the tick unless both feeds succeeded.
	MergeAtomic MergePolicy = "atomic"
	// MergePartial publishes positions against the last good details when
	// only the details feed failed.
	MergePartial MergePolicy = "partial"
)

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch p := MergePolicy(s); p {
	case MergeAtomic, MergePartial:
		return p, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q (want %q or %q)", s, MergeAtomic, MergePartial)
	}
}

// Merge left-joins details onto locations by vehicle id. Order follows
// locations and each location id appears once; a vehicle with no detail
// gets zero sensors and no emergency brake.
func Merge(locations []LocationRecord, details []VehicleDetail) []VehicleSnapshot {
	byID := make(map[string]VehicleDetail, len(details))
	for _, d := range details {
		if _, dup := byID[d.VehicleID]; !dup {
			byID[d.VehicleID] = d
		}
	}

	seen := make(map[string]struct{}, len(locations))
	out := make([]VehicleSnapshot, 0, len(locations))
	for _, loc := range locations {
		if _, dup := seen[loc.VehicleID]; dup {
			continue
		}
		seen[loc.VehicleID] = struct{}{}

		d := byID[loc.VehicleID]
		out = append(out, VehicleSnapshot{
			LocationRecord: loc,
			Sensors: Sensors{
				FrontDistance:       valueOrZero(d.FrontDistance),
				RearDistance:        valueOrZero(d.RearDistance),
				FrontDistanceChange: valueOrZero(d.FrontDistanceChange),
				RearDistanceChange:  valueOrZero(d.RearDistanceChange),
			},
			EmergencyBrake: d.Brake,
		})
	}
	return out
}

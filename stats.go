package main

// Stats are the dashboard's aggregate counters.
type Stats struct {
	ActiveVehicles  int `json:"active_vehicles"`
	EmergencyBrakes int `json:"emergency_brakes"`
}

func Project(snapshots []VehicleSnapshot) Stats {
	s := Stats{ActiveVehicles: len(snapshots)}
	for _, v := range snapshots {
		if v.EmergencyBrake {
			s.EmergencyBrakes++
		}
	}
	return s
}

package main

import "encoding/json"

// Coordinate is a latitude/longitude pair as the location tracker reports it.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationRecord is one entry of the positions feed. The positions feed is
// authoritative for which vehicles exist.
type LocationRecord struct {
	VehicleID     string     `json:"vehicle_id"`
	GPS           Coordinate `json:"gps"`
	PositionDelta Coordinate `json:"position_delta"`
	Timestamp     string     `json:"timestamp,omitempty"`
}

// VehicleDetail is one entry of the details feed. Distance fields are nil
// until the distance monitor has reported for the vehicle.
type VehicleDetail struct {
	VehicleID           string   `json:"vehicle_id"`
	FrontDistance       *float64 `json:"front_distance"`
	RearDistance        *float64 `json:"rear_distance"`
	FrontDistanceChange *float64 `json:"front_distance_change"`
	RearDistanceChange  *float64 `json:"rear_distance_change"`
	Brake               bool     `json:"brake"`
}

// Sensors holds the distance readings of a snapshot. Absent readings are zero.
type Sensors struct {
	FrontDistance       float64 `json:"front_distance"`
	RearDistance        float64 `json:"rear_distance"`
	FrontDistanceChange float64 `json:"front_distance_change"`
	RearDistanceChange  float64 `json:"rear_distance_change"`
}

// VehicleSnapshot is the merged, display-ready state of one vehicle.
type VehicleSnapshot struct {
	LocationRecord
	Sensors        Sensors `json:"sensors"`
	EmergencyBrake bool    `json:"emergency_brake"`
}

// EventRecord is one row of the central director's event log.
type EventRecord struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Details   string `json:"details"`
}

// PaginationInfo accompanies a page of events.
type PaginationInfo struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalCount  int  `json:"total_count"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// UnmarshalJSON accepts both has_previous and the central director's has_prev.
func (p *PaginationInfo) UnmarshalJSON(b []byte) error {
	type plain PaginationInfo
	var aux struct {
		plain
		HasPrev *bool `json:"has_prev"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = PaginationInfo(aux.plain)
	if aux.HasPrev != nil && !p.HasPrevious {
		p.HasPrevious = *aux.HasPrev
	}
	return nil
}

// EventPage is the body of the event log feed.
type EventPage struct {
	Events     []EventRecord  `json:"events"`
	Pagination PaginationInfo `json:"pagination"`
}

func valueOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

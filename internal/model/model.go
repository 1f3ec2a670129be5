// Copyright 2025 James Ross
// Package model defines the shared data types that flow through the dispatch
// pipeline: requests, stops, vehicle state, and the transient decisions the
// evaluator and commit guard exchange.
package model

import "fmt"

// StopKind is a closed 3-variant tag, modeled as an enum rather than dynamic
// dispatch on stop type.
type StopKind int

const (
	Pickup StopKind = iota
	Dropoff
	Rebalance
)

func (k StopKind) String() string {
	switch k {
	case Pickup:
		return "pickup"
	case Dropoff:
		return "dropoff"
	case Rebalance:
		return "rebalance"
	default:
		return fmt.Sprintf("StopKind(%d)", int(k))
	}
}

// Request is an immutable ride request as ingested; it is never mutated after
// creation, only referenced by id from pending/committed state.
type Request struct {
	ReqID     string
	OLon      float64
	OLat      float64
	DLon      float64
	DLat      float64
	TRequest  float64 // absolute seconds
}

// Stop is one pickup/dropoff/rebalance waypoint in a vehicle's schedule.
// ReqID is empty for a Rebalance stop.
type Stop struct {
	Kind  StopKind
	ReqID string
	Lon   float64
	Lat   float64
}

// VehicleState owns its Schedule and Onboard set exclusively; no other
// component holds a reference into either.
type VehicleState struct {
	VehID    string
	Lon      float64
	Lat      float64
	TAvail   float64
	Schedule []Stop
	Onboard  []string

	// Active path fields support sub-tick interpolation tracking between
	// batches; the advancer is the only writer.
	ActiveCoords     [][2]float64
	ActiveTimestamps []float64
	ActiveElapsed    float64
}

// HasOnboard reports whether reqID is currently inside the vehicle.
func (v *VehicleState) HasOnboard(reqID string) bool {
	for _, id := range v.Onboard {
		if id == reqID {
			return true
		}
	}
	return false
}

// RemoveOnboard removes reqID from the onboard set if present.
func (v *VehicleState) RemoveOnboard(reqID string) {
	for i, id := range v.Onboard {
		if id == reqID {
			v.Onboard = append(v.Onboard[:i], v.Onboard[i+1:]...)
			return
		}
	}
}

// ClearActivePath resets the between-tick interpolation state.
func (v *VehicleState) ClearActivePath() {
	v.ActiveCoords = nil
	v.ActiveTimestamps = nil
	v.ActiveElapsed = 0
}

// InsertionDecision is the transient result of the evaluator: a candidate
// schedule for veh, never persisted directly, only consumed by the commit
// guard or discarded.
type InsertionDecision struct {
	ReqID      string
	VehID      string
	NewSched   []Stop
	CostSec    float64
}

// PendingState is the per-request retry bookkeeping table entry.
type PendingState struct {
	RetryIdx int
	LateEff  float64
	Deadline float64 // absolute seconds
}

// Event is one entry in the events.json output stream: an ASSIGN, PICKUP,
// DROPOFF, REJECT, or REBALANCE_ASSIGN occurrence. VehID and Attempt/Reason
// are populated only for the event types that carry them.
type Event struct {
	T      int64
	Type   string
	VehID  string
	ReqID  string
	Lon    float64
	Lat    float64
	HasLL  bool
	Attempt int
	Reason string
}

// TrackPoint is one tick's position sample for one vehicle, for tracks.json.
type TrackPoint struct {
	T    int64
	Lon  float64
	Lat  float64
	Load int
}

// AttemptRecord is the per-request attempts.json entry.
type AttemptRecord struct {
	Attempt     int
	FinalStatus string // pending | served | rejected
}

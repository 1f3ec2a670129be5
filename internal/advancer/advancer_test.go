// Copyright 2025 James Ross
package advancer

import (
	"context"
	"testing"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

func testParams() *config.ServiceParams {
	return &config.ServiceParams{ServiceTimeSec: 60, AvgSpeedKmh: 36} // 10 m/s
}

func TestAdvanceFullLegConsumesStopAndEmitsPickup(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	v.Schedule = []model.Stop{{Kind: model.Pickup, ReqID: "r1", Lon: 0, Lat: 0}}
	vehicles := []*model.VehicleState{v}

	moves, events := Advance(context.Background(), vehicles, 1000, p, nil, 0)
	if len(moves) != 1 || moves[0].Partial {
		t.Fatalf("expected one full-leg move, got %+v", moves)
	}
	if len(events) != 1 || events[0].Type != "PICKUP" {
		t.Fatalf("expected one PICKUP event, got %+v", events)
	}
	if len(v.Schedule) != 0 {
		t.Fatalf("expected schedule consumed, got %+v", v.Schedule)
	}
	if !v.HasOnboard("r1") {
		t.Fatal("expected r1 onboard after pickup")
	}
}

func TestAdvancePartialLegLeavesVehicleMidRoute(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	// Far destination: at 10 m/s, 60s of dt should not reach it.
	v.Schedule = []model.Stop{{Kind: model.Dropoff, ReqID: "r1", Lon: 1, Lat: 1}}
	vehicles := []*model.VehicleState{v}

	moves, events := Advance(context.Background(), vehicles, 60, p, nil, 0)
	if len(moves) != 1 || !moves[0].Partial {
		t.Fatalf("expected one partial move, got %+v", moves)
	}
	if len(events) != 0 {
		t.Fatalf("expected no stop-completion events on a partial leg, got %+v", events)
	}
	if len(v.Schedule) != 1 {
		t.Fatalf("expected the stop to remain pending, got %+v", v.Schedule)
	}
	if v.Lon == 0 && v.Lat == 0 {
		t.Fatal("expected vehicle position to advance during the partial leg")
	}
}

func TestAdvanceDropoffRemovesOnboard(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0, Onboard: []string{"r1"}}
	v.Schedule = []model.Stop{{Kind: model.Dropoff, ReqID: "r1", Lon: 0, Lat: 0}}
	vehicles := []*model.VehicleState{v}

	_, events := Advance(context.Background(), vehicles, 1000, p, nil, 0)
	if len(events) != 1 || events[0].Type != "DROPOFF" {
		t.Fatalf("expected DROPOFF event, got %+v", events)
	}
	if v.HasOnboard("r1") {
		t.Fatal("expected r1 removed from onboard after dropoff")
	}
}

func TestAdvanceRebalanceStopEmitsNoEvent(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	v.Schedule = []model.Stop{{Kind: model.Rebalance, Lon: 0, Lat: 0}}
	vehicles := []*model.VehicleState{v}

	_, events := Advance(context.Background(), vehicles, 1000, p, nil, 0)
	if len(events) != 0 {
		t.Fatalf("expected no events for a rebalance stop, got %+v", events)
	}
	if len(v.Schedule) != 0 {
		t.Fatalf("expected rebalance stop consumed, got %+v", v.Schedule)
	}
}

func TestAdvanceIdleVehicleAccumulatesAvailTime(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	vehicles := []*model.VehicleState{v}
	Advance(context.Background(), vehicles, 60, p, nil, 0)
	if v.TAvail != 60 {
		t.Fatalf("expected idle vehicle TAvail to accumulate dt, got %v", v.TAvail)
	}
}

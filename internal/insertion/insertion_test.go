// Copyright 2025 James Ross
package insertion

import (
	"context"
	"testing"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

func testParams() *config.ServiceParams {
	return &config.ServiceParams{
		ServiceTimeSec:  60,
		VehicleCapacity: 4,
		PickupLateSec:   600,
		DetourRatioMax:  3.0,
		AvgSpeedKmh:     30,
		BigM:            1e12,
	}
}

func TestBestInsertionForVehicleEmptySchedule(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 127.10, Lat: 37.50}
	r := &model.Request{ReqID: "r1", OLon: 127.10, OLat: 37.50, DLon: 127.11, DLat: 37.51, TRequest: 0}

	dec := BestInsertionForVehicle(context.Background(), r, v, p, nil, 0, nil)
	if dec == nil {
		t.Fatal("expected a feasible insertion on an idle vehicle")
	}
	if dec.ReqID != "r1" || dec.VehID != "v1" {
		t.Fatalf("unexpected decision identity: %+v", dec)
	}
	if len(dec.NewSched) != 2 || dec.NewSched[0].Kind != model.Pickup || dec.NewSched[1].Kind != model.Dropoff {
		t.Fatalf("unexpected schedule: %+v", dec.NewSched)
	}
}

func TestBestInsertionForVehicleRejectsLatePickup(t *testing.T) {
	p := testParams()
	p.PickupLateSec = 1 // any nonzero travel time exceeds this
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	r := &model.Request{ReqID: "r1", OLon: 1, OLat: 1, DLon: 2, DLat: 2, TRequest: 0}

	dec := BestInsertionForVehicle(context.Background(), r, v, p, nil, 0, nil)
	if dec != nil {
		t.Fatalf("expected no feasible insertion given a near-zero pickup window, got %+v", dec)
	}
}

func TestBestInsertionForVehicleRejectsOverCapacity(t *testing.T) {
	p := testParams()
	p.VehicleCapacity = 1
	v := &model.VehicleState{VehID: "v1", Lon: 127.10, Lat: 37.50, Onboard: []string{"existing"}}
	v.Schedule = []model.Stop{{Kind: model.Dropoff, ReqID: "existing", Lon: 127.12, Lat: 37.52}}
	r := &model.Request{ReqID: "r1", OLon: 127.10, OLat: 37.50, DLon: 127.11, DLat: 37.51, TRequest: 0}

	dec := BestInsertionForVehicle(context.Background(), r, v, p, nil, 0, nil)
	if dec != nil {
		t.Fatalf("expected capacity violation to block insertion, got %+v", dec)
	}
}

func TestBestInsertionForVehiclePreservesExistingDropoff(t *testing.T) {
	p := testParams()
	p.VehicleCapacity = 4
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0, Onboard: []string{"existing"}}
	v.Schedule = []model.Stop{{Kind: model.Dropoff, ReqID: "existing", Lon: 0.01, Lat: 0.01}}
	r := &model.Request{ReqID: "r1", OLon: 0, OLat: 0, DLon: 0.005, DLat: 0.005, TRequest: 0}

	dec := BestInsertionForVehicle(context.Background(), r, v, p, nil, 0, nil)
	if dec == nil {
		t.Fatal("expected a feasible insertion")
	}
	foundExisting := false
	for _, s := range dec.NewSched {
		if s.Kind == model.Dropoff && s.ReqID == "existing" {
			foundExisting = true
		}
	}
	if !foundExisting {
		t.Fatalf("existing passenger's dropoff must never be dropped from candidate schedules: %+v", dec.NewSched)
	}
}

func TestEvaluateFeasibilityAndCostRejectsDetourOverMax(t *testing.T) {
	p := testParams()
	p.DetourRatioMax = 0.01
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	r := &model.Request{ReqID: "r1", OLon: 0, OLat: 0, DLon: 1, DLat: 1, TRequest: 0}
	sched := []model.Stop{
		{Kind: model.Pickup, ReqID: "r1", Lon: 0, Lat: 0},
		{Kind: model.Dropoff, ReqID: "r1", Lon: 1, Lat: 1},
	}
	feas, cost := EvaluateFeasibilityAndCost(context.Background(), v, sched, r, p, nil, 0, nil)
	if feas {
		t.Fatalf("expected detour ratio violation to reject, got feasible cost %v", cost)
	}
	if cost != p.BigM {
		t.Fatalf("expected BigM cost on rejection, got %v", cost)
	}
}

func TestEvaluateFeasibilityAndCostRejectsDropDeadline(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	r := &model.Request{ReqID: "r1", OLon: 0, OLat: 0, DLon: 0.01, DLat: 0.01, TRequest: 0}
	sched := []model.Stop{
		{Kind: model.Pickup, ReqID: "r1", Lon: 0, Lat: 0},
		{Kind: model.Dropoff, ReqID: "r1", Lon: 0.01, Lat: 0.01},
	}
	ddl := 1.0 // far earlier than any feasible arrival
	feas, _ := EvaluateFeasibilityAndCost(context.Background(), v, sched, r, p, nil, 0, &ddl)
	if feas {
		t.Fatalf("expected drop deadline violation to reject")
	}
}

func TestEvaluateFeasibilityAndCostRejectsWrongOrder(t *testing.T) {
	p := testParams()
	v := &model.VehicleState{VehID: "v1", Lon: 0, Lat: 0}
	r := &model.Request{ReqID: "r1", OLon: 0, OLat: 0, DLon: 0.01, DLat: 0.01, TRequest: 0}
	sched := []model.Stop{
		{Kind: model.Dropoff, ReqID: "r1", Lon: 0.01, Lat: 0.01},
		{Kind: model.Pickup, ReqID: "r1", Lon: 0, Lat: 0},
	}
	feas, _ := EvaluateFeasibilityAndCost(context.Background(), v, sched, r, p, nil, 0, nil)
	if feas {
		t.Fatalf("expected dropoff-before-pickup ordering to be rejected")
	}
}

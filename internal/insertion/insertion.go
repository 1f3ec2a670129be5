// Copyright 2025 James Ross
// Package insertion implements the feasibility-checked insertion search: for
// one request against one vehicle, find the cheapest schedule that keeps
// every onboard drop-off, respects capacity, the pickup window, the detour
// ratio, and any drop deadline, or report that no feasible insertion exists.
package insertion

import (
	"context"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/geo"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
	"github.com/camuslab/dynamic-wirye-drt/internal/routing"
)

// segmentSeconds is the travel time for one OD leg, using the oracle when
// enabled (which itself falls back to straight-line time on failure) or
// straight-line time directly when routing is disabled.
func segmentSeconds(ctx context.Context, oLon, oLat, dLon, dLat float64, p *config.ServiceParams, rc *routing.Client) float64 {
	if p.UseOSRM && rc != nil {
		return rc.OnewayDuration(ctx, oLon, oLat, dLon, dLat)
	}
	return geo.StraightLineSeconds(oLon, oLat, dLon, dLat, p.AvgSpeedKmh)
}

// SimulateSchedule walks sched from the vehicle's current position, returning
// the total elapsed seconds and each stop's arrival time (relative to tick
// start), charging ServiceTimeSec dwell at every stop.
func SimulateSchedule(ctx context.Context, v *model.VehicleState, sched []model.Stop, p *config.ServiceParams, rc *routing.Client) (float64, []float64) {
	t := 0.0
	arrivals := make([]float64, 0, len(sched))
	curLon, curLat := v.Lon, v.Lat
	for _, s := range sched {
		t += segmentSeconds(ctx, curLon, curLat, s.Lon, s.Lat, p, rc)
		arrivals = append(arrivals, t)
		t += p.ServiceTimeSec
		curLon, curLat = s.Lon, s.Lat
	}
	return t, arrivals
}

// defaultBigM is the infeasibility cost sentinel used when ServiceParams.BigM
// is unset; assignment.Solve drops any pair costing 0.1*BigM or more.
const defaultBigM = 1e12

func bigM(p *config.ServiceParams) float64 {
	if p.BigM > 0 {
		return p.BigM
	}
	return defaultBigM
}

// EvaluateFeasibilityAndCost checks every hard constraint for inserting r's
// pickup/dropoff into v's existing schedule as new_sched, returning the total
// schedule duration as the cost when feasible, else (false, BigM).
// dropDeadlineAbs, if non-nil, is the run-wide absolute bound on the dropoff
// time (last t_request plus TailFlushMaxSec); nil means unbounded.
func EvaluateFeasibilityAndCost(
	ctx context.Context,
	v *model.VehicleState,
	newSched []model.Stop,
	r *model.Request,
	p *config.ServiceParams,
	rc *routing.Client,
	nowAbs float64,
	dropDeadlineAbs *float64,
) (bool, float64) {
	m := bigM(p)

	nEvents := 0
	for _, s := range newSched {
		if s.Kind == model.Pickup || s.Kind == model.Dropoff {
			nEvents++
		}
	}
	if nEvents > 2*p.VehicleCapacity {
		return false, m
	}

	load := len(v.Onboard)
	onboard := make(map[string]bool, len(v.Onboard))
	for _, id := range v.Onboard {
		onboard[id] = true
	}
	for _, s := range newSched {
		switch s.Kind {
		case model.Pickup:
			if !onboard[s.ReqID] {
				load++
				onboard[s.ReqID] = true
			}
		case model.Dropoff:
			if onboard[s.ReqID] {
				load--
				delete(onboard, s.ReqID)
			}
		}
		if load > p.VehicleCapacity || load < 0 {
			return false, m
		}
	}

	for _, rid := range v.Onboard {
		dropped := false
		for _, s := range newSched {
			if s.Kind == model.Dropoff && s.ReqID == rid {
				dropped = true
				break
			}
		}
		if !dropped {
			return false, m
		}
	}

	pi, di := -1, -1
	for i, s := range newSched {
		if s.Kind == model.Pickup && s.ReqID == r.ReqID {
			pi = i
		}
		if s.Kind == model.Dropoff && s.ReqID == r.ReqID {
			di = i
		}
	}
	if pi < 0 || di < 0 || di <= pi {
		return false, m
	}

	totalTD, arrivals := SimulateSchedule(ctx, v, newSched, p, rc)
	tPickAbs := nowAbs + arrivals[pi]
	tDropAbs := nowAbs + arrivals[di]

	desired := r.TRequest
	late := p.PickupLateSec
	if !(desired <= tPickAbs && tPickAbs <= desired+late) {
		return false, m
	}

	rideTime := tDropAbs - (tPickAbs + p.ServiceTimeSec)
	if rideTime < 0 {
		rideTime = 0
	}
	if p.MaxRideTimeSec != nil && rideTime > *p.MaxRideTimeSec {
		return false, m
	}

	odSec := segmentSeconds(ctx, r.OLon, r.OLat, r.DLon, r.DLat, p, rc)
	if odSec < 1.0 {
		odSec = 1.0
	}
	detour := rideTime / odSec
	if detour > p.DetourRatioMax {
		return false, m
	}

	if dropDeadlineAbs != nil && tDropAbs > *dropDeadlineAbs {
		return false, m
	}

	return true, totalTD
}

// BestInsertionForVehicle enumerates pickup/dropoff insertion positions over
// v's schedule, optionally narrowed by InsertPickWindow/InsertDropWindow, and
// returns the cheapest feasible candidate or nil if none exists.
func BestInsertionForVehicle(
	ctx context.Context,
	r *model.Request,
	v *model.VehicleState,
	p *config.ServiceParams,
	rc *routing.Client,
	nowAbs float64,
	dropDeadlineAbs *float64,
) *model.InsertionDecision {
	sched := append([]model.Stop(nil), v.Schedule...)

	if len(sched) == 0 {
		trial := []model.Stop{
			{Kind: model.Pickup, ReqID: r.ReqID, Lon: r.OLon, Lat: r.OLat},
			{Kind: model.Dropoff, ReqID: r.ReqID, Lon: r.DLon, Lat: r.DLat},
		}
		if feas, td := EvaluateFeasibilityAndCost(ctx, v, trial, r, p, rc, nowAbs, dropDeadlineAbs); feas {
			return &model.InsertionDecision{ReqID: r.ReqID, VehID: v.VehID, NewSched: trial, CostSec: td}
		}
		return nil
	}

	n := len(sched)

	pickEnd := n
	if p.InsertPickWindow != nil {
		k := *p.InsertPickWindow
		if k < 1 {
			k = 1
		}
		if k < pickEnd {
			pickEnd = k
		}
	}

	var best *model.InsertionDecision

	for i := 0; i <= pickEnd; i++ {
		dropLast := n + 1
		if p.InsertDropWindow != nil {
			lam := *p.InsertDropWindow
			if lam < 1 {
				lam = 1
			}
			if cand := i + 1 + lam; cand < dropLast {
				dropLast = cand
			}
		}

		for j := i + 1; j <= dropLast; j++ {
			newSched := make([]model.Stop, 0, n+2)
			newSched = append(newSched, sched[:i]...)
			newSched = append(newSched, model.Stop{Kind: model.Pickup, ReqID: r.ReqID, Lon: r.OLon, Lat: r.OLat})
			newSched = append(newSched, sched[i:j-1]...)
			newSched = append(newSched, model.Stop{Kind: model.Dropoff, ReqID: r.ReqID, Lon: r.DLon, Lat: r.DLat})
			newSched = append(newSched, sched[j-1:]...)

			feas, td := EvaluateFeasibilityAndCost(ctx, v, newSched, r, p, rc, nowAbs, dropDeadlineAbs)
			if !feas {
				continue
			}
			if best == nil || td < best.CostSec {
				best = &model.InsertionDecision{ReqID: r.ReqID, VehID: v.VehID, NewSched: newSched, CostSec: td}
			}
		}
	}

	return best
}

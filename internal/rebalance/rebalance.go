// Copyright 2025 James Ross
// Package rebalance implements the reactive rebalance pass (spec §4.5): pair
// idle vehicles with "hot" waiting requests by proximity, greedily and with
// a randomized top-k tie-break, for immediate insertion outside the normal
// LAP cycle.
package rebalance

import (
	"context"
	"math/rand"
	"sort"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/geo"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
	"github.com/camuslab/dynamic-wirye-drt/internal/routing"
)

// Pair is one (vehicle, request) candidate chosen for immediate insertion.
type Pair struct {
	VehID string
	ReqID string
}

// SelectHot picks the requests eligible for rebalance this tick: those at or
// past max_retries-1, or, if none qualify, the last 20 of pending sorted
// ascending by (retry_idx, t_request).
func SelectHot(pending []*model.Request, retryIdx map[string]int, maxRetries int) []*model.Request {
	var hot []*model.Request
	if maxRetries >= 1 {
		for _, r := range pending {
			if retryIdx[r.ReqID] >= maxRetries-1 {
				hot = append(hot, r)
			}
		}
	}
	if len(hot) > 0 {
		return hot
	}

	sorted := append([]*model.Request(nil), pending...)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := retryIdx[sorted[i].ReqID], retryIdx[sorted[j].ReqID]
		if ri != rj {
			return ri < rj
		}
		return sorted[i].TRequest < sorted[j].TRequest
	})
	n := len(sorted)
	start := n - 20
	if start < 0 {
		start = 0
	}
	return sorted[start:]
}

// vehReqScore is the candidate-ranking distance/duration between a vehicle's
// current position and a request's origin: oracle duration when enabled,
// else planar distance as a fast proxy (spec: "fallback: planar distance").
func vehReqScore(ctx context.Context, v *model.VehicleState, r *model.Request, p *config.ServiceParams, rc *routing.Client) float64 {
	if p.UseOSRM && rc != nil {
		return rc.OnewayDuration(ctx, v.Lon, v.Lat, r.OLon, r.OLat)
	}
	return geo.WeightedPlanarMeters(v.Lon, v.Lat, r.OLon, r.OLat)
}

// AssignIdleToHot scores remaining idle vehicles against each hot request in
// ascending t_request order, takes the closest kTop, and chooses one
// uniformly at random via rng (caller owns determinism by seeding rng).
// A vehicle chosen for one request is removed from the idle pool for the
// rest of this call.
func AssignIdleToHot(
	ctx context.Context,
	idle []*model.VehicleState,
	hot []*model.Request,
	p *config.ServiceParams,
	rc *routing.Client,
	kTop int,
	rng *rand.Rand,
) []Pair {
	if len(idle) == 0 || len(hot) == 0 {
		return nil
	}

	hotSorted := append([]*model.Request(nil), hot...)
	sort.Slice(hotSorted, func(i, j int) bool { return hotSorted[i].TRequest < hotSorted[j].TRequest })

	idleLeft := make(map[string]*model.VehicleState, len(idle))
	var order []string
	for _, v := range idle {
		idleLeft[v.VehID] = v
		order = append(order, v.VehID)
	}

	var pairs []Pair
	for _, r := range hotSorted {
		type scored struct {
			score float64
			vehID string
		}
		var cands []scored
		for _, vid := range order {
			v, ok := idleLeft[vid]
			if !ok {
				continue
			}
			cands = append(cands, scored{score: vehReqScore(ctx, v, r, p, rc), vehID: vid})
		}
		if len(cands) == 0 {
			break
		}
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].score < cands[j].score })

		top := kTop
		if top > len(cands) {
			top = len(cands)
		}
		chosen := cands[rng.Intn(top)].vehID

		pairs = append(pairs, Pair{VehID: chosen, ReqID: r.ReqID})
		delete(idleLeft, chosen)
	}
	return pairs
}

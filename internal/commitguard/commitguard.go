// Copyright 2025 James Ross
// Package commitguard is the second-pass validator applied just before a
// vehicle's schedule is actually replaced: it recomputes the baseline ETA of
// every already-scheduled pickup, re-simulates the candidate schedule, and
// refuses the replace if any onboard passenger's drop-off would be lost, the
// new request's pickup/dropoff pair is missing, any pickup's ETA would drift
// later than its already-committed baseline, or any pickup's ETA exceeds its
// allowed-late bound. A successful Apply mutates v.Schedule and returns a
// reroute record; a rejected Apply leaves v untouched.
package commitguard

import (
	"context"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/insertion"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
	"github.com/camuslab/dynamic-wirye-drt/internal/obs"
	"github.com/camuslab/dynamic-wirye-drt/internal/routing"
)

// driftSlack absorbs floating point/service-time rounding in the
// no-later-than-baseline comparison, matching the source's SLACK constant.
const driftSlack = 1e-6

// Reroute records a schedule replacement for the reroutes.json output stream.
type Reroute struct {
	TAbs   float64
	VehID  string
	Before []model.Stop
	After  []model.Stop
}

// Guard owns the per-request allowed-late bounds fixed at the moment each
// request was first committed to a vehicle; it is the one source of truth
// for "how late can this pickup still slip" across retries and reroutes.
type Guard struct {
	allowedLate map[string]float64
}

// New builds an empty Guard for one run.
func New() *Guard {
	return &Guard{allowedLate: make(map[string]float64)}
}

// AllowedLate returns the fixed allowed-late bound for reqID, or ok=false if
// the request has never been committed before.
func (g *Guard) AllowedLate(reqID string) (float64, bool) {
	v, ok := g.allowedLate[reqID]
	return v, ok
}

// reject counts a discarded LAP pair and returns Apply's failure result.
func (g *Guard) reject() (*Reroute, bool) {
	obs.CommitGuardRejections.Inc()
	return nil, false
}

// Apply validates decision against v's current schedule and, if every guard
// passes, replaces v.Schedule and returns the reroute record. reqMap looks up
// a request's original t_request by id; thisReqAllowedLate is the allowed-late
// bound in effect for decision.ReqID at this retry stage (fixed into the
// Guard on success).
func (g *Guard) Apply(
	ctx context.Context,
	v *model.VehicleState,
	decision *model.InsertionDecision,
	nowAbs float64,
	reqMap map[string]*model.Request,
	thisReqAllowedLate float64,
	p *config.ServiceParams,
	rc *routing.Client,
) (*Reroute, bool) {
	before := append([]model.Stop(nil), v.Schedule...)
	newSched := decision.NewSched

	_, oldArrivals := insertion.SimulateSchedule(ctx, v, v.Schedule, p, rc)
	oldPickETA := make(map[string]float64)
	for idx, s := range v.Schedule {
		if s.Kind == model.Pickup {
			oldPickETA[s.ReqID] = nowAbs + oldArrivals[idx]
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
			return g.reject()
		}
	}

	hasPick, hasDrop := false, false
	for _, s := range newSched {
		if s.ReqID == decision.ReqID {
			if s.Kind == model.Pickup {
				hasPick = true
			}
			if s.Kind == model.Dropoff {
				hasDrop = true
			}
		}
	}
	if !hasPick || !hasDrop {
		return g.reject()
	}

	_, newArrivals := insertion.SimulateSchedule(ctx, v, newSched, p, rc)

	perReqAllow := make(map[string]float64, len(g.allowedLate)+1)
	for k, v := range g.allowedLate {
		perReqAllow[k] = v
	}
	perReqAllow[decision.ReqID] = thisReqAllowedLate

	for idx, s := range newSched {
		if s.Kind != model.Pickup {
			continue
		}
		req, ok := reqMap[s.ReqID]
		if !ok {
			continue
		}
		etaNew := nowAbs + newArrivals[idx]
		allowLate, ok := perReqAllow[s.ReqID]
		if !ok {
			allowLate = p.PickupLateSec
		}

		if etaNew > req.TRequest+allowLate+driftSlack {
			return g.reject()
		}
		if etaOld, ok := oldPickETA[s.ReqID]; ok {
			if etaNew > etaOld+driftSlack {
				return g.reject()
			}
		}
	}

	v.Schedule = newSched
	g.allowedLate[decision.ReqID] = thisReqAllowedLate

	after := append([]model.Stop(nil), newSched...)
	return &Reroute{TAbs: nowAbs, VehID: v.VehID, Before: before, After: after}, true
}

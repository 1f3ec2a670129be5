// Copyright 2025 James Ross
// Package dispatch is the batch orchestrator: it owns the tick loop that
// admits requests, runs the insertion evaluator over candidate vehicles,
// solves the per-tick assignment, applies commits through the guard, runs
// the retry/timeout pass, runs reactive rebalance, advances vehicle motion,
// and finally flushes any tail schedule after the request stream ends.
package dispatch

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/camuslab/dynamic-wirye-drt/internal/advancer"
	"github.com/camuslab/dynamic-wirye-drt/internal/assignment"
	"github.com/camuslab/dynamic-wirye-drt/internal/commitguard"
	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/insertion"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
	"github.com/camuslab/dynamic-wirye-drt/internal/obs"
	"github.com/camuslab/dynamic-wirye-drt/internal/pending"
	"github.com/camuslab/dynamic-wirye-drt/internal/rebalance"
	"github.com/camuslab/dynamic-wirye-drt/internal/routing"
	"go.uber.org/zap"
)

// EventSink receives every dispatch event as it is appended, for optional
// republishing (internal/eventbus) without coupling the orchestrator to a
// concrete transport.
type EventSink interface {
	Publish(ev model.Event)
}

// Result is everything a completed run produced, ready for internal/export.
type Result struct {
	Served   []string
	Rejected []string
	Events   []model.Event
	Moves    []advancer.Move
	Tracks   map[string][]model.TrackPoint
	Reroutes []commitguard.Reroute
	Attempts map[string]model.AttemptRecord
}

// Snapshot is a point-in-time view of a run in progress, handed to an
// optional Dispatcher.OnTick callback so internal/adminapi can serve
// read-only introspection while a batch is still running.
type Snapshot struct {
	TickNo     int
	TAbs       float64
	Vehicles   []*model.VehicleState
	Pending    []*model.Request
	PendingRet map[string]int
	Served     int
	Rejected   int
}

// Dispatcher owns the config, routing client, and commit guard for one run;
// Run drives the tick loop to completion.
type Dispatcher struct {
	cfg   *config.Config
	rc    *routing.Client
	log   *zap.Logger
	guard *commitguard.Guard
	rng   *rand.Rand
	sinks []EventSink

	// OnTick, if set, is called once per batch tick (and once per
	// tail-flush iteration) with the current run state. It must return
	// quickly; the tick loop blocks on it.
	OnTick func(Snapshot)
}

func (d *Dispatcher) reportTick(tickNo int, tAbs float64, vehicles []*model.VehicleState, pendingReqs []*model.Request, pendingState map[string]*model.PendingState, result *Result) {
	if d.OnTick == nil {
		return
	}
	ret := make(map[string]int, len(pendingState))
	for id, st := range pendingState {
		ret[id] = st.RetryIdx
	}
	d.OnTick(Snapshot{
		TickNo:     tickNo,
		TAbs:       tAbs,
		Vehicles:   vehicles,
		Pending:    pendingReqs,
		PendingRet: ret,
		Served:     len(result.Served),
		Rejected:   len(result.Rejected),
	})
}

// New builds a Dispatcher. seed controls the reactive-rebalance top-k random
// tie-break, for reproducible runs.
func New(cfg *config.Config, rc *routing.Client, log *zap.Logger, seed int64, sinks ...EventSink) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		rc:    rc,
		log:   log,
		guard: commitguard.New(),
		rng:   rand.New(rand.NewSource(seed)),
		sinks: sinks,
	}
}

func (d *Dispatcher) emit(ev model.Event) []model.Event {
	for _, s := range d.sinks {
		s.Publish(ev)
	}
	return []model.Event{ev}
}

// selectCandidates returns vehicles to evaluate for r, idle vehicles first —
// the full-fleet scan is deliberate: at the fleet sizes this dispatcher
// targets, reviewing every vehicle raises the hit rate more than sampling
// would save.
func selectCandidates(vehicles []*model.VehicleState) []*model.VehicleState {
	var idle, busy []*model.VehicleState
	for _, v := range vehicles {
		if len(v.Schedule) == 0 {
			idle = append(idle, v)
		} else {
			busy = append(busy, v)
		}
	}
	return append(idle, busy...)
}

func anyScheduleLeft(vehicles []*model.VehicleState) bool {
	for _, v := range vehicles {
		if len(v.Schedule) > 0 {
			return true
		}
	}
	return false
}

// Run executes the full tick loop over requests (must be sorted ascending by
// TRequest) against vehicles, until the request stream is exhausted, all
// pending requests are resolved, and any remaining schedule is tail-flushed
// or the tail deadline passes.
func (d *Dispatcher) Run(ctx context.Context, requests []*model.Request, vehicles []*model.VehicleState) *Result {
	p := &d.cfg.Params

	result := &Result{
		Tracks:   make(map[string][]model.TrackPoint, len(vehicles)),
		Attempts: make(map[string]model.AttemptRecord, len(requests)),
	}

	totalReqs := len(requests)
	if totalReqs == 0 {
		return result
	}

	current := requests[0].TRequest
	tEnd := requests[totalReqs-1].TRequest

	tailWindow := p.TailFlushMaxSec
	dropDeadlineAbs := tEnd + tailWindow

	var pendingReqs []*model.Request
	pendingState := make(map[string]*model.PendingState)
	reqMap := make(map[string]*model.Request, totalReqs)
	for _, r := range requests {
		reqMap[r.ReqID] = r
	}
	nextIdx := 0
	batchNo := 0

	for current <= tEnd || len(pendingReqs) > 0 || nextIdx < totalReqs {
		batchNo++
		tickStart := time.Now()
		ctx, tickSpan := obs.StartTickSpan(ctx, batchNo, current)

		for nextIdx < totalReqs && requests[nextIdx].TRequest < current+p.BatchSeconds {
			r := requests[nextIdx]
			pendingReqs = append(pendingReqs, r)
			st := pending.NewState(r, p)
			pendingState[r.ReqID] = &st
			result.Attempts[r.ReqID] = model.AttemptRecord{Attempt: 1, FinalStatus: "pending"}
			obs.RequestsAdmitted.Inc()
			nextIdx++
		}

		if len(pendingReqs) == 0 && nextIdx >= totalReqs && current > tEnd {
			obs.SetSpanSuccess(ctx)
			tickSpan.End()
			obs.TickDuration.Observe(time.Since(tickStart).Seconds())
			break
		}

		vehIdx := make(map[string]int, len(vehicles))
		for i, v := range vehicles {
			vehIdx[v.VehID] = i
		}
		reqIdx := make(map[string]int, len(pendingReqs))
		for j, r := range pendingReqs {
			reqIdx[r.ReqID] = j
		}

		m, n := len(vehicles), len(pendingReqs)
		bigM := p.BigM
		if bigM <= 0 {
			bigM = 1e12
		}
		cost := make([][]float64, m)
		decisions := make([][]*model.InsertionDecision, m)
		for i := range cost {
			cost[i] = make([]float64, n)
			decisions[i] = make([]*model.InsertionDecision, n)
			for j := range cost[i] {
				cost[i][j] = bigM
			}
		}

		for _, r := range pendingReqs {
			st := pendingState[r.ReqID]
			k := st.RetryIdx
			effP := pending.EffParams(p, k)

			for _, v := range selectCandidates(vehicles) {
				dec := insertion.BestInsertionForVehicle(ctx, r, v, effP, d.rc, current, &dropDeadlineAbs)
				if dec == nil {
					continue
				}
				i, j := vehIdx[v.VehID], reqIdx[r.ReqID]
				if dec.CostSec < cost[i][j] {
					cost[i][j] = dec.CostSec
					decisions[i][j] = dec
				}
			}
		}

		pairs := assignment.Solve(cost, bigM)
		sort.Slice(pairs, func(a, b int) bool {
			if pairs[a].Row != pairs[b].Row {
				return pairs[a].Row < pairs[b].Row
			}
			return pairs[a].Col < pairs[b].Col
		})

		assignedIDs := make(map[string]bool)
		for _, pr := range pairs {
			dec := decisions[pr.Row][pr.Col]
			if dec == nil {
				continue
			}
			v := vehicles[pr.Row]
			rid := dec.ReqID
			st := pendingState[rid]
			effP := pending.EffParams(p, st.RetryIdx)

			rr, ok := d.guard.Apply(ctx, v, dec, current, reqMap, effP.PickupLateSec, p, d.rc)
			if !ok {
				continue
			}
			result.Reroutes = append(result.Reroutes, *rr)

			attNo := st.RetryIdx + 1
			result.Events = append(result.Events, d.emit(model.Event{
				T: int64(current), Type: "ASSIGN", VehID: v.VehID, ReqID: rid, Attempt: attNo,
			})...)
			result.Served = append(result.Served, rid)
			result.Attempts[rid] = model.AttemptRecord{Attempt: attNo, FinalStatus: "served"}
			assignedIDs[rid] = true
			obs.RequestsServed.Inc()
		}

		var remainPending []*model.Request
		for _, r := range pendingReqs {
			if assignedIDs[r.ReqID] {
				continue
			}
			st := pendingState[r.ReqID]

			if math.IsNaN(r.TRequest) {
				result.Rejected = append(result.Rejected, r.ReqID)
				result.Attempts[r.ReqID] = model.AttemptRecord{Attempt: st.RetryIdx + 1, FinalStatus: "rejected"}
				result.Events = append(result.Events, d.emit(model.Event{
					T: int64(current), Type: "REJECT", ReqID: r.ReqID, Reason: "bad_t_request",
				})...)
				obs.RequestsRejected.WithLabelValues("bad_t_request").Inc()
				continue
			}

			if current >= st.Deadline {
				if pending.Advance(st, r, p, p.MaxRetries) {
					result.Attempts[r.ReqID] = model.AttemptRecord{Attempt: st.RetryIdx + 1, FinalStatus: "pending"}
					remainPending = append(remainPending, r)
					obs.RequestsRetried.Inc()
				} else {
					result.Rejected = append(result.Rejected, r.ReqID)
					result.Attempts[r.ReqID] = model.AttemptRecord{Attempt: st.RetryIdx + 1, FinalStatus: "rejected"}
					result.Events = append(result.Events, d.emit(model.Event{
						T: int64(current), Type: "REJECT", ReqID: r.ReqID, Reason: "pickup_window_timeout",
					})...)
					obs.RequestsRejected.WithLabelValues("pickup_window_timeout").Inc()
				}
			} else {
				remainPending = append(remainPending, r)
			}
		}
		pendingReqs = remainPending

		if p.EnableRebalance {
			d.runRebalance(ctx, vehicles, pendingReqs, pendingState, reqMap, p, current, result)
			pendingReqs = filterNotServed(pendingReqs, result.Served)
		}

		moves, events := advancer.Advance(ctx, vehicles, p.BatchSeconds, p, d.rc, current)
		result.Moves = append(result.Moves, moves...)
		for _, ev := range events {
			result.Events = append(result.Events, d.emit(model.Event{
				T: ev.T, Type: ev.Type, VehID: ev.VehID, ReqID: ev.ReqID, Lon: ev.Lon, Lat: ev.Lat, HasLL: true,
			})...)
		}

		for _, v := range vehicles {
			result.Tracks[v.VehID] = append(result.Tracks[v.VehID], model.TrackPoint{
				T: int64(current + p.BatchSeconds), Lon: v.Lon, Lat: v.Lat, Load: len(v.Onboard),
			})
		}
		current += p.BatchSeconds
		d.reportTick(batchNo, current, vehicles, pendingReqs, pendingState, result)

		idle := 0
		for _, v := range vehicles {
			if len(v.Schedule) == 0 {
				idle++
			}
		}
		obs.PendingGauge.Set(float64(len(pendingReqs)))
		obs.IdleVehiclesGauge.Set(float64(idle))

		obs.SetSpanSuccess(ctx)
		obs.AddSpanAttributes(ctx)
		tickSpan.End()
		obs.TickDuration.Observe(time.Since(tickStart).Seconds())
	}

	for anyScheduleLeft(vehicles) && current < dropDeadlineAbs {
		moves, events := advancer.Advance(ctx, vehicles, p.BatchSeconds, p, d.rc, current)
		result.Moves = append(result.Moves, moves...)
		for _, ev := range events {
			result.Events = append(result.Events, d.emit(model.Event{
				T: ev.T, Type: ev.Type, VehID: ev.VehID, ReqID: ev.ReqID, Lon: ev.Lon, Lat: ev.Lat, HasLL: true,
			})...)
		}
		for _, v := range vehicles {
			result.Tracks[v.VehID] = append(result.Tracks[v.VehID], model.TrackPoint{
				T: int64(current + p.BatchSeconds), Lon: v.Lon, Lat: v.Lat, Load: len(v.Onboard),
			})
		}
		current += p.BatchSeconds
		batchNo++
		d.reportTick(batchNo, current, vehicles, nil, nil, result)
	}

	for _, r := range pendingReqs {
		result.Rejected = append(result.Rejected, r.ReqID)
		st := pendingState[r.ReqID]
		result.Attempts[r.ReqID] = model.AttemptRecord{Attempt: st.RetryIdx + 1, FinalStatus: "rejected"}
		result.Events = append(result.Events, d.emit(model.Event{
			T: int64(current), Type: "REJECT", ReqID: r.ReqID, Reason: "end_flush",
		})...)
		obs.RequestsRejected.WithLabelValues("end_flush").Inc()
	}

	return result
}

func filterNotServed(reqs []*model.Request, served []string) []*model.Request {
	servedSet := make(map[string]bool, len(served))
	for _, id := range served {
		servedSet[id] = true
	}
	var out []*model.Request
	for _, r := range reqs {
		if !servedSet[r.ReqID] {
			out = append(out, r)
		}
	}
	return out
}

// runRebalance attempts immediate insertion of hot pending requests onto
// idle vehicles, recording REBALANCE_ASSIGN events and appending to
// result.Served on success.
func (d *Dispatcher) runRebalance(
	ctx context.Context,
	vehicles []*model.VehicleState,
	pendingReqs []*model.Request,
	pendingState map[string]*model.PendingState,
	reqMap map[string]*model.Request,
	p *config.ServiceParams,
	current float64,
	result *Result,
) {
	var idle []*model.VehicleState
	for _, v := range vehicles {
		if len(v.Schedule) == 0 {
			idle = append(idle, v)
		}
	}
	if len(idle) == 0 || len(pendingReqs) == 0 {
		return
	}

	ri := make(map[string]int, len(pendingReqs))
	for _, r := range pendingReqs {
		if st, ok := pendingState[r.ReqID]; ok {
			ri[r.ReqID] = st.RetryIdx
		}
	}
	hot := rebalance.SelectHot(pendingReqs, ri, p.MaxRetries)
	pairs := rebalance.AssignIdleToHot(ctx, idle, hot, p, d.rc, 3, d.rng)

	vehByID := make(map[string]*model.VehicleState, len(vehicles))
	for _, v := range vehicles {
		vehByID[v.VehID] = v
	}

	for _, pr := range pairs {
		v := vehByID[pr.VehID]
		r := reqMap[pr.ReqID]
		if v == nil || r == nil {
			continue
		}
		st := pendingState[pr.ReqID]
		effP := pending.EffParams(p, st.RetryIdx)

		dec := insertion.BestInsertionForVehicle(ctx, r, v, effP, d.rc, current, nil)
		if dec == nil {
			continue
		}
		rr, ok := d.guard.Apply(ctx, v, dec, current, reqMap, effP.PickupLateSec, p, d.rc)
		if !ok {
			continue
		}
		result.Reroutes = append(result.Reroutes, *rr)
		result.Events = append(result.Events, d.emit(model.Event{
			T: int64(current), Type: "REBALANCE_ASSIGN", VehID: v.VehID, ReqID: r.ReqID,
		})...)
		result.Served = append(result.Served, r.ReqID)
		result.Attempts[r.ReqID] = model.AttemptRecord{Attempt: st.RetryIdx + 1, FinalStatus: "served"}
		obs.RebalanceAssigned.Inc()
	}
}

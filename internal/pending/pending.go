// Copyright 2025 James Ross
// Package pending is the per-request retry/relaxation state machine: each
// admitted request gets an absolute-time deadline and a set of relaxed
// constraints that loosen (within a configured cap) every time it times out
// without being assigned, until it either gets assigned, exhausts its retry
// budget and is rejected, or is picked up by reactive rebalance.
package pending

import (
	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

// EffParams returns a copy of base with detour_ratio_max and pickup_late_sec
// relaxed in proportion to retries, each capped independently, matching the
// source's per-retry detour and wait bonuses.
func EffParams(base *config.ServiceParams, retries int) *config.ServiceParams {
	if retries <= 0 {
		return base
	}
	eff := *base

	stepDetour := base.DetourBonusPerRetry * float64(retries)
	effDetour := base.DetourRatioMax + stepDetour
	if base.DetourBonusCap > 0 && effDetour > base.DetourBonusCap {
		effDetour = base.DetourBonusCap
	}
	eff.DetourRatioMax = effDetour

	addLate := base.WaitBonusPerRetrySec * float64(retries)
	if addLate > base.WaitBonusCapSec {
		addLate = base.WaitBonusCapSec
	}
	eff.PickupLateSec = base.PickupLateSec + addLate

	return &eff
}

// NewState initializes the absolute-time retry bookkeeping for a freshly
// admitted request.
func NewState(req *model.Request, base *config.ServiceParams) model.PendingState {
	return model.PendingState{
		RetryIdx: 0,
		LateEff:  base.PickupLateSec,
		Deadline: req.TRequest + base.PickupLateSec,
	}
}

// Advance applies one timeout step to st: if the retry budget is not
// exhausted, it bumps RetryIdx, relaxes LateEff/Deadline, and reports
// shouldRetry=true; otherwise it reports shouldRetry=false, meaning the
// request must be rejected.
func Advance(st *model.PendingState, req *model.Request, base *config.ServiceParams, maxRetries int) (shouldRetry bool) {
	if st.RetryIdx >= maxRetries {
		return false
	}
	st.RetryIdx++
	add := base.WaitBonusPerRetrySec * float64(st.RetryIdx)
	if add > base.WaitBonusCapSec {
		add = base.WaitBonusCapSec
	}
	st.LateEff = base.PickupLateSec + add
	st.Deadline = req.TRequest + st.LateEff
	return true
}

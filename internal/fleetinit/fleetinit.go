// Copyright 2025 James Ross
// Package fleetinit places a fleet of vehicles at their tick-zero positions,
// either uniformly at random within a configured bounding box or scattered
// around the origins of the admitted request set.
package fleetinit

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

// fleetNamespace seeds deterministic per-run vehicle ids: the same seed and
// fleet size always produce the same id for the same vehicle index.
var fleetNamespace = uuid.MustParse("6f6d1b0a-6e6f-4f2a-9b8a-9d1f2c3a4b5c")

func vehID(seed int64, i int) string {
	name := fmt.Sprintf("%d-%d", seed, i)
	return uuid.NewSHA1(fleetNamespace, []byte(name)).String()
}

// PlaceUniform scatters fleetSize vehicles uniformly at random within cfg's
// bounding box, deterministic for a given seed.
func PlaceUniform(cfg *config.Fleet, fleetSize int) []*model.VehicleState {
	rng := rand.New(rand.NewSource(cfg.Seed))
	vehicles := make([]*model.VehicleState, fleetSize)
	for i := 0; i < fleetSize; i++ {
		lon := cfg.LonMin + rng.Float64()*(cfg.LonMax-cfg.LonMin)
		lat := cfg.LatMin + rng.Float64()*(cfg.LatMax-cfg.LatMin)
		vehicles[i] = &model.VehicleState{
			VehID: vehID(cfg.Seed, i),
			Lon:   lon,
			Lat:   lat,
		}
	}
	return vehicles
}

// PlaceFromRequestSpread scatters fleetSize vehicles around the origins of
// requests, each jittered by up to jitterDeg in each axis, falling back to
// PlaceUniform when requests is empty.
func PlaceFromRequestSpread(cfg *config.Fleet, requests []*model.Request, fleetSize int, jitterDeg float64) []*model.VehicleState {
	if len(requests) == 0 {
		return PlaceUniform(cfg, fleetSize)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	vehicles := make([]*model.VehicleState, fleetSize)
	for i := 0; i < fleetSize; i++ {
		base := requests[rng.Intn(len(requests))]
		lon := base.OLon + (rng.Float64()*2-1)*jitterDeg
		lat := base.OLat + (rng.Float64()*2-1)*jitterDeg
		vehicles[i] = &model.VehicleState{
			VehID: vehID(cfg.Seed, i),
			Lon:   lon,
			Lat:   lat,
		}
	}
	return vehicles
}

// Place dispatches to PlaceFromRequestSpread or PlaceUniform per
// cfg.FromRequestSpread.
func Place(cfg *config.Fleet, requests []*model.Request, fleetSize int) []*model.VehicleState {
	if cfg.FromRequestSpread {
		return PlaceFromRequestSpread(cfg, requests, fleetSize, 0.005)
	}
	return PlaceUniform(cfg, fleetSize)
}

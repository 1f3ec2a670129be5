// Copyright 2025 James Ross
// Package advancer simulates vehicle motion over one tick's worth of wall
// time, consuming schedule stops as they are reached, emitting a Move record
// per leg (full or partially traveled) and an Event record per
// pickup/dropoff, and leaving each vehicle positioned either mid-leg or idle
// at the end of the tick.
package advancer

import (
	"context"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/geo"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
	"github.com/camuslab/dynamic-wirye-drt/internal/routing"
)

// Move is one leg of vehicle motion, full or partial, for the moves.json
// output stream.
type Move struct {
	VehID   string
	TStart  int64
	TEnd    int64
	Lon1    float64
	Lat1    float64
	Lon2    float64
	Lat2    float64
	Partial bool
	Load    int
}

// Event is one pickup/dropoff occurrence for the events.json output stream.
// VehID is always set here; ASSIGN/REJECT/REBALANCE_ASSIGN events are
// appended by the dispatcher itself, not the advancer.
type Event struct {
	T     int64
	Type  string // PICKUP | DROPOFF
	VehID string
	ReqID string
	Lon   float64
	Lat   float64
}

func segmentSeconds(ctx context.Context, oLon, oLat, dLon, dLat float64, p *config.ServiceParams, rc *routing.Client) float64 {
	if p.UseOSRM && rc != nil {
		return rc.OnewayDuration(ctx, oLon, oLat, dLon, dLat)
	}
	return geo.StraightLineSeconds(oLon, oLat, dLon, dLat, p.AvgSpeedKmh)
}

// Advance moves every vehicle forward by dt seconds of tick time, starting at
// absolute time now, consuming as many schedule stops as fit in dt, each
// charging ServiceTimeSec dwell on arrival. It returns the moves and events
// generated across all vehicles, in vehicle-then-chronological order.
func Advance(ctx context.Context, vehicles []*model.VehicleState, dt float64, p *config.ServiceParams, rc *routing.Client, now float64) ([]Move, []Event) {
	var moves []Move
	var events []Event

	for _, v := range vehicles {
		remain := dt
		for remain > 0 && len(v.Schedule) > 0 {
			startLon, startLat := v.Lon, v.Lat
			dest := v.Schedule[0]
			travel := segmentSeconds(ctx, startLon, startLat, dest.Lon, dest.Lat, p, rc)

			if travel > remain {
				var newLon, newLat float64
				var coords [][2]float64
				var cum []float64
				if p.UseOSRM && rc != nil {
					r := rc.LegDurations(ctx, startLon, startLat, dest.Lon, dest.Lat)
					newLon, newLat = rc.ProgressPoint(ctx, startLon, startLat, dest.Lon, dest.Lat, remain)
					coords, cum = r.Coords, r.CumDurs
				} else {
					frac := remain / maxFloat(1e-9, travel)
					if frac < 0 {
						frac = 0
					}
					if frac > 1 {
						frac = 1
					}
					newLon = startLon + (dest.Lon-startLon)*frac
					newLat = startLat + (dest.Lat-startLat)*frac
					coords = [][2]float64{{startLon, startLat}, {dest.Lon, dest.Lat}}
					cum = []float64{0, travel}
				}
				v.ActiveCoords = coords
				v.ActiveTimestamps = cum
				v.ActiveElapsed = remain

				moves = append(moves, Move{
					VehID:   v.VehID,
					TStart:  int64(now + (dt - remain)),
					TEnd:    int64(now + dt),
					Lon1:    startLon,
					Lat1:    startLat,
					Lon2:    newLon,
					Lat2:    newLat,
					Partial: true,
					Load:    len(v.Onboard),
				})

				v.Lon, v.Lat = newLon, newLat
				v.TAvail += remain
				remain = 0
				break
			}

			moves = append(moves, Move{
				VehID:   v.VehID,
				TStart:  int64(now + (dt - remain)),
				TEnd:    int64(now + (dt - remain) + travel),
				Lon1:    startLon,
				Lat1:    startLat,
				Lon2:    dest.Lon,
				Lat2:    dest.Lat,
				Partial: false,
				Load:    len(v.Onboard),
			})
			v.TAvail += travel
			remain -= travel

			v.TAvail += p.ServiceTimeSec
			remain -= p.ServiceTimeSec

			stop := v.Schedule[0]
			v.Schedule = v.Schedule[1:]
			v.Lon, v.Lat = stop.Lon, stop.Lat
			v.ClearActivePath()

			if stop.Kind == model.Rebalance {
				continue
			}

			evType := "PICKUP"
			if stop.Kind == model.Dropoff {
				evType = "DROPOFF"
			}
			events = append(events, Event{
				T: int64(now + (dt - maxFloat(0, remain))), Type: evType,
				VehID: v.VehID, ReqID: stop.ReqID, Lon: v.Lon, Lat: v.Lat,
			})

			if stop.Kind == model.Pickup {
				if !v.HasOnboard(stop.ReqID) {
					v.Onboard = append(v.Onboard, stop.ReqID)
				}
			} else {
				v.RemoveOnboard(stop.ReqID)
			}
		}

		if remain > 0 {
			v.TAvail += remain
		}
	}

	return moves, events
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

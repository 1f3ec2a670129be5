// Copyright 2025 James Ross
// Package geo holds the planar-approximation distance and straight-line-time
// fallbacks used whenever the routing oracle is disabled or unreachable.
package geo

import "math"

// PlanarMeters approximates lon/lat distance in meters using a local
// equirectangular projection; adequate at city scale, not for long hauls.
func PlanarMeters(lon1, lat1, lon2, lat2 float64) float64 {
	dx := (lon2 - lon1) * 90000.0
	dy := (lat2 - lat1) * 111000.0
	return math.Hypot(dx, dy)
}

// WeightedPlanarMeters is PlanarMeters with a latitude-corrected longitude
// scale, used for candidate-vehicle distance scoring where more accuracy at
// varying latitudes matters.
func WeightedPlanarMeters(lon1, lat1, lon2, lat2 float64) float64 {
	dx := (lon1 - lon2) * 111320 * math.Cos(deg2rad((lat1+lat2)/2.0))
	dy := (lat1 - lat2) * 110540
	return math.Hypot(dx, dy)
}

// HaversineMeters computes great-circle distance in meters.
func HaversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	const r = 6371000.0
	p1, p2 := deg2rad(lat1), deg2rad(lat2)
	dphi := p2 - p1
	dl := deg2rad(lon2 - lon1)
	a := math.Sin(dphi/2)*math.Sin(dphi/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * r * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func deg2rad(d float64) float64 { return d * math.Pi / 180.0 }

// StraightLineSeconds approximates travel time as haversine distance over
// avgSpeedKmh, used as the oracle fallback and as the OD denominator for
// detour ratio when routing is disabled.
func StraightLineSeconds(lon1, lat1, lon2, lat2, avgSpeedKmh float64) float64 {
	dM := HaversineMeters(lon1, lat1, lon2, lat2)
	vMps := math.Max(0.1, avgSpeedKmh/3.6)
	return dM / vMps
}

// InterpOnPolyline returns the point at fraction frac (clamped to [0,1]) of
// the cumulative length of line, measured in meters via PlanarMeters.
func InterpOnPolyline(line [][2]float64, frac float64) (float64, float64) {
	if len(line) == 0 {
		return 0, 0
	}
	if len(line) == 1 {
		return line[0][0], line[0][1]
	}
	frac = math.Max(0, math.Min(1, frac))

	segLen := make([]float64, len(line)-1)
	total := 0.0
	for i := 0; i < len(line)-1; i++ {
		d := PlanarMeters(line[i][0], line[i][1], line[i+1][0], line[i+1][1])
		segLen[i] = d
		total += d
	}
	if total <= 0 {
		return line[0][0], line[0][1]
	}
	target := total * frac
	run := 0.0
	for i, d := range segLen {
		if run+d >= target {
			l1, l2 := line[i], line[i+1]
			if d <= 0 {
				return l2[0], l2[1]
			}
			r := (target - run) / d
			return l1[0] + (l2[0]-l1[0])*r, l1[1] + (l2[1]-l1[1])*r
		}
		run += d
	}
	last := line[len(line)-1]
	return last[0], last[1]
}

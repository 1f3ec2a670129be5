// Copyright 2025 James Ross
// Package routing adapts an OSRM-compatible HTTP routing service into the
// oneway-duration / leg-duration / progress-point oracle the dispatcher needs,
// falling back to straight-line time whenever the oracle is disabled, times
// out, or returns no usable route.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/geo"
	"github.com/camuslab/dynamic-wirye-drt/internal/obs"
	"github.com/camuslab/dynamic-wirye-drt/internal/ratelimit"
	"go.uber.org/zap"
)

// Route is the enriched route/v1 response: the geometry coordinates, the
// per-leg duration annotations, their running cumulative sum, and the total
// duration OSRM reports for the route (or derived from the cumulative sum
// when OSRM omits it).
type Route struct {
	Coords  [][2]float64
	SegDurs []float64
	CumDurs []float64
	TotalOK bool
	Total   float64
}

// Client is the routing oracle. Zero value is not usable; build with New.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	profile     string
	avgSpeedKmh float64
	useOSRM     bool

	limiter *ratelimit.Limiter
	log     *zap.Logger

	cache   Cache
	warned  sync.Map // cache key -> struct{}, one oracle-failure warning per key per run
}

// New builds a Client from the dispatch params and oracle operational knobs.
// cache may be nil, in which case an in-memory cache is used when
// cfg.Oracle.CacheEnabled, or no caching at all otherwise.
func New(cfg *config.Config, cache Cache, log *zap.Logger) *Client {
	if cache == nil && cfg.Oracle.CacheEnabled {
		cache = NewMemoryCache()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Oracle.RequestTimeout},
		baseURL:     strings.TrimRight(cfg.Params.OSRMBaseURL, "/"),
		profile:     cfg.Params.OSRMProfile,
		avgSpeedKmh: cfg.Params.AvgSpeedKmh,
		useOSRM:     cfg.Params.UseOSRM,
		limiter:     ratelimit.New(cfg.Oracle.RatePerSec, cfg.Oracle.RateBurst),
		log:         log,
		cache:       cache,
	}
}

func cacheKey(oLon, oLat, dLon, dLat float64) string {
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f", oLon, oLat, dLon, dLat)
}

// routeFull fetches (or reads from cache) the enriched route between two
// points, falling back to a synthetic straight-line route on any failure.
func (c *Client) routeFull(ctx context.Context, oLon, oLat, dLon, dLat float64) Route {
	key := cacheKey(oLon, oLat, dLon, dLat)
	if c.cache != nil {
		if r, ok := c.cache.Get(key); ok {
			return r
		}
	}

	if !c.useOSRM {
		return c.storeAndReturn(key, c.straightLineRoute(oLon, oLat, dLon, dLat))
	}

	r, err := c.fetchRoute(ctx, oLon, oLat, dLon, dLat)
	if err != nil {
		c.warnOnce(key, err)
		obs.OracleFailures.Inc()
		return c.storeAndReturn(key, c.straightLineRoute(oLon, oLat, dLon, dLat))
	}
	return c.storeAndReturn(key, r)
}

func (c *Client) storeAndReturn(key string, r Route) Route {
	if c.cache != nil {
		c.cache.Put(key, r)
	}
	return r
}

func (c *Client) straightLineRoute(oLon, oLat, dLon, dLat float64) Route {
	total := geo.StraightLineSeconds(oLon, oLat, dLon, dLat, c.avgSpeedKmh)
	return Route{
		Coords:  [][2]float64{{oLon, oLat}, {dLon, dLat}},
		SegDurs: []float64{total},
		CumDurs: []float64{0, total},
		TotalOK: true,
		Total:   total,
	}
}

func (c *Client) warnOnce(key string, err error) {
	if _, loaded := c.warned.LoadOrStore(key, struct{}{}); !loaded {
		c.log.Warn("routing oracle failure, falling back to straight-line time",
			obs.String("cache_key", key), obs.Err(err))
	}
}

type osrmResponse struct {
	Routes []struct {
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Legs []struct {
			Annotation struct {
				Duration []float64 `json:"duration"`
			} `json:"annotation"`
		} `json:"legs"`
	} `json:"routes"`
}

func (c *Client) fetchRoute(ctx context.Context, oLon, oLat, dLon, dLat float64) (Route, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Route{}, err
	}

	ctx, span := obs.StartOracleSpan(ctx, "route_full")
	defer span.End()

	coordPath := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", oLon, oLat, dLon, dLat)
	u := fmt.Sprintf("%s/route/v1/%s/%s", c.baseURL, c.profile, coordPath)
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("steps", "true")
	q.Set("annotations", "duration")
	q.Set("geometries", "geojson")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		obs.RecordError(ctx, err)
		return Route{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		obs.RecordError(ctx, err)
		return Route{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("osrm route request returned status %d", resp.StatusCode)
		obs.RecordError(ctx, err)
		return Route{}, err
	}

	var parsed osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		obs.RecordError(ctx, err)
		return Route{}, err
	}
	if len(parsed.Routes) == 0 {
		err := fmt.Errorf("osrm response contained no routes")
		obs.RecordError(ctx, err)
		return Route{}, err
	}

	route := parsed.Routes[0]
	coords := route.Geometry.Coordinates
	if len(coords) == 0 {
		coords = [][2]float64{{oLon, oLat}, {dLon, dLat}}
	}

	var segDurs []float64
	for _, leg := range route.Legs {
		segDurs = append(segDurs, leg.Annotation.Duration...)
	}
	if len(segDurs) == 0 {
		n := len(coords) - 1
		if n < 1 {
			n = 1
		}
		per := 0.0
		if route.Duration > 0 {
			per = route.Duration / float64(n)
		}
		segDurs = make([]float64, n)
		for i := range segDurs {
			segDurs[i] = per
		}
	}

	cum := make([]float64, len(segDurs)+1)
	acc := 0.0
	for i, d := range segDurs {
		acc += d
		cum[i+1] = acc
	}

	total := route.Duration
	if total <= 0 {
		total = cum[len(cum)-1]
	}

	obs.SetSpanSuccess(ctx)
	return Route{Coords: coords, SegDurs: segDurs, CumDurs: cum, TotalOK: true, Total: total}, nil
}

// OnewayDuration returns the shortest OD travel time in seconds, used as the
// denominator of the detour ratio.
func (c *Client) OnewayDuration(ctx context.Context, oLon, oLat, dLon, dLat float64) float64 {
	return c.routeFull(ctx, oLon, oLat, dLon, dLat).Total
}

// LegDurations returns the OD route's per-segment durations and its
// cumulative-time geometry, for progress interpolation along a partly
// traveled leg.
func (c *Client) LegDurations(ctx context.Context, oLon, oLat, dLon, dLat float64) Route {
	return c.routeFull(ctx, oLon, oLat, dLon, dLat)
}

// ProgressPoint returns the point elapsedSec into the OD route, clamped to
// the route's bounds, linearly interpolated between the bracketing vertices.
func (c *Client) ProgressPoint(ctx context.Context, oLon, oLat, dLon, dLat, elapsedSec float64) (float64, float64) {
	r := c.routeFull(ctx, oLon, oLat, dLon, dLat)
	if len(r.Coords) < 2 {
		return dLon, dLat
	}
	total := r.CumDurs[len(r.CumDurs)-1]
	want := elapsedSec
	if want < 0 {
		want = 0
	}
	if want > total {
		want = total
	}

	i := bisectRight(r.CumDurs, want) - 1
	if i < 0 {
		i = 0
	}
	if i > len(r.Coords)-2 {
		i = len(r.Coords) - 2
	}
	t0, t1 := r.CumDurs[i], r.CumDurs[i+1]
	ratio := 0.0
	if t1-t0 > 0 {
		ratio = (want - t0) / (t1 - t0)
	}
	x1, y1 := r.Coords[i][0], r.Coords[i][1]
	x2, y2 := r.Coords[i+1][0], r.Coords[i+1][1]
	return x1 + (x2-x1)*ratio, y1 + (y2-y1)*ratio
}

// bisectRight mirrors Python's bisect.bisect_right for a sorted ascending slice.
func bisectRight(a []float64, x float64) int {
	lo, hi := 0, len(a)
	for lo < hi {
		mid := (lo + hi) / 2
		if x < a[mid] {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Copyright 2025 James Ross
package routing

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"go.uber.org/zap"
)

func testConfig(baseURL string, useOSRM bool) *config.Config {
	cfg := &config.Config{}
	cfg.Params.UseOSRM = useOSRM
	cfg.Params.OSRMBaseURL = baseURL
	cfg.Params.OSRMProfile = "driving"
	cfg.Params.AvgSpeedKmh = 30
	cfg.Oracle.RequestTimeout = 2 * time.Second
	cfg.Oracle.CacheEnabled = true
	cfg.Oracle.RatePerSec = 0
	return cfg
}

func TestOnewayDurationStraightLineFallbackWhenDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", false)
	c := New(cfg, nil, zap.NewNop())
	d := c.OnewayDuration(context.Background(), 127.10, 37.50, 127.11, 37.51)
	if d <= 0 {
		t.Fatalf("expected positive straight-line duration, got %v", d)
	}
}

func TestOnewayDurationFallsBackOnOracleError(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0", true) // nothing listening
	cfg.Oracle.RequestTimeout = 200 * time.Millisecond
	c := New(cfg, nil, zap.NewNop())
	d := c.OnewayDuration(context.Background(), 127.10, 37.50, 127.11, 37.51)
	if d <= 0 {
		t.Fatalf("expected fallback straight-line duration, got %v", d)
	}
}

func TestFetchRouteParsesOSRMResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"routes":[{"duration":120,"geometry":{"coordinates":[[127.10,37.50],[127.105,37.505],[127.11,37.51]]},"legs":[{"annotation":{"duration":[60,60]}}]}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, true)
	c := New(cfg, nil, zap.NewNop())
	r := c.LegDurations(context.Background(), 127.10, 37.50, 127.11, 37.51)
	if !r.TotalOK || r.Total != 120 {
		t.Fatalf("expected total 120, got %+v", r)
	}
	if len(r.CumDurs) != 3 || r.CumDurs[2] != 120 {
		t.Fatalf("unexpected cumulative durations: %v", r.CumDurs)
	}
}

func TestProgressPointMidpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routes":[{"duration":100,"geometry":{"coordinates":[[0,0],[1,1]]},"legs":[{"annotation":{"duration":[100]}}]}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, true)
	c := New(cfg, nil, zap.NewNop())
	lon, lat := c.ProgressPoint(context.Background(), 0, 0, 1, 1, 50)
	if math.Abs(lon-0.5) > 1e-9 || math.Abs(lat-0.5) > 1e-9 {
		t.Fatalf("expected midpoint (0.5,0.5), got (%v,%v)", lon, lat)
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	r := Route{Coords: [][2]float64{{0, 0}, {1, 1}}, Total: 42}
	c.Put("k", r)
	got, ok := c.Get("k")
	if !ok || got.Total != 42 {
		t.Fatalf("expected cached route with total 42, got %+v ok=%v", got, ok)
	}
}

func TestBisectRight(t *testing.T) {
	a := []float64{0, 10, 20, 30}
	cases := map[float64]int{-1: 0, 0: 1, 5: 1, 10: 2, 25: 3, 30: 4, 100: 4}
	for x, want := range cases {
		if got := bisectRight(a, x); got != want {
			t.Fatalf("bisectRight(%v, %v) = %d, want %d", a, x, got, want)
		}
	}
}

// Copyright 2025 James Ross
package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

func TestMapColumnsExactMatch(t *testing.T) {
	cols, err := mapColumns([]string{"req_id", "t_request", "o_lon", "o_lat", "d_lon", "d_lat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.id != "req_id" || cols.t != "t_request" {
		t.Fatalf("expected exact matches, got %+v", cols)
	}
}

func TestMapColumnsExactMatchAlternateNames(t *testing.T) {
	cols, err := mapColumns([]string{"PULongitude", "PULatitude", "DOLongitude", "DOLatitude", "pickup_ts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.oLon != "PULongitude" || cols.oLat != "PULatitude" {
		t.Fatalf("expected exact match on alternate candidate names, got %+v", cols)
	}
}

func TestMapColumnsMissingRequiredReturnsError(t *testing.T) {
	_, err := mapColumns([]string{"some_unrelated_col"})
	if err == nil {
		t.Fatal("expected an error when no required columns can be mapped")
	}
}

func TestRescaleToSecondsDetectsMilliseconds(t *testing.T) {
	reqs := []*model.Request{
		{TRequest: 500_000_000_000},
		{TRequest: 500_000_060_000},
	}
	rescaleToSeconds(reqs)
	if reqs[0].TRequest != 500_000_000 {
		t.Fatalf("expected ms rescaled to seconds, got %v", reqs[0].TRequest)
	}
}

func TestRescaleToSecondsLeavesSecondsUnchanged(t *testing.T) {
	reqs := []*model.Request{{TRequest: 25200}, {TRequest: 32400}}
	rescaleToSeconds(reqs)
	if reqs[0].TRequest != 25200 {
		t.Fatalf("expected relative-seconds values untouched, got %v", reqs[0].TRequest)
	}
}

func TestFilterWindow(t *testing.T) {
	reqs := []*model.Request{{ReqID: "a", TRequest: 5}, {ReqID: "b", TRequest: 15}, {ReqID: "c", TRequest: 25}}
	start, end := 10.0, 20.0
	out := filterWindow(reqs, &start, &end)
	if len(out) != 1 || out[0].ReqID != "b" {
		t.Fatalf("expected only 'b' within [10,20), got %+v", out)
	}
}

func TestApplySamplingHeadWhenNotRandom(t *testing.T) {
	reqs := []*model.Request{{TRequest: 1}, {TRequest: 2}, {TRequest: 3}}
	n := 2
	out := applySampling(reqs, config.Ingest{LimitN: &n})
	if len(out) != 2 || out[0].TRequest != 1 {
		t.Fatalf("expected first 2 by time order, got %+v", out)
	}
}

func TestApplySamplingRandomIsSeeded(t *testing.T) {
	reqs := []*model.Request{{TRequest: 1}, {TRequest: 2}, {TRequest: 3}, {TRequest: 4}}
	n := 2
	seed := int64(7)
	cfg := config.Ingest{LimitN: &n, LimitRandom: true, LimitSeed: &seed}

	out1 := applySampling(reqs, cfg)
	out2 := applySampling(reqs, cfg)
	if len(out1) != 2 || len(out2) != 2 {
		t.Fatalf("expected 2 sampled requests each call, got %d / %d", len(out1), len(out2))
	}
	if out1[0].TRequest != out2[0].TRequest || out1[1].TRequest != out2[1].TRequest {
		t.Fatalf("same seed must produce the same sample: %+v vs %+v", out1, out2)
	}
}

func TestDiscoverShardsRespectsIncludeExclude(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.parquet"), "x")
	mustWrite(t, filepath.Join(dir, "a.tmp"), "x")
	mustWrite(t, filepath.Join(dir, "sub", "b.parquet"), "x")

	l := &Loader{cfg: &config.Config{Ingest: config.Ingest{
		Path:         dir,
		IncludeGlobs: []string{"**/*.parquet"},
		ExcludeGlobs: []string{"**/*.tmp"},
	}}}

	shards, err := l.discoverShards()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shards) != 2 {
		t.Fatalf("expected 2 parquet shards discovered, got %+v", shards)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

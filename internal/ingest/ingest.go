// Copyright 2025 James Ross
// Package ingest loads ride requests from one or more parquet shards,
// auto-mapping each required field to whichever column name the source data
// happens to use, rescaling request timestamps to seconds, applying the
// simulation time window, and optionally subsampling the result.
package ingest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

// fuzzyMatchThreshold is how close (in Levenshtein distance) a column name
// must be to a candidate before the fuzzy fallback accepts it.
const fuzzyMatchThreshold = 3

var (
	idCandidates = []string{"KEY1", "req_id", "id", "request_id", "ride_id", "trip_id"}
	tCandidates  = []string{
		"t_request", "t_pick", "pickup_ts", "request_ts",
		"timestamp", "ts", "call_time", "req_time", "requested_at",
	}
	oLonCandidates = []string{
		"o_lon", "pickup_lon", "start_lon", "lon_o",
		"origin_lon", "orig_lon", "O_LON", "o_lng", "pulon", "PULongitude",
	}
	oLatCandidates = []string{
		"o_lat", "pickup_lat", "start_lat", "lat_o",
		"origin_lat", "orig_lat", "O_LAT", "o_latitude", "pulat", "PULatitude",
	}
	dLonCandidates = []string{
		"d_lon", "dropoff_lon", "end_lon", "lon_d",
		"dest_lon", "dst_lon", "D_LON", "d_lng", "dolon", "DOLongitude",
	}
	dLatCandidates = []string{
		"d_lat", "dropoff_lat", "end_lat", "lat_d",
		"dest_lat", "dst_lat", "D_LAT", "d_latitude", "dolat", "DOLatitude",
	}
)

// Loader discovers and reads parquet request shards under one root directory.
type Loader struct {
	cfg *config.Config
	log *zap.Logger
}

// New builds a Loader bound to cfg.Ingest.
func New(cfg *config.Config, log *zap.Logger) *Loader {
	return &Loader{cfg: cfg, log: log}
}

// columnSet names, per required field, the column actually present in a shard.
type columnSet struct {
	id, t, oLon, oLat, dLon, dLat string
}

// Load discovers every shard under cfg.Ingest.Path matching IncludeGlobs and
// not ExcludeGlobs, reads and column-maps each, rescales timestamps, applies
// the [SimStartSec, SimEndSec) window, sorts ascending by TRequest, and
// applies LimitN sampling.
func (l *Loader) Load(ctx context.Context) ([]*model.Request, error) {
	shards, err := l.discoverShards()
	if err != nil {
		return nil, fmt.Errorf("ingest: discover shards: %w", err)
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("ingest: no parquet shards found under %q", l.cfg.Ingest.Path)
	}

	var reqs []*model.Request
	rowIdx := 0
	for _, path := range shards {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		shardReqs, next, err := l.loadShard(path, rowIdx)
		if err != nil {
			return nil, fmt.Errorf("ingest: %s: %w", path, err)
		}
		rowIdx = next
		reqs = append(reqs, shardReqs...)
		l.log.Info("ingest: loaded shard", zap.String("path", path), zap.Int("rows", len(shardReqs)))
	}

	rescaleToSeconds(reqs)
	reqs = filterWindow(reqs, l.cfg.Ingest.SimStartSec, l.cfg.Ingest.SimEndSec)

	sort.Slice(reqs, func(i, j int) bool { return reqs[i].TRequest < reqs[j].TRequest })

	reqs = applySampling(reqs, l.cfg.Ingest)
	return reqs, nil
}

func (l *Loader) discoverShards() ([]string, error) {
	root := l.cfg.Ingest.Path
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	include := l.cfg.Ingest.IncludeGlobs
	exclude := l.cfg.Ingest.ExcludeGlobs

	var shards []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		abs, err2 := filepath.Abs(path)
		if err2 != nil {
			return nil
		}
		if !strings.HasPrefix(abs, absRoot+string(os.PathSeparator)) && abs != absRoot {
			return nil
		}
		rel, _ := filepath.Rel(root, path)

		incMatch := len(include) == 0
		for _, g := range include {
			if ok, _ := doublestar.PathMatch(g, rel); ok {
				incMatch = true
				break
			}
		}
		if !incMatch {
			return nil
		}
		for _, g := range exclude {
			if ok, _ := doublestar.PathMatch(g, rel); ok {
				return nil
			}
		}
		shards = append(shards, path)
		return nil
	})
	sort.Strings(shards)
	return shards, err
}

// loadShard reads one shard's rows, starting the positional row-id fallback
// counter at startIdx, and returns the parsed requests plus the next shard's
// starting index.
func (l *Loader) loadShard(path string, startIdx int) ([]*model.Request, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, startIdx, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, startIdx, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, startIdx, err
	}

	fields := pf.Schema().Fields()
	names := make([]string, len(fields))
	for i, fld := range fields {
		names[i] = fld.Name()
	}

	cols, err := mapColumns(names)
	if err != nil {
		return nil, startIdx, err
	}

	idxOf := make(map[string]int, len(names))
	for i, n := range names {
		idxOf[n] = i
	}

	var out []*model.Request
	rowIdx := startIdx
	rowBuf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, rerr := rows.ReadRows(rowBuf)
			for i := 0; i < n; i++ {
				row := rowBuf[i]
				req, ok := rowToRequest(row, idxOf, cols, rowIdx)
				if ok {
					out = append(out, req)
				}
				rowIdx++
			}
			if rerr != nil {
				break
			}
		}
		rows.Close()
	}

	return out, rowIdx, nil
}

// mapColumns resolves every required field to a concrete column name,
// preferring an exact candidate-list hit and falling back to the closest
// fuzzy match among the shard's actual columns.
func mapColumns(available []string) (columnSet, error) {
	resolve := func(candidates []string) string {
		if name, ok := pickExact(available, candidates); ok {
			return name
		}
		if name, ok := pickFuzzy(available, candidates); ok {
			return name
		}
		return ""
	}

	cols := columnSet{
		id:   resolve(idCandidates),
		t:    resolve(tCandidates),
		oLon: resolve(oLonCandidates),
		oLat: resolve(oLatCandidates),
		dLon: resolve(dLonCandidates),
		dLat: resolve(dLatCandidates),
	}

	var missing []string
	if cols.t == "" {
		missing = append(missing, "t_request")
	}
	if cols.oLon == "" || cols.oLat == "" {
		missing = append(missing, "origin coordinates")
	}
	if cols.dLon == "" || cols.dLat == "" {
		missing = append(missing, "destination coordinates")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("could not map required columns (%s); available columns: %s",
			strings.Join(missing, ", "), strings.Join(available, ", "))
	}
	return cols, nil
}

func pickExact(available, candidates []string) (string, bool) {
	set := make(map[string]bool, len(available))
	for _, a := range available {
		set[a] = true
	}
	for _, c := range candidates {
		if set[c] {
			return c, true
		}
	}
	return "", false
}

func pickFuzzy(available, candidates []string) (string, bool) {
	best := ""
	bestDist := fuzzyMatchThreshold + 1
	for _, c := range candidates {
		ranks := fuzzy.RankFindNormalizedFold(c, available)
		for _, r := range ranks {
			if r.Distance < bestDist {
				bestDist = r.Distance
				best = r.Target
			}
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

func rowToRequest(row parquet.Row, idxOf map[string]int, cols columnSet, rowIdx int) (*model.Request, bool) {
	t, ok := floatAt(row, idxOf, cols.t)
	if !ok {
		return nil, false
	}
	oLon, ok := floatAt(row, idxOf, cols.oLon)
	if !ok {
		return nil, false
	}
	oLat, ok := floatAt(row, idxOf, cols.oLat)
	if !ok {
		return nil, false
	}
	dLon, ok := floatAt(row, idxOf, cols.dLon)
	if !ok {
		return nil, false
	}
	dLat, ok := floatAt(row, idxOf, cols.dLat)
	if !ok {
		return nil, false
	}

	id := stringAt(row, idxOf, cols.id)
	if id == "" {
		id = fmt.Sprintf("__RID__%d", rowIdx)
	}

	return &model.Request{
		ReqID:    id,
		TRequest: t,
		OLon:     oLon,
		OLat:     oLat,
		DLon:     dLon,
		DLat:     dLat,
	}, true
}

func floatAt(row parquet.Row, idxOf map[string]int, col string) (float64, bool) {
	idx, ok := idxOf[col]
	if !ok || idx >= len(row) {
		return 0, false
	}
	v := row[idx]
	if v.IsNull() {
		return 0, false
	}
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Int32:
		return float64(v.Int32()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.ByteArray, parquet.FixedLenByteArray:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringAt(row parquet.Row, idxOf map[string]int, col string) string {
	if col == "" {
		return ""
	}
	idx, ok := idxOf[col]
	if !ok || idx >= len(row) {
		return ""
	}
	v := row[idx]
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return v.String()
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	default:
		return v.String()
	}
}

// rescaleToSeconds converts TRequest to seconds in place when the column's
// median magnitude indicates milliseconds or microseconds, mirroring the
// source's epoch-unit auto-detection.
func rescaleToSeconds(reqs []*model.Request) {
	if len(reqs) == 0 {
		return
	}
	vals := make([]float64, len(reqs))
	for i, r := range reqs {
		vals[i] = r.TRequest
	}
	med := median(vals)
	if math.IsNaN(med) {
		return
	}

	var divisor float64 = 1
	switch {
	case med > 1e12:
		divisor = 1_000_000.0
	case med > 1e10:
		divisor = 1000.0
	}
	if divisor == 1 {
		return
	}
	for _, r := range reqs {
		r.TRequest /= divisor
	}
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func filterWindow(reqs []*model.Request, start, end *float64) []*model.Request {
	if start == nil && end == nil {
		return reqs
	}
	out := make([]*model.Request, 0, len(reqs))
	for _, r := range reqs {
		if start != nil && r.TRequest < *start {
			continue
		}
		if end != nil && r.TRequest >= *end {
			continue
		}
		out = append(out, r)
	}
	return out
}

func applySampling(reqs []*model.Request, cfg config.Ingest) []*model.Request {
	if cfg.LimitN == nil {
		return reqs
	}
	n := *cfg.LimitN
	if n <= 0 {
		return nil
	}
	if n >= len(reqs) {
		return reqs
	}
	if !cfg.LimitRandom {
		return reqs[:n]
	}

	seed := int64(42)
	if cfg.LimitSeed != nil {
		seed = *cfg.LimitSeed
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(reqs))[:n]
	picked := make([]*model.Request, n)
	for i, p := range idx {
		picked[i] = reqs[p]
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].TRequest < picked[j].TRequest })
	return picked
}

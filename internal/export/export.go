// Copyright 2025 James Ross
// Package export writes a completed dispatch run's six output streams as
// pretty-printed UTF-8 JSON files, optionally gzip-compressed for large runs.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/camuslab/dynamic-wirye-drt/internal/advancer"
	"github.com/camuslab/dynamic-wirye-drt/internal/commitguard"
	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/camuslab/dynamic-wirye-drt/internal/dispatch"
	"github.com/camuslab/dynamic-wirye-drt/internal/model"
)

// Writer serializes a dispatch.Result to the six named output streams under
// one directory.
type Writer struct {
	cfg *config.Config
	log *zap.Logger
}

// New builds a Writer bound to cfg.Output.
func New(cfg *config.Config, log *zap.Logger) *Writer {
	return &Writer{cfg: cfg, log: log}
}

type summaryDoc struct {
	Served   []string `json:"served"`
	Rejected []string `json:"rejected"`
}

type eventDoc struct {
	T       int64    `json:"t"`
	Type    string   `json:"type"`
	VehID   *string  `json:"veh_id"`
	ReqID   string   `json:"req_id"`
	Lon     *float64 `json:"lon,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Attempt int      `json:"attempt,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

type moveDoc struct {
	VehID   string  `json:"veh_id"`
	TStart  int64   `json:"t_start"`
	TEnd    int64   `json:"t_end"`
	Lon1    float64 `json:"lon1"`
	Lat1    float64 `json:"lat1"`
	Lon2    float64 `json:"lon2"`
	Lat2    float64 `json:"lat2"`
	Partial bool    `json:"partial"`
	Load    int     `json:"load"`
}

type trackPointDoc struct {
	T    int64   `json:"t"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Load int     `json:"load"`
}

type trackDoc struct {
	VehID  string          `json:"veh_id"`
	Points []trackPointDoc `json:"points"`
}

type stopDoc struct {
	Kind  string  `json:"kind"`
	ReqID string  `json:"req_id,omitempty"`
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
}

type rerouteDoc struct {
	T      float64   `json:"t"`
	VehID  string    `json:"veh_id"`
	Before []stopDoc `json:"before"`
	After  []stopDoc `json:"after"`
}

type attemptDoc struct {
	Attempt     int    `json:"attempt"`
	FinalStatus string `json:"final_status"`
}

// WriteAll writes summary.json, events.json, moves.json, tracks.json,
// reroutes.json, and attempts.json under cfg.Output.Dir. A per-stream write
// failure is logged as a warning and does not abort the remaining streams.
func (w *Writer) WriteAll(res *dispatch.Result) error {
	dir := w.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: create output dir: %w", err)
	}

	w.writeStream("summary.json", summaryDoc{Served: orEmpty(res.Served), Rejected: orEmpty(res.Rejected)})
	w.writeStream("events.json", eventDocs(res.Events))
	w.writeStream("moves.json", moveDocs(res.Moves))
	w.writeStream("tracks.json", trackDocs(res.Tracks))
	w.writeStream("reroutes.json", rerouteDocs(res.Reroutes))
	w.writeStream("attempts.json", attemptDocsMap(res.Attempts))

	return nil
}

func (w *Writer) writeStream(name string, v interface{}) {
	path := filepath.Join(w.cfg.Output.Dir, name)
	if w.cfg.Output.Gzip {
		path += ".gz"
	}
	if err := w.writeJSON(path, v); err != nil {
		w.log.Warn("export: write failed", zap.String("stream", name), zap.Error(err))
	}
}

func (w *Writer) writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder
	if !w.cfg.Output.Gzip {
		e := enc(f)
		e.SetIndent("", "  ")
		return e.Encode(v)
	}

	gw := gzip.NewWriter(f)
	defer gw.Close()
	e := enc(gw)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func eventDocs(events []model.Event) []eventDoc {
	out := make([]eventDoc, 0, len(events))
	for _, ev := range events {
		d := eventDoc{T: ev.T, Type: ev.Type, ReqID: ev.ReqID, Attempt: ev.Attempt, Reason: ev.Reason}
		if ev.VehID != "" {
			v := ev.VehID
			d.VehID = &v
		}
		if ev.HasLL {
			lon, lat := ev.Lon, ev.Lat
			d.Lon, d.Lat = &lon, &lat
		}
		out = append(out, d)
	}
	return out
}

func moveDocs(moves []advancer.Move) []moveDoc {
	out := make([]moveDoc, 0, len(moves))
	for _, m := range moves {
		out = append(out, moveDoc{
			VehID: m.VehID, TStart: m.TStart, TEnd: m.TEnd,
			Lon1: m.Lon1, Lat1: m.Lat1, Lon2: m.Lon2, Lat2: m.Lat2,
			Partial: m.Partial, Load: m.Load,
		})
	}
	return out
}

func trackDocs(tracks map[string][]model.TrackPoint) []trackDoc {
	vehIDs := make([]string, 0, len(tracks))
	for id := range tracks {
		vehIDs = append(vehIDs, id)
	}
	sort.Strings(vehIDs)

	out := make([]trackDoc, 0, len(vehIDs))
	for _, id := range vehIDs {
		points := tracks[id]
		pts := make([]trackPointDoc, 0, len(points))
		for _, p := range points {
			pts = append(pts, trackPointDoc{T: p.T, Lon: p.Lon, Lat: p.Lat, Load: p.Load})
		}
		out = append(out, trackDoc{VehID: id, Points: pts})
	}
	return out
}

func stopDocs(stops []model.Stop) []stopDoc {
	out := make([]stopDoc, 0, len(stops))
	for _, s := range stops {
		out = append(out, stopDoc{Kind: s.Kind.String(), ReqID: s.ReqID, Lon: s.Lon, Lat: s.Lat})
	}
	return out
}

func rerouteDocs(reroutes []commitguard.Reroute) []rerouteDoc {
	out := make([]rerouteDoc, 0, len(reroutes))
	for _, r := range reroutes {
		out = append(out, rerouteDoc{
			T: r.TAbs, VehID: r.VehID,
			Before: stopDocs(r.Before), After: stopDocs(r.After),
		})
	}
	return out
}

func attemptDocsMap(attempts map[string]model.AttemptRecord) map[string]attemptDoc {
	out := make(map[string]attemptDoc, len(attempts))
	for reqID, a := range attempts {
		out[reqID] = attemptDoc{Attempt: a.Attempt, FinalStatus: a.FinalStatus}
	}
	return out
}

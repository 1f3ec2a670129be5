// Copyright 2025 James Ross
// Package adminapi exposes a read-only HTTP view over a dispatch run in
// progress: GET /stats, GET /vehicles/{id}, and GET /pending. It is grounded
// on the teacher's internal/admin-api handler pattern (a struct wrapping
// whatever it introspects, RegisterRoutes(router *mux.Router), JSON
// responses written straight from the handler), adapted from Redis-queue
// stats to a single in-memory dispatch.Snapshot since a batch run has no
// external store to query.
package adminapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/camuslab/dynamic-wirye-drt/internal/dispatch"
)

// Store holds the most recent Snapshot published by a running Dispatcher.
// Update is safe to call from the dispatch goroutine while handlers read
// concurrently from HTTP goroutines.
type Store struct {
	mu   sync.RWMutex
	snap dispatch.Snapshot
	set  bool
}

// NewStore returns an empty Store. Pass store.Update as a Dispatcher's
// OnTick callback to keep it live.
func NewStore() *Store {
	return &Store{}
}

// Update records the latest snapshot. It implements the
// func(dispatch.Snapshot) signature expected by Dispatcher.OnTick.
func (s *Store) Update(snap dispatch.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.set = true
}

func (s *Store) current() (dispatch.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.set
}

// Handler serves the introspection routes over a Store.
type Handler struct {
	store *Store
	log   *zap.Logger
}

// New builds a Handler bound to store.
func New(store *Store, log *zap.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// RegisterRoutes wires the introspection endpoints onto router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/vehicles/{id}", h.GetVehicle).Methods("GET")
	router.HandleFunc("/pending", h.GetPending).Methods("GET")
}

type statsResponse struct {
	TickNo       int `json:"tick_no"`
	TAbs         int `json:"t_abs"`
	VehicleCount int `json:"vehicle_count"`
	IdleVehicles int `json:"idle_vehicles"`
	PendingCount int `json:"pending_count"`
	Served       int `json:"served"`
	Rejected     int `json:"rejected"`
}

// GetStats returns tick-level counters for the run in progress.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.store.current()
	if !ok {
		http.Error(w, "no run in progress", http.StatusServiceUnavailable)
		return
	}

	idle := 0
	for _, v := range snap.Vehicles {
		if len(v.Schedule) == 0 {
			idle++
		}
	}

	writeJSON(w, statsResponse{
		TickNo:       snap.TickNo,
		TAbs:         int(snap.TAbs),
		VehicleCount: len(snap.Vehicles),
		IdleVehicles: idle,
		PendingCount: len(snap.Pending),
		Served:       snap.Served,
		Rejected:     snap.Rejected,
	})
}

type stopView struct {
	Kind  string  `json:"kind"`
	ReqID string  `json:"req_id,omitempty"`
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
}

type vehicleResponse struct {
	VehID    string     `json:"veh_id"`
	Lon      float64    `json:"lon"`
	Lat      float64    `json:"lat"`
	TAvail   float64    `json:"t_avail"`
	Onboard  []string   `json:"onboard"`
	Schedule []stopView `json:"schedule"`
}

// GetVehicle returns the current state of one vehicle by id.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := h.store.current()
	if !ok {
		http.Error(w, "no run in progress", http.StatusServiceUnavailable)
		return
	}

	for _, v := range snap.Vehicles {
		if v.VehID != id {
			continue
		}
		sched := make([]stopView, 0, len(v.Schedule))
		for _, s := range v.Schedule {
			sched = append(sched, stopView{Kind: s.Kind.String(), ReqID: s.ReqID, Lon: s.Lon, Lat: s.Lat})
		}
		writeJSON(w, vehicleResponse{
			VehID:    v.VehID,
			Lon:      v.Lon,
			Lat:      v.Lat,
			TAvail:   v.TAvail,
			Onboard:  orEmptyStrings(v.Onboard),
			Schedule: sched,
		})
		return
	}
	http.Error(w, "vehicle not found", http.StatusNotFound)
}

type pendingEntry struct {
	ReqID    string `json:"req_id"`
	RetryIdx int    `json:"retry_idx"`
}

// GetPending lists every request currently awaiting assignment.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.store.current()
	if !ok {
		http.Error(w, "no run in progress", http.StatusServiceUnavailable)
		return
	}

	out := make([]pendingEntry, 0, len(snap.Pending))
	for _, req := range snap.Pending {
		out = append(out, pendingEntry{ReqID: req.ReqID, RetryIdx: snap.PendingRet[req.ReqID]})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func orEmptyStrings(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package httpapi wires the ingestion endpoint, the buffer-status
// probe, and the five read contracts onto a net/http.ServeMux. It
// exists so the module is runnable end to end, not as a fully
// specified product surface (spec §4.5): request parsing here is
// deliberately thin.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/analytics"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/ingest"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
)

// Depther reports the current depth of both per-class buffers. It is
// satisfied by *buffer.Coordinator.
type Depther interface {
	Depths() (vehicles, meters int)
}

// Server bundles the dependencies needed to answer every HTTP route.
type Server struct {
	dispatcher *ingest.Dispatcher
	reader     *analytics.Reader
	depths     Depther
	now        func() time.Time
}

// NewServer constructs a Server over the given dispatcher, reader, and
// buffer-depth source.
func NewServer(dispatcher *ingest.Dispatcher, reader *analytics.Reader, depths Depther) *Server {
	return &Server{dispatcher: dispatcher, reader: reader, depths: depths, now: time.Now}
}

// Handler builds the routed mux. Separated from NewServer so tests can
// construct a Server once and mount it under different prefixes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/telemetry", s.handleIngest)
	mux.HandleFunc("/v1/buffer-status", s.handleBufferStatus)
	mux.HandleFunc("/v1/live", s.handleLiveStatus)
	mux.HandleFunc("/v1/history", s.handleHistoryRange)
	mux.HandleFunc("/v1/fleet-summary", s.handleFleetSummary)
	mux.HandleFunc("/v1/last-24h", s.handleLast24h)
	mux.HandleFunc("/v1/vehicle-performance", s.handleVehiclePerformance)
	return mux
}

// handleIngest accepts one telemetry envelope per request. A 202
// response means "accepted into the buffer", never "persisted" (spec
// §4.4, §6).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var env ingest.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.dispatcher.Dispatch(env); err != nil {
		if ve, ok := err.(*ingest.ValidationError); ok {
			writeValidationError(w, ve)
			return
		}
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]bool{"accepted": true})
}

// handleBufferStatus reports the current in-memory depth of both
// per-class buffers, for operator visibility into how much data would
// be lost on an unclean shutdown.
func (s *Server) handleBufferStatus(w http.ResponseWriter, _ *http.Request) {
	v, m := s.depths.Depths()
	writeJSON(w, http.StatusOK, map[string]int{"vehicles": v, "meters": m})
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	class, deviceID, ok := classAndDevice(w, r)
	if !ok {
		return
	}
	row, err := s.reader.LiveStatus(r.Context(), class, deviceID)
	if err != nil {
		log.WithError(err).Error("live status query failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// An unknown device is not an error here: dashboards poll this
	// endpoint continuously, and a device that has simply never
	// reported yet should render as "no data" rather than flip the UI
	// into an error state.
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleHistoryRange(w http.ResponseWriter, r *http.Request) {
	class, deviceID, ok := classAndDevice(w, r)
	if !ok {
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	limit := 1000
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := s.reader.HistoryRange(r.Context(), class, deviceID, from, to, limit)
	if err != nil {
		if err == analytics.ErrMissingRange {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.WithError(err).Error("history range query failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleFleetSummary(w http.ResponseWriter, r *http.Request) {
	class, ok := classOnly(w, r)
	if !ok {
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, err := s.reader.FleetSummary(r.Context(), class, from, to)
	if err != nil {
		log.WithError(err).Error("fleet summary query failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleLast24h(w http.ResponseWriter, r *http.Request) {
	class, ok := classOnly(w, r)
	if !ok {
		return
	}
	rows, err := s.reader.Last24h(r.Context(), class, s.now())
	if err != nil {
		log.WithError(err).Error("last-24h query failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleVehiclePerformance(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicle_id")
	if vehicleID == "" {
		writeJSONError(w, http.StatusBadRequest, "vehicle_id is required")
		return
	}
	materialized := r.URL.Query().Get("materialized") == "true"

	var (
		perf *model.Performance
		err  error
	)
	if materialized {
		perf, err = s.reader.MaterializedPerformance24h(r.Context(), vehicleID)
	} else {
		perf, err = s.reader.VehiclePerformance24h(r.Context(), vehicleID, s.now())
	}
	if err == analytics.ErrNotLinked {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.WithError(err).Error("vehicle performance query failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func classAndDevice(w http.ResponseWriter, r *http.Request) (model.Class, string, bool) {
	class, ok := classOnly(w, r)
	if !ok {
		return "", "", false
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSONError(w, http.StatusBadRequest, "device_id is required")
		return "", "", false
	}
	return class, deviceID, true
}

func classOnly(w http.ResponseWriter, r *http.Request) (model.Class, bool) {
	class := model.Class(r.URL.Query().Get("class"))
	if class != model.ClassVehicle && class != model.ClassMeter {
		writeJSONError(w, http.StatusBadRequest, "class must be VEHICLE or METER")
		return "", false
	}
	return class, true
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	fromRaw, toRaw := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if fromRaw == "" || toRaw == "" {
		writeJSONError(w, http.StatusBadRequest, analytics.ErrMissingRange.Error())
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "from must be a time-zone aware ISO-8601 instant")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "to must be a time-zone aware ISO-8601 instant")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeValidationError(w http.ResponseWriter, ve *ingest.ValidationError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"fields": ve.Fields})
}

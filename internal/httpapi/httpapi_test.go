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

package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/analytics"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/buffer"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/ingest"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
)

type noopVehicleRepo struct{}

func (noopVehicleRepo) IngestBatch(context.Context, []model.VehicleReading) error { return nil }

type noopMeterRepo struct{}

func (noopMeterRepo) IngestBatch(context.Context, []model.MeterReading) error { return nil }

type fakeDepther struct{ vehicles, meters int }

func (f fakeDepther) Depths() (int, int) { return f.vehicles, f.meters }

func newTestServer() *Server {
	v := buffer.New("VEHICLE", noopVehicleRepo{}, 500)
	m := buffer.New("METER", noopMeterRepo{}, 500)
	d := ingest.NewDispatcher(v, m)
	return NewServer(d, analytics.NewReader(nil), fakeDepther{vehicles: 3, meters: 7})
}

func TestHandleIngestAcceptsValidEnvelope(t *testing.T) {
	s := newTestServer()
	body := `{"type":"VEHICLE","payload":{"vehicle_id":"V001","soc":"50","kwh_delivered_dc":"1","battery_temp":"1","recorded_at":"2026-01-01T10:00:00Z"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleIngestRejectsInvalidPayload(t *testing.T) {
	s := newTestServer()
	body := `{"type":"VEHICLE","payload":{"vehicle_id":"V001","soc":"500","kwh_delivered_dc":"1","battery_temp":"1","recorded_at":"2026-01-01T10:00:00Z"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngestRejectsWrongMethod(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleBufferStatusReportsDepths(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/buffer-status", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"vehicles":3,"meters":7}`, rec.Body.String())
}

func TestHandleHistoryRangeRequiresFromAndTo(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/history?class=VEHICLE&device_id=V001", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleVehiclePerformanceRequiresVehicleID(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/vehicle-performance", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFleetSummaryRejectsUnknownClass(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/fleet-summary?class=SOLAR&from=2026-01-01T00:00:00Z&to=2026-01-02T00:00:00Z", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

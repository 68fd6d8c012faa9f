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

package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/buffer"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
)

type noopVehicleRepo struct{ calls int }

func (r *noopVehicleRepo) IngestBatch(context.Context, []model.VehicleReading) error {
	r.calls++
	return nil
}

type noopMeterRepo struct{ calls int }

func (r *noopMeterRepo) IngestBatch(context.Context, []model.MeterReading) error {
	r.calls++
	return nil
}

func newTestDispatcher() (*Dispatcher, *buffer.Buffer[model.VehicleReading], *buffer.Buffer[model.MeterReading]) {
	v := buffer.New("VEHICLE", &noopVehicleRepo{}, 500)
	m := buffer.New("METER", &noopMeterRepo{}, 500)
	return NewDispatcher(v, m), v, m
}

func TestDispatchAcceptsValidVehiclePayload(t *testing.T) {
	d, v, _ := newTestDispatcher()
	err := d.Dispatch(Envelope{
		Type:    "VEHICLE",
		Payload: []byte(`{"vehicle_id":"V001","soc":"55.25","kwh_delivered_dc":"12.3400","battery_temp":"-5.25","recorded_at":"2026-01-01T10:00:00Z"}`),
	})
	require.NoError(t, err)
	require.Equal(t, 1, v.Depth())
}

func TestDispatchAcceptsValidMeterPayload(t *testing.T) {
	d, _, m := newTestDispatcher()
	err := d.Dispatch(Envelope{
		Type:    "METER",
		Payload: []byte(`{"meter_id":"M001","kwh_consumed_ac":"100.0000","voltage":"240.00","recorded_at":"2026-01-01T10:00:00Z"}`),
	})
	require.NoError(t, err)
	require.Equal(t, 1, m.Depth())
}

func TestDispatchRejectsUnknownDiscriminator(t *testing.T) {
	d, _, _ := newTestDispatcher()
	err := d.Dispatch(Envelope{Type: "SOLAR_PANEL", Payload: []byte(`{}`)})
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestDispatchRejectsUnknownFields(t *testing.T) {
	d, _, _ := newTestDispatcher()
	err := d.Dispatch(Envelope{
		Type:    "VEHICLE",
		Payload: []byte(`{"vehicle_id":"V001","soc":"1","kwh_delivered_dc":"1","battery_temp":"1","recorded_at":"2026-01-01T10:00:00Z","extra":"nope"}`),
	})
	require.Error(t, err)
}

func TestDispatchRejectsOutOfRangeSoC(t *testing.T) {
	d, _, _ := newTestDispatcher()
	err := d.Dispatch(Envelope{
		Type:    "VEHICLE",
		Payload: []byte(`{"vehicle_id":"V001","soc":"101","kwh_delivered_dc":"1","battery_temp":"1","recorded_at":"2026-01-01T10:00:00Z"}`),
	})
	require.Error(t, err)
}

func TestDispatchRejectsNegativeEnergy(t *testing.T) {
	d, _, _ := newTestDispatcher()
	err := d.Dispatch(Envelope{
		Type:    "METER",
		Payload: []byte(`{"meter_id":"M001","kwh_consumed_ac":"-1","voltage":"10","recorded_at":"2026-01-01T10:00:00Z"}`),
	})
	require.Error(t, err)
}

func TestDispatchAllowsUnboundedNegativeBatteryTemp(t *testing.T) {
	d, v, _ := newTestDispatcher()
	err := d.Dispatch(Envelope{
		Type:    "VEHICLE",
		Payload: []byte(`{"vehicle_id":"V001","soc":"50","kwh_delivered_dc":"1","battery_temp":"-273.15","recorded_at":"2026-01-01T10:00:00Z"}`),
	})
	require.NoError(t, err)
	require.Equal(t, 1, v.Depth())
}

func TestDispatchRejectsTimestampWithoutZone(t *testing.T) {
	d, _, _ := newTestDispatcher()
	err := d.Dispatch(Envelope{
		Type:    "VEHICLE",
		Payload: []byte(`{"vehicle_id":"V001","soc":"50","kwh_delivered_dc":"1","battery_temp":"1","recorded_at":"2026-01-01T10:00:00"}`),
	})
	require.Error(t, err)
}

func TestDispatchRejectsOversizedIdentifier(t *testing.T) {
	d, _, _ := newTestDispatcher()
	id := make([]byte, 65)
	for i := range id {
		id[i] = 'a'
	}
	err := d.Dispatch(Envelope{
		Type:    "VEHICLE",
		Payload: []byte(`{"vehicle_id":"` + string(id) + `","soc":"50","kwh_delivered_dc":"1","battery_temp":"1","recorded_at":"2026-01-01T10:00:00Z"}`),
	})
	require.Error(t, err)
}

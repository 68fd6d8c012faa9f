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

// Package ingest validates incoming telemetry envelopes and dispatches
// them to the correct per-class buffer. It never touches the
// database: a successful call means "accepted", not "persisted"
// (spec §4.4).
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/buffer"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/telemetry"
)

// Envelope is the polymorphic telemetry message: a discriminator
// field identifying one of the two variants, and a payload object
// matching the variant.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FieldError reports one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is the client-visible error returned when an
// envelope fails validation. It is never retried (spec §7).
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
}

func fieldErr(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// vehiclePayload is the strict wire shape of a VEHICLE payload.
type vehiclePayload struct {
	VehicleID      string          `json:"vehicle_id"`
	SoC            decimal.Decimal `json:"soc"`
	KWhDeliveredDC decimal.Decimal `json:"kwh_delivered_dc"`
	BatteryTemp    decimal.Decimal `json:"battery_temp"`
	RecordedAt     string          `json:"recorded_at"`
}

// meterPayload is the strict wire shape of a METER payload.
type meterPayload struct {
	MeterID       string          `json:"meter_id"`
	KWhConsumedAC decimal.Decimal `json:"kwh_consumed_ac"`
	Voltage       decimal.Decimal `json:"voltage"`
	RecordedAt    string          `json:"recorded_at"`
}

// Dispatcher routes validated records to the per-class buffers owned
// by the buffer.Coordinator.
type Dispatcher struct {
	vehicles *buffer.Buffer[model.VehicleReading]
	meters   *buffer.Buffer[model.MeterReading]
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher over the given per-class
// buffers.
func NewDispatcher(vehicles *buffer.Buffer[model.VehicleReading], meters *buffer.Buffer[model.MeterReading]) *Dispatcher {
	return &Dispatcher{vehicles: vehicles, meters: meters, now: time.Now}
}

// Dispatch validates env and, on success, pushes the resulting record
// to the matching buffer. It returns a *ValidationError on any
// validation failure; all other errors are decode failures treated
// the same way (client-visible, not retried).
func (d *Dispatcher) Dispatch(env Envelope) error {
	switch model.Class(env.Type) {
	case model.ClassVehicle:
		rec, err := decodeVehicle(env.Payload, d.now())
		if err != nil {
			telemetry.ValidationErrorsTotal.WithLabelValues(string(model.ClassVehicle)).Inc()
			return err
		}
		d.vehicles.Push(rec)
		return nil
	case model.ClassMeter:
		rec, err := decodeMeter(env.Payload, d.now())
		if err != nil {
			telemetry.ValidationErrorsTotal.WithLabelValues(string(model.ClassMeter)).Inc()
			return err
		}
		d.meters.Push(rec)
		return nil
	default:
		telemetry.ValidationErrorsTotal.WithLabelValues("UNKNOWN").Inc()
		return fieldErr("type", fmt.Sprintf("unknown discriminator %q, expected VEHICLE or METER", env.Type))
	}
}

func decodeVehicle(raw json.RawMessage, now time.Time) (model.VehicleReading, error) {
	var p vehiclePayload
	if err := strictDecode(raw, &p); err != nil {
		return model.VehicleReading{}, fieldErr("payload", err.Error())
	}
	if len(p.VehicleID) == 0 || len(p.VehicleID) > 64 {
		return model.VehicleReading{}, fieldErr("vehicle_id", "must be non-empty and at most 64 characters")
	}
	if p.KWhDeliveredDC.IsNegative() {
		return model.VehicleReading{}, fieldErr("kwh_delivered_dc", "must be >= 0")
	}
	if p.SoC.LessThan(decimal.Zero) || p.SoC.GreaterThan(decimal.NewFromInt(100)) {
		return model.VehicleReading{}, fieldErr("soc", "must be between 0 and 100")
	}
	recordedAt, err := parseInstant(p.RecordedAt)
	if err != nil {
		return model.VehicleReading{}, fieldErr("recorded_at", err.Error())
	}
	return model.VehicleReading{
		VehicleID:      p.VehicleID,
		SoC:            p.SoC,
		KWhDeliveredDC: p.KWhDeliveredDC,
		BatteryTempC:   p.BatteryTemp,
		RecordedAt:     recordedAt,
		IngestedAt:     now,
	}, nil
}

func decodeMeter(raw json.RawMessage, now time.Time) (model.MeterReading, error) {
	var p meterPayload
	if err := strictDecode(raw, &p); err != nil {
		return model.MeterReading{}, fieldErr("payload", err.Error())
	}
	if len(p.MeterID) == 0 || len(p.MeterID) > 64 {
		return model.MeterReading{}, fieldErr("meter_id", "must be non-empty and at most 64 characters")
	}
	if p.KWhConsumedAC.IsNegative() {
		return model.MeterReading{}, fieldErr("kwh_consumed_ac", "must be >= 0")
	}
	if p.Voltage.IsNegative() {
		return model.MeterReading{}, fieldErr("voltage", "must be >= 0")
	}
	recordedAt, err := parseInstant(p.RecordedAt)
	if err != nil {
		return model.MeterReading{}, fieldErr("recorded_at", err.Error())
	}
	return model.MeterReading{
		MeterID:       p.MeterID,
		KWhConsumedAC: p.KWhConsumedAC,
		Voltage:       p.Voltage,
		RecordedAt:    recordedAt,
		IngestedAt:    now,
	}, nil
}

// strictDecode rejects unknown fields in the payload, per spec §4.4's
// "strict schema" rule.
func strictDecode(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parseInstant requires a time-zone-aware ISO-8601 instant.
func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a time-zone aware ISO-8601 instant: %w", err)
	}
	return t.UTC(), nil
}

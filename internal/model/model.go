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

// Package model contains the telemetry domain types shared by the
// buffer, repository, and analytics layers. Numeric fields that must
// survive the pipeline without precision loss are represented as
// decimal.Decimal rather than float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Class identifies which device family a record belongs to. The two
// classes have independent buffers, tables, and repositories; they
// share only the buffering and transactional-write pattern.
type Class string

// The two supported device classes.
const (
	ClassVehicle Class = "VEHICLE"
	ClassMeter   Class = "METER"
)

// VehicleReading is one telemetry sample from one vehicle.
type VehicleReading struct {
	VehicleID       string
	SoC             decimal.Decimal
	KWhDeliveredDC  decimal.Decimal
	BatteryTempC    decimal.Decimal
	RecordedAt      time.Time
	IngestedAt      time.Time
}

// DeviceID returns the vehicle identifier.
func (r VehicleReading) DeviceID() string { return r.VehicleID }

// Timestamp returns the device-reported recorded_at instant.
func (r VehicleReading) Timestamp() time.Time { return r.RecordedAt }

// MeterReading is one telemetry sample from one meter.
type MeterReading struct {
	MeterID       string
	KWhConsumedAC decimal.Decimal
	Voltage       decimal.Decimal
	RecordedAt    time.Time
	IngestedAt    time.Time
}

// DeviceID returns the meter identifier.
func (r MeterReading) DeviceID() string { return r.MeterID }

// Timestamp returns the device-reported recorded_at instant.
func (r MeterReading) Timestamp() time.Time { return r.RecordedAt }

// VehicleCurrent is the latest known state of one vehicle.
type VehicleCurrent struct {
	VehicleID      string
	SoC            decimal.Decimal
	KWhDeliveredDC decimal.Decimal
	BatteryTempC   decimal.Decimal
	LastSeenAt     time.Time
	UpdatedAt      time.Time
}

// MeterCurrent is the latest known state of one meter.
type MeterCurrent struct {
	MeterID       string
	KWhConsumedAC decimal.Decimal
	Voltage       decimal.Decimal
	LastSeenAt    time.Time
	UpdatedAt     time.Time
}

// VehicleMeterLink associates a vehicle with the meter at its charging
// station. A vehicle has at most one current link.
type VehicleMeterLink struct {
	VehicleID string
	MeterID   string
	LinkedAt  time.Time
}

// HourlyStat is a per-device, per-hour aggregate over a reading
// stream. It backs both VehicleHourlyStats and MeterHourlyStats, which
// share the same shape.
type HourlyStat struct {
	DeviceID   string
	HourBucket time.Time
	SampleCount int64
	Total      decimal.Decimal
}

// Performance is the vehicle 24h charging-performance contract: the
// combination of per-vehicle kWh delivered and per-meter kWh consumed
// at the linked station, reduced to an efficiency ratio.
type Performance struct {
	VehicleID         string
	MeterID           string
	DCDelivered       decimal.Decimal
	ACConsumed        decimal.Decimal
	EfficiencyPercent decimal.Decimal
	WindowStart       time.Time
	WindowEnd         time.Time
}

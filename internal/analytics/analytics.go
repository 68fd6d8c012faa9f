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

// Package analytics implements the five read contracts of spec §4.5:
// live status, history range, fleet summary, the last-24h dashboard,
// and vehicle 24h performance (live and materialized).
package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/schema"
)

// ErrMissingRange is returned by HistoryRange when from or to is the
// zero time. History queries must specify a bounded range so that
// partition pruning keeps the scan cheap (spec §4.5, §8 scenario 6).
var ErrMissingRange = errors.New("history range requires both from and to")

// ErrNotLinked is returned by VehiclePerformance24h when the vehicle
// has no current link, and by MaterializedPerformance24h when the
// summary table has no row for the vehicle (spec §6: 404 on the
// performance endpoint).
var ErrNotLinked = errors.New("vehicle has no current meter link")

// Reader serves all five read contracts against the target pool.
type Reader struct {
	pool *pgxpool.Pool
}

// NewReader constructs a Reader over pool.
func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// ReadingRow is one row from a history range query.
type ReadingRow struct {
	DeviceID       string
	RecordedAt     time.Time
	IngestedAt     time.Time
	Primary        decimal.Decimal // soc (vehicle) or kwh_consumed_ac (meter)
	Secondary      decimal.Decimal // kwh_delivered_dc (vehicle) or voltage (meter)
	Tertiary       decimal.Decimal // battery_temp (vehicle only); zero for meter
}

// LiveStatus performs the primary-key point lookup against the
// current table for class/deviceID. It returns (nil, nil) for an
// unknown device so dashboards can render a stable "no data" state
// rather than handling a 404 (spec §6).
func (r *Reader) LiveStatus(ctx context.Context, class model.Class, deviceID string) (*ReadingRow, error) {
	var (
		table, idCol string
		row          ReadingRow
	)
	switch class {
	case model.ClassVehicle:
		table, idCol = schema.VehicleCurrent, "vehicle_id"
		err := r.pool.QueryRow(ctx, `
			SELECT vehicle_id, soc, kwh_delivered_dc, battery_temp, last_seen_at
			FROM `+table+` WHERE `+idCol+` = $1`, deviceID,
		).Scan(&row.DeviceID, &row.Primary, &row.Secondary, &row.Tertiary, &row.RecordedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "querying vehicle current")
		}
	case model.ClassMeter:
		table, idCol = schema.MeterCurrent, "meter_id"
		err := r.pool.QueryRow(ctx, `
			SELECT meter_id, kwh_consumed_ac, voltage, last_seen_at
			FROM `+table+` WHERE `+idCol+` = $1`, deviceID,
		).Scan(&row.DeviceID, &row.Primary, &row.Secondary, &row.RecordedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "querying meter current")
		}
	default:
		return nil, errors.Errorf("unknown class %q", class)
	}
	return &row, nil
}

// HistoryRange scans the partitioned history table for one device
// over [from, to), equality on device_id, bounded by limit. from and
// to are required (ErrMissingRange otherwise); a 24h window restricts
// the planner to at most two monthly partitions via pruning.
func (r *Reader) HistoryRange(ctx context.Context, class model.Class, deviceID string, from, to time.Time, limit int) ([]ReadingRow, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingRange
	}

	var (
		table, idCol, query string
	)
	switch class {
	case model.ClassVehicle:
		table, idCol = schema.VehicleReadings, "vehicle_id"
		query = `SELECT vehicle_id, soc, kwh_delivered_dc, battery_temp, recorded_at, ingested_at
			FROM ` + table + ` WHERE ` + idCol + ` = $1 AND recorded_at >= $2 AND recorded_at < $3
			ORDER BY recorded_at DESC LIMIT $4`
	case model.ClassMeter:
		table, idCol = schema.MeterReadings, "meter_id"
		query = `SELECT meter_id, kwh_consumed_ac, voltage, recorded_at, ingested_at
			FROM ` + table + ` WHERE ` + idCol + ` = $1 AND recorded_at >= $2 AND recorded_at < $3
			ORDER BY recorded_at DESC LIMIT $4`
	default:
		return nil, errors.Errorf("unknown class %q", class)
	}

	rows, err := r.pool.Query(ctx, query, deviceID, from, to, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying history range")
	}
	defer rows.Close()

	out := make([]ReadingRow, 0)
	for rows.Next() {
		var row ReadingRow
		switch class {
		case model.ClassVehicle:
			if err := rows.Scan(&row.DeviceID, &row.Primary, &row.Secondary, &row.Tertiary, &row.RecordedAt, &row.IngestedAt); err != nil {
				return nil, errors.Wrap(err, "scanning vehicle reading")
			}
		case model.ClassMeter:
			if err := rows.Scan(&row.DeviceID, &row.Primary, &row.Secondary, &row.RecordedAt, &row.IngestedAt); err != nil {
				return nil, errors.Wrap(err, "scanning meter reading")
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating history range")
	}
	return out, nil
}

// FleetSummary returns hourly stats for every device of class in
// [from, to), grouped by hour via the stored rollup.
func (r *Reader) FleetSummary(ctx context.Context, class model.Class, from, to time.Time) ([]model.HourlyStat, error) {
	table, err := hourlyTable(class)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT device_id, hour_bucket, sample_count, total
		FROM `+table+` WHERE hour_bucket >= $1 AND hour_bucket < $2
		ORDER BY hour_bucket`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying fleet summary")
	}
	return scanHourly(rows)
}

// Last24h returns the per-class dashboard view: hourly stats for
// hour_bucket >= now-24h.
func (r *Reader) Last24h(ctx context.Context, class model.Class, now time.Time) ([]model.HourlyStat, error) {
	table, err := hourlyTable(class)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT device_id, hour_bucket, sample_count, total
		FROM `+table+` WHERE hour_bucket >= $1
		ORDER BY hour_bucket`, now.Add(-24*time.Hour))
	if err != nil {
		return nil, errors.Wrap(err, "querying last-24h dashboard")
	}
	return scanHourly(rows)
}

func hourlyTable(class model.Class) (string, error) {
	switch class {
	case model.ClassVehicle:
		return schema.VehicleHourly, nil
	case model.ClassMeter:
		return schema.MeterHourly, nil
	default:
		return "", errors.Errorf("unknown class %q", class)
	}
}

func scanHourly(rows pgx.Rows) ([]model.HourlyStat, error) {
	defer rows.Close()
	out := make([]model.HourlyStat, 0)
	for rows.Next() {
		var s model.HourlyStat
		if err := rows.Scan(&s.DeviceID, &s.HourBucket, &s.SampleCount, &s.Total); err != nil {
			return nil, errors.Wrap(err, "scanning hourly stat")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating hourly stats")
	}
	return out, nil
}

// VehiclePerformance24h resolves the vehicle's current link and
// aggregates both reading tables over the trailing 24h, combining
// them into the efficiency ratio. ErrNotLinked is returned when the
// vehicle has no link.
func (r *Reader) VehiclePerformance24h(ctx context.Context, vehicleID string, now time.Time) (*model.Performance, error) {
	var meterID string
	err := r.pool.QueryRow(ctx, `SELECT meter_id FROM `+schema.VehicleLink+` WHERE vehicle_id = $1`, vehicleID).Scan(&meterID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolving vehicle-meter link")
	}

	windowStart := now.Add(-24 * time.Hour)

	var dcDelivered decimal.Decimal
	if err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(kwh_delivered_dc), 0) FROM `+schema.VehicleReadings+`
		WHERE vehicle_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		vehicleID, windowStart, now,
	).Scan(&dcDelivered); err != nil {
		return nil, errors.Wrap(err, "aggregating vehicle dc delivered")
	}

	var acConsumed decimal.Decimal
	if err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(kwh_consumed_ac), 0) FROM `+schema.MeterReadings+`
		WHERE meter_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		meterID, windowStart, now,
	).Scan(&acConsumed); err != nil {
		return nil, errors.Wrap(err, "aggregating meter ac consumed")
	}

	return &model.Performance{
		VehicleID:         vehicleID,
		MeterID:           meterID,
		DCDelivered:       dcDelivered,
		ACConsumed:        acConsumed,
		EfficiencyPercent: efficiencyRatio(dcDelivered, acConsumed),
		WindowStart:       windowStart,
		WindowEnd:         now,
	}, nil
}

// MaterializedPerformance24h serves the same contract as
// VehiclePerformance24h from the pre-computed summary table instead
// of re-aggregating the cold tables on every call.
func (r *Reader) MaterializedPerformance24h(ctx context.Context, vehicleID string) (*model.Performance, error) {
	var p model.Performance
	err := r.pool.QueryRow(ctx, `
		SELECT vehicle_id, meter_id, dc_delivered, ac_consumed, efficiency_percent, window_start, window_end
		FROM `+schema.VehiclePerf24h+` WHERE vehicle_id = $1`, vehicleID,
	).Scan(&p.VehicleID, &p.MeterID, &p.DCDelivered, &p.ACConsumed, &p.EfficiencyPercent, &p.WindowStart, &p.WindowEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying materialized performance")
	}
	return &p, nil
}

// RefreshMaterializedPerformance recomputes vehicle_performance_24h
// for every currently linked vehicle. It is the body of the scheduled
// 15-minute refresh job (spec §4.5).
func RefreshMaterializedPerformance(ctx context.Context, pool *pgxpool.Pool, now time.Time) error {
	windowStart := now.Add(-24 * time.Hour)
	_, err := pool.Exec(ctx, `
		INSERT INTO `+schema.VehiclePerf24h+` (vehicle_id, meter_id, dc_delivered, ac_consumed, efficiency_percent, window_start, window_end, refreshed_at)
		SELECT
			link.vehicle_id,
			link.meter_id,
			COALESCE(dc.total, 0) AS dc_delivered,
			COALESCE(ac.total, 0) AS ac_consumed,
			CASE WHEN COALESCE(ac.total, 0) = 0 THEN 0
			     ELSE ROUND(100 * COALESCE(dc.total, 0) / ac.total, 2)
			END AS efficiency_percent,
			$1, $2, now()
		FROM `+schema.VehicleLink+` link
		LEFT JOIN (
			SELECT vehicle_id, SUM(kwh_delivered_dc) AS total
			FROM `+schema.VehicleReadings+`
			WHERE recorded_at >= $1 AND recorded_at < $2
			GROUP BY vehicle_id
		) dc ON dc.vehicle_id = link.vehicle_id
		LEFT JOIN (
			SELECT meter_id, SUM(kwh_consumed_ac) AS total
			FROM `+schema.MeterReadings+`
			WHERE recorded_at >= $1 AND recorded_at < $2
			GROUP BY meter_id
		) ac ON ac.meter_id = link.meter_id
		ON CONFLICT (vehicle_id) DO UPDATE SET
			meter_id = excluded.meter_id,
			dc_delivered = excluded.dc_delivered,
			ac_consumed = excluded.ac_consumed,
			efficiency_percent = excluded.efficiency_percent,
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			refreshed_at = excluded.refreshed_at
	`, windowStart, now)
	return errors.Wrap(err, "refreshing materialized vehicle performance")
}

// efficiencyRatio computes 100 * dc / ac rounded to two fractional
// digits, defined as 0 when ac is zero (spec §4.5).
func efficiencyRatio(dc, ac decimal.Decimal) decimal.Decimal {
	if ac.IsZero() {
		return decimal.Zero
	}
	return dc.Mul(decimal.NewFromInt(100)).DivRound(ac, 2)
}

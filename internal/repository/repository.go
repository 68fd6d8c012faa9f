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

// Package repository implements the dual-write transactional
// persistence layer: one repository per device class, each writing a
// batch to both the append-only history table and the conditionally
// upserted current table inside a single transaction.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
)

// beginner is implemented by *pgxpool.Pool: anything that can start a
// transaction.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ beginner = (*pgxpool.Pool)(nil)

// VehicleRepository writes vehicle reading batches to
// vehicle_readings and vehicle_current.
type VehicleRepository struct {
	pool beginner
}

// NewVehicleRepository constructs a VehicleRepository over pool.
func NewVehicleRepository(pool *pgxpool.Pool) *VehicleRepository {
	return &VehicleRepository{pool: pool}
}

// IngestBatch implements buffer.Repository[model.VehicleReading]. It
// is atomic: either every record in the batch becomes visible in both
// vehicle_readings and vehicle_current, or none does (spec §4.2).
func (r *VehicleRepository) IngestBatch(ctx context.Context, records []model.VehicleReading) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning vehicle ingest transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	historySQL, historyArgs := buildHistoryInsert(
		"vehicle_readings",
		[]string{"vehicle_id", "soc", "kwh_delivered_dc", "battery_temp", "recorded_at", "ingested_at"},
		len(records),
		func(i int) []any {
			rec := records[i]
			return []any{rec.VehicleID, rec.SoC, rec.KWhDeliveredDC, rec.BatteryTempC, rec.RecordedAt, rec.IngestedAt}
		},
	)
	if _, err := tx.Exec(ctx, historySQL, historyArgs...); err != nil {
		return errors.Wrap(err, "inserting vehicle history batch")
	}

	currentRows := make([]currentRow, len(records))
	for i, rec := range records {
		currentRows[i] = currentRow{
			deviceID:   rec.VehicleID,
			recordedAt: rec.RecordedAt,
			values:     []any{rec.SoC, rec.KWhDeliveredDC, rec.BatteryTempC},
		}
	}
	currentSQL, currentArgs := buildCurrentUpsert(
		"vehicle_current",
		"vehicle_id",
		[]string{"soc", "kwh_delivered_dc", "battery_temp"},
		dedupeLatestByDevice(currentRows),
	)
	if _, err := tx.Exec(ctx, currentSQL, currentArgs...); err != nil {
		return errors.Wrap(err, "upserting vehicle current batch")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "committing vehicle ingest transaction")
	}
	return nil
}

// MeterRepository writes meter reading batches to meter_readings and
// meter_current.
type MeterRepository struct {
	pool beginner
}

// NewMeterRepository constructs a MeterRepository over pool.
func NewMeterRepository(pool *pgxpool.Pool) *MeterRepository {
	return &MeterRepository{pool: pool}
}

// IngestBatch implements buffer.Repository[model.MeterReading].
func (r *MeterRepository) IngestBatch(ctx context.Context, records []model.MeterReading) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning meter ingest transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	historySQL, historyArgs := buildHistoryInsert(
		"meter_readings",
		[]string{"meter_id", "kwh_consumed_ac", "voltage", "recorded_at", "ingested_at"},
		len(records),
		func(i int) []any {
			rec := records[i]
			return []any{rec.MeterID, rec.KWhConsumedAC, rec.Voltage, rec.RecordedAt, rec.IngestedAt}
		},
	)
	if _, err := tx.Exec(ctx, historySQL, historyArgs...); err != nil {
		return errors.Wrap(err, "inserting meter history batch")
	}

	currentRows := make([]currentRow, len(records))
	for i, rec := range records {
		currentRows[i] = currentRow{
			deviceID:   rec.MeterID,
			recordedAt: rec.RecordedAt,
			values:     []any{rec.KWhConsumedAC, rec.Voltage},
		}
	}
	currentSQL, currentArgs := buildCurrentUpsert(
		"meter_current",
		"meter_id",
		[]string{"kwh_consumed_ac", "voltage"},
		dedupeLatestByDevice(currentRows),
	)
	if _, err := tx.Exec(ctx, currentSQL, currentArgs...); err != nil {
		return errors.Wrap(err, "upserting meter current batch")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "committing meter ingest transaction")
	}
	return nil
}

// buildHistoryInsert builds a single multi-row INSERT statement for
// the given history table: one VALUES tuple per record, parameterized
// (never string-interpolated) so the statement is safe to run without
// a server-bound prepared statement under a transaction-mode pooler.
func buildHistoryInsert(table string, cols []string, n int, row func(i int) []any) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	args := make([]any, 0, n*len(cols))
	argN := 1
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", argN)
			argN++
		}
		sb.WriteString(")")
		args = append(args, row(i)...)
	}
	return sb.String(), args
}

// currentRow is one candidate row for a current-table upsert.
type currentRow struct {
	deviceID   string
	recordedAt time.Time
	values     []any
}

// dedupeLatestByDevice collapses rows to at most one per deviceID,
// keeping the row with the greatest recordedAt and discarding the
// rest. Postgres raises "ON CONFLICT DO UPDATE command cannot affect
// row a second time" if a single multi-row INSERT ... ON CONFLICT
// statement targets the same conflict key twice, so a batch carrying
// two readings for the same device (spec §4.2's intra-batch duplicate
// edge case) must be reduced to one tuple per device before it reaches
// buildCurrentUpsert. The history insert is built from the original,
// undeduped records: every raw reading is still retained there.
func dedupeLatestByDevice(rows []currentRow) []currentRow {
	latest := make(map[string]currentRow, len(rows))
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		existing, ok := latest[row.deviceID]
		if !ok {
			order = append(order, row.deviceID)
		}
		if !ok || row.recordedAt.After(existing.recordedAt) {
			latest[row.deviceID] = row
		}
	}
	out := make([]currentRow, len(order))
	for i, id := range order {
		out[i] = latest[id]
	}
	return out
}

// buildCurrentUpsert builds a multi-row INSERT ... ON CONFLICT DO
// UPDATE against the current table, keyed on deviceCol, with the
// staleness guard from spec §4.2: the existing row is only replaced
// when the incoming recorded_at is strictly greater than the stored
// last_seen_at. rows must already carry at most one entry per
// deviceID -- see dedupeLatestByDevice.
func buildCurrentUpsert(table, deviceCol string, valueCols []string, rows []currentRow) (string, []any) {
	var sb strings.Builder
	allCols := append([]string{deviceCol}, valueCols...)
	allCols = append(allCols, "last_seen_at", "updated_at")
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(allCols, ", "))

	args := make([]any, 0, len(rows)*len(allCols))
	argN := 1
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		fmt.Fprintf(&sb, "$%d, ", argN)
		argN++
		args = append(args, r.deviceID)
		for range r.values {
			fmt.Fprintf(&sb, "$%d, ", argN)
			argN++
		}
		args = append(args, r.values...)
		// last_seen_at takes the reading's recorded_at; updated_at is
		// the server instant of this write.
		fmt.Fprintf(&sb, "$%d, now()", argN)
		argN++
		args = append(args, r.recordedAt)
		sb.WriteString(")")
	}

	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET ", deviceCol)
	sets := make([]string, 0, len(valueCols)+2)
	for _, c := range valueCols {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	sets = append(sets, "last_seen_at = excluded.last_seen_at", "updated_at = excluded.updated_at")
	sb.WriteString(strings.Join(sets, ", "))
	fmt.Fprintf(&sb, " WHERE excluded.last_seen_at > %s.last_seen_at", table)

	return sb.String(), args
}

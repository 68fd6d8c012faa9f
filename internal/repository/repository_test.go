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

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedupeLatestByDeviceKeepsGreatestRecordedAt(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := []currentRow{
		{deviceID: "V001", recordedAt: t0, values: []any{1}},
		{deviceID: "V001", recordedAt: t0.Add(30 * time.Second), values: []any{2}},
		{deviceID: "V002", recordedAt: t0, values: []any{3}},
	}

	out := dedupeLatestByDevice(rows)

	require.Len(t, out, 2)
	byDevice := make(map[string]currentRow, len(out))
	for _, r := range out {
		byDevice[r.deviceID] = r
	}
	require.Equal(t, []any{2}, byDevice["V001"].values)
	require.Equal(t, t0.Add(30*time.Second), byDevice["V001"].recordedAt)
	require.Equal(t, []any{3}, byDevice["V002"].values)
}

func TestDedupeLatestByDevicePreservesFirstSeenOrder(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := []currentRow{
		{deviceID: "V002", recordedAt: t0, values: []any{1}},
		{deviceID: "V001", recordedAt: t0, values: []any{2}},
		{deviceID: "V002", recordedAt: t0.Add(time.Second), values: []any{3}},
	}

	out := dedupeLatestByDevice(rows)

	require.Len(t, out, 2)
	require.Equal(t, "V002", out[0].deviceID)
	require.Equal(t, "V001", out[1].deviceID)
}

func TestDedupeLatestByDeviceSingleRowPassesThrough(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := []currentRow{{deviceID: "M001", recordedAt: t0, values: []any{5}}}

	out := dedupeLatestByDevice(rows)

	require.Equal(t, rows, out)
}

func TestBuildCurrentUpsertProducesOneTuplePerRow(t *testing.T) {
	rows := []currentRow{
		{deviceID: "V001", recordedAt: time.Unix(0, 0), values: []any{1, 2}},
		{deviceID: "V002", recordedAt: time.Unix(0, 0), values: []any{3, 4}},
	}

	sql, args := buildCurrentUpsert("vehicle_current", "vehicle_id", []string{"soc", "kwh_delivered_dc"}, rows)

	require.Contains(t, sql, "INSERT INTO vehicle_current")
	require.Contains(t, sql, "ON CONFLICT (vehicle_id) DO UPDATE SET")
	require.Contains(t, sql, "WHERE excluded.last_seen_at > vehicle_current.last_seen_at")
	// deviceID, 2 values, recordedAt per row = 4 placeholders * 2 rows
	require.Len(t, args, 8)
}

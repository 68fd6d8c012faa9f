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

// Package telemetry holds the Prometheus metrics and logging
// configuration shared across the ingestion engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets is used by every duration histogram in this module.
var LatencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// ClassLabel is the label name used to distinguish vehicle and meter
// metrics series.
const ClassLabel = "class"

var (
	// BufferDepth tracks the current per-class buffer depth, the
	// backpressure signal from spec §4.3.
	BufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingest_buffer_depth",
		Help: "current number of records staged in the in-memory buffer",
	}, []string{ClassLabel})

	// FlushDuration records how long each flush's transaction took.
	FlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_flush_duration_seconds",
		Help:    "the length of time it took to commit a flush transaction",
		Buckets: LatencyBuckets,
	}, []string{ClassLabel})

	// FlushRecordsTotal counts records successfully committed.
	FlushRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_flush_records_total",
		Help: "the number of records committed by successful flushes",
	}, []string{ClassLabel})

	// FlushErrorsTotal counts failed flush attempts that were
	// re-enqueued.
	FlushErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_flush_errors_total",
		Help: "the number of flush attempts that failed and were re-enqueued",
	}, []string{ClassLabel})

	// ShutdownDroppedTotal counts records lost in the best-effort
	// final drain on shutdown.
	ShutdownDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_shutdown_dropped_total",
		Help: "the number of records discarded because the final drain flush failed",
	}, []string{ClassLabel})

	// ValidationErrorsTotal counts rejected ingestion payloads.
	ValidationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_validation_errors_total",
		Help: "the number of ingestion requests rejected by validation",
	}, []string{ClassLabel})
)

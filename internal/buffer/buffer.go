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

// Package buffer implements the in-process ingestion buffer: staging
// of records in memory and flushing them in large batches to a
// Repository. One Buffer is instantiated per device class; the
// buffering pattern is shared (generic), the schema it carries is not
// (spec §9: "Share only the buffering pattern... and the two-phase
// transactional write").
package buffer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/telemetry"
)

// Repository is the persistence collaborator a Buffer flushes to. It
// mirrors the teacher's Applier contract: accept some number of
// records and apply them, atomically, to the target database.
type Repository[R any] interface {
	IngestBatch(ctx context.Context, records []R) error
}

// Buffer stages records of one device class in memory and flushes
// them to a Repository on a size or time trigger, whichever fires
// first.
//
// The only shared mutable state is the pointer to the current
// staging slice; swapping it during Flush is the sole critical
// section (spec §5). Push and Flush may run concurrently: a push
// during a flush lands either in the batch being flushed or in the
// fresh buffer started by the swap, and either outcome is correct.
type Buffer[R any] struct {
	class string
	repo  Repository[R]

	flushSize int32

	mu      sync.Mutex
	staging []R

	sizeFlush chan struct{} // signaled (non-blocking) when the size trigger fires
}

// New constructs a Buffer that flushes to repo once flushSize records
// have accumulated (the size trigger) or when Flush is called
// externally (the time trigger, driven by Coordinator).
func New[R any](class string, repo Repository[R], flushSize int) *Buffer[R] {
	return &Buffer[R]{
		class:     class,
		repo:      repo,
		flushSize: int32(flushSize),
		sizeFlush: make(chan struct{}, 1),
	}
}

// Push appends r to the buffer. It never blocks on the database: the
// only work performed is the append and, if this push is the one that
// crosses the size threshold, a non-blocking signal that a flush
// should run soon.
//
// Concurrent pushes crossing the threshold signal at most once
// because the channel send is non-blocking and buffered to depth 1;
// whichever push observes the channel as ready to accept wins, and
// the rest simply continue accumulating into the same buffer.
func (b *Buffer[R]) Push(r R) {
	b.mu.Lock()
	b.staging = append(b.staging, r)
	n := len(b.staging)
	b.mu.Unlock()

	telemetry.BufferDepth.WithLabelValues(b.class).Set(float64(n))

	if int32(n) >= b.flushSize {
		select {
		case b.sizeFlush <- struct{}{}:
		default:
		}
	}
}

// SizeTriggered returns the channel that receives a signal each time
// a push crosses the size threshold. The Coordinator selects on this
// channel alongside its ticker.
func (b *Buffer[R]) SizeTriggered() <-chan struct{} {
	return b.sizeFlush
}

// Depth returns the current number of staged records, the
// backpressure signal exposed by the buffer-status endpoint.
func (b *Buffer[R]) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.staging)
}

// Flush atomically swaps out the staging slice for an empty one and
// hands the detached batch to the repository without holding the
// buffer lock for the database round trip. An empty buffer performs
// no database work (spec §8 boundary property).
//
// If the repository call fails, the entire detached batch is
// re-prepended to whatever has accumulated in the buffer since the
// swap, so it is retried on the next trigger (spec §4.3 Retry on
// failure).
func (b *Buffer[R]) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.staging
	b.staging = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := b.repo.IngestBatch(ctx, batch)
	telemetry.FlushDuration.WithLabelValues(b.class).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.FlushErrorsTotal.WithLabelValues(b.class).Inc()
		b.mu.Lock()
		b.staging = append(batch, b.staging...)
		b.mu.Unlock()
		telemetry.BufferDepth.WithLabelValues(b.class).Set(float64(b.Depth()))
		log.WithError(err).WithField("class", b.class).WithField("records", len(batch)).
			Warn("flush failed, batch re-enqueued")
		return err
	}

	telemetry.FlushRecordsTotal.WithLabelValues(b.class).Add(float64(len(batch)))
	telemetry.BufferDepth.WithLabelValues(b.class).Set(float64(b.Depth()))
	return nil
}

// drainBestEffort flushes once and, on failure, discards the batch
// rather than re-enqueueing it. It is used only during shutdown,
// where the spec defines the final drain as best-effort (spec §4.3
// Shutdown, §7 Shutdown loss): records that fail the final flush are
// lost, and that loss is logged with its count.
func (b *Buffer[R]) drainBestEffort(ctx context.Context) {
	b.mu.Lock()
	batch := b.staging
	b.staging = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := b.repo.IngestBatch(ctx, batch); err != nil {
		telemetry.ShutdownDroppedTotal.WithLabelValues(b.class).Add(float64(len(batch)))
		log.WithError(err).WithField("class", b.class).WithField("dropped", len(batch)).
			Error("final drain failed, records discarded")
	} else {
		telemetry.FlushRecordsTotal.WithLabelValues(b.class).Add(float64(len(batch)))
	}
	telemetry.BufferDepth.WithLabelValues(b.class).Set(0)
}

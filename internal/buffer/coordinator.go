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

package buffer

import (
	"context"
	"time"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
)

// flushable is the type-erased view of a Buffer[R] that the
// Coordinator needs: something it can flush and probe for depth,
// without needing to know R. This lets one Coordinator drive the
// vehicle and meter buffers side by side despite their different
// record types.
type flushable interface {
	Flush(ctx context.Context) error
	Depth() int
	drainBestEffort(ctx context.Context)
}

var (
	_ flushable = (*Buffer[model.VehicleReading])(nil)
	_ flushable = (*Buffer[model.MeterReading])(nil)
)

// Coordinator owns the single periodic timer that drives both
// classes' time-triggered flushes (spec §4.3, §9: "A single periodic
// signal drives both flushes; shut it down explicitly at teardown").
// It also watches each buffer's independent size trigger. Flushes of
// different classes are independent and may commit in either order
// (spec §5).
type Coordinator struct {
	vehicles *Buffer[model.VehicleReading]
	meters   *Buffer[model.MeterReading]

	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// NewCoordinator builds a Coordinator over the two per-class buffers.
func NewCoordinator(vehicles *Buffer[model.VehicleReading], meters *Buffer[model.MeterReading], interval time.Duration) *Coordinator {
	return &Coordinator{
		vehicles: vehicles,
		meters:   meters,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Vehicles returns the vehicle-class buffer, for Push and Depth
// access from the dispatch layer.
func (c *Coordinator) Vehicles() *Buffer[model.VehicleReading] { return c.vehicles }

// Meters returns the meter-class buffer, for Push and Depth access
// from the dispatch layer.
func (c *Coordinator) Meters() *Buffer[model.MeterReading] { return c.meters }

// Depths returns the current per-class buffer depths, used to answer
// the buffer-status endpoint.
func (c *Coordinator) Depths() (vehicles, meters int) {
	return c.vehicles.Depth(), c.meters.Depth()
}

// Run drives the ticker loop until Shutdown is called. It should be
// started in its own goroutine; Shutdown blocks until it has exited
// and the final drain has completed.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.stopped)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.vehicles.Flush(ctx)
			_ = c.meters.Flush(ctx)
		case <-c.vehicles.SizeTriggered():
			_ = c.vehicles.Flush(ctx)
		case <-c.meters.SizeTriggered():
			_ = c.meters.Flush(ctx)
		}
	}
}

// Shutdown stops the ticker and performs one best-effort final flush
// of both classes before returning (spec §4.3 Shutdown). It does not
// return an error: the drain is explicitly best-effort, and any loss
// is logged, not propagated, so that the process can still exit
// cleanly.
func (c *Coordinator) Shutdown(ctx context.Context) {
	close(c.done)
	<-c.stopped

	c.vehicles.drainBestEffort(ctx)
	c.meters.drainBestEffort(ctx)
}

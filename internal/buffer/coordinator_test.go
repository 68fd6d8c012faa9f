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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
)

// fakeRepository2 is a generic in-memory Repository stand-in, used
// here where two different record types (vehicle and meter) need
// independent fakes; see buffer_test.go for the int-keyed variant
// used by the single-buffer tests.
type fakeRepository2[R any] struct {
	committed [][]R
}

func (f *fakeRepository2[R]) IngestBatch(_ context.Context, records []R) error {
	f.committed = append(f.committed, append([]R(nil), records...))
	return nil
}

func TestCoordinatorTimeTriggerFlushesBothClasses(t *testing.T) {
	vRepo := &fakeRepository2[model.VehicleReading]{}
	mRepo := &fakeRepository2[model.MeterReading]{}

	v := New("VEHICLE", vRepo, 500)
	m := New("METER", mRepo, 500)
	c := NewCoordinator(v, m, 10*time.Millisecond)

	v.Push(model.VehicleReading{VehicleID: "V001"})
	m.Push(model.MeterReading{MeterID: "M001"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		return len(vRepo.committed) == 1 && len(mRepo.committed) == 1
	}, time.Second, 5*time.Millisecond)

	c.Shutdown(context.Background())
}

func TestCoordinatorDepths(t *testing.T) {
	vRepo := &fakeRepository2[model.VehicleReading]{}
	mRepo := &fakeRepository2[model.MeterReading]{}
	v := New("VEHICLE", vRepo, 500)
	m := New("METER", mRepo, 500)
	c := NewCoordinator(v, m, time.Hour)

	v.Push(model.VehicleReading{VehicleID: "V001"})
	v.Push(model.VehicleReading{VehicleID: "V002"})
	m.Push(model.MeterReading{MeterID: "M001"})

	gotV, gotM := c.Depths()
	require.Equal(t, 2, gotV)
	require.Equal(t, 1, gotM)
}

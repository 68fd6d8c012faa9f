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

// Written by hand in the shape of Wire's generated output; see wire.go.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject

package wiring

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/analytics"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/buffer"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/config"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/dbpool"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/httpapi"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/ingest"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/model"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/repository"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/stopper"
)

// App bundles every long-lived collaborator the entrypoint needs after
// wiring, so main only has to hold one value plus the pool-close
// callback.
type App struct {
	Pool        *pgxpool.Pool
	Vehicles    *buffer.Buffer[model.VehicleReading]
	Meters      *buffer.Buffer[model.MeterReading]
	Coordinator *buffer.Coordinator
	Dispatcher  *ingest.Dispatcher
	Reader      *analytics.Reader
	Server      *httpapi.Server
}

// Initialize builds the full dependency graph. It is the hand-written
// equivalent of what `wire` would generate from wire.go's provider
// set: flat, sequential construction with no hidden control flow.
func Initialize(ctx *stopper.Context, cfg *config.Config) (*App, func(), error) {
	pool, closePool, err := dbpool.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	vehicleRepo := repository.NewVehicleRepository(pool)
	meterRepo := repository.NewMeterRepository(pool)

	vehicles := buffer.New(string(model.ClassVehicle), vehicleRepo, cfg.BufferFlushSize)
	meters := buffer.New(string(model.ClassMeter), meterRepo, cfg.BufferFlushSize)
	coordinator := buffer.NewCoordinator(vehicles, meters, cfg.FlushInterval())

	dispatcher := ingest.NewDispatcher(vehicles, meters)
	reader := analytics.NewReader(pool)
	server := httpapi.NewServer(dispatcher, reader, coordinator)

	app := &App{
		Pool:        pool,
		Vehicles:    vehicles,
		Meters:      meters,
		Coordinator: coordinator,
		Dispatcher:  dispatcher,
		Reader:      reader,
		Server:      server,
	}
	return app, closePool, nil
}

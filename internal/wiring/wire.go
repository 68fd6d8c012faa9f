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

//go:build wireinject

// Package wiring assembles the engine's dependency graph: the pool,
// the two repositories, the per-class buffers and their coordinator,
// the dispatcher, and the analytics reader. wire_gen.go holds the
// hand-written Initialize that is actually compiled; it follows the
// shape of Wire's generated output.
package wiring

import (
	"github.com/google/wire"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/analytics"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/buffer"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/config"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/dbpool"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/httpapi"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/ingest"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/repository"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/stopper"
)

// Initialize builds an App from a stopper.Context and Config. The real
// implementation lives in wire_gen.go; this build-tagged file only
// declares the provider set for `wire` to consume. The per-class
// buffers and their Coordinator depend on cfg's flush settings, not
// just on the repositories; this provider set has no providers for
// them, and wire_gen.go's Initialize constructs them directly.
func Initialize(ctx *stopper.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		dbpool.Open,
		repository.NewVehicleRepository,
		repository.NewMeterRepository,
		ingest.NewDispatcher,
		analytics.NewReader,
		httpapi.NewServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

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

// Command ingestiond runs the telemetry ingestion engine: it binds the
// HTTP surface, drives the buffer coordinator, and schedules the
// background partition, rollup, and materialized-refresh jobs until it
// receives a termination signal.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/analytics"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/config"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/rollup"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/schema"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/stopper"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/telemetry"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/wiring"
)

func main() {
	telemetry.ConfigureLogging()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}
	if err := cfg.Preflight(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx := stopper.New(context.Background())
	defer ctx.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		ctx.Stop()
	}()

	app, closePool, err := wiring.Initialize(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("wiring dependencies")
	}
	defer closePool()
	pool := app.Pool

	if err := schema.Bootstrap(ctx, pool); err != nil {
		log.WithError(err).Fatal("bootstrapping schema")
	}
	if err := schema.EnsureMonthlyPartitions(ctx, pool, schema.VehicleReadings, time.Now(), 3); err != nil {
		log.WithError(err).Fatal("provisioning vehicle partitions")
	}
	if err := schema.EnsureMonthlyPartitions(ctx, pool, schema.MeterReadings, time.Now(), 3); err != nil {
		log.WithError(err).Fatal("provisioning meter partitions")
	}

	ctx.Go(func() error {
		app.Coordinator.Run(ctx)
		return nil
	})
	ctx.Go(func() error {
		<-ctx.Stopping()
		app.Coordinator.Shutdown(context.Background())
		return nil
	})

	mux := http.NewServeMux()
	mux.Handle("/", app.Server.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: cfg.BindAddr, Handler: mux}
	ctx.Go(func() error {
		log.WithField("addr", cfg.BindAddr).Info("http surface listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	ctx.Go(func() error {
		<-ctx.Stopping()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	scheduleEvery(ctx, cfg.RollupInterval, func() {
		if err := rollup.Run(ctx, pool, time.Now()); err != nil {
			log.WithError(err).Error("hourly rollup failed")
		}
	})
	scheduleEvery(ctx, cfg.MaterializedRefreshInterval, func() {
		if err := analytics.RefreshMaterializedPerformance(ctx, pool, time.Now()); err != nil {
			log.WithError(err).Error("materialized performance refresh failed")
		}
	})
	scheduleEvery(ctx, 24*time.Hour, func() {
		cutoff := time.Now().AddDate(0, -cfg.RetentionMonths, 0)
		if err := schema.DropPartitionsBefore(ctx, pool, schema.VehicleReadings, cutoff); err != nil {
			log.WithError(err).Error("dropping expired vehicle partitions")
		}
		if err := schema.DropPartitionsBefore(ctx, pool, schema.MeterReadings, cutoff); err != nil {
			log.WithError(err).Error("dropping expired meter partitions")
		}
		if err := schema.EnsureMonthlyPartitions(ctx, pool, schema.VehicleReadings, time.Now(), 3); err != nil {
			log.WithError(err).Error("provisioning vehicle partitions")
		}
		if err := schema.EnsureMonthlyPartitions(ctx, pool, schema.MeterReadings, time.Now(), 3); err != nil {
			log.WithError(err).Error("provisioning meter partitions")
		}
	})

	if err := ctx.Wait(); err != nil {
		log.WithError(err).Error("background task failure during shutdown")
	}
	log.Info("ingestiond exited cleanly")
}

// scheduleEvery registers a goroutine that calls fn once every
// interval until ctx stops, shutting down between ticks rather than
// mid-call.
func scheduleEvery(ctx *stopper.Context, interval time.Duration, fn func()) {
	ctx.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Stopping():
				return nil
			case <-ticker.C:
				fn()
			}
		}
	})
}

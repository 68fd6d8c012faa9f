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

// Package dbpool constructs the standardized pgxpool.Pool used by the
// repository and analytics layers.
package dbpool

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/config"
	"github.com/sangisapusaiteja/energy-ingestion-engine/internal/stopper"
)

// Open creates a connection pool against the target database. The
// pool is configured to use the simple query protocol rather than
// server-bound prepared statements, so that it remains compatible
// with an external transaction-mode connection pooler that may route
// successive statements from the same logical connection to different
// backend connections (spec §5, §9: "avoid server-bound prepared
// statements that persist across transactions").
//
// The returned cleanup function closes the pool. The pool is not
// closed when ctx stops: the caller runs cleanup once every
// goroutine registered on ctx has returned, so the shutdown drain
// still has a working pool.
func Open(ctx *stopper.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing database-url")
	}

	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	poolCfg.MinConns = cfg.PoolMin
	poolCfg.MaxConns = cfg.PoolMax
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 10 * time.Second

	// statement_timeout is a session RuntimeParam, so pgx sends it with
	// every new backend connection's startup packet rather than once at
	// pool-open time; that also covers connections the pool recycles
	// after MaxConnLifetime (spec §5: per-statement timeout enforced by
	// the database, aborting the transaction and triggering re-enqueue
	// on the write path).
	timeoutMS := strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = timeoutMS

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening target pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "could not ping target database")
	}

	cleanup := func() {
		pool.Close()
	}

	log.Info("target database pool ready")
	return pool, cleanup, nil
}

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

// Package config contains the user-visible configuration for the
// ingestion engine.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config contains the engine's full runtime configuration.
type Config struct {
	DatabaseURL string

	StatementTimeout time.Duration
	PoolMin          int32
	PoolMax          int32

	BufferFlushSize        int
	BufferFlushIntervalMS  int

	BindAddr string

	RetentionMonths             int
	RollupInterval              time.Duration
	MaterializedRefreshInterval time.Duration
}

// Bind registers the engine's flags. Every flag except rollup-interval
// and materialized-refresh-interval may also be supplied via an
// environment variable (see overrideFromEnv); environment values are
// applied by Load after flag parsing so that an explicit flag always
// wins.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.DatabaseURL, "database-url", "", "Postgres connection string for the target cluster")
	flags.DurationVar(&c.StatementTimeout, "statement-timeout", 30*time.Second, "per-statement timeout enforced by the database")
	flags.Int32Var(&c.PoolMin, "db-pool-min", 2, "minimum number of client-side pool connections")
	flags.Int32Var(&c.PoolMax, "db-pool-max", 32, "maximum number of client-side pool connections")
	flags.IntVar(&c.BufferFlushSize, "buffer-flush-size", 500, "records per class that trigger a size-based flush")
	flags.IntVar(&c.BufferFlushIntervalMS, "buffer-flush-interval-ms", 2000, "milliseconds between time-based flushes")
	flags.StringVar(&c.BindAddr, "bind-addr", ":8080", "network address the HTTP surface binds to")
	flags.IntVar(&c.RetentionMonths, "retention-months", 6, "months of reading partitions to retain before detach/drop")
	flags.DurationVar(&c.RollupInterval, "rollup-interval", time.Hour, "interval between hourly rollup jobs")
	flags.DurationVar(&c.MaterializedRefreshInterval, "materialized-refresh-interval", 15*time.Minute, "interval between materialized 24h performance refreshes")
}

// overrideFromEnv applies any of the ENUMERATED environment variables
// over whatever the flags produced, unless the corresponding flag was
// explicitly set on the command line.
func (c *Config) overrideFromEnv(flags *pflag.FlagSet) error {
	str := func(name, env string, dst *string) {
		if flags.Changed(name) {
			return
		}
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	dur := func(name, env string, dst *time.Duration, scale time.Duration) error {
		if flags.Changed(name) {
			return nil
		}
		v, ok := os.LookupEnv(env)
		if !ok {
			return nil
		}
		ms, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", env)
		}
		*dst = time.Duration(ms) * scale
		return nil
	}
	intVar := func(name, env string, dst *int) error {
		if flags.Changed(name) {
			return nil
		}
		v, ok := os.LookupEnv(env)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", env)
		}
		*dst = n
		return nil
	}
	int32Var := func(name, env string, dst *int32) error {
		if flags.Changed(name) {
			return nil
		}
		v, ok := os.LookupEnv(env)
		if !ok {
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", env)
		}
		*dst = int32(n)
		return nil
	}

	str("database-url", "DATABASE_URL", &c.DatabaseURL)
	str("bind-addr", "BIND_ADDR", &c.BindAddr)
	if err := intVar("buffer-flush-size", "BUFFER_FLUSH_SIZE", &c.BufferFlushSize); err != nil {
		return err
	}
	if err := intVar("buffer-flush-interval-ms", "BUFFER_FLUSH_INTERVAL_MS", &c.BufferFlushIntervalMS); err != nil {
		return err
	}
	if err := dur("statement-timeout", "STATEMENT_TIMEOUT_MS", &c.StatementTimeout, time.Millisecond); err != nil {
		return err
	}
	if err := int32Var("db-pool-min", "DB_POOL_MIN", &c.PoolMin); err != nil {
		return err
	}
	if err := int32Var("db-pool-max", "DB_POOL_MAX", &c.PoolMax); err != nil {
		return err
	}
	if err := intVar("retention-months", "RETENTION_MONTHS", &c.RetentionMonths); err != nil {
		return err
	}
	return nil
}

// Preflight validates the configuration after flags and environment
// variables have been applied. A failing Preflight is a fatal startup
// error.
func (c *Config) Preflight() error {
	if c.DatabaseURL == "" {
		return errors.New("database-url (or DATABASE_URL) must be set")
	}
	if c.BufferFlushSize <= 0 {
		return errors.New("buffer-flush-size must be positive")
	}
	if c.BufferFlushIntervalMS <= 0 {
		return errors.New("buffer-flush-interval-ms must be positive")
	}
	if c.PoolMin < 0 || c.PoolMax <= 0 || c.PoolMin > c.PoolMax {
		return errors.New("db-pool-min/db-pool-max are not a valid range")
	}
	if c.RetentionMonths <= 0 {
		return errors.New("retention-months must be positive")
	}
	if c.BindAddr == "" {
		return errors.New("bind-addr unset")
	}
	return nil
}

// FlushInterval returns the configured time trigger as a
// time.Duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.BufferFlushIntervalMS) * time.Millisecond
}

// Load binds flags, parses args, applies environment overrides, and
// returns the resulting Config.
func Load(args []string) (*Config, error) {
	c := &Config{}
	flags := pflag.NewFlagSet("ingestiond", pflag.ContinueOnError)
	c.Bind(flags)
	if err := flags.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parsing flags")
	}
	if err := c.overrideFromEnv(flags); err != nil {
		return nil, err
	}
	return c, nil
}

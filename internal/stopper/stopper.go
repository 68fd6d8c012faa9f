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

// Package stopper provides a small cooperative lifecycle context used
// to coordinate the background goroutines started by the ingestion
// engine (the flush ticker, partition maintenance, rollups) with a
// single shutdown signal.
package stopper

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Context wraps a context.Context with a group of background
// goroutines that must all complete before Wait returns. It is modeled on the Go(), Stopping() idiom used
// throughout the teacher's connection-pool lifecycle code.
type Context struct {
	context.Context

	cancel   context.CancelFunc
	stopping chan struct{}
	once     sync.Once

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// New returns a Context derived from parent.
func New(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	return &Context{
		Context:  ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
	}
}

// Go runs fn in a new goroutine. Any error it returns is collected
// and surfaced by Wait.
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		}
	}()
}

// Stopping returns a channel that is closed once Stop has been
// called. Goroutines started with Go should select on this channel
// to begin winding down.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Stop signals all goroutines registered with Go to begin shutting
// down by closing the channel returned by Stopping and canceling the
// derived context.
func (c *Context) Stop() {
	c.once.Do(func() {
		close(c.stopping)
		c.cancel()
	})
}

// Wait blocks until every goroutine started with Go has returned,
// then returns a combined error, if any occurred.
func (c *Context) Wait() error {
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return errors.Errorf("%d background task(s) failed: %v", len(c.errs), c.errs)
}

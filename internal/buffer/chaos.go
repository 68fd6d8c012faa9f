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
	"math/rand"

	"github.com/pkg/errors"
)

// ErrChaos is returned by a ChaosRepository when it injects a
// synthetic failure.
var ErrChaos = errors.New("chaos")

// ChaosRepository wraps a Repository so that IngestBatch randomly
// fails with probability prob, without touching the delegate. It
// exists to exercise Buffer's retry-and-re-enqueue path (spec §4.3
// Retry on failure) under conditions closer to a flaky database than a
// fixed-count fake can provide.
type ChaosRepository[R any] struct {
	delegate Repository[R]
	prob     float32
}

// WithChaos wraps delegate so that IngestBatch fails with probability
// prob. A non-positive prob returns delegate unchanged.
func WithChaos[R any](delegate Repository[R], prob float32) Repository[R] {
	if prob <= 0 {
		return delegate
	}
	return &ChaosRepository[R]{delegate: delegate, prob: prob}
}

// IngestBatch implements Repository[R].
func (c *ChaosRepository[R]) IngestBatch(ctx context.Context, records []R) error {
	if rand.Float32() < c.prob {
		return errors.WithMessage(ErrChaos, "injected ingest failure")
	}
	return c.delegate.IngestBatch(ctx, records)
}

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

	"github.com/stretchr/testify/require"
)

func TestWithChaosZeroProbabilityReturnsDelegateUnchanged(t *testing.T) {
	repo := &fakeRepository{}
	require.Same(t, Repository[int](repo), WithChaos[int](repo, 0))
}

func TestWithChaosAlwaysFailsAtFullProbability(t *testing.T) {
	repo := &fakeRepository{}
	chaotic := WithChaos[int](repo, 1)

	err := chaotic.IngestBatch(context.Background(), []int{1, 2, 3})

	require.ErrorIs(t, err, ErrChaos)
	require.Empty(t, repo.committed)
}

func TestWithChaosNeverFailsAtZeroProbabilityAndDelegates(t *testing.T) {
	repo := &fakeRepository{}
	b := New("t", WithChaos[int](repo, 0), 10)

	for i := 0; i < 5; i++ {
		b.Push(i)
	}
	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, repo.allCommitted(), 5)
}

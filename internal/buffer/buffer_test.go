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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRepository is an in-memory stand-in for a Repository, used to
// assert on exactly what a Flush would have committed without a
// database.
type fakeRepository struct {
	mu        sync.Mutex
	committed [][]int
	failNext  int // number of upcoming IngestBatch calls to fail
}

func (f *fakeRepository) IngestBatch(_ context.Context, records []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errBoom
	}
	batch := append([]int(nil), records...)
	f.committed = append(f.committed, batch)
	return nil
}

func (f *fakeRepository) allCommitted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, b := range f.committed {
		out = append(out, b...)
	}
	return out
}

var errBoom = boomError{}

type boomError struct{}

func (boomError) Error() string { return "boom" }

func TestFlushOfEmptyBufferDoesNoWork(t *testing.T) {
	repo := &fakeRepository{}
	b := New("t", repo, 10)

	require.NoError(t, b.Flush(context.Background()))
	require.Empty(t, repo.committed)
}

func TestFlushOfExactlyFlushSizeCommitsOneBatch(t *testing.T) {
	repo := &fakeRepository{}
	b := New("t", repo, 5)

	for i := 0; i < 5; i++ {
		b.Push(i)
	}
	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, repo.committed, 1)
	require.Len(t, repo.committed[0], 5)
}

func TestPushAcrossSizeTriggerFlushesOnlyTheThreshold(t *testing.T) {
	repo := &fakeRepository{}
	b := New("t", repo, 500)

	for i := 0; i < 501; i++ {
		b.Push(i)
	}

	select {
	case <-b.SizeTriggered():
	default:
		t.Fatal("expected size trigger to have fired")
	}

	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, repo.committed, 1)
	require.Len(t, repo.committed[0], 500)
	require.Equal(t, 1, b.Depth())
}

func TestFlushFailureReenqueuesTheWholeBatch(t *testing.T) {
	repo := &fakeRepository{failNext: 1}
	b := New("t", repo, 10)

	for i := 0; i < 3; i++ {
		b.Push(i)
	}

	err := b.Flush(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, b.Depth())

	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, repo.committed, 1)
	require.Len(t, repo.committed[0], 3)
}

func TestRetryAfterTransientFailurePersistsExactlyOnceNoGaps(t *testing.T) {
	repo := &fakeRepository{failNext: 1}
	b := New("t", repo, 1000)

	for i := 0; i < 100; i++ {
		b.Push(i)
	}

	require.Error(t, b.Flush(context.Background())) // transient failure
	require.NoError(t, b.Flush(context.Background()))

	got := repo.allCommitted()
	require.Len(t, got, 100)
	seen := make(map[int]bool, 100)
	for _, v := range got {
		require.False(t, seen[v], "duplicate record %d", v)
		seen[v] = true
	}
}

func TestConcurrentPushAndFlushLoseNoRecords(t *testing.T) {
	repo := &fakeRepository{}
	b := New("t", repo, 1000000) // size trigger never fires; only explicit Flush below

	var wg sync.WaitGroup
	const n = 2000
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Push(i)
		}(i)
	}
	wg.Wait()

	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, n, len(repo.allCommitted()))
}

func TestDrainBestEffortDiscardsOnFailure(t *testing.T) {
	repo := &fakeRepository{failNext: 1}
	b := New("t", repo, 10)
	b.Push(1)
	b.Push(2)

	b.drainBestEffort(context.Background())

	require.Equal(t, 0, b.Depth())
	require.Empty(t, repo.committed)
}

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

package rollup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompletedHourBucketTruncatesToPrecedingHour(t *testing.T) {
	hourEnd := time.Date(2026, 1, 1, 10, 47, 12, 0, time.UTC)
	got := completedHourBucket(hourEnd)
	require.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), got)
}

func TestCompletedHourBucketOnExactHourBoundary(t *testing.T) {
	hourEnd := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	got := completedHourBucket(hourEnd)
	require.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), got)
}

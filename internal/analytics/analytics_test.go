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

package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEfficiencyRatioZeroDenominator(t *testing.T) {
	got := efficiencyRatio(decimal.NewFromInt(10), decimal.Zero)
	require.True(t, decimal.Zero.Equal(got))
}

func TestEfficiencyRatioRoundsToTwoPlaces(t *testing.T) {
	dc := decimal.RequireFromString("9.555")
	ac := decimal.RequireFromString("10")
	got := efficiencyRatio(dc, ac)
	require.True(t, decimal.RequireFromString("95.55").Equal(got), "got %s", got)
}

func TestEfficiencyRatioFullEfficiency(t *testing.T) {
	dc := decimal.RequireFromString("20")
	ac := decimal.RequireFromString("20")
	got := efficiencyRatio(dc, ac)
	require.True(t, decimal.NewFromInt(100).Equal(got), "got %s", got)
}

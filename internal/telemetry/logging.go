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

package telemetry

import (
	log "github.com/sirupsen/logrus"
)

// ConfigureLogging sets the process-wide logrus formatter. Record
// contents are never logged here: the write path only logs counts and
// durations, never field values, to avoid oversized logs at the
// target throughput (spec §4.2 side effects).
func ConfigureLogging() {
	log.SetFormatter(&log.JSONFormatter{})
}

// Copyright 2023 LiveKit, Inc.
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

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

func (m *Monitor) IncUploadCountSuccess(asset string, elapsed float64) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"asset": asset, "status": statusSuccess}
	m.uploadsCounter.With(labels).Add(1)
	m.uploadsLatency.With(labels).Observe(elapsed)
}

func (m *Monitor) IncUploadCountFailure(asset string, elapsed float64) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"asset": asset, "status": statusFailure}
	m.uploadsCounter.With(labels).Add(1)
	m.uploadsLatency.With(labels).Observe(elapsed)
}

func (m *Monitor) IncBackupStorageWrites(asset string) {
	if m == nil {
		return
	}
	m.uploadsCounter.With(prometheus.Labels{"asset": asset, "status": "backup"}).Add(1)
}

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

	"github.com/livekit/capture-recorder/pkg/types"
)

const (
	namespace = "livekit"
	subsystem = "recorder"

	statusSuccess = "success"
	statusFailure = "failure"
)

// Monitor exports recorder metrics. A nil Monitor is valid and records nothing.
type Monitor struct {
	state          prometheus.Gauge
	sessions       *prometheus.CounterVec
	segments       *prometheus.CounterVec
	merges         *prometheus.CounterVec
	uploadsCounter *prometheus.CounterVec
	uploadsLatency *prometheus.HistogramVec
}

func NewMonitor(reg prometheus.Registerer, nodeID string, mode types.RecordingMode) (*Monitor, error) {
	constantLabels := prometheus.Labels{"node_id": nodeID, "mode": string(mode)}

	m := &Monitor{}
	m.state = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "state",
		Help:        "Current recorder state: 0 idle, 1 recording, 2 paused, 3 stopping",
		ConstLabels: constantLabels,
	})

	m.sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "sessions",
		Help:        "Number of finished recording sessions by status",
		ConstLabels: constantLabels,
	}, []string{"status"})

	m.segments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "segments",
		Help:        "Number of finalized segments with asset and reason labels",
		ConstLabels: constantLabels,
	}, []string{"asset", "reason", "status"}) // reason: pause, stop

	m.merges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "merges",
		Help:        "Number of segment merges with asset and status labels",
		ConstLabels: constantLabels,
	}, []string{"asset", "status"})

	m.uploadsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "uploads",
		Help:        "Number of uploads with asset and status labels",
		ConstLabels: constantLabels,
	}, []string{"asset", "status"}) // status: success, failure, backup

	m.uploadsLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        "upload_response_time_ms",
		Help:        "A histogram of latencies for upload requests in milliseconds.",
		Buckets:     []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 15000, 20000, 30000},
		ConstLabels: constantLabels,
	}, []string{"asset", "status"})

	for _, c := range []prometheus.Collector{m.state, m.sessions, m.segments, m.merges, m.uploadsCounter, m.uploadsLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Monitor) SetState(state types.State) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

func (m *Monitor) IncSession(failed bool) {
	if m == nil {
		return
	}
	m.sessions.With(prometheus.Labels{"status": status(!failed)}).Inc()
}

func (m *Monitor) IncSegment(kind types.AssetKind, reason types.StopReason, ok bool) {
	if m == nil {
		return
	}
	m.segments.With(prometheus.Labels{"asset": string(kind), "reason": reason.String(), "status": status(ok)}).Inc()
}

func (m *Monitor) IncMerge(kind types.AssetKind, ok bool) {
	if m == nil {
		return
	}
	m.merges.With(prometheus.Labels{"asset": string(kind), "status": status(ok)}).Inc()
}

func status(ok bool) string {
	if ok {
		return statusSuccess
	}
	return statusFailure
}

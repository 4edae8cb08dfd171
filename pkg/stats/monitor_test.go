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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/livekit/capture-recorder/pkg/types"
)

func TestMonitor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMonitor(reg, "NR_test", types.ModeCameraAndScreen)
	require.NoError(t, err)

	m.SetState(types.StatePaused)
	require.Equal(t, float64(2), testutil.ToFloat64(m.state))

	m.IncSegment(types.AssetCamera, types.StopPause, true)
	m.IncSegment(types.AssetCamera, types.StopPause, true)
	m.IncSegment(types.AssetScreen, types.StopFinal, false)
	require.Equal(t, float64(2), testutil.ToFloat64(m.segments.WithLabelValues("camera", "pause", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.segments.WithLabelValues("screen", "stop", "failure")))

	m.IncMerge(types.AssetScreen, false)
	require.Equal(t, float64(1), testutil.ToFloat64(m.merges.WithLabelValues("screen", "failure")))

	m.IncUploadCountSuccess("camera", 120)
	m.IncBackupStorageWrites("camera")
	require.Equal(t, float64(1), testutil.ToFloat64(m.uploadsCounter.WithLabelValues("camera", "success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.uploadsCounter.WithLabelValues("camera", "backup")))

	m.IncSession(false)
	require.Equal(t, float64(1), testutil.ToFloat64(m.sessions.WithLabelValues("success")))

	// registering twice on the same registry fails
	_, err = NewMonitor(reg, "NR_test", types.ModeCameraAndScreen)
	require.Error(t, err)
}

func TestNilMonitor(t *testing.T) {
	var m *Monitor
	m.SetState(types.StateRecording)
	m.IncSession(true)
	m.IncSegment(types.AssetCamera, types.StopFinal, true)
	m.IncMerge(types.AssetCamera, true)
	m.IncUploadCountFailure("camera", 1)
	m.IncBackupStorageWrites("camera")
}

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

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecordingMode(t *testing.T) {
	for input, expected := range map[string]RecordingMode{
		"camera":            ModeCameraOnly,
		"Screen":            ModeScreenOnly,
		"camera_and_screen": ModeCameraAndScreen,
		" both ":            ModeCameraAndScreen,
	} {
		mode, err := ParseRecordingMode(input)
		require.NoError(t, err, input)
		require.Equal(t, expected, mode)
	}

	_, err := ParseRecordingMode("microphone")
	require.Error(t, err)
}

func TestModeKinds(t *testing.T) {
	require.Equal(t, []AssetKind{AssetCamera}, ModeCameraOnly.Kinds())
	require.Equal(t, []AssetKind{AssetScreen}, ModeScreenOnly.Kinds())
	require.Equal(t, []AssetKind{AssetCamera, AssetScreen}, ModeCameraAndScreen.Kinds())
	require.Empty(t, RecordingMode("").Kinds())

	require.True(t, ModeCameraAndScreen.Includes(AssetScreen))
	require.False(t, ModeCameraOnly.Includes(AssetScreen))
}

func TestRecordingOutput(t *testing.T) {
	out := &RecordingOutput{}
	require.True(t, out.IsEmpty())

	screen := &AssetOutput{Kind: AssetScreen, Filename: "screen.mp4"}
	out.Set(AssetScreen, screen)
	require.False(t, out.IsEmpty())
	require.Nil(t, out.Get(AssetCamera))
	require.Equal(t, screen, out.Get(AssetScreen))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "paused", StatePaused.String())
	require.Equal(t, "stop", StopFinal.String())
}

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
	"fmt"
	"strings"
)

type RecordingMode string
type AssetKind string
type State int
type StopReason int
type OutputType string
type MimeType string

const (
	// recording modes
	ModeCameraOnly      RecordingMode = "camera"
	ModeScreenOnly      RecordingMode = "screen"
	ModeCameraAndScreen RecordingMode = "camera_and_screen"

	// asset kinds
	AssetCamera AssetKind = "camera"
	AssetScreen AssetKind = "screen"

	// codecs
	MimeTypeAAC  MimeType = "audio/aac"
	MimeTypeH264 MimeType = "video/h264"

	// output types
	OutputTypeMP4 OutputType = "video/mp4"

	FileExtensionMP4 = ".mp4"
)

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

const (
	// StopPause finalizes the current segment and leaves the capture session running
	StopPause StopReason = iota
	// StopFinal finalizes the current segment and stops the capture session
	StopFinal
)

func (r StopReason) String() string {
	switch r {
	case StopPause:
		return "pause"
	case StopFinal:
		return "stop"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

var AllAssetKinds = []AssetKind{AssetCamera, AssetScreen}

func ParseRecordingMode(s string) (RecordingMode, error) {
	switch RecordingMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCameraOnly, "camera_only":
		return ModeCameraOnly, nil
	case ModeScreenOnly, "screen_only":
		return ModeScreenOnly, nil
	case ModeCameraAndScreen, "camera_screen", "both":
		return ModeCameraAndScreen, nil
	default:
		return "", fmt.Errorf("invalid recording mode: %q", s)
	}
}

// Kinds returns the asset kinds active for the mode, camera first.
func (m RecordingMode) Kinds() []AssetKind {
	switch m {
	case ModeCameraOnly:
		return []AssetKind{AssetCamera}
	case ModeScreenOnly:
		return []AssetKind{AssetScreen}
	case ModeCameraAndScreen:
		return []AssetKind{AssetCamera, AssetScreen}
	default:
		return nil
	}
}

func (m RecordingMode) Includes(kind AssetKind) bool {
	for _, k := range m.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// AssetOutput describes the finished file for one asset.
type AssetOutput struct {
	Kind         AssetKind `json:"kind"`
	Filename     string    `json:"filename"`           // merged local file
	Location     string    `json:"location,omitempty"` // persisted location, empty if persistence failed
	Size         int64     `json:"size"`
	SegmentCount int       `json:"segment_count"`
}

// RecordingOutput is delivered once per stop. A nil asset output means the asset
// produced nothing.
type RecordingOutput struct {
	SessionID string       `json:"session_id,omitempty"`
	Camera    *AssetOutput `json:"camera,omitempty"`
	Screen    *AssetOutput `json:"screen,omitempty"`
	Error     error        `json:"-"`
}

func (o *RecordingOutput) Get(kind AssetKind) *AssetOutput {
	switch kind {
	case AssetCamera:
		return o.Camera
	case AssetScreen:
		return o.Screen
	default:
		return nil
	}
}

func (o *RecordingOutput) Set(kind AssetKind, out *AssetOutput) {
	switch kind {
	case AssetCamera:
		o.Camera = out
	case AssetScreen:
		o.Screen = out
	}
}

func (o *RecordingOutput) IsEmpty() bool {
	return o.Camera == nil && o.Screen == nil
}

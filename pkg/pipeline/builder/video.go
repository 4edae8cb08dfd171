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

package builder

import (
	"fmt"
	"strings"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/types"
)

const keyframeInterval = 2 // seconds

// PresetDimensions returns the source resolution of a session preset.
func PresetDimensions(preset string) (int32, int32, bool) {
	switch preset {
	case config.SessionPresetHD1920x1080:
		return 1920, 1080, true
	case config.SessionPresetHD1280x720:
		return 1280, 720, true
	case config.SessionPresetVGA640x480:
		return 640, 480, true
	default:
		return 0, 0, false
	}
}

// VideoSourceFactory returns the gstreamer source element for an asset kind.
func VideoSourceFactory(kind types.AssetKind) string {
	switch kind {
	case types.AssetCamera:
		return "v4l2src"
	case types.AssetScreen:
		return "ximagesrc"
	default:
		return ""
	}
}

func buildVideoBranch(kind types.AssetKind, s *config.CaptureSettings) (Branch, error) {
	var b Branch
	switch kind {
	case types.AssetCamera:
		b = append(b, Element{
			Factory: VideoSourceFactory(kind),
			Name:    VideoSourceName,
			Properties: []Property{
				{Name: "device", Value: s.Device},
				{Name: "do-timestamp", Value: true},
			},
		})
		if controls := CameraControls(s); controls != "" {
			b[0].Properties = append(b[0].Properties, Property{Name: "extra-controls", Value: controls, Arg: true})
		}
		if w, h, ok := PresetDimensions(s.SessionPreset); ok {
			b = append(b, capsFilter("video_src_caps", fmt.Sprintf("video/x-raw,width=%d,height=%d", w, h)))
		}

	case types.AssetScreen:
		b = append(b, Element{
			Factory: VideoSourceFactory(kind),
			Name:    VideoSourceName,
			Properties: []Property{
				{Name: "display-name", Value: s.Device},
				{Name: "show-pointer", Value: s.ShowPointer},
				{Name: "use-damage", Value: false},
			},
		})

	default:
		return nil, errors.ErrInvalidInput("asset kind")
	}

	b = append(b,
		queue("video_queue"),
		Element{Factory: "videoconvert"},
		Element{Factory: "videoscale"},
		Element{Factory: "videorate", Properties: []Property{{Name: "skip-to-first", Value: true}}},
		capsFilter("video_caps", rawVideoCaps(s)),
	)

	switch s.VideoCodec {
	case types.MimeTypeH264:
		b = append(b,
			Element{
				Factory: "x264enc",
				Name:    "video_enc",
				Properties: []Property{
					{Name: "bitrate", Value: uint(s.VideoBitrate)},
					{Name: "key-int-max", Value: uint(keyframeInterval * s.Framerate)},
					{Name: "speed-preset", Value: "veryfast", Arg: true},
					{Name: "tune", Value: "zerolatency", Arg: true},
				},
			},
			capsFilter("video_enc_caps", "video/x-h264,profile=main"),
			Element{Factory: "h264parse"},
		)
	default:
		return nil, errors.ErrInvalidInput("video codec")
	}

	return b, nil
}

func rawVideoCaps(s *config.CaptureSettings) string {
	caps := []string{"video/x-raw", "format=I420"}
	if s.Width > 0 && s.Height > 0 {
		caps = append(caps, fmt.Sprintf("width=%d", s.Width), fmt.Sprintf("height=%d", s.Height))
	}
	if s.Framerate > 0 {
		caps = append(caps, fmt.Sprintf("framerate=%d/1", s.Framerate))
	}
	return strings.Join(caps, ",")
}

// CameraControls returns the v4l2 control structure for the camera settings,
// or an empty string when nothing needs to be set.
func CameraControls(s *config.CaptureSettings) string {
	var controls []string
	if s.ContinuousAutofocus {
		controls = append(controls, "focus_automatic_continuous=1")
	}
	if s.ContinuousExposure {
		// aperture priority
		controls = append(controls, "auto_exposure=3")
	}
	if len(controls) == 0 {
		return ""
	}
	return "c," + strings.Join(controls, ",")
}

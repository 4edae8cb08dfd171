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

package config

import (
	"github.com/livekit/capture-recorder/pkg/types"
)

const (
	SessionPresetHD1280x720  = "hd1280x720"
	SessionPresetHD1920x1080 = "hd1920x1080"
	SessionPresetVGA640x480  = "vga640x480"
)

// Point is a normalized (0..1) coordinate in the capture frame.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

var CenterPoint = Point{X: 0.5, Y: 0.5}

type CaptureSettings struct {
	// sources
	Device      string `yaml:"device"`       // camera device, or X display for screen capture
	AudioDevice string `yaml:"audio_device"` // pulse source, empty for the default source
	AudioOff    bool   `yaml:"audio_off"`    // record video only

	// capture
	SessionPreset       string `yaml:"session_preset"`       // source resolution preset
	ContinuousAutofocus bool   `yaml:"continuous_autofocus"` // camera only
	ContinuousExposure  bool   `yaml:"continuous_exposure"`  // camera only
	FocusPoint          *Point `yaml:"focus_point"`          // camera only
	ExposurePoint       *Point `yaml:"exposure_point"`       // camera only
	ShowPointer         bool   `yaml:"show_pointer"`         // screen only

	// encoding
	VideoCodec      types.MimeType `yaml:"video_codec"`
	Width           int32          `yaml:"width"`  // 0 keeps the source width
	Height          int32          `yaml:"height"` // 0 keeps the source height
	Framerate       int32          `yaml:"framerate"`
	VideoBitrate    int32          `yaml:"video_bitrate"` // kbps
	AudioCodec      types.MimeType `yaml:"audio_codec"`
	AudioSampleRate int32          `yaml:"audio_sample_rate"`
	AudioChannels   int32          `yaml:"audio_channels"`
	AudioBitrate    int32          `yaml:"audio_bitrate"` // kbps
}

// DefaultCaptureSettings returns the capture parameters applied before each session.
func DefaultCaptureSettings(kind types.AssetKind) *CaptureSettings {
	switch kind {
	case types.AssetCamera:
		return &CaptureSettings{
			Device:              "/dev/video0",
			SessionPreset:       SessionPresetHD1280x720,
			ContinuousAutofocus: true,
			ContinuousExposure:  true,
			VideoCodec:          types.MimeTypeH264,
			Width:               720,
			Height:              1280,
			Framerate:           30,
			VideoBitrate:        3000,
			AudioCodec:          types.MimeTypeAAC,
			AudioSampleRate:     44100,
			AudioChannels:       2,
			AudioBitrate:        128,
		}
	case types.AssetScreen:
		return &CaptureSettings{
			Device:          ":0",
			ShowPointer:     true,
			VideoCodec:      types.MimeTypeH264,
			Framerate:       30,
			VideoBitrate:    4500,
			AudioOff:        true,
			AudioCodec:      types.MimeTypeAAC,
			AudioSampleRate: 44100,
			AudioChannels:   2,
			AudioBitrate:    128,
		}
	default:
		return nil
	}
}

// mergeDefaults fills unset fields from the defaults for the kind.
func (s *CaptureSettings) mergeDefaults(kind types.AssetKind) {
	d := DefaultCaptureSettings(kind)
	if s.Device == "" {
		s.Device = d.Device
	}
	if s.SessionPreset == "" {
		s.SessionPreset = d.SessionPreset
	}
	if s.VideoCodec == "" {
		s.VideoCodec = d.VideoCodec
	}
	if s.Framerate <= 0 {
		s.Framerate = d.Framerate
	}
	if s.VideoBitrate <= 0 {
		s.VideoBitrate = d.VideoBitrate
	}
	if s.AudioCodec == "" {
		s.AudioCodec = d.AudioCodec
	}
	if s.AudioSampleRate <= 0 {
		s.AudioSampleRate = d.AudioSampleRate
	}
	if s.AudioChannels <= 0 {
		s.AudioChannels = d.AudioChannels
	}
	if s.AudioBitrate <= 0 {
		s.AudioBitrate = d.AudioBitrate
	}
}

func (s *CaptureSettings) Clone() *CaptureSettings {
	c := *s
	if s.FocusPoint != nil {
		p := *s.FocusPoint
		c.FocusPoint = &p
	}
	if s.ExposurePoint != nil {
		p := *s.ExposurePoint
		c.ExposurePoint = &p
	}
	return &c
}

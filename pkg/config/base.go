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
	"os"
	"strings"
	"time"

	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
)

const TmpDir = "/tmp/capture-recorder"

type BaseConfig struct {
	NodeID string // do not supply - will be overwritten

	// optional
	Logging         *logger.Config `yaml:"logging"`          // logging config
	Mode            string         `yaml:"mode"`             // camera, screen or camera_and_screen
	TmpDir          string         `yaml:"tmp_dir"`          // directory for segments and merged files
	FinalizeTimeout time.Duration  `yaml:"finalize_timeout"` // max wait for a segment writer to finish

	Camera *CaptureSettings `yaml:"camera"` // camera pipeline settings
	Screen *CaptureSettings `yaml:"screen"` // screen pipeline settings
	Merge  MergeConfig      `yaml:"merge"`  // segment merge settings

	StorageConfig *StorageConfig `yaml:"storage,omitempty"` // storage config
	BackupConfig  *StorageConfig `yaml:"backup,omitempty"`  // backup config, for storage failures

	// advanced
	Debug DebugConfig `yaml:"debug"`
}

type MergeConfig struct {
	FFmpegPath   string        `yaml:"ffmpeg_path"`   // ffmpeg binary used to concatenate segments
	Timeout      time.Duration `yaml:"timeout"`       // max duration of a single merge
	KeepSegments bool          `yaml:"keep_segments"` // leave segment files on disk after merging
}

type DebugConfig struct {
	GstLogFile    string `yaml:"gst_log_file"`     // write gstreamer logs to a rotated file instead of the main logger
	GstLogMaxSize int    `yaml:"gst_log_max_size"` // in megabytes
	GstLogBackups int    `yaml:"gst_log_backups"`
	DotDir        string `yaml:"dot_dir"` // write a pipeline graph here when a segment pipeline fails
}

func (c *BaseConfig) RecordingMode() types.RecordingMode {
	mode, _ := types.ParseRecordingMode(c.Mode)
	return mode
}

// CaptureSettings returns the settings for an asset kind.
func (c *BaseConfig) CaptureSettings(kind types.AssetKind) *CaptureSettings {
	switch kind {
	case types.AssetCamera:
		return c.Camera
	case types.AssetScreen:
		return c.Screen
	default:
		return nil
	}
}

func (c *BaseConfig) initLogger(values ...interface{}) error {
	_, exists := os.LookupEnv("GST_DEBUG")

	// If GST_DEBUG is not set, use pre-defined values based on logging level
	if !exists {
		var gstDebug []string
		switch c.Logging.Level {
		case "debug":
			gstDebug = []string{"3"}
		case "info", "warn":
			gstDebug = []string{"2"}
		case "error":
			gstDebug = []string{"1"}
		}
		gstDebug = append(gstDebug,
			"v4l2src:2",
			"ximagesrc:2",
		)

		if err := os.Setenv("GST_DEBUG", strings.Join(gstDebug, ",")); err != nil {
			return err
		}
	}

	zl, err := logger.NewZapLogger(c.Logging)
	if err != nil {
		return err
	}

	l := zl.WithValues(values...)

	logger.SetLogger(l, "capture-recorder")
	return nil
}

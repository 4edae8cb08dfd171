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
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"
)

const (
	defaultFinalizeTimeout = time.Second * 30
	defaultMergeTimeout    = time.Minute * 5
	defaultFFmpegPath      = "ffmpeg"
	defaultGstLogMaxSize   = 50
)

type ServiceConfig struct {
	BaseConfig `yaml:",inline"`

	HealthPort     int `yaml:"health_port"`     // health check port
	PrometheusPort int `yaml:"prometheus_port"` // prometheus handler port
}

// NewServiceConfig parses the yaml config. A non-empty mode overrides the configured one.
func NewServiceConfig(confString, mode string) (*ServiceConfig, error) {
	conf, err := parseServiceConfig(confString, mode)
	if err != nil {
		return nil, err
	}

	if err = conf.initLogger("nodeID", conf.NodeID, "mode", conf.Mode); err != nil {
		return nil, err
	}

	return conf, nil
}

func parseServiceConfig(confString, mode string) (*ServiceConfig, error) {
	conf := &ServiceConfig{
		BaseConfig: BaseConfig{
			Logging: &logger.Config{
				Level: "info",
			},
			Mode: string(types.ModeCameraAndScreen),
		},
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}

	if mode != "" {
		conf.Mode = mode
	}

	// always create a new node ID
	conf.NodeID = utils.NewGuid("NR_")

	if err := conf.validate(); err != nil {
		return nil, err
	}
	conf.applyDefaults()

	return conf, nil
}

func (c *BaseConfig) validate() error {
	if _, err := types.ParseRecordingMode(c.Mode); err != nil {
		return errors.ErrInvalidInput("mode")
	}
	for _, s := range []*CaptureSettings{c.Camera, c.Screen} {
		if s == nil {
			continue
		}
		if s.Width < 0 || s.Height < 0 || s.Framerate < 0 {
			return errors.ErrInvalidInput("dimensions")
		}
		if s.VideoCodec != "" && s.VideoCodec != types.MimeTypeH264 {
			return errors.ErrInvalidInput("video_codec")
		}
		if s.AudioCodec != "" && s.AudioCodec != types.MimeTypeAAC {
			return errors.ErrInvalidInput("audio_codec")
		}
	}
	return nil
}

func (c *BaseConfig) applyDefaults() {
	mode := c.RecordingMode()
	c.Mode = string(mode)

	if c.Logging == nil {
		c.Logging = &logger.Config{Level: "info"}
	}
	if c.TmpDir == "" {
		c.TmpDir = TmpDir
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = defaultFinalizeTimeout
	}

	if c.Camera == nil {
		c.Camera = DefaultCaptureSettings(types.AssetCamera)
	} else {
		c.Camera.mergeDefaults(types.AssetCamera)
	}
	if c.Screen == nil {
		c.Screen = DefaultCaptureSettings(types.AssetScreen)
	} else {
		c.Screen.mergeDefaults(types.AssetScreen)
	}

	if c.Merge.FFmpegPath == "" {
		c.Merge.FFmpegPath = defaultFFmpegPath
	}
	if c.Merge.Timeout <= 0 {
		c.Merge.Timeout = defaultMergeTimeout
	}

	if c.Debug.GstLogFile != "" && c.Debug.GstLogMaxSize <= 0 {
		c.Debug.GstLogMaxSize = defaultGstLogMaxSize
	}

	c.StorageConfig.applyDefaults()
	c.BackupConfig.applyDefaults()
}

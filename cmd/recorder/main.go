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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/merge"
	"github.com/livekit/capture-recorder/pkg/pipeline"
	"github.com/livekit/capture-recorder/pkg/recorder"
	"github.com/livekit/capture-recorder/pkg/stats"
	"github.com/livekit/capture-recorder/pkg/uploader"
	"github.com/livekit/capture-recorder/version"
	"github.com/livekit/protocol/logger"
)

func main() {
	cmd := &cli.Command{
		Name:        "capture-recorder",
		Usage:       "LiveKit Capture Recorder",
		Version:     version.Version,
		Description: "records camera and screen capture, merges segments and stores the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Capture Recorder yaml config file",
				Sources: cli.EnvVars("RECORDER_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "Capture Recorder yaml config body",
				Sources: cli.EnvVars("RECORDER_CONFIG_BODY"),
			},
			&cli.StringFlag{
				Name:    "mode",
				Usage:   "recording mode (camera, screen or camera_and_screen), overrides the config",
				Sources: cli.EnvVars("RECORDER_MODE"),
			},
		},
		Action: runRecorder,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Command) (*config.ServiceConfig, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" {
		if configFile == "" {
			return nil, errors.ErrNoConfig
		}
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}

	return config.NewServiceConfig(configBody, c.String("mode"))
}

func runRecorder(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(conf.TmpDir, 0755); err != nil {
		return err
	}

	monitor, err := stats.NewMonitor(prometheus.DefaultRegisterer, conf.NodeID, conf.RecordingMode())
	if err != nil {
		return err
	}

	u, err := uploader.New(conf.StorageConfig, conf.BackupConfig, monitor)
	if err != nil {
		return err
	}

	rec, err := recorder.New(recorder.Params{
		Conf:      &conf.BaseConfig,
		Factory:   pipeline.NewFactory(&conf.BaseConfig),
		Merger:    merge.New(conf.Merge),
		Persister: u,
		Monitor:   monitor,
		OnError: func(err error) {
			logger.Warnw("recording error", err)
		},
	})
	if err != nil {
		return err
	}
	defer rec.Close()

	if err = rec.Setup(ctx); err != nil {
		return err
	}

	servers, err := startServers(conf, rec)
	if err != nil {
		return err
	}
	defer servers.shutdown()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Infow("starting recording", "mode", rec.Mode(), "version", version.Version)
	rec.StartRecording()

	output := newLifecycle(rec).run(ctx, sigChan)
	logger.Infow("recording complete",
		"sessionID", output.SessionID,
		"camera", output.Camera,
		"screen", output.Screen,
	)
	if output.Error != nil {
		logger.Errorw("recording finished with errors", output.Error)
		return output.Error
	}
	return nil
}

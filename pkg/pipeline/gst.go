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

package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"go.uber.org/zap"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/logging"
	"github.com/livekit/protocol/tracer"
)

var (
	initOnce sync.Once
	mainLoop *glib.MainLoop
)

// initGst initializes gstreamer once per process, bridges its logs and runs the
// main loop that dispatches bus messages for every segment pipeline.
func initGst(conf *config.BaseConfig) {
	initOnce.Do(func() {
		_, span := tracer.Start(context.Background(), "gst.Init")
		defer span.End()

		gst.Init(nil)
		gstLogger := logging.NewGstLogger(conf.Debug.GstLogFile, conf.Debug.GstLogMaxSize, conf.Debug.GstLogBackups)
		gst.SetLogFunction(func(_ *gst.DebugCategory, level gst.DebugLevel, file, function string, line int, _ *gst.LoggedObject, debug *gst.DebugMessage) {
			gstLog(gstLogger, level, file, function, line, debug.Get())
		})

		mainLoop = glib.NewMainLoop(glib.MainContextDefault(), false)
		go mainLoop.Run()
	})
}

func gstLog(l *zap.SugaredLogger, level gst.DebugLevel, file, function string, line int, msg string) {
	caller := fmt.Sprintf("%s:%d", file, line)
	switch level {
	case gst.LevelError:
		l.Errorw(msg, "caller", caller, "function", function)
	case gst.LevelWarning:
		l.Warnw(msg, "caller", caller, "function", function)
	case gst.LevelFixMe, gst.LevelInfo:
		l.Infow(msg, "caller", caller, "function", function)
	default:
		l.Debugw(msg, "caller", caller, "function", function)
	}
}

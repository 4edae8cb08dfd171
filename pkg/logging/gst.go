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

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/livekit/protocol/logger"
)

// NewGstLogger returns the logger used for gstreamer debug output. With an empty
// filename gstreamer logs go to the process logger, otherwise to a rotated file.
func NewGstLogger(filename string, maxSizeMB, maxBackups int) *zap.SugaredLogger {
	if filename == "" {
		if zl, ok := logger.GetLogger().(logger.ZapLogger); ok {
			return zl.ToZap().WithOptions(zap.WithCaller(false))
		}
		return zap.NewNop().Sugar()
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

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
	"os"
	"syscall"

	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
)

type controller interface {
	Pause(onComplete func())
	Resume()
	StopRecording(onComplete func(*types.RecordingOutput))
}

// lifecycle maps process signals onto the recorder: the process going to the
// background pauses, coming back resumes, and termination stops.
type lifecycle struct {
	rec controller
}

func newLifecycle(rec controller) *lifecycle {
	return &lifecycle{rec: rec}
}

// run blocks until a stop completes and returns its output.
func (l *lifecycle) run(ctx context.Context, signals <-chan os.Signal) *types.RecordingOutput {
	done := make(chan *types.RecordingOutput, 1)
	stop := func() {
		l.rec.StopRecording(func(out *types.RecordingOutput) {
			select {
			case done <- out:
			default:
			}
		})
	}

	stopping := false
	ctxDone := ctx.Done()
	for {
		select {
		case out := <-done:
			return out

		case <-ctxDone:
			ctxDone = nil
			if !stopping {
				logger.Infow("context done, stopping recording")
				stopping = true
				stop()
			}

		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				logger.Infow("pause requested", "signal", sig)
				l.rec.Pause(func() {
					logger.Infow("recording paused")
				})
			case syscall.SIGUSR2:
				logger.Infow("resume requested", "signal", sig)
				l.rec.Resume()
			case syscall.SIGINT, syscall.SIGTERM:
				if stopping {
					logger.Infow("stop already requested", "signal", sig)
					continue
				}
				logger.Infow("exit requested, stopping recording", "signal", sig)
				stopping = true
				stop()
			}
		}
	}
}

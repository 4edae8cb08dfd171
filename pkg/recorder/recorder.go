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

package recorder

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/livekit/capture-recorder/pkg/barrier"
	"github.com/livekit/capture-recorder/pkg/capture"
	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/serial"
	"github.com/livekit/capture-recorder/pkg/stats"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"
)

// Merger concatenates the segments of one asset into output.
type Merger interface {
	Merge(ctx context.Context, kind types.AssetKind, segments []string, output string) (string, error)
}

// Persister stores a merged recording and returns where it ended up.
type Persister interface {
	Save(ctx context.Context, kind types.AssetKind, filename string) (string, int64, error)
}

type Params struct {
	Conf      *config.BaseConfig
	Factory   capture.PipelineFactory
	Merger    Merger
	Persister Persister // optional
	Monitor   *stats.Monitor
	OnError   func(error) // optional, called for every session error
}

// Recorder drives the capture assets of one recording mode through
// start, pause, resume and stop. All state changes run on a single serial queue.
type Recorder struct {
	conf      *config.BaseConfig
	mode      types.RecordingMode
	kinds     []types.AssetKind
	assets    map[types.AssetKind]*capture.Asset
	merger    Merger
	persister Persister
	monitor   *stats.Monitor
	onError   func(error)

	queue  *serial.Queue
	closed core.Fuse

	// mirrors for readers outside the queue
	stateValue atomic.Int32
	sessionID  atomic.String

	// only accessed on the queue
	state        types.State
	generation   uint64
	session      string
	sessionDir   string
	segmentIndex map[types.AssetKind]int
	pausing      bool // a pause is waiting for its segments to finalize
	resumeQueued bool
	errs         *errors.ErrArray
	stopBarrier  *barrier.Barrier
	mergeBarrier *barrier.Barrier
	stopWaiters  []func(*types.RecordingOutput)
	outputs      map[types.AssetKind]*types.AssetOutput
}

func New(p Params) (*Recorder, error) {
	mode, err := types.ParseRecordingMode(p.Conf.Mode)
	if err != nil {
		return nil, err
	}
	if p.Factory == nil || p.Merger == nil {
		return nil, errors.ErrInvalidInput("recorder params")
	}

	r := &Recorder{
		conf:         p.Conf,
		mode:         mode,
		kinds:        mode.Kinds(),
		assets:       make(map[types.AssetKind]*capture.Asset),
		merger:       p.Merger,
		persister:    p.Persister,
		monitor:      p.Monitor,
		onError:      p.OnError,
		queue:        serial.New("recorder"),
		stopBarrier:  barrier.New("stop"),
		mergeBarrier: barrier.New("merge"),
		errs:         &errors.ErrArray{},
	}

	// assets report errors from within the failing call, and those calls run on the queue
	for _, kind := range r.kinds {
		r.assets[kind] = capture.NewAsset(capture.AssetParams{
			Kind:            kind,
			Settings:        p.Conf.CaptureSettings(kind),
			Factory:         p.Factory,
			FinalizeTimeout: p.Conf.FinalizeTimeout,
			OnError:         r.reportErrorLocked,
		})
	}

	r.setState(types.StateIdle)
	return r, nil
}

// Setup applies capture settings to every active asset and waits until done.
func (r *Recorder) Setup(ctx context.Context) error {
	errArray := &errors.ErrArray{}
	err := r.queue.EnsureSerialized(ctx, func(_ context.Context) {
		for _, kind := range r.kinds {
			if err := r.assets[kind].Configure(); err != nil {
				logger.Warnw("failed to configure asset", err, "asset", kind)
				errArray.AppendErr(err)
			}
		}
	})
	if err != nil {
		return err
	}
	if errArray.Len() > 0 {
		return errArray.ToError()
	}
	return nil
}

func (r *Recorder) Mode() types.RecordingMode {
	return r.mode
}

func (r *Recorder) State() types.State {
	return types.State(r.stateValue.Load())
}

func (r *Recorder) SessionID() string {
	return r.sessionID.Load()
}

// StartRecording starts a new session. It is ignored unless the recorder is idle.
func (r *Recorder) StartRecording() {
	r.queue.Submit(func(_ context.Context) {
		switch r.state {
		case types.StateIdle:
		case types.StateStopping:
			logger.Warnw("start ignored", errors.ErrRecorderStopping, "sessionID", r.session)
			return
		default:
			logger.Warnw("start ignored", nil, "state", r.state.String())
			return
		}

		r.generation++
		r.session = utils.NewGuid("RS_")
		r.sessionID.Store(r.session)
		r.sessionDir = path.Join(r.conf.TmpDir, r.session)
		r.segmentIndex = make(map[types.AssetKind]int)
		r.errs = &errors.ErrArray{}
		r.pausing = false
		r.resumeQueued = false
		r.outputs = make(map[types.AssetKind]*types.AssetOutput)
		r.setState(types.StateRecording)

		logger.Infow("recording started", "sessionID", r.session, "mode", r.mode)
		if err := os.MkdirAll(r.sessionDir, 0755); err != nil {
			logger.Errorw("failed to create session directory", err, "dir", r.sessionDir)
			r.errs.AppendErr(err)
		}

		for _, kind := range r.kinds {
			a := r.assets[kind]
			a.Reset()
			if err := a.Configure(); err != nil {
				r.reportErrorLocked(&errors.AttachmentError{Kind: string(kind), Source: "settings", Err: err})
				continue
			}
			// attachment failures are reported through OnError
			_ = a.BeginCapture(r.nextSegment(kind))
		}
	})
}

// Pause finalizes the current segment of every asset. onComplete runs once all
// of them are finalized, or immediately if the recorder is not recording.
func (r *Recorder) Pause(onComplete func()) {
	r.queue.Submit(func(_ context.Context) {
		if r.state != types.StateRecording {
			logger.Debugw("pause ignored", "state", r.state.String())
			r.notify(onComplete)
			return
		}
		r.setState(types.StatePaused)
		r.pausing = true
		logger.Infow("recording paused", "sessionID", r.session)

		generation := r.generation
		b := barrier.New("pause")
		b.Open(len(r.kinds), func() {
			r.onPaused(generation)
			r.notify(onComplete)
		})
		r.requestStops(types.StopPause, b)
	})
}

// onPaused runs on the queue once every pause segment is finalized.
func (r *Recorder) onPaused(generation uint64) {
	if generation != r.generation {
		return
	}
	r.pausing = false
	if r.resumeQueued {
		r.resumeQueued = false
		r.resume()
	}
}

// Resume starts a new segment on every asset after a pause. A resume that arrives
// while the pause is still finalizing takes effect once the pause completes.
func (r *Recorder) Resume() {
	r.queue.Submit(func(_ context.Context) {
		if r.pausing && r.state == types.StatePaused {
			logger.Debugw("resume queued until pause completes", "sessionID", r.session)
			r.resumeQueued = true
			return
		}
		r.resume()
	})
}

func (r *Recorder) resume() {
	if r.state != types.StatePaused {
		logger.Debugw("resume ignored", "state", r.state.String())
		return
	}
	r.setState(types.StateRecording)
	logger.Infow("recording resumed", "sessionID", r.session)

	for _, kind := range r.kinds {
		_ = r.assets[kind].BeginSegment(r.nextSegment(kind))
	}
}

// StopRecording ends the session. onComplete receives the merged and persisted outputs;
// when nothing is recording it receives an empty output right away.
func (r *Recorder) StopRecording(onComplete func(*types.RecordingOutput)) {
	r.queue.Submit(func(_ context.Context) {
		switch r.state {
		case types.StateIdle:
			logger.Debugw("stop while idle")
			r.complete([]func(*types.RecordingOutput){onComplete}, &types.RecordingOutput{})
			return
		case types.StateStopping:
			logger.Debugw("stop already in progress, waiting", "sessionID", r.session)
			r.stopWaiters = append(r.stopWaiters, onComplete)
			return
		}

		r.setState(types.StateStopping)
		r.resumeQueued = false
		r.stopWaiters = append(r.stopWaiters[:0], onComplete)
		logger.Infow("stopping recording", "sessionID", r.session)

		generation := r.generation
		r.stopBarrier.Open(len(r.kinds), func() {
			r.onStopped(generation)
		})
		r.requestStops(types.StopFinal, r.stopBarrier)
	})
}

// SetPointOfInterest moves the camera focus and exposure points.
func (r *Recorder) SetPointOfInterest(focus, exposure config.Point) {
	r.queue.Submit(func(_ context.Context) {
		if a, ok := r.assets[types.AssetCamera]; ok {
			a.SetPointOfInterest(focus, exposure)
		}
	})
}

// requestStops asks every asset to finalize its segment. Each result is recorded on the
// queue before arriving at b.
func (r *Recorder) requestStops(reason types.StopReason, b *barrier.Barrier) {
	generation := r.generation
	for _, kind := range r.kinds {
		ticket := r.assets[kind].RequestStop(reason)
		ticket.OnDone(func(location string, err error) {
			r.queue.Submit(func(_ context.Context) {
				r.onSegmentDone(generation, ticket, location, err)
				_ = b.Arrive()
			})
		})
	}
}

func (r *Recorder) onSegmentDone(generation uint64, ticket *capture.Ticket, location string, err error) {
	if generation != r.generation {
		return
	}
	if err != nil {
		r.reportErrorLocked(err)
		r.monitor.IncSegment(ticket.Kind, ticket.Reason, false)
		return
	}
	if location != "" {
		r.monitor.IncSegment(ticket.Kind, ticket.Reason, true)
	}
}

func (r *Recorder) nextSegment(kind types.AssetKind) string {
	idx := r.segmentIndex[kind]
	r.segmentIndex[kind] = idx + 1
	return path.Join(r.sessionDir, fmt.Sprintf("%s_%03d%s", kind, idx, types.FileExtensionMP4))
}

func (r *Recorder) setState(state types.State) {
	r.state = state
	r.stateValue.Store(int32(state))
	r.monitor.SetState(state)
}

func (r *Recorder) reportErrorLocked(err error) {
	if r.state != types.StateIdle {
		r.errs.AppendErr(err)
	}
	if r.onError != nil {
		r.onError(err)
	}
}

func (r *Recorder) notify(onComplete func()) {
	if onComplete != nil {
		go onComplete()
	}
}

func (r *Recorder) complete(waiters []func(*types.RecordingOutput), output *types.RecordingOutput) {
	go func() {
		for _, w := range waiters {
			if w != nil {
				w(output)
			}
		}
	}()
}

// Close stops any recording without merging, and releases all pipelines.
func (r *Recorder) Close() {
	if r.closed.IsBroken() {
		return
	}
	r.closed.Break()

	_ = r.queue.EnsureSerialized(context.Background(), func(_ context.Context) {
		for _, kind := range r.kinds {
			if err := r.assets[kind].Close(); err != nil {
				logger.Warnw("failed to close pipeline", err, "asset", kind)
			}
		}
	})
	r.queue.Close()
}

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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/tracer"
)

// onStopped runs on the queue once every asset resolved its final stop ticket.
func (r *Recorder) onStopped(generation uint64) {
	if generation != r.generation {
		return
	}

	pending := make(map[types.AssetKind][]string)
	for _, kind := range r.kinds {
		a := r.assets[kind]
		if a.IsRunning() {
			logger.Warnw("capture session still running after stop", nil, "asset", kind)
			a.StopRunning()
		}
		if segments := a.Segments(); len(segments) > 0 {
			pending[kind] = segments
		}
	}

	logger.Debugw("all assets stopped", "sessionID", r.session, "merging", len(pending))
	r.mergeBarrier.Open(len(pending), func() {
		r.onMerged(generation)
	})

	for _, kind := range r.kinds {
		segments, ok := pending[kind]
		if !ok {
			continue
		}
		output := path.Join(r.conf.TmpDir, fmt.Sprintf("%s_%s%s", r.session, kind, types.FileExtensionMP4))
		go r.merge(generation, kind, segments, output)
	}
}

func (r *Recorder) merge(generation uint64, kind types.AssetKind, segments []string, output string) {
	ctx, span := tracer.Start(context.Background(), "Recorder.merge")
	defer span.End()

	merged, err := r.merger.Merge(ctx, kind, segments, output)
	r.queue.Submit(func(_ context.Context) {
		if generation == r.generation {
			r.onAssetMerged(kind, len(segments), merged, err)
		}
		_ = r.mergeBarrier.Arrive()
	})
}

func (r *Recorder) onAssetMerged(kind types.AssetKind, segmentCount int, merged string, err error) {
	r.monitor.IncMerge(kind, err == nil)
	if err != nil {
		var mergeErr *errors.MergeError
		if !errors.As(err, &mergeErr) {
			err = &errors.MergeError{Kind: string(kind), Err: err}
		}
		logger.Warnw("merge failed", err, "asset", kind, "segments", segmentCount)
		r.reportErrorLocked(err)
		return
	}

	logger.Debugw("asset merged", "asset", kind, "filename", merged)
	r.outputs[kind] = &types.AssetOutput{
		Kind:         kind,
		Filename:     merged,
		SegmentCount: segmentCount,
	}
}

// onMerged runs on the queue once every merge result was recorded. Outputs are
// persisted concurrently off the queue.
func (r *Recorder) onMerged(generation uint64) {
	if generation != r.generation {
		return
	}

	outputs := make([]*types.AssetOutput, 0, len(r.outputs))
	for _, kind := range r.kinds {
		if out, ok := r.outputs[kind]; ok {
			outputs = append(outputs, out)
		}
	}
	if r.persister == nil || len(outputs) == 0 {
		r.finish()
		return
	}

	go func() {
		ctx, span := tracer.Start(context.Background(), "Recorder.persist")
		defer span.End()

		var mu sync.Mutex
		var persistErrs []error

		var group errgroup.Group
		for _, out := range outputs {
			group.Go(func() error {
				location, size, err := r.persister.Save(ctx, out.Kind, out.Filename)
				if err != nil {
					var persistErr *errors.PersistenceError
					if !errors.As(err, &persistErr) {
						err = &errors.PersistenceError{Kind: string(out.Kind), Filename: out.Filename, Err: err}
					}
					logger.Warnw("failed to persist recording", err, "asset", out.Kind)
					mu.Lock()
					persistErrs = append(persistErrs, err)
					mu.Unlock()
					return nil
				}

				// each goroutine owns its output until the group returns
				out.Location = location
				out.Size = size
				return nil
			})
		}
		_ = group.Wait()

		r.queue.Submit(func(_ context.Context) {
			if generation != r.generation {
				return
			}
			for _, err := range persistErrs {
				r.reportErrorLocked(err)
			}
			r.finish()
		})
	}()
}

// finish completes the session and releases every stop waiter.
func (r *Recorder) finish() {
	output := &types.RecordingOutput{SessionID: r.session}
	for kind, out := range r.outputs {
		output.Set(kind, out)
	}
	if r.errs.Len() > 0 {
		output.Error = r.errs.ToError()
	}

	if err := os.Remove(r.sessionDir); err != nil {
		logger.Debugw("session directory kept", "dir", r.sessionDir, "error", err)
	}

	waiters := r.stopWaiters
	r.stopWaiters = nil
	r.setState(types.StateIdle)
	r.monitor.IncSession(output.Error != nil)

	logger.Infow("recording finished",
		"sessionID", r.session,
		"camera", output.Camera,
		"screen", output.Screen,
		"errors", r.errs.Len(),
	)
	r.complete(waiters, output)
}

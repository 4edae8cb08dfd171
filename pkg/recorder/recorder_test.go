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

package recorder_test

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/capture-recorder/pkg/capture/capturetest"
	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/recorder"
	"github.com/livekit/capture-recorder/pkg/types"
)

const waitTimeout = 5 * time.Second

type fakeMerger struct {
	mu    sync.Mutex
	calls map[types.AssetKind][]string
	fail  map[types.AssetKind]error
}

func newFakeMerger() *fakeMerger {
	return &fakeMerger{
		calls: make(map[types.AssetKind][]string),
		fail:  make(map[types.AssetKind]error),
	}
}

func (m *fakeMerger) Merge(_ context.Context, kind types.AssetKind, segments []string, output string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[kind] = append([]string(nil), segments...)
	if err := m.fail[kind]; err != nil {
		return "", err
	}
	return output, nil
}

func (m *fakeMerger) segments(kind types.AssetKind) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.calls[kind]
	return s, ok
}

func (m *fakeMerger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

type fakePersister struct {
	mu    sync.Mutex
	saved []string
	fail  map[types.AssetKind]error
}

func newFakePersister() *fakePersister {
	return &fakePersister{fail: make(map[types.AssetKind]error)}
}

func (p *fakePersister) Save(_ context.Context, kind types.AssetKind, filename string) (string, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.saved = append(p.saved, filename)
	if err := p.fail[kind]; err != nil {
		return "", 0, err
	}
	return "s3://recordings/" + path.Base(filename), 1024, nil
}

func (p *fakePersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.saved)
}

type testRecorder struct {
	*recorder.Recorder
	camera    *capturetest.Pipeline
	screen    *capturetest.Pipeline
	merger    *fakeMerger
	persister *fakePersister

	mu   sync.Mutex
	errs []error
}

func newTestRecorder(t *testing.T, mode types.RecordingMode, opts ...func(*testRecorder)) *testRecorder {
	t.Helper()

	tr := &testRecorder{
		camera:    capturetest.New(types.AssetCamera),
		screen:    capturetest.New(types.AssetScreen),
		merger:    newFakeMerger(),
		persister: newFakePersister(),
	}
	for _, opt := range opts {
		opt(tr)
	}

	r, err := recorder.New(recorder.Params{
		Conf: &config.BaseConfig{
			Mode:            string(mode),
			TmpDir:          t.TempDir(),
			FinalizeTimeout: time.Second,
		},
		Factory:   capturetest.Factory(tr.camera, tr.screen),
		Merger:    tr.merger,
		Persister: tr.persister,
		OnError: func(err error) {
			tr.mu.Lock()
			tr.errs = append(tr.errs, err)
			tr.mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)

	tr.Recorder = r
	require.NoError(t, r.Setup(context.Background()))
	return tr
}

func (tr *testRecorder) reported() []error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return append([]error(nil), tr.errs...)
}

func (tr *testRecorder) stop(t *testing.T) *types.RecordingOutput {
	t.Helper()

	ch := make(chan *types.RecordingOutput, 1)
	tr.StopRecording(func(out *types.RecordingOutput) {
		ch <- out
	})
	select {
	case out := <-ch:
		require.NotNil(t, out)
		return out
	case <-time.After(waitTimeout):
		t.Fatal("stop did not complete")
		return nil
	}
}

func (tr *testRecorder) pause(t *testing.T) {
	t.Helper()

	done := make(chan struct{})
	tr.Pause(func() {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("pause did not complete")
	}
}

func (tr *testRecorder) awaitState(t *testing.T, state types.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return tr.State() == state
	}, waitTimeout, time.Millisecond)
}

func TestStartStop_AllModes(t *testing.T) {
	for _, mode := range []types.RecordingMode{types.ModeCameraOnly, types.ModeScreenOnly, types.ModeCameraAndScreen} {
		t.Run(string(mode), func(t *testing.T) {
			tr := newTestRecorder(t, mode)
			tr.StartRecording()
			tr.awaitState(t, types.StateRecording)
			sessionID := tr.SessionID()
			require.NotEmpty(t, sessionID)

			out := tr.stop(t)
			require.NoError(t, out.Error)
			require.Equal(t, sessionID, out.SessionID)
			require.Equal(t, types.StateIdle, tr.State())

			for _, kind := range types.AllAssetKinds {
				asset := out.Get(kind)
				if !mode.Includes(kind) {
					require.Nil(t, asset, kind)
					continue
				}
				require.NotNil(t, asset, kind)
				require.Equal(t, 1, asset.SegmentCount)
				require.Equal(t, "s3://recordings/"+sessionID+"_"+string(kind)+".mp4", asset.Location)
				require.Equal(t, int64(1024), asset.Size)
			}
			require.Equal(t, len(mode.Kinds()), tr.persister.count())
		})
	}
}

func TestPauseResume_ProducesSegmentPerCycle(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraAndScreen)
	tr.StartRecording()

	const pauses = 3
	for i := 0; i < pauses; i++ {
		tr.pause(t)
		require.Equal(t, types.StatePaused, tr.State())
		tr.Resume()
	}

	out := tr.stop(t)
	require.NoError(t, out.Error)
	require.Equal(t, pauses+1, out.Camera.SegmentCount)
	require.Equal(t, pauses+1, out.Screen.SegmentCount)

	segments, ok := tr.merger.segments(types.AssetCamera)
	require.True(t, ok)
	require.Len(t, segments, pauses+1)
	for i, s := range segments {
		require.Equal(t, tr.camera.Started()[i], s)
	}
	require.Equal(t, []uint64{1, 2, 3, 4}, tr.screen.Stops())
}

func TestScreenOnly_PauseResumeStop(t *testing.T) {
	tr := newTestRecorder(t, types.ModeScreenOnly)
	tr.StartRecording()
	tr.pause(t)
	tr.Resume()

	out := tr.stop(t)
	require.NoError(t, out.Error)
	require.Nil(t, out.Camera)
	require.Equal(t, 2, out.Screen.SegmentCount)
	require.Zero(t, tr.camera.Attaches())

	segments, _ := tr.merger.segments(types.AssetScreen)
	require.Len(t, segments, 2)
	require.Contains(t, path.Base(segments[0]), "screen_000")
	require.Contains(t, path.Base(segments[1]), "screen_001")
}

func TestResumeWaitsForPauseToFinalize(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraOnly, func(tr *testRecorder) {
		tr.camera.Hold = true
	})
	tr.StartRecording()

	paused := make(chan struct{})
	tr.Pause(func() { close(paused) })
	tr.Resume()
	require.Eventually(t, func() bool {
		return len(tr.camera.Stops()) == 1
	}, waitTimeout, time.Millisecond)

	// Setup runs on the queue after Pause and Resume
	require.NoError(t, tr.Setup(context.Background()))
	require.Len(t, tr.camera.Started(), 1)
	require.Equal(t, types.StatePaused, tr.State())

	tr.camera.Release()
	select {
	case <-paused:
	case <-time.After(waitTimeout):
		t.Fatal("pause did not complete")
	}
	tr.awaitState(t, types.StateRecording)
	require.Len(t, tr.camera.Started(), 2)

	done := make(chan *types.RecordingOutput, 1)
	tr.StopRecording(func(out *types.RecordingOutput) { done <- out })
	require.Eventually(t, func() bool {
		return len(tr.camera.Stops()) == 2
	}, waitTimeout, time.Millisecond)
	tr.camera.Release()

	select {
	case out := <-done:
		require.NoError(t, out.Error)
		require.Equal(t, 2, out.Camera.SegmentCount)
	case <-time.After(waitTimeout):
		t.Fatal("stop did not complete")
	}
	segments, _ := tr.merger.segments(types.AssetCamera)
	require.Equal(t, tr.camera.Started(), segments)
}

func TestStopWhilePauseFinalizing(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraOnly, func(tr *testRecorder) {
		tr.camera.Hold = true
	})
	tr.StartRecording()
	tr.Pause(nil)
	tr.Resume()

	done := make(chan *types.RecordingOutput, 1)
	tr.StopRecording(func(out *types.RecordingOutput) { done <- out })
	tr.awaitState(t, types.StateStopping)

	select {
	case <-done:
		t.Fatal("stop completed before the pause segment finalized")
	case <-time.After(50 * time.Millisecond):
	}
	require.Zero(t, tr.merger.count())

	tr.camera.Release()
	select {
	case out := <-done:
		require.NoError(t, out.Error)
		require.Equal(t, 1, out.Camera.SegmentCount)
	case <-time.After(waitTimeout):
		t.Fatal("stop did not complete")
	}

	// the queued resume was dropped by the stop
	require.Len(t, tr.camera.Started(), 1)
	segments, _ := tr.merger.segments(types.AssetCamera)
	require.Equal(t, tr.camera.Started(), segments)
}

func TestStopWhilePaused(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraOnly)
	tr.StartRecording()
	tr.pause(t)

	out := tr.stop(t)
	require.NoError(t, out.Error)
	require.Equal(t, 1, out.Camera.SegmentCount)
	require.False(t, tr.camera.IsRunning())
}

func TestCameraOnly_AttachFailure(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraOnly, func(tr *testRecorder) {
		tr.camera.AttachErr = errors.New("no such device")
	})
	tr.StartRecording()

	out := tr.stop(t)
	require.True(t, out.IsEmpty())
	require.Error(t, out.Error)
	require.Contains(t, out.Error.Error(), "camera: failed to attach")
	require.Zero(t, tr.merger.count())
	require.Zero(t, tr.persister.count())
	require.Len(t, tr.reported(), 1)
}

func TestAttachFailure_OtherAssetContinues(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraAndScreen, func(tr *testRecorder) {
		tr.camera.AttachErr = errors.New("no such device")
	})
	tr.StartRecording()
	tr.pause(t)
	tr.Resume()

	out := tr.stop(t)
	require.Error(t, out.Error)
	require.Nil(t, out.Camera)
	require.NotNil(t, out.Screen)
	require.Equal(t, 2, out.Screen.SegmentCount)
}

func TestStopWhileIdle(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraAndScreen)

	out := tr.stop(t)
	require.True(t, out.IsEmpty())
	require.NoError(t, out.Error)
	require.Empty(t, out.SessionID)

	// a second stop after a finished session is also immediate
	tr.StartRecording()
	require.False(t, tr.stop(t).IsEmpty())
	out = tr.stop(t)
	require.True(t, out.IsEmpty())

	require.Equal(t, 2, tr.merger.count())
	require.Equal(t, 2, tr.persister.count())
}

func TestStopJoinsInflightStop(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraOnly, func(tr *testRecorder) {
		tr.camera.Hold = true
	})
	tr.StartRecording()

	first := make(chan *types.RecordingOutput, 1)
	second := make(chan *types.RecordingOutput, 1)
	tr.StopRecording(func(out *types.RecordingOutput) { first <- out })
	tr.StopRecording(func(out *types.RecordingOutput) { second <- out })

	tr.awaitState(t, types.StateStopping)
	require.Eventually(t, func() bool {
		return len(tr.camera.Stops()) == 1
	}, waitTimeout, time.Millisecond)

	// start is ignored while stopping
	tr.StartRecording()
	tr.camera.Release()

	var outputs []*types.RecordingOutput
	for _, ch := range []chan *types.RecordingOutput{first, second} {
		select {
		case out := <-ch:
			outputs = append(outputs, out)
		case <-time.After(waitTimeout):
			t.Fatal("stop did not complete")
		}
	}
	require.Same(t, outputs[0], outputs[1])
	require.Equal(t, 1, outputs[0].Camera.SegmentCount)
	require.Equal(t, 1, tr.merger.count())
	require.Equal(t, types.StateIdle, tr.State())
}

func TestMergeFailure_OtherAssetIntact(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraAndScreen)
	tr.merger.fail[types.AssetScreen] = errors.New("ffmpeg exited with status 1")
	tr.StartRecording()

	out := tr.stop(t)
	require.Error(t, out.Error)
	require.Contains(t, out.Error.Error(), "screen: merge failed")
	require.Nil(t, out.Screen)
	require.NotNil(t, out.Camera)
	require.NotEmpty(t, out.Camera.Location)
	require.Equal(t, 1, tr.persister.count())
}

func TestPersistenceFailure_KeepsMergedFile(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraOnly)
	tr.persister.fail[types.AssetCamera] = errors.New("access denied")
	tr.StartRecording()

	out := tr.stop(t)
	require.Error(t, out.Error)
	require.Contains(t, out.Error.Error(), "failed to persist")
	require.NotNil(t, out.Camera)
	require.NotEmpty(t, out.Camera.Filename)
	require.Empty(t, out.Camera.Location)
}

func TestFinalizeFailure_NoSegment(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraAndScreen, func(tr *testRecorder) {
		tr.camera.FinalizeErr = errors.New("disk full")
	})
	tr.StartRecording()

	out := tr.stop(t)
	require.Error(t, out.Error)
	require.Nil(t, out.Camera)
	require.NotNil(t, out.Screen)

	_, merged := tr.merger.segments(types.AssetCamera)
	require.False(t, merged)
}

func TestPauseWhileNotRecording(t *testing.T) {
	tr := newTestRecorder(t, types.ModeScreenOnly)

	tr.pause(t)
	require.Equal(t, types.StateIdle, tr.State())
	require.Empty(t, tr.screen.Stops())

	tr.Resume()
	tr.StartRecording()
	tr.awaitState(t, types.StateRecording)
	require.Len(t, tr.screen.Started(), 1)
}

func TestSetPointOfInterest(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraAndScreen)
	tr.StartRecording()
	tr.SetPointOfInterest(config.Point{X: 0.25, Y: 0.75}, config.CenterPoint)

	require.Eventually(t, func() bool {
		p := tr.camera.FocusPoint()
		return p != nil && p.X == 0.25
	}, waitTimeout, time.Millisecond)
	require.Nil(t, tr.screen.FocusPoint())

	tr.stop(t)
}

func TestSessionsAreIndependent(t *testing.T) {
	tr := newTestRecorder(t, types.ModeCameraOnly)

	tr.StartRecording()
	tr.pause(t)
	tr.Resume()
	first := tr.stop(t)

	tr.StartRecording()
	second := tr.stop(t)

	require.NotEqual(t, first.SessionID, second.SessionID)
	require.Equal(t, 2, first.Camera.SegmentCount)
	require.Equal(t, 1, second.Camera.SegmentCount)
}

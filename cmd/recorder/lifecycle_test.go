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
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/capture-recorder/pkg/types"
)

type fakeController struct {
	mu      sync.Mutex
	calls   []string
	output  *types.RecordingOutput
	pending func(*types.RecordingOutput)
	hold    bool
}

func (c *fakeController) Pause(onComplete func()) {
	c.record("pause")
	go onComplete()
}

func (c *fakeController) Resume() {
	c.record("resume")
}

func (c *fakeController) StopRecording(onComplete func(*types.RecordingOutput)) {
	c.record("stop")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold {
		c.pending = onComplete
		return
	}
	go onComplete(c.output)
}

func (c *fakeController) release() {
	c.mu.Lock()
	f := c.pending
	c.mu.Unlock()
	go f(c.output)
}

func (c *fakeController) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeController) getCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func runAsync(ctx context.Context, l *lifecycle, signals chan os.Signal) <-chan *types.RecordingOutput {
	res := make(chan *types.RecordingOutput, 1)
	go func() {
		res <- l.run(ctx, signals)
	}()
	return res
}

func TestLifecycle_Signals(t *testing.T) {
	c := &fakeController{output: &types.RecordingOutput{SessionID: "RS_test"}}
	signals := make(chan os.Signal)
	res := runAsync(context.Background(), newLifecycle(c), signals)

	signals <- syscall.SIGUSR1
	signals <- syscall.SIGUSR2
	signals <- syscall.SIGTERM

	select {
	case out := <-res:
		require.Equal(t, "RS_test", out.SessionID)
	case <-time.After(time.Second * 5):
		t.Fatal("lifecycle did not return")
	}
	require.Equal(t, []string{"pause", "resume", "stop"}, c.getCalls())
}

func TestLifecycle_RepeatedStop(t *testing.T) {
	c := &fakeController{output: &types.RecordingOutput{}, hold: true}
	signals := make(chan os.Signal)
	res := runAsync(context.Background(), newLifecycle(c), signals)

	signals <- syscall.SIGINT
	signals <- syscall.SIGTERM
	require.Equal(t, []string{"stop"}, c.getCalls())

	c.release()
	select {
	case <-res:
	case <-time.After(time.Second * 5):
		t.Fatal("lifecycle did not return")
	}
}

func TestLifecycle_ContextDone(t *testing.T) {
	c := &fakeController{output: &types.RecordingOutput{}}
	ctx, cancel := context.WithCancel(context.Background())
	res := runAsync(ctx, newLifecycle(c), make(chan os.Signal))
	cancel()

	select {
	case out := <-res:
		require.True(t, out.IsEmpty())
	case <-time.After(time.Second * 5):
		t.Fatal("lifecycle did not return")
	}
	require.Equal(t, []string{"stop"}, c.getCalls())
}

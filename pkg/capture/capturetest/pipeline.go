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

// Package capturetest provides an in-memory capture pipeline for tests.
package capturetest

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/livekit/capture-recorder/pkg/capture"
	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/types"
)

type pendingStop struct {
	ch       chan capture.Finished
	finished capture.Finished
}

// Pipeline records calls and finishes segments asynchronously. With WriteFiles set,
// each finished segment is written to its location.
type Pipeline struct {
	Kind types.AssetKind

	// behavior, set before use
	AttachErr         error
	OptionalSourceErr error
	StartRecordingErr error
	FinalizeErr       error
	WriteFiles        bool
	Delay             time.Duration
	Hold              bool // keep finished notifications until Release

	mu        sync.Mutex
	running   bool
	location  string
	settings  *config.CaptureSettings
	focus     *config.Point
	closed    bool
	attaches  int
	started   []string
	stops     []uint64
	pending   map[uint64]*pendingStop
	configure int
}

func New(kind types.AssetKind) *Pipeline {
	return &Pipeline{
		Kind:    kind,
		pending: make(map[uint64]*pendingStop),
	}
}

// Factory returns a capture.PipelineFactory serving the given pipelines by kind.
func Factory(pipelines ...*Pipeline) capture.PipelineFactory {
	byKind := make(map[types.AssetKind]*Pipeline)
	for _, p := range pipelines {
		byKind[p.Kind] = p
	}
	return func(kind types.AssetKind) (capture.Pipeline, error) {
		p, ok := byKind[kind]
		if !ok {
			return nil, fmt.Errorf("no pipeline for %s", kind)
		}
		return p, nil
	}
}

func (p *Pipeline) Configure(settings *config.CaptureSettings) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settings = settings
	p.configure++
	return nil
}

func (p *Pipeline) Attach(onError func(error)) error {
	p.mu.Lock()
	p.attaches++
	attachErr, optionalErr := p.AttachErr, p.OptionalSourceErr
	p.mu.Unlock()

	if attachErr != nil {
		return attachErr
	}
	if optionalErr != nil {
		onError(optionalErr)
	}
	return nil
}

func (p *Pipeline) StartRunning() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = true
	return nil
}

func (p *Pipeline) StopRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = false
}

func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running
}

// SetRunning forces the running flag, to simulate a session that did not stop.
func (p *Pipeline) SetRunning(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = running
}

func (p *Pipeline) StartRecording(location string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.StartRecordingErr != nil {
		return p.StartRecordingErr
	}
	p.location = location
	p.started = append(p.started, location)
	return nil
}

func (p *Pipeline) StopRecording(cycle uint64) <-chan capture.Finished {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan capture.Finished, 1)
	f := capture.Finished{Cycle: cycle, Location: p.location, Err: p.FinalizeErr}
	if f.Err != nil {
		f.Location = ""
	} else if p.WriteFiles && f.Location != "" {
		if err := os.WriteFile(f.Location, []byte(fmt.Sprintf("%s segment %d\n", p.Kind, cycle)), 0644); err != nil {
			f = capture.Finished{Cycle: cycle, Err: err}
		}
	}
	p.location = ""
	p.stops = append(p.stops, cycle)

	if p.Hold {
		p.pending[cycle] = &pendingStop{ch: ch, finished: f}
		return ch
	}

	delay := p.Delay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		ch <- f
	}()
	return ch
}

// Release delivers held notifications, oldest cycle first.
func (p *Pipeline) Release() {
	p.mu.Lock()
	cycles := append([]uint64(nil), p.stops...)
	pending := p.pending
	p.pending = make(map[uint64]*pendingStop)
	p.mu.Unlock()

	for _, cycle := range cycles {
		if s, ok := pending[cycle]; ok {
			s.ch <- s.finished
		}
	}
}

// Deliver sends an arbitrary notification for a held cycle.
func (p *Pipeline) Deliver(cycle uint64, f capture.Finished) bool {
	p.mu.Lock()
	s, ok := p.pending[cycle]
	delete(p.pending, cycle)
	p.mu.Unlock()

	if ok {
		s.ch <- f
	}
	return ok
}

func (p *Pipeline) SetPointOfInterest(focus, exposure config.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.focus = &focus
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.running = false
	return nil
}

func (p *Pipeline) Started() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.started...)
}

func (p *Pipeline) Stops() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]uint64(nil), p.stops...)
}

func (p *Pipeline) Attaches() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.attaches
}

func (p *Pipeline) Configured() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.configure
}

func (p *Pipeline) Settings() *config.CaptureSettings {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.settings
}

func (p *Pipeline) FocusPoint() *config.Point {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.focus
}

func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

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

package capture

import (
	"fmt"
	"time"

	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
)

const defaultFinalizeTimeout = time.Second * 30

type AssetParams struct {
	Kind            types.AssetKind
	Settings        *config.CaptureSettings
	Factory         PipelineFactory
	FinalizeTimeout time.Duration
	OnError         func(error) // called from within the failing call
}

// slot holds the segment of one stop cycle. Slots are created in cycle order when the
// stop is requested, so segments keep that order whatever order their writers finish in.
type slot struct {
	cycle    uint64
	location string
}

// Asset owns one capture pipeline and the segments it wrote during the current session.
// Mutating calls are expected to come from a single serialized context; segment
// notifications arrive on pipeline goroutines.
//
// Stop tickets resolve in request order: a ticket never resolves before the ticket of
// an earlier stop request.
type Asset struct {
	kind            types.AssetKind
	factory         PipelineFactory
	finalizeTimeout time.Duration
	onError         func(error)
	logger          logger.Logger

	mu         deadlock.Mutex
	settings   *config.CaptureSettings
	pipeline   Pipeline
	attached   bool
	writing    bool
	slots      []*slot
	inflight   *Ticket // latest stop request not yet resolved

	session atomic.Uint64
	cycle   atomic.Uint64
}

func NewAsset(p AssetParams) *Asset {
	a := &Asset{
		kind:            p.Kind,
		factory:         p.Factory,
		finalizeTimeout: p.FinalizeTimeout,
		onError:         p.OnError,
		logger:          logger.GetLogger().WithValues("asset", string(p.Kind)),
		settings:        p.Settings,
	}
	if a.finalizeTimeout <= 0 {
		a.finalizeTimeout = defaultFinalizeTimeout
	}
	if a.settings == nil {
		a.settings = config.DefaultCaptureSettings(p.Kind)
	}
	if a.onError == nil {
		a.onError = func(error) {}
	}
	return a
}

func (a *Asset) Kind() types.AssetKind {
	return a.kind
}

func (a *Asset) getPipeline() (Pipeline, error) {
	if a.pipeline == nil {
		p, err := a.factory(a.kind)
		if err != nil {
			return nil, err
		}
		a.pipeline = p
	}
	return a.pipeline, nil
}

// Configure applies the asset's capture settings to its pipeline.
func (a *Asset) Configure() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.writing {
		a.logger.Debugw("skipping configure, writer active")
		return nil
	}

	p, err := a.getPipeline()
	if err != nil {
		return err
	}
	return p.Configure(a.settings.Clone())
}

// BeginCapture attaches the sources, starts the capture session and opens the first
// segment. It does nothing if a segment is already being written. Attachment
// failures are reported through the error callback and leave the asset unarmed.
func (a *Asset) BeginCapture(location string) error {
	a.mu.Lock()
	if a.writing {
		a.mu.Unlock()
		return nil
	}

	p, err := a.getPipeline()
	if err != nil {
		a.mu.Unlock()
		return a.reportAttachment("pipeline", err)
	}

	if !a.attached {
		if err = p.Attach(a.onSourceError); err != nil {
			a.mu.Unlock()
			return a.reportAttachment("sources", err)
		}
		a.attached = true
	}

	if err = p.StartRunning(); err != nil {
		a.attached = false
		a.mu.Unlock()
		return a.reportAttachment("capture session", err)
	}
	a.mu.Unlock()

	return a.BeginSegment(location)
}

// BeginSegment opens a new segment writer on a running capture session.
func (a *Asset) BeginSegment(location string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.writing {
		return nil
	}
	if !a.attached || a.pipeline == nil {
		a.logger.Debugw("asset not armed, no segment started")
		return nil
	}

	if err := a.pipeline.StartRecording(location); err != nil {
		err = &errors.AttachmentError{Kind: string(a.kind), Source: "writer", Err: err}
		a.logger.Warnw("failed to start segment", err, "location", location)
		a.onError(err)
		return err
	}

	a.writing = true
	a.logger.Debugw("segment started", "location", location, "session", a.session.Load())
	return nil
}

// RequestStop stops the current segment writer, and for StopFinal the capture session.
// It returns immediately; the ticket resolves once the segment is finalized, or right
// after any in-flight finalization when no writer is running.
func (a *Asset) RequestStop(reason types.StopReason) *Ticket {
	a.mu.Lock()
	t := newTicket(a.kind, reason, a.session.Load())
	p := a.pipeline

	if !a.writing {
		prev := a.inflight
		a.mu.Unlock()

		if reason == types.StopFinal && p != nil && p.IsRunning() {
			p.StopRunning()
		}
		if prev == nil {
			t.resolve("", nil)
		} else {
			go func() {
				<-prev.Done()
				t.resolve("", nil)
			}()
		}
		return t
	}

	t.Cycle = a.cycle.Inc()
	prev := a.inflight
	s := &slot{cycle: t.Cycle}
	a.slots = append(a.slots, s)
	a.writing = false
	a.inflight = t
	a.mu.Unlock()

	a.logger.Debugw("stopping segment", "reason", reason.String(), "cycle", t.Cycle)
	finished := p.StopRecording(t.Cycle)
	if reason == types.StopFinal {
		p.StopRunning()
	}

	go a.awaitFinished(t, prev, s, finished)
	return t
}

func (a *Asset) awaitFinished(t, prev *Ticket, s *slot, finished <-chan Finished) {
	timer := time.NewTimer(a.finalizeTimeout)

	var f Finished
	select {
	case res, ok := <-finished:
		if !ok {
			res = Finished{Cycle: t.Cycle, Err: errors.ErrPipelineClosed}
		}
		f = res
	case <-timer.C:
		f = Finished{Cycle: t.Cycle, Err: errors.ErrFinalizeTimeout}
	}
	timer.Stop()

	location, err := a.onSegmentFinished(t, s, f)
	if prev != nil {
		<-prev.Done()
	}

	a.mu.Lock()
	if a.inflight == t {
		a.inflight = nil
	}
	a.mu.Unlock()
	t.resolve(location, err)
}

func (a *Asset) onSegmentFinished(t *Ticket, s *slot, f Finished) (string, error) {
	var err error
	switch {
	case f.Err != nil:
		err = f.Err
	case f.Cycle != t.Cycle:
		err = fmt.Errorf("expected cycle %d, got %d", t.Cycle, f.Cycle)
	case f.Location == "":
		err = fmt.Errorf("writer produced no output")
	}
	if err != nil {
		err = &errors.FinalizeError{Kind: string(a.kind), Cycle: t.Cycle, Err: err}
	}

	location := f.Location
	a.mu.Lock()
	switch {
	case err != nil:
		location = ""
	case t.Session != a.session.Load():
		a.logger.Infow("discarding segment from previous session",
			"location", location,
			"session", t.Session,
			"cycle", t.Cycle,
		)
		location = ""
	default:
		s.location = location
	}
	a.mu.Unlock()

	if err != nil {
		a.logger.Warnw("segment failed to finalize", err, "cycle", t.Cycle)
	} else if location != "" {
		a.logger.Debugw("segment finished", "location", location, "cycle", t.Cycle)
	}
	return location, err
}

// Reset clears the segment list and starts a new session. Notifications for
// segments of earlier sessions are discarded from here on.
func (a *Asset) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.writing {
		a.logger.Warnw("resetting asset with an active writer", nil)
		a.writing = false
	}
	a.slots = nil
	a.attached = false
	a.session.Inc()
}

// Segments returns the finalized segments of the current session in cycle order.
func (a *Asset) Segments() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	segments := make([]string, 0, len(a.slots))
	for _, s := range a.slots {
		if s.location != "" {
			segments = append(segments, s.location)
		}
	}
	return segments
}

// LastOutput returns the segment of the latest cycle that produced one.
func (a *Asset) LastOutput() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.slots) - 1; i >= 0; i-- {
		if a.slots[i].location != "" {
			return a.slots[i].location
		}
	}
	return ""
}

// Armed reports whether sources were attached for the current session.
func (a *Asset) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.attached
}

func (a *Asset) IsRunning() bool {
	a.mu.Lock()
	p := a.pipeline
	a.mu.Unlock()

	return p != nil && p.IsRunning()
}

func (a *Asset) StopRunning() {
	a.mu.Lock()
	p := a.pipeline
	a.mu.Unlock()

	if p != nil {
		p.StopRunning()
	}
}

func (a *Asset) SetPointOfInterest(focus, exposure config.Point) {
	a.mu.Lock()
	a.settings.FocusPoint = &focus
	a.settings.ExposurePoint = &exposure
	p := a.pipeline
	a.mu.Unlock()

	if p != nil {
		p.SetPointOfInterest(focus, exposure)
	}
}

// Close releases the pipeline. A new one is created on next use.
func (a *Asset) Close() error {
	a.mu.Lock()
	p := a.pipeline
	a.pipeline = nil
	a.attached = false
	a.writing = false
	a.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Close()
}

func (a *Asset) reportAttachment(source string, err error) error {
	var attachErr *errors.AttachmentError
	if !errors.As(err, &attachErr) {
		attachErr = &errors.AttachmentError{Kind: string(a.kind), Source: source, Err: err}
	}
	a.logger.Warnw("failed to attach", attachErr, "source", source)
	a.onError(attachErr)
	return attachErr
}

func (a *Asset) onSourceError(err error) {
	a.reportAttachment("optional source", err)
}

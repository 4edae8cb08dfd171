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
	"fmt"
	"os"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-gst/gst"
	"github.com/linkdata/deadlock"

	"github.com/livekit/capture-recorder/pkg/capture"
	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/pipeline/builder"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
)

// Pipeline records one asset with gstreamer. Every segment gets its own gst pipeline,
// which releases the capture device when the segment is finalized.
type Pipeline struct {
	kind   types.AssetKind
	dotDir string
	logger logger.Logger

	mu       deadlock.Mutex
	settings *config.CaptureSettings
	audio    bool
	attached bool
	running  bool
	segment  *segment
	nextID   int
	closed   core.Fuse
}

// NewFactory returns a capture.PipelineFactory creating gstreamer pipelines.
func NewFactory(conf *config.BaseConfig) capture.PipelineFactory {
	return func(kind types.AssetKind) (capture.Pipeline, error) {
		initGst(conf)
		return New(kind, conf.Debug.DotDir)
	}
}

func New(kind types.AssetKind, dotDir string) (*Pipeline, error) {
	if builder.VideoSourceFactory(kind) == "" {
		return nil, errors.ErrInvalidInput("asset kind")
	}
	return &Pipeline{
		kind:     kind,
		dotDir:   dotDir,
		logger:   logger.GetLogger().WithValues("asset", string(kind)),
		settings: config.DefaultCaptureSettings(kind),
	}, nil
}

func (p *Pipeline) Configure(settings *config.CaptureSettings) error {
	if settings == nil {
		return errors.ErrInvalidInput("capture settings")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.segment != nil {
		return errors.New("cannot configure while recording")
	}
	p.settings = settings.Clone()
	p.logger.Debugw("capture configured",
		"device", p.settings.Device,
		"preset", p.settings.SessionPreset,
		"width", p.settings.Width,
		"height", p.settings.Height,
		"framerate", p.settings.Framerate,
	)
	return nil
}

// Attach verifies that the capture device and every element the segment pipeline
// needs are available. A missing audio source only disables audio.
func (p *Pipeline) Attach(onError func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.IsBroken() {
		return errors.ErrPipelineClosed
	}

	if p.kind == types.AssetCamera {
		if _, err := os.Stat(p.settings.Device); err != nil {
			return errors.ErrSourceNotFound(p.settings.Device)
		}
	}

	plan, err := builder.NewPlan(p.kind, p.settings, "attach.mp4", false)
	if err != nil {
		return err
	}
	for _, factory := range plan.Factories() {
		if gst.Find(factory) == nil {
			return errors.ErrSourceNotFound(factory)
		}
	}

	p.audio = false
	if !p.settings.AudioOff {
		if gst.Find(builder.AudioSourceFactory) == nil {
			onError(errors.ErrSourceNotFound(builder.AudioSourceFactory))
		} else {
			p.audio = true
		}
	}

	p.attached = true
	p.logger.Debugw("sources attached", "audio", p.audio)
	return nil
}

func (p *Pipeline) StartRunning() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.attached {
		return errors.New("sources not attached")
	}
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

func (p *Pipeline) StartRecording(location string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case !p.running:
		return errors.New("capture session not running")
	case p.segment != nil:
		return errors.New("segment already recording")
	}

	plan, err := builder.NewPlan(p.kind, p.settings, location, p.audio)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%d", p.kind, p.nextID)
	p.nextID++
	pipeline, err := gst.NewPipeline(name)
	if err != nil {
		return errors.ErrGstPipelineError(err)
	}
	if err = plan.Build(pipeline); err != nil {
		return err
	}

	s := newSegment(name, location, pipeline, p.dotDir, p.logger)
	pipeline.GetPipelineBus().AddWatch(s.messageWatch)
	if err = pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.BlockSetState(gst.StateNull)
		return errors.ErrGstPipelineError(err)
	}

	p.segment = s
	p.logger.Debugw("segment pipeline playing", "pipeline", name, "launch", plan.String())
	return nil
}

func (p *Pipeline) StopRecording(cycle uint64) <-chan capture.Finished {
	p.mu.Lock()
	s := p.segment
	p.segment = nil
	p.mu.Unlock()

	if s == nil {
		ch := make(chan capture.Finished, 1)
		ch <- capture.Finished{Cycle: cycle, Err: errors.New("no segment recording")}
		return ch
	}
	return s.stop(cycle)
}

// SetPointOfInterest is kept in the settings. V4L2 devices expose no focus
// or exposure points, so continuous autofocus covers the frame.
func (p *Pipeline) SetPointOfInterest(focus, exposure config.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settings.FocusPoint = &focus
	p.settings.ExposurePoint = &exposure
	p.logger.Debugw("point of interest updated", "focus", focus, "exposure", exposure)
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	s := p.segment
	p.segment = nil
	p.running = false
	p.attached = false
	p.mu.Unlock()

	p.closed.Break()
	if s != nil {
		s.abort()
	}
	return nil
}

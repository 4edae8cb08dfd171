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
	"regexp"

	"github.com/go-gst/go-gst/gst"
	"github.com/linkdata/deadlock"

	"github.com/livekit/capture-recorder/pkg/capture"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/protocol/logger"
)

// segment is the gst pipeline writing a single file.
type segment struct {
	name     string
	location string
	pipeline *gst.Pipeline
	dotDir   string
	logger   logger.Logger

	mu       deadlock.Mutex
	stopping bool
	cycle    uint64
	err      error
	eos      bool
	done     bool
	finished chan capture.Finished
}

func newSegment(name, location string, pipeline *gst.Pipeline, dotDir string, l logger.Logger) *segment {
	return &segment{
		name:     name,
		location: location,
		pipeline: pipeline,
		dotDir:   dotDir,
		logger:   l.WithValues("pipeline", name),
		finished: make(chan capture.Finished, 1),
	}
}

// stop sends EOS so the muxer can write its index. The channel receives the result
// once EOS reached the sink, or right away if the pipeline already failed.
func (s *segment) stop(cycle uint64) <-chan capture.Finished {
	s.mu.Lock()
	s.stopping = true
	s.cycle = cycle
	failed := s.err != nil
	s.mu.Unlock()

	if failed {
		s.deliver()
		return s.finished
	}

	s.logger.Debugw("sending EOS", "cycle", cycle)
	if !s.pipeline.SendEvent(gst.NewEOSEvent()) {
		s.onError(errors.New("failed to send EOS"))
	}
	return s.finished
}

func (s *segment) messageWatch(msg *gst.Message) bool {
	switch msg.Type() {
	case gst.MessageEOS:
		s.logger.Debugw("EOS received")
		s.mu.Lock()
		s.eos = true
		s.mu.Unlock()
		s.release()
		s.deliver()
		return false

	case gst.MessageError:
		gErr := msg.ParseError()
		element, message := parseDebugInfo(gErr)
		err := errors.ErrGstPipelineError(errors.New(gErr.Error()))
		s.logger.Errorw("pipeline error", err, "element", element, "message", message)
		s.writeDotFile()
		s.onError(err)
		return false

	case gst.MessageWarning:
		gErr := msg.ParseWarning()
		s.logger.Warnw("pipeline warning", gErr, "source", msg.Source())

	default:
	}
	return true
}

func (s *segment) onError(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	s.release()
	s.deliver()
}

// deliver sends the result once the segment is stopping and has ended.
func (s *segment) deliver() {
	s.mu.Lock()
	if s.done || !s.stopping || (!s.eos && s.err == nil) {
		s.mu.Unlock()
		return
	}
	s.done = true
	f := capture.Finished{Cycle: s.cycle, Location: s.location, Err: s.err}
	if f.Err != nil {
		f.Location = ""
	}
	s.mu.Unlock()

	s.finished <- f
}

func (s *segment) release() {
	if err := s.pipeline.BlockSetState(gst.StateNull); err != nil {
		s.logger.Warnw("failed to stop pipeline", err)
	}
}

// abort stops the pipeline without finalizing the file.
func (s *segment) abort() {
	s.mu.Lock()
	s.stopping = true
	if s.err == nil && !s.eos {
		s.err = errors.ErrPipelineClosed
	}
	s.mu.Unlock()

	s.release()
	s.deliver()
}

// Debug info comes in the following format:
// file.c(line): method_name (): /GstPipeline:name/GstElement:element_name:\nError message
var regExp = regexp.MustCompile(`(?s)GstPipeline:[^/]*/(?:[^:]*:)?([^:/]*)(?::\n)?(.*)`)

func parseDebugInfo(gErr *gst.GError) (element, message string) {
	return parseDebugString(gErr.DebugString())
}

func parseDebugString(debug string) (element, message string) {
	match := regExp.FindStringSubmatch(debug)
	if len(match) < 3 {
		return "", debug
	}
	return match[1], match[2]
}

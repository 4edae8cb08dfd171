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

// Package builder describes the gstreamer elements of a capture segment and
// instantiates them into a pipeline.
package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/types"
)

const (
	VideoSourceName = "video_src"
	AudioSourceName = "audio_src"
	MuxerName       = "mux"
	SinkName        = "file_sink"
)

// Property is an element property. Arg properties are set from their string form,
// caps are parsed from theirs.
type Property struct {
	Name  string
	Value interface{}
	Arg   bool
}

type Element struct {
	Factory    string
	Name       string
	Properties []Property
}

func (e Element) String() string {
	var sb strings.Builder
	sb.WriteString(e.Factory)
	if e.Name != "" {
		sb.WriteString(" name=")
		sb.WriteString(e.Name)
	}
	for _, p := range e.Properties {
		sb.WriteString(" ")
		sb.WriteString(p.Name)
		sb.WriteString("=")
		switch v := p.Value.(type) {
		case string:
			if strings.ContainsAny(v, " ,=") || v == "" {
				sb.WriteString(fmt.Sprintf("%q", v))
			} else {
				sb.WriteString(v)
			}
		default:
			sb.WriteString(fmt.Sprint(v))
		}
	}
	return sb.String()
}

// Branch is a chain of elements linked in order.
type Branch []Element

func (b Branch) String() string {
	parts := make([]string, 0, len(b))
	for _, e := range b {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, " ! ")
}

// Plan holds every element of one segment pipeline. Video and audio branches both
// end at the muxer, which feeds the file sink.
type Plan struct {
	Kind  types.AssetKind
	Video Branch
	Audio Branch // nil for video-only segments
	Muxer Element
	Sink  Element
}

// NewPlan describes a segment pipeline writing to location.
func NewPlan(kind types.AssetKind, s *config.CaptureSettings, location string, withAudio bool) (*Plan, error) {
	if s == nil {
		return nil, errors.ErrInvalidInput("capture settings")
	}
	if location == "" {
		return nil, errors.ErrInvalidInput("location")
	}

	video, err := buildVideoBranch(kind, s)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Kind:  kind,
		Video: video,
		Muxer: buildMuxer(),
		Sink:  buildFileSink(location),
	}
	if withAudio && !s.AudioOff {
		if p.Audio, err = buildAudioBranch(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// String renders the plan in gst-launch syntax.
func (p *Plan) String() string {
	s := fmt.Sprintf("%s ! %s ! %s", p.Video, p.Muxer, p.Sink)
	if len(p.Audio) > 0 {
		s = fmt.Sprintf("%s %s ! %s.", s, p.Audio, MuxerName)
	}
	return s
}

// Factories lists the element factories the plan needs, sorted.
func (p *Plan) Factories() []string {
	seen := make(map[string]struct{})
	add := func(b Branch) {
		for _, e := range b {
			seen[e.Factory] = struct{}{}
		}
	}
	add(p.Video)
	add(p.Audio)
	add(Branch{p.Muxer, p.Sink})

	factories := make([]string, 0, len(seen))
	for f := range seen {
		factories = append(factories, f)
	}
	sort.Strings(factories)
	return factories
}

func queue(name string) Element {
	return Element{
		Factory: "queue",
		Name:    name,
		Properties: []Property{
			{Name: "max-size-buffers", Value: uint(0)},
			{Name: "max-size-bytes", Value: uint(0)},
			{Name: "max-size-time", Value: uint64(3e9)},
		},
	}
}

func capsFilter(name, caps string) Element {
	return Element{
		Factory:    "capsfilter",
		Name:       name,
		Properties: []Property{{Name: "caps", Value: caps}},
	}
}

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

package builder

import (
	"fmt"

	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/capture-recorder/pkg/errors"
)

// Build creates the plan's elements inside pipeline and links them.
func (p *Plan) Build(pipeline *gst.Pipeline) error {
	video, err := newElements(p.Video)
	if err != nil {
		return err
	}
	tail, err := newElements(Branch{p.Muxer, p.Sink})
	if err != nil {
		return err
	}
	audio, err := newElements(p.Audio)
	if err != nil {
		return err
	}

	all := append(append(append([]*gst.Element{}, video...), tail...), audio...)
	if err = pipeline.AddMany(all...); err != nil {
		return errors.ErrGstPipelineError(err)
	}

	if err = gst.ElementLinkMany(append(video, tail...)...); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	if len(audio) > 0 {
		// the muxer hands out a new request pad for the audio branch
		if err = gst.ElementLinkMany(append(audio, tail[0])...); err != nil {
			return errors.ErrGstPipelineError(err)
		}
	}
	return nil
}

func newElements(b Branch) ([]*gst.Element, error) {
	elements := make([]*gst.Element, 0, len(b))
	for _, e := range b {
		var el *gst.Element
		var err error
		if e.Name != "" {
			el, err = gst.NewElementWithName(e.Factory, e.Name)
		} else {
			el, err = gst.NewElement(e.Factory)
		}
		if err != nil {
			return nil, errors.ErrGstPipelineError(fmt.Errorf("%s: %w", e.Factory, err))
		}

		for _, prop := range e.Properties {
			if err = setProperty(el, prop); err != nil {
				return nil, errors.ErrGstPipelineError(fmt.Errorf("%s.%s: %w", e.Factory, prop.Name, err))
			}
		}
		elements = append(elements, el)
	}
	return elements, nil
}

func setProperty(el *gst.Element, prop Property) error {
	switch {
	case prop.Arg:
		el.SetArg(prop.Name, fmt.Sprint(prop.Value))
		return nil
	case prop.Name == "caps":
		return el.SetProperty(prop.Name, gst.NewCapsFromString(fmt.Sprint(prop.Value)))
	default:
		return el.SetProperty(prop.Name, prop.Value)
	}
}

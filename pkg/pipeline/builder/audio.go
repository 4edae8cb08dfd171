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

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/types"
)

const AudioSourceFactory = "pulsesrc"

func buildAudioBranch(s *config.CaptureSettings) (Branch, error) {
	src := Element{
		Factory: AudioSourceFactory,
		Name:    AudioSourceName,
		Properties: []Property{
			{Name: "do-timestamp", Value: true},
		},
	}
	if s.AudioDevice != "" {
		src.Properties = append(src.Properties, Property{Name: "device", Value: s.AudioDevice})
	}

	b := Branch{
		src,
		queue("audio_queue"),
		Element{Factory: "audioconvert"},
		Element{Factory: "audioresample"},
		capsFilter("audio_caps", fmt.Sprintf("audio/x-raw,format=S16LE,layout=interleaved,rate=%d,channels=%d",
			s.AudioSampleRate, s.AudioChannels,
		)),
	}

	switch s.AudioCodec {
	case types.MimeTypeAAC:
		b = append(b,
			Element{
				Factory:    "avenc_aac",
				Name:       "audio_enc",
				Properties: []Property{{Name: "bitrate", Value: int(s.AudioBitrate * 1000)}},
			},
			Element{Factory: "aacparse"},
		)
	default:
		return nil, errors.ErrInvalidInput("audio codec")
	}

	return b, nil
}

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

func buildMuxer() Element {
	return Element{
		Factory:    "mp4mux",
		Name:       MuxerName,
		Properties: []Property{{Name: "faststart", Value: true}},
	}
}

func buildFileSink(location string) Element {
	return Element{
		Factory: "filesink",
		Name:    SinkName,
		Properties: []Property{
			{Name: "location", Value: location},
			{Name: "sync", Value: false},
		},
	}
}

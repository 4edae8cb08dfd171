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
	"path"

	"github.com/go-gst/go-gst/gst"
	"github.com/google/renameio/v2"
)

func (s *segment) debugDot() string {
	return s.pipeline.DebugBinToDotData(gst.DebugGraphShowAll)
}

// writeDotFile saves the graph of a failed segment pipeline.
func (s *segment) writeDotFile() {
	if s.dotDir == "" {
		return
	}
	if err := os.MkdirAll(s.dotDir, 0755); err != nil {
		s.logger.Warnw("failed to create debug directory", err, "dir", s.dotDir)
		return
	}

	filename := path.Join(s.dotDir, fmt.Sprintf("%s.dot", s.name))
	if err := renameio.WriteFile(filename, []byte(s.debugDot()), 0644); err != nil {
		s.logger.Warnw("failed to write debug file", err, "filename", filename)
		return
	}
	s.logger.Infow("pipeline graph written", "filename", filename)
}

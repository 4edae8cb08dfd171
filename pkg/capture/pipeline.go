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
	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/types"
)

// Finished is delivered once per StopRecording call, when the segment writer has
// closed its file or failed to.
type Finished struct {
	Cycle    uint64
	Location string
	Err      error
}

// Pipeline captures, encodes and writes media for one asset.
type Pipeline interface {
	// Configure applies capture parameters. It is only called while no segment is being written.
	Configure(settings *config.CaptureSettings) error
	// Attach connects the capture sources. A returned error means the asset cannot
	// record; failures of optional sources are reported through onError before Attach returns.
	Attach(onError func(error)) error
	StartRunning() error
	StopRunning()
	IsRunning() bool
	// StartRecording opens a new segment writer at location.
	StartRecording(location string) error
	// StopRecording closes the current writer. The returned channel receives exactly one
	// Finished carrying the same cycle.
	StopRecording(cycle uint64) <-chan Finished
	SetPointOfInterest(focus, exposure config.Point)
	Close() error
}

type PipelineFactory func(kind types.AssetKind) (Pipeline, error)

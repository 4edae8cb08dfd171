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

package barrier

import (
	"github.com/linkdata/deadlock"

	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/protocol/logger"
)

// Barrier fires a callback once a fixed number of participants have arrived.
// A barrier may be opened again after it fired.
type Barrier struct {
	name string

	mu         deadlock.Mutex
	open       bool
	expected   int
	arrived    int
	onComplete func()
}

func New(name string) *Barrier {
	return &Barrier{name: name}
}

// Open arms the barrier for the given number of arrivals. With zero expected
// arrivals onComplete runs before Open returns.
func (b *Barrier) Open(expected int, onComplete func()) {
	b.mu.Lock()
	if b.open {
		logger.Warnw("barrier reopened before firing", nil,
			"barrier", b.name,
			"expected", b.expected,
			"arrived", b.arrived,
		)
	}

	b.expected = expected
	b.arrived = 0
	if expected <= 0 {
		b.open = false
		b.onComplete = nil
		b.mu.Unlock()

		logger.Debugw("barrier fired", "barrier", b.name, "expected", 0)
		if onComplete != nil {
			onComplete()
		}
		return
	}

	b.open = true
	b.onComplete = onComplete
	b.mu.Unlock()
}

// Arrive releases one slot. The arrival that completes the barrier runs onComplete
// on the calling goroutine. Arrivals on a barrier that is not open are rejected.
func (b *Barrier) Arrive() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		logger.Warnw("unexpected barrier arrival", errors.ErrBarrierNotOpen, "barrier", b.name)
		return errors.ErrBarrierNotOpen
	}

	b.arrived++
	if b.arrived < b.expected {
		b.mu.Unlock()
		return nil
	}

	onComplete := b.onComplete
	b.open = false
	b.onComplete = nil
	expected := b.expected
	b.mu.Unlock()

	logger.Debugw("barrier fired", "barrier", b.name, "expected", expected)
	if onComplete != nil {
		onComplete()
	}
	return nil
}

// Pending returns the number of arrivals still required, or zero if the barrier is not open.
func (b *Barrier) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return 0
	}
	return b.expected - b.arrived
}

func (b *Barrier) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.open
}

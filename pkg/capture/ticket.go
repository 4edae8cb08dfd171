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
	"context"
	"sync"

	"github.com/frostbyte73/core"

	"github.com/livekit/capture-recorder/pkg/types"
)

// Ticket is the result of a single stop request. It resolves exactly once.
type Ticket struct {
	Kind    types.AssetKind
	Reason  types.StopReason
	Session uint64
	Cycle   uint64 // zero when no writer was running

	once     sync.Once
	done     core.Fuse
	location string
	err      error
}

func newTicket(kind types.AssetKind, reason types.StopReason, session uint64) *Ticket {
	return &Ticket{
		Kind:    kind,
		Reason:  reason,
		Session: session,
	}
}

func (t *Ticket) resolve(location string, err error) {
	t.once.Do(func() {
		t.location = location
		t.err = err
		t.done.Break()
	})
}

func (t *Ticket) Done() <-chan struct{} {
	return t.done.Watch()
}

func (t *Ticket) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done.Watch():
		return t.location, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// OnDone runs f on a new goroutine once the ticket resolves.
func (t *Ticket) OnDone(f func(location string, err error)) {
	go func() {
		<-t.done.Watch()
		f(t.location, t.err)
	}()
}

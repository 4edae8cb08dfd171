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

package serial

import (
	"context"
	"fmt"
	"runtime"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/protocol/logger"
)

const defaultQueueSize = 256

type Task func(ctx context.Context)

type queueKey struct{}

// Queue runs submitted tasks one at a time, in submission order, on a single goroutine.
// Tasks receive a context marked with the queue, so a task may call EnsureSerialized
// on the same queue without deadlocking.
type Queue struct {
	name  string
	ctx   context.Context
	tasks chan Task

	closing core.Fuse // broken when Close is called
	done    core.Fuse // broken when the worker exits

	senders  atomic.Int32 // Submit calls in progress
	executed atomic.Uint64
}

func New(name string) *Queue {
	q := &Queue{
		name:  name,
		tasks: make(chan Task, defaultQueueSize),
	}
	q.ctx = context.WithValue(context.Background(), queueKey{}, q)

	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.done.Break()

	for {
		select {
		case task := <-q.tasks:
			q.exec(task)

		case <-q.closing.Watch():
			// drain whatever was accepted before closing
			for {
				select {
				case task := <-q.tasks:
					q.exec(task)
					continue
				default:
				}
				// senders is read first: a Submit starting after this sees closing
				if q.senders.Load() == 0 && len(q.tasks) == 0 {
					return
				}
				runtime.Gosched()
			}
		}
	}
}

func (q *Queue) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("task panicked", fmt.Errorf("%v", r), "queue", q.name)
		}
	}()

	task(q.ctx)
	q.executed.Inc()
}

// Submit enqueues a task without waiting for it. It returns false if the queue is closed;
// a task it accepted always runs. Tasks should not Submit to their own queue while it
// may be full.
func (q *Queue) Submit(task Task) bool {
	q.senders.Inc()
	defer q.senders.Dec()

	if q.closing.IsBroken() {
		logger.Warnw("task dropped", errors.ErrQueueClosed, "queue", q.name)
		return false
	}

	select {
	case q.tasks <- task:
		return true
	case <-q.done.Watch():
		logger.Warnw("task dropped", errors.ErrQueueClosed, "queue", q.name)
		return false
	}
}

// EnsureSerialized runs the task inline when ctx already belongs to this queue,
// otherwise it enqueues the task and blocks until it ran.
// If ctx is cancelled first, the task may still run later.
func (q *Queue) EnsureSerialized(ctx context.Context, task Task) error {
	if q.IsSerialized(ctx) {
		task(ctx)
		return nil
	}

	ran := make(chan struct{})
	if !q.Submit(func(ctx context.Context) {
		defer close(ran)
		task(ctx)
	}) {
		return errors.ErrQueueClosed
	}

	select {
	case <-ran:
		return nil
	case <-q.done.Watch():
		select {
		case <-ran:
			return nil
		default:
			return errors.ErrQueueClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsSerialized reports whether ctx was handed out by this queue.
func (q *Queue) IsSerialized(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(queueKey{}).(*Queue)
	return owner == q
}

// Executed returns the number of tasks that completed without panicking.
func (q *Queue) Executed() uint64 {
	return q.executed.Load()
}

// Close runs the tasks already queued, then stops the worker.
// It must not be called from a task.
func (q *Queue) Close() {
	q.closing.Break()
	<-q.done.Watch()
}

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

package logging

import (
	"fmt"

	"github.com/aws/smithy-go/logging"
	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
)

const maxS3Entries = 10

type s3Entry struct {
	warn bool
	msg  string
}

// S3Logger buffers the most recent aws sdk messages of one upload. They are only
// written out by Flush, when the upload failed.
type S3Logger struct {
	mu      deadlock.Mutex
	entries []s3Entry
	dropped int
}

func NewS3Logger() *S3Logger {
	return &S3Logger{}
}

func (l *S3Logger) Logf(classification logging.Classification, format string, v ...interface{}) {
	e := s3Entry{
		warn: classification == logging.Warn,
		msg:  fmt.Sprintf(format, v...),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == maxS3Entries {
		l.entries = append(l.entries[:0], l.entries[1:]...)
		l.dropped++
	}
	l.entries = append(l.entries, e)
}

// Flush logs the buffered messages oldest first and empties the buffer.
func (l *S3Logger) Flush(keysAndValues ...interface{}) {
	l.mu.Lock()
	entries, dropped := l.entries, l.dropped
	l.entries, l.dropped = nil, 0
	l.mu.Unlock()

	if dropped > 0 {
		logger.Debugw("aws sdk messages dropped", append([]interface{}{"count", dropped}, keysAndValues...)...)
	}
	for _, e := range entries {
		if e.warn {
			logger.Warnw("aws sdk: "+e.msg, nil, keysAndValues...)
		} else {
			logger.Debugw("aws sdk: "+e.msg, keysAndValues...)
		}
	}
}

func (l *S3Logger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		msgs = append(msgs, e.msg)
	}
	return msgs
}

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
	"strings"

	"github.com/linkdata/deadlock"

	"github.com/livekit/protocol/logger"
)

const maxTailLines = 20

// CmdLogger logs cmd outputs line by line and keeps the last lines for error reports
type CmdLogger struct {
	logger logger.Logger

	mu      deadlock.Mutex
	partial string
	tail    []string
}

func NewCmdLogger(name string, keysAndValues ...interface{}) *CmdLogger {
	return &CmdLogger{
		logger: logger.GetLogger().WithValues(append([]interface{}{"cmd", name}, keysAndValues...)...),
	}
}

func (l *CmdLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.partial + strings.ReplaceAll(string(p), "\r", "\n")
	lines := strings.Split(s, "\n")
	l.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		l.writeLine(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (l *CmdLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.partial != "" {
		l.writeLine(l.partial)
		l.partial = ""
	}
}

// Tail returns the last lines written, oldest first.
func (l *CmdLogger) Tail() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.tail...)
}

func (l *CmdLogger) writeLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	l.tail = append(l.tail, line)
	if len(l.tail) > maxTailLines {
		l.tail = l.tail[len(l.tail)-maxTailLines:]
	}

	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "invalid"):
		l.logger.Warnw(line, nil)
	default:
		l.logger.Debugw(line)
	}
}

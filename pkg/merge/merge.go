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

package merge

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/logging"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
)

const maxErrorLines = 3

// Merger concatenates segments into a single file without re-encoding.
type Merger struct {
	ffmpegPath   string
	timeout      time.Duration
	keepSegments bool
}

func New(conf config.MergeConfig) *Merger {
	return &Merger{
		ffmpegPath:   conf.FFmpegPath,
		timeout:      conf.Timeout,
		keepSegments: conf.KeepSegments,
	}
}

// Merge writes segments, in order, to output and returns its location.
func (m *Merger) Merge(ctx context.Context, kind types.AssetKind, segments []string, output string) (string, error) {
	var err error
	switch len(segments) {
	case 0:
		err = errors.ErrNoSegments
	case 1:
		err = m.single(segments[0], output)
	default:
		err = m.concat(ctx, kind, segments, output)
	}
	if err != nil {
		return "", &errors.MergeError{Kind: string(kind), Err: err}
	}

	if !m.keepSegments && len(segments) > 1 {
		for _, s := range segments {
			if err = os.Remove(s); err != nil && !os.IsNotExist(err) {
				logger.Warnw("failed to remove segment", err, "asset", kind, "segment", s)
			}
		}
	}

	logger.Infow("segments merged", "asset", kind, "segments", len(segments), "output", output)
	return output, nil
}

// single moves or copies a lone segment into place.
func (m *Merger) single(segment, output string) error {
	if segment == output {
		return nil
	}
	if !m.keepSegments {
		if err := os.Rename(segment, output); err == nil {
			return nil
		}
	}
	return copyFile(segment, output)
}

func (m *Merger) concat(ctx context.Context, kind types.AssetKind, segments []string, output string) error {
	listPath := output + ".txt"
	if err := writeConcatList(listPath, segments); err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(listPath)
	}()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-hide_banner",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	)
	l := logging.NewCmdLogger("ffmpeg", "asset", string(kind))
	cmd.Stdout = l
	cmd.Stderr = l

	logger.Debugw("merging segments", "asset", kind, "cmd", cmd.String())
	err := cmd.Run()
	l.Flush()
	if err != nil {
		tail := l.Tail()
		if len(tail) > maxErrorLines {
			tail = tail[len(tail)-maxErrorLines:]
		}
		if len(tail) > 0 {
			return fmt.Errorf("%w: %s", err, strings.Join(tail, "; "))
		}
		return err
	}
	return nil
}

func writeConcatList(listPath string, segments []string) error {
	pendingFile, err := renameio.NewPendingFile(listPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = pendingFile.Cleanup()
	}()

	if _, err = io.WriteString(pendingFile, ConcatList(segments)); err != nil {
		return err
	}
	return pendingFile.CloseAtomicallyReplace()
}

// ConcatList renders segments in the ffmpeg concat demuxer format.
func ConcatList(segments []string) string {
	var sb strings.Builder
	sb.WriteString("ffconcat version 1.0\n")
	for _, s := range segments {
		sb.WriteString("file '")
		sb.WriteString(strings.ReplaceAll(s, "'", `'\''`))
		sb.WriteString("'\n")
	}
	return sb.String()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

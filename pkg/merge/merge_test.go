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
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/types"
)

// fakeFFmpeg writes a script that copies the concat list into the output file.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	p := path.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0755))
	return p
}

const copyListScript = `
list=""
prev=""
for arg in "$@"; do
	if [ "$prev" = "-i" ]; then list="$arg"; fi
	prev="$arg"
	out="$arg"
done
cp "$list" "$out"
`

func writeSegments(t *testing.T, dir string, n int) []string {
	t.Helper()
	var segments []string
	for i := 0; i < n; i++ {
		s := path.Join(dir, "camera_00"+string(rune('0'+i))+".mp4")
		require.NoError(t, os.WriteFile(s, []byte("segment"), 0644))
		segments = append(segments, s)
	}
	return segments
}

func TestConcatList(t *testing.T) {
	require.Equal(t,
		"ffconcat version 1.0\nfile '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n",
		ConcatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"}),
	)
}

func TestMerge_NoSegments(t *testing.T) {
	m := New(config.MergeConfig{FFmpegPath: "ffmpeg"})
	_, err := m.Merge(context.Background(), types.AssetCamera, nil, "out.mp4")

	var mergeErr *errors.MergeError
	require.ErrorAs(t, err, &mergeErr)
	require.ErrorIs(t, err, errors.ErrNoSegments)
}

func TestMerge_SingleSegment(t *testing.T) {
	dir := t.TempDir()
	segments := writeSegments(t, dir, 1)
	output := path.Join(dir, "out.mp4")

	m := New(config.MergeConfig{FFmpegPath: "/nonexistent/ffmpeg"})
	location, err := m.Merge(context.Background(), types.AssetScreen, segments, output)
	require.NoError(t, err)
	require.Equal(t, output, location)

	b, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, "segment", string(b))
	require.NoFileExists(t, segments[0])
}

func TestMerge_KeepSingleSegment(t *testing.T) {
	dir := t.TempDir()
	segments := writeSegments(t, dir, 1)
	output := path.Join(dir, "out.mp4")

	m := New(config.MergeConfig{KeepSegments: true})
	_, err := m.Merge(context.Background(), types.AssetScreen, segments, output)
	require.NoError(t, err)
	require.FileExists(t, segments[0])
	require.FileExists(t, output)
}

func TestMerge_Concat(t *testing.T) {
	dir := t.TempDir()
	segments := writeSegments(t, dir, 3)
	output := path.Join(dir, "out.mp4")

	m := New(config.MergeConfig{FFmpegPath: fakeFFmpeg(t, copyListScript), Timeout: 10 * time.Second})
	location, err := m.Merge(context.Background(), types.AssetCamera, segments, output)
	require.NoError(t, err)
	require.Equal(t, output, location)

	b, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, ConcatList(segments), string(b))

	require.NoFileExists(t, output+".txt")
	for _, s := range segments {
		require.NoFileExists(t, s)
	}
}

func TestMerge_ConcatFailure(t *testing.T) {
	dir := t.TempDir()
	segments := writeSegments(t, dir, 2)

	m := New(config.MergeConfig{
		FFmpegPath: fakeFFmpeg(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n"),
	})
	_, err := m.Merge(context.Background(), types.AssetCamera, segments, path.Join(dir, "out.mp4"))

	var mergeErr *errors.MergeError
	require.ErrorAs(t, err, &mergeErr)
	require.Equal(t, "camera", mergeErr.Kind)
	require.Contains(t, err.Error(), "Invalid data found")

	// segments are kept for a retry
	for _, s := range segments {
		require.FileExists(t, s)
	}
}

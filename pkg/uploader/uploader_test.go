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

package uploader

import (
	"context"
	"errors"
	"os"
	"path"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/livekit/capture-recorder/pkg/config"
	lkerrors "github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/stats"
	"github.com/livekit/capture-recorder/pkg/types"
)

type failingUploader struct {
	calls int
}

func (u *failingUploader) upload(context.Context, string, string, types.OutputType) (string, int64, error) {
	u.calls++
	return "", 0, wrap("S3", errors.New("access denied"))
}

func writeRecording(t *testing.T) string {
	t.Helper()
	p := path.Join(t.TempDir(), "RS_abc_camera.mp4")
	require.NoError(t, os.WriteFile(p, []byte("package uploader"), 0644))
	return p
}

func TestSave_Local(t *testing.T) {
	dir := t.TempDir()
	u, err := New(&config.StorageConfig{Prefix: path.Join(dir, "recordings")}, nil, nil)
	require.NoError(t, err)

	filename := writeRecording(t)
	location, size, err := u.Save(context.Background(), types.AssetCamera, filename)
	require.NoError(t, err)
	require.Equal(t, path.Join(dir, "recordings", "RS_abc_camera.mp4"), location)
	require.Equal(t, int64(len("package uploader")), size)

	require.NoFileExists(t, filename)
	b, err := os.ReadFile(location)
	require.NoError(t, err)
	require.Equal(t, "package uploader", string(b))
}

func TestSave_LocalInPlace(t *testing.T) {
	u, err := New(nil, nil, nil)
	require.NoError(t, err)

	filename := writeRecording(t)
	location, _, err := u.Save(context.Background(), types.AssetScreen, filename)
	require.NoError(t, err)
	require.Equal(t, filename, location)
	require.FileExists(t, filename)
}

func TestSave_Backup(t *testing.T) {
	dir := t.TempDir()
	monitor, err := stats.NewMonitor(prometheus.NewRegistry(), "NR_test", types.ModeCameraOnly)
	require.NoError(t, err)

	u, err := New(nil, &config.StorageConfig{Prefix: dir}, monitor)
	require.NoError(t, err)
	primary := &failingUploader{}
	u.primary = primary

	filename := writeRecording(t)
	location, _, err := u.Save(context.Background(), types.AssetCamera, filename)
	require.NoError(t, err)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, path.Join(dir, "RS_abc_camera.mp4"), location)
	require.NoFileExists(t, filename)
}

func TestSave_Failure(t *testing.T) {
	u, err := New(nil, nil, nil)
	require.NoError(t, err)
	u.primary = &failingUploader{}

	filename := writeRecording(t)
	_, _, err = u.Save(context.Background(), types.AssetCamera, filename)

	var persistErr *lkerrors.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.Equal(t, filename, persistErr.Filename)
	require.Contains(t, err.Error(), "S3 upload failed")

	// the recording is kept when it could not be stored
	require.FileExists(t, filename)
}

func TestSave_LocalUnwritable(t *testing.T) {
	blocker := path.Join(t.TempDir(), "recordings")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	u, err := New(&config.StorageConfig{Prefix: path.Join(blocker, "camera")}, nil, nil)
	require.NoError(t, err)

	filename := writeRecording(t)
	_, _, err = u.Save(context.Background(), types.AssetCamera, filename)
	require.Error(t, err)
	require.Contains(t, err.Error(), "local upload failed")

	require.FileExists(t, filename)
	require.NoFileExists(t, path.Join(blocker, "camera", "RS_abc_camera.mp4"))
}

func TestSave_MissingFile(t *testing.T) {
	u, err := New(&config.StorageConfig{Prefix: t.TempDir()}, nil, nil)
	require.NoError(t, err)

	_, _, err = u.Save(context.Background(), types.AssetCamera, "/nonexistent/camera.mp4")
	require.Error(t, err)
}

func TestNewAzureUploader(t *testing.T) {
	_, err := New(&config.StorageConfig{Azure: &config.AzureConfig{
		AccountName:   "recorder",
		AccountKey:    "not base64!",
		ContainerName: "recordings",
	}}, nil, nil)
	require.Error(t, err)

	u, err := New(&config.StorageConfig{
		Prefix: "sessions",
		Azure: &config.AzureConfig{
			AccountName:   "recorder",
			AccountKey:    "c2VjcmV0LWtleQ==",
			ContainerName: "recordings",
		},
	}, nil, nil)
	require.NoError(t, err)

	azure, ok := u.primary.(*AzureUploader)
	require.True(t, ok)
	require.Equal(t, "https://recorder.blob.core.windows.net/recordings", azure.container.String())
	require.Equal(t, "sessions", azure.prefix)
}

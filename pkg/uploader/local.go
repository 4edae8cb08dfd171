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
	"io"
	"os"
	"path"

	"github.com/google/renameio/v2"

	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
)

// localUploader copies files into a directory. Without a directory files stay where they are.
type localUploader struct {
	dir string
}

func newLocalUploader(dir string) (*localUploader, error) {
	return &localUploader{dir: dir}, nil
}

func (u *localUploader) upload(_ context.Context, localFilepath, storageFilepath string, _ types.OutputType) (string, int64, error) {
	stat, err := os.Stat(localFilepath)
	if err != nil {
		return "", 0, wrap("local", err)
	}
	if u.dir == "" {
		return localFilepath, stat.Size(), nil
	}

	storageFilepath = path.Join(u.dir, storageFilepath)
	if storageFilepath == localFilepath {
		return localFilepath, stat.Size(), nil
	}

	dir, _ := path.Split(storageFilepath)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return "", 0, wrap("local", err)
	}

	if err = copyFile(localFilepath, storageFilepath); err != nil {
		return "", 0, wrap("local", err)
	}
	return storageFilepath, stat.Size(), nil
}

// copyFile only creates dst once the whole file was written and synced.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0644))
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Cleanup(); err != nil {
			logger.Debugw("failed to clean up pending file", "error", err, "filename", dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.CloseAtomicallyReplace()
}

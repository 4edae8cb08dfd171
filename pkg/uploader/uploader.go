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
	"os"
	"path"
	"time"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/errors"
	"github.com/livekit/capture-recorder/pkg/stats"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/psrpc"
)

const (
	maxRetries = 5
	minDelay   = time.Millisecond * 100
	maxDelay   = time.Second * 5
)

type uploader interface {
	upload(ctx context.Context, localFilepath, storageFilepath string, outputType types.OutputType) (string, int64, error)
}

type Uploader struct {
	primary uploader
	backup  uploader
	monitor *stats.Monitor
}

func New(conf, backup *config.StorageConfig, monitor *stats.Monitor) (*Uploader, error) {
	p, err := getUploader(conf)
	if err != nil {
		return nil, err
	}

	u := &Uploader{
		primary: p,
		monitor: monitor,
	}

	if backup != nil {
		b, err := getUploader(backup)
		if err != nil {
			logger.Errorw("failed to create backup uploader", err)
		} else {
			u.backup = b
		}
	}

	return u, nil
}

func getUploader(conf *config.StorageConfig) (uploader, error) {
	switch {
	case conf == nil:
		return newLocalUploader("")
	case conf.S3 != nil:
		return newS3Uploader(conf.S3, conf.Prefix)
	case conf.GCP != nil:
		return newGCPUploader(conf.GCP, conf.Prefix)
	case conf.Azure != nil:
		return newAzureUploader(conf.Azure, conf.Prefix)
	case conf.AliOSS != nil:
		return newAliOSSUploader(conf.AliOSS, conf.Prefix)
	default:
		return newLocalUploader(conf.Prefix)
	}
}

// Save persists a finished recording under its base name and removes the local file
// once it has been stored elsewhere.
func (u *Uploader) Save(ctx context.Context, kind types.AssetKind, filename string) (string, int64, error) {
	location, size, err := u.Upload(ctx, string(kind), filename, path.Base(filename), types.OutputTypeMP4, true)
	if err != nil {
		return "", 0, &errors.PersistenceError{Kind: string(kind), Filename: filename, Err: err}
	}

	logger.Infow("recording saved", "asset", kind, "location", location, "size", size)
	return location, size, nil
}

func (u *Uploader) Upload(
	ctx context.Context,
	asset string,
	localFilepath, storageFilepath string,
	outputType types.OutputType,
	deleteAfterUpload bool,
) (string, int64, error) {

	start := time.Now()
	location, size, primaryErr := u.primary.upload(ctx, localFilepath, storageFilepath, outputType)
	elapsed := time.Since(start)

	if primaryErr == nil {
		// success
		u.monitor.IncUploadCountSuccess(asset, float64(elapsed.Milliseconds()))
		if deleteAfterUpload && location != localFilepath {
			_ = os.Remove(localFilepath)
		}
		return location, size, nil
	}

	u.monitor.IncUploadCountFailure(asset, float64(elapsed.Milliseconds()))
	if u.backup != nil {
		logger.Warnw("primary upload failed, trying backup", primaryErr, "asset", asset)
		location, size, backupErr := u.backup.upload(ctx, localFilepath, storageFilepath, outputType)
		if backupErr == nil {
			u.monitor.IncBackupStorageWrites(asset)
			if deleteAfterUpload && location != localFilepath {
				_ = os.Remove(localFilepath)
			}
			return location, size, nil
		}

		return "", 0, psrpc.NewErrorf(psrpc.InvalidArgument,
			"primary: %s\nbackup: %s", primaryErr.Error(), backupErr.Error())
	}

	return "", 0, primaryErr
}

func wrap(name string, err error) error {
	return errors.ErrUploadFailed(name, err)
}

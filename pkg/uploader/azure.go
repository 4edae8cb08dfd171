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
	"fmt"
	"net/url"
	"os"
	"path"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/types"
)

const (
	azureBlockSize   = 4 * 1024 * 1024
	azureParallelism = 16
)

// AzureUploader writes recordings as block blobs into one container.
type AzureUploader struct {
	prefix    string
	container azblob.ContainerURL
}

func newAzureUploader(conf *config.AzureConfig, prefix string) (uploader, error) {
	credential, err := azblob.NewSharedKeyCredential(conf.AccountName, conf.AccountKey)
	if err != nil {
		return nil, wrap("Azure", err)
	}

	containerURL, err := url.Parse(azureContainerURL(conf))
	if err != nil {
		return nil, wrap("Azure", err)
	}

	p := azblob.NewPipeline(credential, azblob.PipelineOptions{
		Retry: azblob.RetryOptions{
			Policy:        azblob.RetryPolicyExponential,
			MaxTries:      maxRetries,
			RetryDelay:    minDelay,
			MaxRetryDelay: maxDelay,
		},
	})

	return &AzureUploader{
		prefix:    prefix,
		container: azblob.NewContainerURL(*containerURL, p),
	}, nil
}

func azureContainerURL(conf *config.AzureConfig) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s", conf.AccountName, conf.ContainerName)
}

func (u *AzureUploader) upload(ctx context.Context, localFilepath, storageFilepath string, outputType types.OutputType) (string, int64, error) {
	blob := u.container.NewBlockBlobURL(path.Join(u.prefix, storageFilepath))

	f, err := os.Open(localFilepath)
	if err != nil {
		return "", 0, wrap("Azure", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", 0, wrap("Azure", err)
	}

	// large files are sent as staged blocks, small ones in a single put
	if _, err = azblob.UploadFileToBlockBlob(ctx, f, blob, azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType:        string(outputType),
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(storageFilepath)),
		},
		BlockSize:   azureBlockSize,
		Parallelism: azureParallelism,
	}); err != nil {
		return "", 0, wrap("Azure", err)
	}

	location := blob.URL()
	return location.String(), stat.Size(), nil
}

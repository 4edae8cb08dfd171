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

package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/psrpc"
)

func TestErrArray(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := &MergeError{Kind: "camera", Err: errors.New("error 2")}
	err3 := &FinalizeError{Kind: "screen", Cycle: 2, Err: ErrFinalizeTimeout}
	err4 := psrpc.NewErrorf(psrpc.Internal, "error 4")

	errArray := &ErrArray{}
	assert.Nil(t, errArray.ToError())

	errArray.AppendErr(nil)
	assert.Equal(t, 0, errArray.Len())

	errArray.AppendErr(err1)
	assert.Equal(t, psrpc.Unknown, errArray.ToError().Code())
	assert.Equal(t, err1.Error(), errArray.ToError().Error())

	errArray.AppendErr(err2)
	assert.Equal(t, psrpc.Unknown, errArray.ToError().Code())
	assert.Equal(t, 2, len(strings.Split(errArray.ToError().Error(), "\n")))

	errArray.AppendErr(err3)
	assert.Equal(t, psrpc.DeadlineExceeded, errArray.ToError().Code())
	assert.Equal(t, 3, len(strings.Split(errArray.ToError().Error(), "\n")))

	errArray.AppendErr(err4)
	assert.Equal(t, psrpc.DeadlineExceeded, errArray.ToError().Code())
	assert.Equal(t, 4, len(strings.Split(errArray.ToError().Error(), "\n")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("device busy")
	var err error = &AttachmentError{Kind: "camera", Source: "video", Err: cause}
	require.True(t, errors.Is(err, cause))

	var attachErr *AttachmentError
	require.True(t, As(err, &attachErr))
	require.Equal(t, "video", attachErr.Source)

	err = &PersistenceError{Kind: "screen", Filename: "screen.mp4", Err: ErrUploadFailed("S3", cause)}
	require.Contains(t, err.Error(), "S3 upload failed")
	require.False(t, Is(err, ErrNoSegments))
}

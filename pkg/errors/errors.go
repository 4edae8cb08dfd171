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
	"fmt"
	"strings"

	"github.com/livekit/psrpc"
)

var (
	ErrNoConfig         = psrpc.NewErrorf(psrpc.InvalidArgument, "missing config")
	ErrQueueClosed      = psrpc.NewErrorf(psrpc.Unavailable, "execution queue closed")
	ErrBarrierNotOpen   = psrpc.NewErrorf(psrpc.FailedPrecondition, "barrier is not open")
	ErrNoSegments       = psrpc.NewErrorf(psrpc.NotFound, "no segments to merge")
	ErrFinalizeTimeout  = psrpc.NewErrorf(psrpc.DeadlineExceeded, "segment finalization timed out")
	ErrPipelineClosed   = psrpc.NewErrorf(psrpc.Unavailable, "pipeline closed")
	ErrRecorderStopping = psrpc.NewErrorf(psrpc.FailedPrecondition, "recorder is stopping")
)

func New(err string) error {
	return errors.New(err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func ErrCouldNotParseConfig(err error) error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "could not parse config: %v", err)
}

func ErrInvalidInput(field string) error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "config has missing or invalid field: %s", field)
}

func ErrSourceNotFound(source string) error {
	return psrpc.NewErrorf(psrpc.NotFound, "%s not found", source)
}

func ErrGstPipelineError(err error) error {
	return psrpc.NewError(psrpc.Internal, err)
}

func ErrUploadFailed(location string, err error) error {
	return psrpc.NewErrorf(psrpc.Unavailable, "%s upload failed: %v", location, err)
}

// AttachmentError is reported when a capture source cannot be attached. The asset
// produces no segments for the session, other assets continue.
type AttachmentError struct {
	Kind   string
	Source string
	Err    error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("%s: failed to attach %s: %v", e.Kind, e.Source, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}

// FinalizeError is reported when a segment writer fails to finish. The completion
// slot is still released.
type FinalizeError struct {
	Kind  string
	Cycle uint64
	Err   error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("%s: segment %d failed to finalize: %v", e.Kind, e.Cycle, e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}

type MergeError struct {
	Kind string
	Err  error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("%s: merge failed: %v", e.Kind, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

type PersistenceError struct {
	Kind     string
	Filename string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: failed to persist %s: %v", e.Kind, e.Filename, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type ErrArray struct {
	errs []error
}

func (e *ErrArray) AppendErr(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func (e *ErrArray) Len() int {
	return len(e.errs)
}

// ToError joins all errors, keeping the code of the first psrpc error.
func (e *ErrArray) ToError() psrpc.Error {
	if len(e.errs) == 0 {
		return nil
	}

	code := psrpc.Unknown
	msg := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		if code == psrpc.Unknown {
			var pErr psrpc.Error
			if errors.As(err, &pErr) {
				code = pErr.Code()
			}
		}
		msg = append(msg, err.Error())
	}

	return psrpc.NewErrorf(code, "%s", strings.Join(msg, "\n"))
}

package upload

import (
	"context"
	"errors"
	"fmt"
)

// ErrUploadCancelled marks cooperative cancellation. Callers can use IsCancelled
// to tell a user-initiated cancel apart from a genuine failure.
var ErrUploadCancelled = errors.New("upload cancelled")

// PresignError means the gateway refused to issue an upload URL or open a
// session. Not retried; surfaced to the caller immediately.
type PresignError struct {
	Err error
}

func (e *PresignError) Error() string {
	return fmt.Sprintf("presign upload URL: %s", e.Err)
}

func (e *PresignError) Unwrap() error {
	return e.Err
}

// TransferError is a network failure during a chunk or whole-file PUT.
// Part is 0 for single-shot transfers.
type TransferError struct {
	Part int32
	Err  error
}

func (e *TransferError) Error() string {
	if e.Part > 0 {
		return fmt.Sprintf("transfer part %d: %s", e.Part, e.Err)
	}
	return fmt.Sprintf("transfer: %s", e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// CompletionError means the object store rejected the completion manifest.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("complete multipart session: %s", e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// FinalizeError means the metadata write failed after a successful upload.
// The stored object is left in place for out-of-band reconciliation.
type FinalizeError struct {
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize file metadata: %s", e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is the result of cooperative cancellation
// rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrUploadCancelled) || errors.Is(err, context.Canceled)
}

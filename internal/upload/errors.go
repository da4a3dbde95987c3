package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled means the caller cancelled the upload. It is reported
	// separately from failures.
	ErrCancelled = errors.New("upload: cancelled")

	// ErrEmptySource means there is nothing to upload.
	ErrEmptySource = errors.New("upload: source is empty")

	// ErrIncomplete means finalise was requested before every part was
	// acknowledged.
	ErrIncomplete = errors.New("upload: not every part was acknowledged")
)

// PartUploadError reports the part whose URL request or PUT failed. The
// whole upload is abandoned when one is returned.
type PartUploadError struct {
	PartNumber int
	Err        error
}

func (e *PartUploadError) Error() string {
	return fmt.Sprintf("upload: part %d failed: %v", e.PartNumber, e.Err)
}

func (e *PartUploadError) Unwrap() error {
	return e.Err
}

// StorageError is a non-2xx answer to a part PUT.
type StorageError struct {
	Status int
	Body   string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("upload: storage returned HTTP %d: %s", e.Status, e.Body)
}

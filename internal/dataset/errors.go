package dataset

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is. The typed errors below wrap them.
var (
	// ErrMissingPair indicates a label has no image with the same base name.
	ErrMissingPair = errors.New("missing image for label")

	// ErrInvalidImage indicates a file could not be decoded or re-encoded as an image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrFilesystem indicates a directory, copy or write failure.
	ErrFilesystem = errors.New("filesystem error")
)

// MissingPairError is returned when a label file has no corresponding image.
// It aborts the whole partition operation.
type MissingPairError struct {
	Label string
	Image string
}

func (e *MissingPairError) Error() string {
	return fmt.Sprintf("missing image for label %s: expected %s", e.Label, e.Image)
}

// Unwrap lets errors.Is match ErrMissingPair.
func (e *MissingPairError) Unwrap() error { return ErrMissingPair }

// InvalidImageError is returned when a file in a modifier source directory
// is not a decodable 2D image, or cannot be written back in its format.
type InvalidImageError struct {
	Path   string
	Reason string
	Err    error // Underlying codec error, if any
}

func (e *InvalidImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid image %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid image %s: %s", e.Path, e.Reason)
}

// Unwrap returns both the sentinel and the codec cause.
func (e *InvalidImageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidImage}
	}
	return []error{ErrInvalidImage, e.Err}
}

// FilesystemError wraps directory creation, copy and write failures.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns both the sentinel and the OS cause so that
// errors.Is(err, fs.ErrNotExist) keeps working.
func (e *FilesystemError) Unwrap() []error {
	return []error{ErrFilesystem, e.Err}
}

// Package advisory defines the user-correctable error kinds surfaced to the UI
// shell as non-fatal notifications.
package advisory

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable condition.
type Kind string

const (
	InvalidFileType        Kind = "invalid_file_type"
	FileTooLarge           Kind = "file_too_large"
	CameraUnavailable      Kind = "camera_unavailable"
	CameraPermissionDenied Kind = "camera_permission_denied"
	CaptureFailed          Kind = "capture_failed"
	ModelInitFailed        Kind = "model_init_failed"
	ClassificationFailed   Kind = "classification_failed"
	NoImageSelected        Kind = "no_image_selected"
)

// Sticky reports whether the condition moves its component into a terminal
// unavailable state instead of being retried.
func (k Kind) Sticky() bool {
	return k == ModelInitFailed || k == CameraPermissionDenied
}

type text struct {
	title       string
	description string
}

var texts = map[Kind]text{
	InvalidFileType:        {"Invalid file type", "Please upload an image file (JPEG, PNG, etc.)"},
	FileTooLarge:           {"File too large", "Please upload an image smaller than 5MB"},
	CameraUnavailable:      {"Camera not available", "Please ensure camera permissions are granted or use image upload instead."},
	CameraPermissionDenied: {"Camera access denied", "Please allow camera access to use this feature."},
	CaptureFailed:          {"Capture failed", "Unable to capture image. Please try again."},
	ModelInitFailed:        {"Error loading AI model", "Please try again later or contact support."},
	ClassificationFailed:   {"Error analyzing image", "There was a problem processing your image. Please try again."},
	NoImageSelected:        {"No image selected", "Please upload an eye scan image to analyze."},
}

// Error is a single advisory. Err carries the underlying cause, if any.
type Error struct {
	Kind        Kind
	Title       string
	Description string
	Err         error
}

// New builds an advisory of the given kind with its default user-facing text.
func New(kind Kind, err error) *Error {
	t := texts[kind]
	return &Error{Kind: kind, Title: t.title, Description: t.description, Err: err}
}

// Newf builds an advisory whose cause is a formatted error.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any advisory of the same kind, so callers can write
// errors.Is(err, advisory.New(advisory.FileTooLarge, nil)).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && other.Err == nil
}

// KindOf extracts the advisory kind carried anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var adv *Error
	if errors.As(err, &adv) {
		return adv.Kind, true
	}
	return "", false
}

// Is reports whether err carries an advisory of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

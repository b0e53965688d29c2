//go:build !gocv
// +build !gocv

package camera

import (
	"context"
	"errors"

	"github.com/example/eyescan/internal/imagesource"
)

// Device is the camera used when the binary is built without OpenCV. It
// reports no camera, so the upload path is the only source.
type Device struct {
	Index int
}

// NewDevice returns the camera stub.
func NewDevice(index int) *Device {
	return &Device{Index: index}
}

// HasCamera always reports false.
func (d *Device) HasCamera(ctx context.Context) (bool, error) {
	return false, nil
}

// Open always fails with ErrNoDevice.
func (d *Device) Open(ctx context.Context, opts imagesource.StreamOptions) (imagesource.Stream, error) {
	return nil, errors.Join(imagesource.ErrNoDevice, errors.New("gocv build tag is not enabled"))
}

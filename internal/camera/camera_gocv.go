//go:build gocv
// +build gocv

package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/example/eyescan/internal/imagesource"
)

// Device opens OpenCV video captures on a fixed device index.
type Device struct {
	Index int
}

// NewDevice returns the OpenCV-backed camera.
func NewDevice(index int) *Device {
	return &Device{Index: index}
}

// HasCamera probes the device by opening and closing it.
func (d *Device) HasCamera(ctx context.Context) (bool, error) {
	vc, err := gocv.OpenVideoCapture(d.Index)
	if err != nil {
		return false, nil
	}
	defer vc.Close()
	return vc.IsOpened(), nil
}

// Open starts a capture at the requested resolution. OpenCV has no notion of
// facing mode, so the configured index decides which camera is used.
func (d *Device) Open(ctx context.Context, opts imagesource.StreamOptions) (imagesource.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.OpenVideoCapture(d.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", imagesource.ErrNoDevice, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, imagesource.ErrNoDevice
	}
	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	return &stream{vc: vc, mat: gocv.NewMat()}, nil
}

type stream struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// ReadFrame grabs the next frame and converts it to an image.Image.
func (s *stream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil, errors.New("stream closed")
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, errors.New("failed to read frame")
	}
	return s.mat.ToImage()
}

// Close releases the capture and its frame buffer.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	if cerr := s.mat.Close(); err == nil {
		err = cerr
	}
	return err
}

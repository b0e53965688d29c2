package imagesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"go.uber.org/zap"

	"github.com/example/eyescan/internal/advisory"
)

// Errors a Device reports when a stream cannot be opened.
var (
	ErrNoDevice         = errors.New("no camera device")
	ErrPermissionDenied = errors.New("camera permission denied")
)

// CaptureQuality is the JPEG quality used for captured frames.
const CaptureQuality = 90

// StreamOptions describes the preferred live stream. Devices treat the values
// as ideals, not requirements.
type StreamOptions struct {
	FacingMode string
	Width      int
	Height     int
}

// DefaultStreamOptions prefers the rear camera at 1280x720.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{FacingMode: "environment", Width: 1280, Height: 720}
}

// Device is the host camera.
type Device interface {
	// HasCamera reports whether at least one video input exists.
	HasCamera(ctx context.Context) (bool, error)
	// Open acquires an exclusive live stream.
	Open(ctx context.Context, opts StreamOptions) (Stream, error)
}

// Stream is a live video stream owned by the capture adapter.
type Stream interface {
	// ReadFrame returns the current frame at the stream's native resolution.
	ReadFrame(ctx context.Context) (image.Image, error)
	// Close releases every track of the stream.
	Close() error
}

// CaptureState is the capture adapter's lifecycle state.
type CaptureState string

const (
	CaptureIdle        CaptureState = "idle"
	CaptureStreaming   CaptureState = "streaming"
	CaptureUnavailable CaptureState = "unavailable"
)

// CaptureStatus is a snapshot of the capture adapter.
type CaptureStatus struct {
	State     CaptureState `json:"state"`
	Available bool         `json:"available"`
	Checked   bool         `json:"checked"`
}

// Camera is the live-capture adapter. It owns at most one stream at a time.
type Camera struct {
	device Device
	opts   StreamOptions
	logger *zap.Logger

	mu        sync.Mutex
	state     CaptureState
	available bool
	checked   bool
	stream    Stream
}

// NewCamera wires the adapter to a device.
func NewCamera(device Device, opts StreamOptions, logger *zap.Logger) *Camera {
	return &Camera{
		device:    device,
		opts:      opts,
		logger:    logger.Named("camera"),
		state:     CaptureIdle,
		available: true,
	}
}

// CheckAvailability enumerates the device once and records the outcome. A
// missing camera is reported as a CameraUnavailable advisory alongside false.
func (c *Camera) CheckAvailability(ctx context.Context) (bool, error) {
	ok, err := c.device.HasCamera(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = true
	if err != nil {
		c.available = false
		c.logger.Warn("camera enumeration failed", zap.Error(err))
		return false, advisory.New(advisory.CameraUnavailable, err)
	}
	c.available = ok
	if !ok {
		c.logger.Warn("no camera detected")
		return false, advisory.New(advisory.CameraUnavailable, ErrNoDevice)
	}
	return true, nil
}

// Start opens a live stream, releasing any stream already held. A permission
// or device failure moves the adapter to Unavailable for good.
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CaptureUnavailable {
		return advisory.Newf(advisory.CameraUnavailable, "camera was marked unavailable")
	}
	if c.checked && !c.available {
		c.state = CaptureUnavailable
		return advisory.New(advisory.CameraUnavailable, ErrNoDevice)
	}
	c.releaseLocked()

	stream, err := c.device.Open(ctx, c.opts)
	if err != nil {
		c.state = CaptureUnavailable
		c.available = false
		c.logger.Warn("camera start failed", zap.Error(err))
		if errors.Is(err, ErrPermissionDenied) {
			return advisory.New(advisory.CameraPermissionDenied, err)
		}
		return advisory.New(advisory.CameraUnavailable, err)
	}

	c.stream = stream
	c.state = CaptureStreaming
	c.logger.Info("camera streaming")
	return nil
}

// Stop releases the active stream, if any. It is safe to call in any state.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

// CaptureFrame snapshots the current frame as a JPEG. It is only valid while
// streaming; the stream stays open afterwards.
func (c *Camera) CaptureFrame(ctx context.Context) (EncodedImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CaptureStreaming || c.stream == nil {
		return EncodedImage{}, advisory.Newf(advisory.CaptureFailed, "camera is %s, not streaming", c.state)
	}

	frame, err := c.stream.ReadFrame(ctx)
	if err != nil {
		return EncodedImage{}, advisory.New(advisory.CaptureFailed, err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return EncodedImage{}, advisory.Newf(advisory.CaptureFailed, "empty frame")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: CaptureQuality}); err != nil {
		return EncodedImage{}, advisory.New(advisory.CaptureFailed, fmt.Errorf("encode frame: %w", err))
	}

	return newEncodedImage(SourceCamera, "image/jpeg", buf.Bytes()), nil
}

// Status returns a snapshot of the adapter.
func (c *Camera) Status() CaptureStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CaptureStatus{State: c.state, Available: c.available, Checked: c.checked}
}

func (c *Camera) releaseLocked() {
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("camera release failed", zap.Error(err))
		}
		c.stream = nil
		c.logger.Info("camera stream released")
	}
	if c.state == CaptureStreaming {
		c.state = CaptureIdle
	}
}

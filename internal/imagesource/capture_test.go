package imagesource

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/eyescan/internal/advisory"
)

type stubStream struct {
	frame   image.Image
	readErr error
	closed  int
}

func (s *stubStream) ReadFrame(ctx context.Context) (image.Image, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.frame, nil
}

func (s *stubStream) Close() error {
	s.closed++
	return nil
}

type stubDevice struct {
	hasCamera bool
	enumErr   error
	openErr   error
	opened    []*stubStream
	lastOpts  StreamOptions
	frameSize image.Point
}

func (d *stubDevice) HasCamera(ctx context.Context) (bool, error) {
	return d.hasCamera, d.enumErr
}

func (d *stubDevice) Open(ctx context.Context, opts StreamOptions) (Stream, error) {
	d.lastOpts = opts
	if d.openErr != nil {
		return nil, d.openErr
	}
	img := image.NewRGBA(image.Rect(0, 0, d.frameSize.X, d.frameSize.Y))
	for x := 0; x < d.frameSize.X; x++ {
		img.Set(x, x%d.frameSize.Y, color.RGBA{R: 200, A: 255})
	}
	s := &stubStream{frame: img}
	d.opened = append(d.opened, s)
	return s, nil
}

func newStubDevice() *stubDevice {
	return &stubDevice{hasCamera: true, frameSize: image.Pt(64, 48)}
}

func TestCheckAvailability(t *testing.T) {
	cam := NewCamera(newStubDevice(), DefaultStreamOptions(), zap.NewNop())
	ok, err := cam.CheckAvailability(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, cam.Status().Checked)

	cam = NewCamera(&stubDevice{}, DefaultStreamOptions(), zap.NewNop())
	ok, err = cam.CheckAvailability(context.Background())
	require.False(t, ok)
	require.True(t, advisory.Is(err, advisory.CameraUnavailable))
	require.False(t, cam.Status().Available)
}

func TestStartWithoutDeviceIsTerminal(t *testing.T) {
	device := &stubDevice{openErr: ErrNoDevice}
	cam := NewCamera(device, DefaultStreamOptions(), zap.NewNop())

	err := cam.Start(context.Background())
	require.True(t, advisory.Is(err, advisory.CameraUnavailable))
	require.Equal(t, CaptureUnavailable, cam.Status().State)

	_, err = cam.CaptureFrame(context.Background())
	require.True(t, advisory.Is(err, advisory.CaptureFailed))

	device.openErr = nil
	err = cam.Start(context.Background())
	require.True(t, advisory.Is(err, advisory.CameraUnavailable))
	require.Empty(t, device.opened)
}

func TestStartAfterFailedAvailabilityCheck(t *testing.T) {
	device := &stubDevice{}
	cam := NewCamera(device, DefaultStreamOptions(), zap.NewNop())
	_, _ = cam.CheckAvailability(context.Background())

	err := cam.Start(context.Background())
	require.True(t, advisory.Is(err, advisory.CameraUnavailable))
	require.Equal(t, CaptureUnavailable, cam.Status().State)
}

func TestStartPermissionDenied(t *testing.T) {
	device := &stubDevice{openErr: ErrPermissionDenied}
	cam := NewCamera(device, DefaultStreamOptions(), zap.NewNop())

	err := cam.Start(context.Background())
	require.True(t, advisory.Is(err, advisory.CameraPermissionDenied))
	require.Equal(t, CaptureUnavailable, cam.Status().State)
}

func TestStartUsesStreamOptions(t *testing.T) {
	device := newStubDevice()
	cam := NewCamera(device, DefaultStreamOptions(), zap.NewNop())

	require.NoError(t, cam.Start(context.Background()))
	require.Equal(t, StreamOptions{FacingMode: "environment", Width: 1280, Height: 720}, device.lastOpts)
	require.Equal(t, CaptureStreaming, cam.Status().State)
}

func TestRestartReleasesPreviousStream(t *testing.T) {
	device := newStubDevice()
	cam := NewCamera(device, DefaultStreamOptions(), zap.NewNop())

	require.NoError(t, cam.Start(context.Background()))
	require.NoError(t, cam.Start(context.Background()))
	require.Len(t, device.opened, 2)
	require.Equal(t, 1, device.opened[0].closed)
	require.Equal(t, 0, device.opened[1].closed)

	cam.Stop()
	require.Equal(t, 1, device.opened[1].closed)
	require.Equal(t, CaptureIdle, cam.Status().State)

	cam.Stop()
	require.Equal(t, 1, device.opened[1].closed)
}

func TestCaptureFrameEncodesJPEGAtNativeResolution(t *testing.T) {
	device := newStubDevice()
	cam := NewCamera(device, DefaultStreamOptions(), zap.NewNop())
	require.NoError(t, cam.Start(context.Background()))

	img, err := cam.CaptureFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", img.MediaType)
	require.Equal(t, SourceCamera, img.Source)
	require.NotEmpty(t, img.ID)

	decoded, err := jpeg.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	require.Equal(t, 64, decoded.Bounds().Dx())
	require.Equal(t, 48, decoded.Bounds().Dy())

	require.Equal(t, CaptureStreaming, cam.Status().State)
}

func TestCaptureFrameRequiresStream(t *testing.T) {
	cam := NewCamera(newStubDevice(), DefaultStreamOptions(), zap.NewNop())

	_, err := cam.CaptureFrame(context.Background())
	require.True(t, advisory.Is(err, advisory.CaptureFailed))
}

func TestCaptureFrameReadError(t *testing.T) {
	device := newStubDevice()
	cam := NewCamera(device, DefaultStreamOptions(), zap.NewNop())
	require.NoError(t, cam.Start(context.Background()))
	device.opened[0].readErr = errors.New("frame dropped")

	_, err := cam.CaptureFrame(context.Background())
	require.True(t, advisory.Is(err, advisory.CaptureFailed))
	require.Equal(t, CaptureStreaming, cam.Status().State)
}

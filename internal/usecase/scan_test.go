package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/eyescan/internal/advisory"
	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/disease"
	"github.com/example/eyescan/internal/imagesource"
)

type stubClassifier struct {
	result  classifier.Result
	err     error
	release chan struct{}
	started chan string
	calls   int
}

func (s *stubClassifier) Classify(ctx context.Context, img imagesource.EncodedImage) (classifier.Result, error) {
	s.calls++
	if s.started != nil {
		s.started <- img.ID
	}
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return classifier.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubClassifier) Status() classifier.StatusReport {
	return classifier.StatusReport{Backend: "stub", Status: classifier.StatusReady}
}

type stubCamera struct {
	status   imagesource.CaptureStatus
	frame    imagesource.EncodedImage
	startErr error
	frameErr error
	stops    int
	// onCapture runs while the frame is being taken.
	onCapture func()
}

func (c *stubCamera) Start(ctx context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.status.State = imagesource.CaptureStreaming
	return nil
}

func (c *stubCamera) Stop() {
	c.stops++
	c.status.State = imagesource.CaptureIdle
}

func (c *stubCamera) CaptureFrame(ctx context.Context) (imagesource.EncodedImage, error) {
	if c.onCapture != nil {
		c.onCapture()
	}
	if c.frameErr != nil {
		return imagesource.EncodedImage{}, c.frameErr
	}
	return c.frame, nil
}

func (c *stubCamera) Status() imagesource.CaptureStatus { return c.status }

type noCameraDevice struct{}

func (noCameraDevice) HasCamera(ctx context.Context) (bool, error) { return false, nil }

func (noCameraDevice) Open(ctx context.Context, opts imagesource.StreamOptions) (imagesource.Stream, error) {
	return nil, imagesource.ErrNoDevice
}

type solidStream struct{}

func (solidStream) ReadFrame(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img, nil
}

func (solidStream) Close() error { return nil }

type streamingDevice struct{}

func (streamingDevice) HasCamera(ctx context.Context) (bool, error) { return true, nil }

func (streamingDevice) Open(ctx context.Context, opts imagesource.StreamOptions) (imagesource.Stream, error) {
	return solidStream{}, nil
}

func newTestUseCase(clf Classifier, camera Camera) *ScanUseCase {
	if camera == nil {
		camera = &stubCamera{status: imagesource.CaptureStatus{State: imagesource.CaptureIdle, Available: true}}
	}
	return NewScanUseCase(Config{MaxSessions: 16, SessionTTL: time.Hour, AnalyzeTimeout: 5 * time.Second}, clf, camera, zap.NewNop())
}

func jpegUpload(size int) imagesource.UploadFile {
	return imagesource.UploadFile{
		Name:      "eye.jpg",
		MediaType: "image/jpeg",
		Size:      int64(size),
		Content:   bytes.NewReader(bytes.Repeat([]byte{0xab}, size)),
	}
}

func waitBackground(t *testing.T, uc *ScanUseCase) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.Wait(ctx); err != nil {
		t.Fatalf("background analyses did not finish: %v", err)
	}
}

func TestSelectThenAnalyzeReachesResultReady(t *testing.T) {
	clf := &stubClassifier{
		result:  classifier.Result{Disease: disease.Glaucoma, Confidence: 0.84},
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	uc := newTestUseCase(clf, nil)
	session := uc.CreateSession(ModeUpload)
	if session.State != StateEmpty {
		t.Fatalf("expected empty state, got %s", session.State)
	}

	snap, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(2<<20))
	if err != nil {
		t.Fatalf("expected upload to succeed, got %v", err)
	}
	if snap.State != StateImageSelected {
		t.Fatalf("expected image_selected, got %s", snap.State)
	}
	if snap.Image == nil || snap.Image.MediaType != "image/jpeg" || snap.Image.Size != 2<<20 {
		t.Fatalf("unexpected image info: %+v", snap.Image)
	}

	snap, err = uc.AnalyzeAsync(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("expected analyze to start, got %v", err)
	}
	if snap.State != StateProcessing || !snap.Processing {
		t.Fatalf("expected processing, got %s (processing=%t)", snap.State, snap.Processing)
	}
	<-clf.started
	close(clf.release)
	waitBackground(t, uc)

	snap, err = uc.Session(session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != StateResultReady || snap.Processing {
		t.Fatalf("expected result_ready without processing, got %s (processing=%t)", snap.State, snap.Processing)
	}
	if snap.Result == nil || !snap.Result.Disease.Valid() || snap.Result.Confidence < 0 || snap.Result.Confidence > 1 {
		t.Fatalf("unexpected result: %+v", snap.Result)
	}
	if snap.Display == nil || snap.Display.Badge != "84% Confidence" {
		t.Fatalf("unexpected display payload: %+v", snap.Display)
	}

	payload, err := uc.Result(session.ID)
	if err != nil {
		t.Fatalf("expected result, got %v", err)
	}
	if payload.Name != "Glaucoma" {
		t.Fatalf("expected Glaucoma record, got %q", payload.Name)
	}
}

func TestAnalyzeWithSimulatedService(t *testing.T) {
	svc := classifier.NewService(classifier.NewSimulated(nil, 0), time.Second, zap.NewNop())
	uc := newTestUseCase(svc, nil)
	session := uc.CreateSession(ModeUpload)

	if _, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(1024)); err != nil {
		t.Fatalf("expected upload to succeed, got %v", err)
	}
	snap, err := uc.Analyze(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("expected analyze to succeed, got %v", err)
	}
	if snap.State != StateResultReady || snap.Result == nil || !snap.Result.Simulated {
		t.Fatalf("expected simulated result, got %+v", snap)
	}
	if uc.ModelStatus().Status != classifier.StatusReady {
		t.Fatalf("expected model ready, got %s", uc.ModelStatus().Status)
	}
}

func TestAnalyzeWithoutImageRaisesAdvisory(t *testing.T) {
	clf := &stubClassifier{}
	uc := newTestUseCase(clf, nil)
	session := uc.CreateSession(ModeUpload)

	snap, err := uc.Analyze(context.Background(), session.ID)
	if !advisory.Is(err, advisory.NoImageSelected) {
		t.Fatalf("expected NoImageSelected, got %v", err)
	}
	if snap.State != StateEmpty || snap.Processing {
		t.Fatalf("expected empty and idle, got %s (processing=%t)", snap.State, snap.Processing)
	}
	if snap.Advisory == nil || snap.Advisory.Kind != advisory.NoImageSelected {
		t.Fatalf("expected advisory on snapshot, got %+v", snap.Advisory)
	}
	if clf.calls != 0 {
		t.Fatalf("classifier must not be called, got %d calls", clf.calls)
	}
}

func TestStaleResultDoesNotOverwriteNewerImage(t *testing.T) {
	clf := &stubClassifier{
		result:  classifier.Result{Disease: disease.Cataract, Confidence: 0.9},
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	uc := newTestUseCase(clf, nil)
	session := uc.CreateSession(ModeUpload)

	if _, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(512)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uc.AnalyzeAsync(context.Background(), session.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	staleID := <-clf.started

	snap, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(256))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != StateImageSelected || snap.Image.ID == staleID {
		t.Fatalf("expected a fresh image_selected state, got %+v", snap)
	}
	if !snap.Processing {
		t.Fatal("expected the in-flight call to keep the processing flag")
	}
	if _, err := uc.Analyze(context.Background(), session.ID); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}

	close(clf.release)
	waitBackground(t, uc)

	snap, _ = uc.Session(session.ID)
	if snap.State != StateImageSelected || snap.Result != nil {
		t.Fatalf("stale result overwrote newer state: %+v", snap)
	}
	if snap.Processing {
		t.Fatal("expected processing flag to be cleared")
	}
	if got := uc.GetMetricsSummary().StaleDiscarded; got != 1 {
		t.Fatalf("expected 1 stale outcome, got %d", got)
	}

	snap, err = uc.Analyze(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("expected the newer image to be analyzable, got %v", err)
	}
	if snap.State != StateResultReady {
		t.Fatalf("expected result_ready, got %s", snap.State)
	}
}

func TestClassificationFailureResetsToImageSelected(t *testing.T) {
	clf := &stubClassifier{err: advisory.New(advisory.ClassificationFailed, errors.New("boom"))}
	uc := newTestUseCase(clf, nil)
	session := uc.CreateSession(ModeUpload)
	if _, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(64)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := uc.Analyze(context.Background(), session.ID)
	if !advisory.Is(err, advisory.ClassificationFailed) {
		t.Fatalf("expected ClassificationFailed, got %v", err)
	}
	if snap.State != StateImageSelected || snap.Processing {
		t.Fatalf("expected image_selected and idle, got %s (processing=%t)", snap.State, snap.Processing)
	}
	if snap.Advisory == nil || snap.Advisory.Title != "Error analyzing image" {
		t.Fatalf("unexpected advisory: %+v", snap.Advisory)
	}
	if clf.calls != 1 {
		t.Fatalf("expected a single classification attempt, got %d", clf.calls)
	}

	summary := uc.GetMetricsSummary()
	if summary.AnalysesFailed != 1 || summary.FailuresByKind[string(advisory.ClassificationFailed)] != 1 {
		t.Fatalf("unexpected metrics: %+v", summary)
	}
}

type failingBackend struct{}

func (failingBackend) Name() string { return "broken" }

func (failingBackend) Load(ctx context.Context) (classifier.Model, error) {
	return nil, errors.New("weights not found")
}

func TestModelInitFailureIsDistinct(t *testing.T) {
	svc := classifier.NewService(failingBackend{}, time.Second, zap.NewNop())
	uc := newTestUseCase(svc, nil)
	session := uc.CreateSession(ModeUpload)
	if _, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(64)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := uc.Analyze(context.Background(), session.ID)
	if !advisory.Is(err, advisory.ModelInitFailed) {
		t.Fatalf("expected ModelInitFailed, got %v", err)
	}
	if snap.Processing || snap.Advisory == nil || snap.Advisory.Kind != advisory.ModelInitFailed {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if uc.ModelStatus().Status != classifier.StatusFailed {
		t.Fatalf("expected failed model status, got %s", uc.ModelStatus().Status)
	}
}

func TestRejectedUploadLeavesStateUnchanged(t *testing.T) {
	uc := newTestUseCase(&stubClassifier{}, nil)
	session := uc.CreateSession(ModeUpload)
	first, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(128))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = uc.SelectUpload(context.Background(), session.ID, imagesource.UploadFile{
		Name: "notes.txt", MediaType: "text/plain", Size: 10, Content: bytes.NewReader([]byte("0123456789")),
	})
	if !advisory.Is(err, advisory.InvalidFileType) {
		t.Fatalf("expected InvalidFileType, got %v", err)
	}

	_, err = uc.SelectUpload(context.Background(), session.ID, jpegUpload(imagesource.MaxUploadSize+1))
	if !advisory.Is(err, advisory.FileTooLarge) {
		t.Fatalf("expected FileTooLarge, got %v", err)
	}

	snap, _ := uc.Session(session.ID)
	if snap.State != StateImageSelected || snap.Image.ID != first.Image.ID {
		t.Fatalf("expected previous image to be kept, got %+v", snap.Image)
	}
	img, err := uc.Image(session.ID)
	if err != nil || img.ID != first.Image.ID {
		t.Fatalf("expected preview of previous image, got %v %v", img.ID, err)
	}
}

func TestUploadOfExactlyFiveMiBIsAccepted(t *testing.T) {
	uc := newTestUseCase(&stubClassifier{}, nil)
	session := uc.CreateSession(ModeUpload)
	if _, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(imagesource.MaxUploadSize)); err != nil {
		t.Fatalf("expected 5 MiB upload to be accepted, got %v", err)
	}
}

func TestCameraUnavailableBlocksCapture(t *testing.T) {
	camera := imagesource.NewCamera(noCameraDevice{}, imagesource.DefaultStreamOptions(), zap.NewNop())
	if ok, _ := camera.CheckAvailability(context.Background()); ok {
		t.Fatal("expected no camera")
	}
	clf := &stubClassifier{}
	uc := newTestUseCase(clf, camera)
	session := uc.CreateSession(ModeCamera)

	status, err := uc.StartCamera(context.Background())
	if !advisory.Is(err, advisory.CameraUnavailable) {
		t.Fatalf("expected CameraUnavailable, got %v", err)
	}
	if status.State != imagesource.CaptureUnavailable {
		t.Fatalf("expected unavailable, got %s", status.State)
	}

	snap, err := uc.Capture(context.Background(), session.ID, false)
	if !advisory.Is(err, advisory.CaptureFailed) {
		t.Fatalf("expected CaptureFailed, got %v", err)
	}
	if snap.State != StateEmpty || clf.calls != 0 {
		t.Fatalf("capture must not change state or classify, got %s and %d calls", snap.State, clf.calls)
	}
}

func TestCaptureImpliesAnalyze(t *testing.T) {
	camera := imagesource.NewCamera(streamingDevice{}, imagesource.DefaultStreamOptions(), zap.NewNop())
	clf := &stubClassifier{result: classifier.Result{Disease: disease.Normal, Confidence: 0.93}}
	uc := newTestUseCase(clf, camera)
	session := uc.CreateSession(ModeCamera)

	if _, err := uc.StartCamera(context.Background()); err != nil {
		t.Fatalf("expected camera to start, got %v", err)
	}
	snap, err := uc.Capture(context.Background(), session.ID, false)
	if err != nil {
		t.Fatalf("expected capture to succeed, got %v", err)
	}
	if snap.State != StateResultReady || snap.Image.Source != imagesource.SourceCamera || snap.Image.MediaType != "image/jpeg" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Display == nil || !snap.Display.Healthy {
		t.Fatalf("expected healthy display, got %+v", snap.Display)
	}
	if uc.CameraStatus().State != imagesource.CaptureStreaming {
		t.Fatal("capture must not stop the stream")
	}
	if status := uc.StopCamera(); status.State != imagesource.CaptureIdle {
		t.Fatalf("expected idle after stop, got %s", status.State)
	}
}

func TestCaptureRefusedWhileProcessing(t *testing.T) {
	clf := &stubClassifier{
		result:  classifier.Result{Disease: disease.Myopia, Confidence: 0.7},
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	camera := &stubCamera{frame: imagesource.EncodedImage{ID: "frame-1", MediaType: "image/jpeg", Data: []byte{1}}}
	uc := newTestUseCase(clf, camera)
	session := uc.CreateSession(ModeCamera)

	if _, err := uc.Capture(context.Background(), session.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-clf.started
	if _, err := uc.Capture(context.Background(), session.ID, true); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}
	close(clf.release)
	waitBackground(t, uc)
}

func TestCaptureDoesNotReplaceImageOfAnalyzeStartedMeanwhile(t *testing.T) {
	clf := &stubClassifier{
		result:  classifier.Result{Disease: disease.Glaucoma, Confidence: 0.85},
		release: make(chan struct{}),
		started: make(chan string, 1),
	}
	camera := &stubCamera{frame: imagesource.EncodedImage{ID: "frame-1", MediaType: "image/jpeg", Data: []byte{1}}}
	uc := newTestUseCase(clf, camera)
	session := uc.CreateSession(ModeUpload)

	uploaded, err := uc.SelectUpload(context.Background(), session.ID, jpegUpload(1024))
	if err != nil {
		t.Fatalf("unexpected upload error: %v", err)
	}
	camera.onCapture = func() {
		if _, err := uc.AnalyzeAsync(context.Background(), session.ID); err != nil {
			t.Errorf("expected analyze to start, got %v", err)
		}
	}

	snap, err := uc.Capture(context.Background(), session.ID, false)
	if !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}
	if snap.Image == nil || snap.Image.ID != uploaded.Image.ID || snap.State != StateProcessing {
		t.Fatalf("in-flight image must be kept, got %+v", snap)
	}

	if id := <-clf.started; id != uploaded.Image.ID {
		t.Fatalf("expected the uploaded image to be classified, got %s", id)
	}
	close(clf.release)
	waitBackground(t, uc)

	final, err := uc.Session(session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.State != StateResultReady || final.Image.ID != uploaded.Image.ID {
		t.Fatalf("expected result for the uploaded image, got %+v", final)
	}
	if got := uc.GetMetricsSummary().StaleDiscarded; got != 0 {
		t.Fatalf("expected no stale outcome, got %d", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	uc := newTestUseCase(&stubClassifier{}, nil)

	if _, err := uc.Session("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	session := uc.CreateSession("")
	if session.Mode != ModeUpload {
		t.Fatalf("expected default upload mode, got %s", session.Mode)
	}
	snap, err := uc.SetMode(session.ID, ModeCamera)
	if err != nil || snap.Mode != ModeCamera || snap.State != StateEmpty {
		t.Fatalf("unexpected mode switch result: %+v %v", snap, err)
	}
	if _, err := uc.SetMode(session.ID, SourceMode("fax")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := uc.Result(session.ID); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	if _, err := uc.Image(session.ID); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if got := uc.GetMetricsSummary().ActiveSessions; got != 1 {
		t.Fatalf("expected 1 active session, got %d", got)
	}

	if err := uc.DeleteSession(session.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := uc.DeleteSession(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if mode, err := ParseMode(" Camera "); err != nil || mode != ModeCamera {
		t.Fatalf("unexpected parse: %s %v", mode, err)
	}
	if mode, err := ParseMode(""); err != nil || mode != ModeUpload {
		t.Fatalf("unexpected parse: %s %v", mode, err)
	}
	if _, err := ParseMode("scanner"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/example/eyescan/internal/advisory"
	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/imagesource"
	"github.com/example/eyescan/internal/logging"
	"github.com/example/eyescan/internal/render"
)

var (
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAnalysisInProgress is returned when a classification is already in flight for the session.
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	// ErrNoResult is returned when the session has no result to display.
	ErrNoResult = errors.New("no result available")
	// ErrNoImage is returned when the session has no image to preview.
	ErrNoImage = errors.New("no image selected")
	// ErrInvalidMode is returned for an unknown source mode.
	ErrInvalidMode = errors.New("invalid source mode")
)

// Classifier is the classification capability the orchestrator drives.
type Classifier interface {
	Classify(ctx context.Context, img imagesource.EncodedImage) (classifier.Result, error)
	Status() classifier.StatusReport
}

// Camera is the process-wide live capture adapter.
type Camera interface {
	Start(ctx context.Context) error
	Stop()
	CaptureFrame(ctx context.Context) (imagesource.EncodedImage, error)
	Status() imagesource.CaptureStatus
}

// Config bounds the session store and each classification.
type Config struct {
	MaxSessions int
	SessionTTL  time.Duration
	// AnalyzeTimeout bounds a single classification, model load included.
	AnalyzeTimeout time.Duration
}

// ScanUseCase sequences image acquisition, classification and rendering for
// every session.
type ScanUseCase struct {
	classifier Classifier
	camera     Camera
	uploader   *imagesource.Uploader
	sessions   *expirable.LRU[string, *Session]
	metrics    *metrics
	logger     *zap.Logger
	timeout    time.Duration

	background sync.WaitGroup
}

// NewScanUseCase constructs a new use case instance.
func NewScanUseCase(cfg Config, clf Classifier, camera Camera, logger *zap.Logger) *ScanUseCase {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1024
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.AnalyzeTimeout <= 0 {
		cfg.AnalyzeTimeout = time.Minute
	}

	uc := &ScanUseCase{
		classifier: clf,
		camera:     camera,
		uploader:   imagesource.NewUploader(),
		metrics:    newMetrics(),
		logger:     logger.Named("scan_usecase"),
		timeout:    cfg.AnalyzeTimeout,
	}
	uc.sessions = expirable.NewLRU[string, *Session](cfg.MaxSessions, func(id string, _ *Session) {
		uc.logger.Debug("session evicted", zap.String("session_id", id))
	}, cfg.SessionTTL)
	return uc
}

// CreateSession starts an empty session.
func (uc *ScanUseCase) CreateSession(mode SourceMode) Snapshot {
	if mode == "" {
		mode = ModeUpload
	}
	session := newSession(uuid.NewString(), mode)
	uc.sessions.Add(session.id, session)
	logging.WithOperation(uc.logger, "usecase.create_session", session.id).Info("session created", zap.String("mode", string(mode)))
	return session.snapshot()
}

// Session returns a snapshot of the session.
func (uc *ScanUseCase) Session(sessionID string) (Snapshot, error) {
	session, err := uc.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return session.snapshot(), nil
}

// DeleteSession ends the session. An in-flight classification finishes on its own.
func (uc *ScanUseCase) DeleteSession(sessionID string) error {
	if !uc.sessions.Remove(sessionID) {
		return ErrSessionNotFound
	}
	logging.WithOperation(uc.logger, "usecase.delete_session", sessionID).Info("session deleted")
	return nil
}

// SetMode switches the source selector without touching the session state.
func (uc *ScanUseCase) SetMode(sessionID string, mode SourceMode) (Snapshot, error) {
	if mode != ModeUpload && mode != ModeCamera {
		return Snapshot{}, ErrInvalidMode
	}
	session, err := uc.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	session.setMode(mode)
	return session.snapshot(), nil
}

// SelectUpload runs the upload adapter. On rejection the session is unchanged
// apart from the advisory it records.
func (uc *ScanUseCase) SelectUpload(ctx context.Context, sessionID string, file imagesource.UploadFile) (Snapshot, error) {
	session, err := uc.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.select_upload", sessionID)

	img, err := uc.uploader.Acquire(ctx, file)
	if err != nil {
		if _, ok := advisory.KindOf(err); ok {
			session.recordAdvisory(err)
			opLogger.Info("upload rejected", zap.Error(err))
			return Snapshot{}, err
		}
		wrapped := logging.NewOperationError("usecase.select_upload", sessionID, err)
		opLogger.Error("failed to read upload", zap.Error(wrapped))
		return Snapshot{}, wrapped
	}

	session.selectImage(img)
	opLogger.Info("image selected",
		zap.String("image_id", img.ID),
		zap.String("media_type", img.MediaType),
		zap.Int("size", img.Size()),
	)
	return session.snapshot(), nil
}

// Image returns the session's current image, which is also its preview.
func (uc *ScanUseCase) Image(sessionID string) (imagesource.EncodedImage, error) {
	session, err := uc.lookup(sessionID)
	if err != nil {
		return imagesource.EncodedImage{}, err
	}
	img, ok := session.currentImage()
	if !ok {
		return imagesource.EncodedImage{}, ErrNoImage
	}
	return img, nil
}

// Analyze classifies the current image and waits for the outcome. The
// classification is not tied to ctx: once started it runs to completion.
func (uc *ScanUseCase) Analyze(ctx context.Context, sessionID string) (Snapshot, error) {
	session, err := uc.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	img, err := uc.begin(session, session.beginAnalyze)
	if err != nil {
		return session.snapshot(), err
	}
	return uc.runSync(ctx, session, img)
}

// AnalyzeAsync starts a classification and returns the Processing snapshot
// immediately.
func (uc *ScanUseCase) AnalyzeAsync(ctx context.Context, sessionID string) (Snapshot, error) {
	session, err := uc.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	img, err := uc.begin(session, session.beginAnalyze)
	if err != nil {
		return session.snapshot(), err
	}
	return uc.runAsync(ctx, session, img), nil
}

// Capture snapshots the live camera into the session and analyzes it. It is
// refused while a classification is in flight so the frame is not lost.
func (uc *ScanUseCase) Capture(ctx context.Context, sessionID string, async bool) (Snapshot, error) {
	session, err := uc.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if session.isProcessing() {
		return session.snapshot(), ErrAnalysisInProgress
	}

	opLogger := logging.WithOperation(uc.logger, "usecase.capture", sessionID)
	frame, err := uc.camera.CaptureFrame(ctx)
	if err != nil {
		session.recordAdvisory(err)
		opLogger.Warn("capture failed", zap.Error(err))
		return session.snapshot(), err
	}

	// An analyze may have started while the frame was being taken.
	img, err := uc.begin(session, func() (imagesource.EncodedImage, error) {
		return session.selectAndBegin(frame)
	})
	if err != nil {
		return session.snapshot(), err
	}
	opLogger.Info("frame captured", zap.String("image_id", img.ID), zap.Int("size", img.Size()))

	if async {
		return uc.runAsync(ctx, session, img), nil
	}
	return uc.runSync(ctx, session, img)
}

// Result renders the session's current result.
func (uc *ScanUseCase) Result(sessionID string) (render.DisplayPayload, error) {
	session, err := uc.lookup(sessionID)
	if err != nil {
		return render.DisplayPayload{}, err
	}
	res, ok := session.currentResult()
	if !ok {
		return render.DisplayPayload{}, ErrNoResult
	}
	return render.Render(res), nil
}

// StartCamera opens the live stream.
func (uc *ScanUseCase) StartCamera(ctx context.Context) (imagesource.CaptureStatus, error) {
	err := uc.camera.Start(ctx)
	return uc.camera.Status(), err
}

// StopCamera releases the live stream.
func (uc *ScanUseCase) StopCamera() imagesource.CaptureStatus {
	uc.camera.Stop()
	return uc.camera.Status()
}

// CameraStatus reports the capture adapter state.
func (uc *ScanUseCase) CameraStatus() imagesource.CaptureStatus {
	return uc.camera.Status()
}

// ModelStatus reports the classifier lifecycle.
func (uc *ScanUseCase) ModelStatus() classifier.StatusReport {
	return uc.classifier.Status()
}

// GetMetricsSummary aggregates analysis metrics since process start.
func (uc *ScanUseCase) GetMetricsSummary() *MetricsSummary {
	return uc.metrics.summary(uc.sessions.Len())
}

// Wait blocks until background analyses finish or ctx is done.
func (uc *ScanUseCase) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		uc.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (uc *ScanUseCase) lookup(sessionID string) (*Session, error) {
	session, ok := uc.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	// Re-adding refreshes the expiry of an active session.
	uc.sessions.Add(sessionID, session)
	return session, nil
}

func (uc *ScanUseCase) begin(session *Session, start func() (imagesource.EncodedImage, error)) (imagesource.EncodedImage, error) {
	img, err := start()
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.analyze", session.id).Info("analyze refused", zap.Error(err))
		return imagesource.EncodedImage{}, err
	}
	uc.metrics.recordStart()
	return img, nil
}

func (uc *ScanUseCase) runSync(ctx context.Context, session *Session, img imagesource.EncodedImage) (Snapshot, error) {
	if err := uc.run(context.WithoutCancel(ctx), session, img); err != nil {
		return session.snapshot(), err
	}
	return session.snapshot(), nil
}

func (uc *ScanUseCase) runAsync(ctx context.Context, session *Session, img imagesource.EncodedImage) Snapshot {
	snap := session.snapshot()
	uc.background.Add(1)
	go func() {
		defer uc.background.Done()
		_ = uc.run(context.WithoutCancel(ctx), session, img)
	}()
	return snap
}

// run performs the classification for img and applies the outcome unless the
// session has moved on. The processing flag is cleared on every path.
func (uc *ScanUseCase) run(ctx context.Context, session *Session, img imagesource.EncodedImage) (err error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze", session.id).With(zap.String("image_id", img.ID))
	started := time.Now()

	var res classifier.Result
	applied := false
	defer func() {
		if r := recover(); r != nil {
			err = advisory.Newf(advisory.ClassificationFailed, "classifier panicked: %v", r)
			opLogger.Error("classifier panicked", zap.Any("panic", r))
		}
		applied = session.finishAnalyze(img.ID, res, err)
		uc.metrics.recordOutcome(res, err, time.Since(started), applied)
		if !applied {
			opLogger.Info("discarded stale classification outcome")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res, err = uc.classifier.Classify(ctx, img)
	if err != nil {
		opLogger.Warn("classification failed", zap.Error(err))
		return err
	}
	opLogger.Info("classification complete",
		zap.String("disease", res.Disease.String()),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("latency", time.Since(started)),
	)
	return nil
}

package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/eyescan/internal/advisory"
	"github.com/example/eyescan/internal/disease"
	"github.com/example/eyescan/internal/imagesource"
)

// Result is one classification outcome. Confidence is a probability-like score
// in [0,1]; it is not guaranteed to be calibrated.
type Result struct {
	Disease    disease.ID `json:"disease"`
	Confidence float64    `json:"confidence"`
	// Simulated marks output of the non-diagnostic simulated strategy.
	Simulated bool      `json:"simulated"`
	Backend   string    `json:"backend"`
	CreatedAt time.Time `json:"created_at"`
}

// Model classifies a single image.
type Model interface {
	Predict(ctx context.Context, img imagesource.EncodedImage) (Result, error)
}

// Backend loads a Model. Load is called at most once per Service.
type Backend interface {
	Name() string
	Load(ctx context.Context) (Model, error)
}

// Classifier is what the orchestrator depends on.
type Classifier interface {
	Classify(ctx context.Context, img imagesource.EncodedImage) (Result, error)
}

// Status is the model lifecycle as seen by callers.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// StatusReport describes the service for the model status endpoint.
type StatusReport struct {
	Backend string `json:"backend"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
}

type initCall struct {
	done  chan struct{}
	model Model
	err   error
}

// Service owns a lazily loaded model. Concurrent first calls share one load and
// a failed load is remembered for the lifetime of the service.
type Service struct {
	backend     Backend
	initTimeout time.Duration
	logger      *zap.Logger

	mu   sync.Mutex
	init *initCall
}

// NewService wraps backend. initTimeout bounds the single model load.
func NewService(backend Backend, initTimeout time.Duration, logger *zap.Logger) *Service {
	if initTimeout <= 0 {
		initTimeout = 30 * time.Second
	}
	return &Service{
		backend:     backend,
		initTimeout: initTimeout,
		logger:      logger.Named("classifier").With(zap.String("backend", backend.Name())),
	}
}

var _ Classifier = (*Service)(nil)

// Warmup starts the model load, if not yet started, and waits for it.
func (s *Service) Warmup(ctx context.Context) error {
	_, err := s.model(ctx)
	return err
}

// Classify runs one prediction. Load failures surface as ModelInitFailed and
// prediction failures as ClassificationFailed; neither is retried.
func (s *Service) Classify(ctx context.Context, img imagesource.EncodedImage) (Result, error) {
	model, err := s.model(ctx)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()
	res, err := model.Predict(ctx, img)
	if err != nil {
		s.logger.Warn("classification failed", zap.String("image_id", img.ID), zap.Error(err))
		return Result{}, advisory.New(advisory.ClassificationFailed, err)
	}
	if err := validate(res); err != nil {
		s.logger.Error("model returned invalid result", zap.String("image_id", img.ID), zap.Error(err))
		return Result{}, advisory.New(advisory.ClassificationFailed, err)
	}
	if res.Backend == "" {
		res.Backend = s.backend.Name()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	s.logger.Debug("classified image",
		zap.String("image_id", img.ID),
		zap.String("disease", res.Disease.String()),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("latency", time.Since(started)),
	)
	return res, nil
}

// Status reports the model lifecycle without triggering a load.
func (s *Service) Status() StatusReport {
	report := StatusReport{Backend: s.backend.Name(), Status: StatusIdle}

	s.mu.Lock()
	call := s.init
	s.mu.Unlock()
	if call == nil {
		return report
	}

	select {
	case <-call.done:
		if call.err != nil {
			report.Status = StatusFailed
			report.Error = call.err.Error()
		} else {
			report.Status = StatusReady
		}
	default:
		report.Status = StatusLoading
	}
	return report
}

// Close releases the model if it was loaded and holds resources.
func (s *Service) Close() error {
	s.mu.Lock()
	call := s.init
	s.mu.Unlock()
	if call == nil {
		return nil
	}

	<-call.done
	if closer, ok := call.model.(io.Closer); ok && call.err == nil {
		return closer.Close()
	}
	return nil
}

func (s *Service) model(ctx context.Context) (Model, error) {
	s.mu.Lock()
	call := s.init
	if call == nil {
		call = &initCall{done: make(chan struct{})}
		s.init = call
		go s.load(call)
	}
	s.mu.Unlock()

	select {
	case <-call.done:
		return call.model, call.err
	case <-ctx.Done():
		return nil, advisory.New(advisory.ClassificationFailed, ctx.Err())
	}
}

// load runs detached from any caller so a cancelled first request does not
// poison the shared initialisation.
func (s *Service) load(call *initCall) {
	defer close(call.done)

	ctx, cancel := context.WithTimeout(context.Background(), s.initTimeout)
	defer cancel()

	started := time.Now()
	s.logger.Info("loading model")

	model, err := s.backend.Load(ctx)
	if err == nil && model == nil {
		err = errors.New("backend returned no model")
	}
	if err != nil {
		s.logger.Error("model initialisation failed", zap.Error(err))
		call.err = advisory.New(advisory.ModelInitFailed, err)
		return
	}

	call.model = model
	s.logger.Info("model ready", zap.Duration("latency", time.Since(started)))
}

func validate(res Result) error {
	if !res.Disease.Valid() {
		return fmt.Errorf("unknown disease %q", res.Disease)
	}
	if res.Confidence < 0 || res.Confidence > 1 || res.Confidence != res.Confidence {
		return fmt.Errorf("confidence %v outside [0,1]", res.Confidence)
	}
	return nil
}

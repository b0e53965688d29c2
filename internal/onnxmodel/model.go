// Package onnxmodel runs an exported eye classification network through ONNX Runtime.
package onnxmodel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/disease"
	"github.com/example/eyescan/internal/imagesource"
)

// BackendName identifies this strategy in config and results.
const BackendName = "onnx"

// Config locates the runtime library, the network and its metadata.
type Config struct {
	LibraryPath  string
	ModelPath    string
	MetadataPath string
}

// Backend loads the network on first use.
type Backend struct {
	cfg    Config
	logger *zap.Logger
}

// NewBackend validates cfg without touching the filesystem.
func NewBackend(cfg Config, logger *zap.Logger) (*Backend, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx model path is required")
	}
	if cfg.MetadataPath == "" {
		return nil, errors.New("onnx metadata path is required")
	}
	return &Backend{cfg: cfg, logger: logger.Named("onnx")}, nil
}

var _ classifier.Backend = (*Backend)(nil)

func (b *Backend) Name() string { return BackendName }

// Load initialises the runtime and builds a session with preallocated tensors.
func (b *Backend) Load(ctx context.Context) (classifier.Model, error) {
	meta, err := LoadMetadata(b.cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if b.cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(b.cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(b.cfg.ModelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	b.logger.Info("onnx session ready",
		zap.String("model", b.cfg.ModelPath),
		zap.Int("classes", len(meta.Classes)),
		zap.Int("image_size", meta.ImageSize),
	)
	return &Model{
		meta:   meta,
		runner: &sessionRunner{session: session, input: inputTensor, output: outputTensor},
	}, nil
}

// runner is one forward pass over fixed-size buffers.
type runner interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

type sessionRunner struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (r *sessionRunner) Run(input []float32) ([]float32, error) {
	copy(r.input.GetData(), input)
	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), r.output.GetData()...), nil
}

func (r *sessionRunner) Close() error {
	var errs []error
	errs = append(errs, r.session.Destroy(), r.input.Destroy(), r.output.Destroy(), ort.DestroyEnvironment())
	return errors.Join(errs...)
}

// ErrModelClosed is returned by Predict after Close.
var ErrModelClosed = errors.New("onnx model is closed")

// Model is a loaded network. The session tensors are shared, so Predict
// serialises forward passes.
type Model struct {
	meta Metadata

	mu     sync.Mutex
	runner runner
}

var _ classifier.Model = (*Model)(nil)

// Predict decodes, preprocesses and classifies one image.
func (m *Model) Predict(ctx context.Context, img imagesource.EncodedImage) (classifier.Result, error) {
	decoded, err := decode(img.Data)
	if err != nil {
		return classifier.Result{}, err
	}
	input := toTensor(decoded, m.meta.ImageSize)
	if err := ctx.Err(); err != nil {
		return classifier.Result{}, err
	}

	output, err := m.run(input)
	if err != nil {
		return classifier.Result{}, err
	}

	return m.interpret(output)
}

func (m *Model) run(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runner == nil {
		return nil, ErrModelClosed
	}
	return m.runner.Run(input)
}

func (m *Model) interpret(output []float32) (classifier.Result, error) {
	labels := m.meta.labels
	if len(output) < len(labels) {
		return classifier.Result{}, fmt.Errorf("model produced %d values for %d classes", len(output), len(labels))
	}
	output = output[:len(labels)]

	var probs []float64
	if m.meta.OutputProbabilities {
		probs = make([]float64, len(output))
		for i, v := range output {
			probs[i] = float64(v)
		}
	} else {
		probs = softmax(output)
	}

	best := argmax(probs)
	confidence := probs[best]
	if math.IsNaN(confidence) {
		return classifier.Result{}, errors.New("model produced NaN scores")
	}
	return classifier.Result{
		Disease:    labels[best],
		Confidence: math.Min(math.Max(confidence, 0), 1),
		Backend:    BackendName,
	}, nil
}

// Labels returns the classes the model can emit.
func (m *Model) Labels() []disease.ID {
	return m.meta.Labels()
}

// Close releases the session, its tensors and the runtime environment.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runner == nil {
		return nil
	}
	err := m.runner.Close()
	m.runner = nil
	return err
}

// Package grpcclient classifies images on a remote inference service.
package grpcclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/disease"
	"github.com/example/eyescan/internal/imagesource"
	"github.com/example/eyescan/internal/logging"
)

// BackendName identifies this strategy in config and results.
const BackendName = "remote"

// DefaultMethod is the full gRPC method the remote service exposes.
const DefaultMethod = "/eyescan.v1.EyeClassifier/Classify"

// BreakerSettings configures the circuit breaker around remote calls.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// Config describes how to reach the remote classifier.
type Config struct {
	Addr    string
	Method  string
	Timeout time.Duration
	Breaker BreakerSettings
	// DialOptions are appended to the defaults. Tests use them to dial bufconn.
	DialOptions []grpc.DialOption
}

// Backend dials the remote service on first use.
type Backend struct {
	cfg    Config
	logger *zap.Logger
}

// NewBackend fills defaults and validates cfg.
func NewBackend(cfg Config, logger *zap.Logger) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("remote classifier address is required")
	}
	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Breaker.MaxRequests == 0 {
		cfg.Breaker.MaxRequests = 3
	}
	if cfg.Breaker.Interval == 0 {
		cfg.Breaker.Interval = 10 * time.Second
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = 30 * time.Second
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	return &Backend{cfg: cfg, logger: logger.Named("grpcclient")}, nil
}

var _ classifier.Backend = (*Backend)(nil)

func (b *Backend) Name() string { return BackendName }

// Load returns a ready-to-use client for the remote classifier.
func (b *Backend) Load(ctx context.Context) (classifier.Model, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, b.cfg.DialOptions...)

	conn, err := grpc.DialContext(dialCtx, b.cfg.Addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		b.logger.Error("failed to dial remote classifier", zap.Error(wrapped), zap.String("addr", b.cfg.Addr))
		return nil, wrapped
	}

	logger := b.logger
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "RemoteClassifier",
		MaxRequests: b.cfg.Breaker.MaxRequests,
		Interval:    b.cfg.Breaker.Interval,
		Timeout:     b.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.Breaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("circuit_breaker", name),
				zap.String("from_state", from.String()),
				zap.String("to_state", to.String()),
			)
		},
	})

	return &remoteModel{
		conn:    conn,
		method:  b.cfg.Method,
		timeout: b.cfg.Timeout,
		breaker: breaker,
		logger:  logger,
	}, nil
}

type remoteModel struct {
	conn    *grpc.ClientConn
	method  string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// Predict sends the encoded image and decodes {disease, confidence}.
func (m *remoteModel) Predict(ctx context.Context, img imagesource.EncodedImage) (classifier.Result, error) {
	out, err := m.breaker.Execute(func() (interface{}, error) {
		return m.invoke(ctx, img)
	})
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.classify", "", err)
		m.logger.Error("remote classifier call failed", zap.Error(wrapped), zap.String("image_id", img.ID))
		return classifier.Result{}, wrapped
	}
	return out.(classifier.Result), nil
}

func (m *remoteModel) invoke(ctx context.Context, img imagesource.EncodedImage) (classifier.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := structpb.NewStruct(map[string]interface{}{
		"image_id":   img.ID,
		"media_type": img.MediaType,
		"image":      base64.StdEncoding.EncodeToString(img.Data),
	})
	if err != nil {
		return classifier.Result{}, fmt.Errorf("build request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := m.conn.Invoke(callCtx, m.method, req, resp); err != nil {
		return classifier.Result{}, err
	}
	return decodeResponse(resp)
}

func decodeResponse(resp *structpb.Struct) (classifier.Result, error) {
	fields := resp.GetFields()

	label := fields["disease"].GetStringValue()
	id, err := disease.ParseID(label)
	if err != nil {
		return classifier.Result{}, fmt.Errorf("remote response: %w", err)
	}

	confidence, ok := fields["confidence"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return classifier.Result{}, errors.New("remote response has no numeric confidence")
	}

	return classifier.Result{
		Disease:    id,
		Confidence: confidence.NumberValue,
		Backend:    BackendName,
	}, nil
}

// Close tears down the connection.
func (m *remoteModel) Close() error {
	return m.conn.Close()
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/config"
	"github.com/example/eyescan/internal/grpcclient"
	"github.com/example/eyescan/internal/onnxmodel"
)

// buildBackend selects the classification strategy from configuration and
// wraps deterministic strategies with the Redis result cache when enabled.
// The returned cleanup releases anything opened here.
func buildBackend(cfg *config.Config, logger *zap.Logger) (classifier.Backend, func(), error) {
	noop := func() {}

	var backend classifier.Backend
	switch cfg.Classifier.Backend {
	case config.BackendSimulated:
		logger.Warn("using simulated classifier: results are random and not a diagnosis")
		return classifier.NewSimulated(nil, cfg.Classifier.SimulatedDelay), noop, nil
	case config.BackendONNX:
		b, err := onnxmodel.NewBackend(onnxmodel.Config{
			LibraryPath:  cfg.ONNX.LibraryPath,
			ModelPath:    cfg.ONNX.ModelPath,
			MetadataPath: cfg.ONNX.MetadataPath,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		backend = b
	case config.BackendRemote:
		b, err := grpcclient.NewBackend(grpcclient.Config{
			Addr:    cfg.Remote.Addr,
			Method:  cfg.Remote.Method,
			Timeout: cfg.Remote.Timeout,
			Breaker: grpcclient.BreakerSettings{
				MaxRequests:      cfg.Remote.Breaker.MaxRequests,
				Interval:         cfg.Remote.Breaker.Interval,
				Timeout:          cfg.Remote.Breaker.Timeout,
				FailureThreshold: cfg.Remote.Breaker.FailureThreshold,
			},
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		backend = b
	default:
		return nil, noop, fmt.Errorf("unknown classifier backend %q", cfg.Classifier.Backend)
	}

	if !cfg.Cache.Enabled {
		return backend, noop, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := initRedis(ctx, cfg.Cache.RedisAddr)
	if err != nil {
		return nil, noop, err
	}
	logger.Info("result cache enabled", zap.String("redis_addr", cfg.Cache.RedisAddr), zap.Duration("ttl", cfg.Cache.TTL))

	cached := classifier.NewCachedBackend(backend, classifier.NewRedisCache(client), cfg.Cache.TTL, logger)
	return cached, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

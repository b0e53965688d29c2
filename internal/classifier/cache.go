package classifier

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/eyescan/internal/imagesource"
	"github.com/example/eyescan/internal/logging"
)

// Cache abstracts the Redis operations used by the result cache to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis. A miss is redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// CachedBackend memoises predictions of a deterministic backend by image
// content. Cache failures are logged and never fail a classification.
type CachedBackend struct {
	next           Backend
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCachedBackend wraps next. It must not wrap the simulated strategy, whose
// output is meant to vary per call.
func NewCachedBackend(next Backend, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedBackend {
	return &CachedBackend{
		next:           next,
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("result_cache"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

var _ Backend = (*CachedBackend)(nil)

func (b *CachedBackend) Name() string { return b.next.Name() }

// Load loads the wrapped model and decorates it.
func (b *CachedBackend) Load(ctx context.Context) (Model, error) {
	model, err := b.next.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedModel{backend: b, next: model}, nil
}

type cachedModel struct {
	backend *CachedBackend
	next    Model
}

// Close forwards to the wrapped model when it holds resources.
func (m *cachedModel) Close() error {
	if closer, ok := m.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (m *cachedModel) Predict(ctx context.Context, img imagesource.EncodedImage) (Result, error) {
	b := m.backend
	key := cacheKey(b.next.Name(), img.Data)
	opLogger := logging.WithOperation(b.logger, "classifier.cache", "").With(zap.String("image_id", img.ID))

	var cached string
	err := b.withRetry(ctx, "cache.get.result", func() error {
		value, err := b.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		cached = value
		return nil
	})
	switch {
	case err == nil:
		var res Result
		jerr := json.Unmarshal([]byte(cached), &res)
		if jerr == nil {
			opLogger.Debug("result cache hit")
			return res, nil
		}
		opLogger.Warn("failed to decode cached result", zap.Error(jerr))
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read result cache", zap.Error(err))
	}

	res, err := m.next.Predict(ctx, img)
	if err != nil {
		return Result{}, err
	}

	serialized, err := json.Marshal(res)
	if err != nil {
		opLogger.Warn("failed to serialize result", zap.Error(err))
		return res, nil
	}
	if err := b.withRetry(ctx, "cache.set.result", func() error {
		return b.cache.Set(ctx, key, string(serialized), b.ttl)
	}); err != nil {
		opLogger.Warn("failed to cache result", zap.Error(err))
	}
	return res, nil
}

func cacheKey(backend string, data []byte) string {
	sum := sha1.Sum(data)
	return fmt.Sprintf("classification:%s:%s", backend, hex.EncodeToString(sum[:]))
}

// withRetry retries transient cache errors with exponential backoff. A miss is
// returned as-is so callers can tell it from a failure.
func (b *CachedBackend) withRetry(ctx context.Context, operation string, fn func() error) error {
	backoff := b.initialBackoff
	var err error
	for attempt := 0; attempt < b.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, "", ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= b.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		if !isTransientError(err) {
			break
		}
		b.logger.Warn("transient cache error", zap.String("operation", operation), zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, "", err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}

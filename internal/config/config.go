// Package config loads service settings from defaults, an optional config
// file, a .env file and EYESCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. EYESCAN_SERVER_ADDR.
const EnvPrefix = "EYESCAN"

// Backend names accepted by classifier.backend.
const (
	BackendSimulated = "simulated"
	BackendONNX      = "onnx"
	BackendRemote    = "remote"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	ONNX       ONNXConfig       `mapstructure:"onnx"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ClassifierConfig struct {
	Backend        string        `mapstructure:"backend"`
	InitTimeout    time.Duration `mapstructure:"init_timeout"`
	AnalyzeTimeout time.Duration `mapstructure:"analyze_timeout"`
	Warmup         bool          `mapstructure:"warmup"`
	SimulatedDelay time.Duration `mapstructure:"simulated_delay"`
}

type ONNXConfig struct {
	LibraryPath  string `mapstructure:"library_path"`
	ModelPath    string `mapstructure:"model_path"`
	MetadataPath string `mapstructure:"metadata_path"`
}

type RemoteConfig struct {
	Addr    string        `mapstructure:"addr"`
	Method  string        `mapstructure:"method"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type CameraConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DeviceIndex int    `mapstructure:"device_index"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	FacingMode  string `mapstructure:"facing_mode"`
}

type SessionsConfig struct {
	Max int           `mapstructure:"max"`
	TTL time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	AnalyzePerSecond float64 `mapstructure:"analyze_per_second"`
	Burst            int     `mapstructure:"burst"`
}

// Load reads configuration. configFile, when set, replaces the search for
// config.yaml; a missing searched file is not an error.
func Load(configFile string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/eyescan/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("logging.level", "info")

	v.SetDefault("classifier.backend", BackendSimulated)
	v.SetDefault("classifier.init_timeout", "30s")
	v.SetDefault("classifier.analyze_timeout", "60s")
	v.SetDefault("classifier.warmup", true)
	v.SetDefault("classifier.simulated_delay", "1500ms")

	v.SetDefault("onnx.library_path", "")
	v.SetDefault("onnx.model_path", "")
	v.SetDefault("onnx.metadata_path", "")

	v.SetDefault("remote.addr", "")
	v.SetDefault("remote.method", "/eyescan.v1.EyeClassifier/Classify")
	v.SetDefault("remote.timeout", "10s")
	v.SetDefault("remote.breaker.max_requests", 3)
	v.SetDefault("remote.breaker.interval", "10s")
	v.SetDefault("remote.breaker.timeout", "30s")
	v.SetDefault("remote.breaker.failure_threshold", 5)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.device_index", 0)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.facing_mode", "environment")

	v.SetDefault("sessions.max", 1024)
	v.SetDefault("sessions.ttl", "1h")

	v.SetDefault("rate_limit.analyze_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	switch c.Classifier.Backend {
	case BackendSimulated:
	case BackendONNX:
		if c.ONNX.ModelPath == "" || c.ONNX.MetadataPath == "" {
			errs = append(errs, errors.New("onnx.model_path and onnx.metadata_path are required for the onnx backend"))
		}
	case BackendRemote:
		if c.Remote.Addr == "" {
			errs = append(errs, errors.New("remote.addr is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("classifier.backend: unknown backend %q", c.Classifier.Backend))
	}

	if c.Classifier.InitTimeout <= 0 {
		errs = append(errs, errors.New("classifier.init_timeout must be positive"))
	}
	if c.Classifier.SimulatedDelay < 0 {
		errs = append(errs, errors.New("classifier.simulated_delay must not be negative"))
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redis_addr is required when the cache is enabled"))
	}
	if c.Sessions.Max <= 0 {
		errs = append(errs, errors.New("sessions.max must be positive"))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}
	if c.RateLimit.AnalyzePerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.analyze_per_second and rate_limit.burst must be positive"))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, errors.New("camera.width and camera.height must be positive"))
	}

	return errors.Join(errs...)
}

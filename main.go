package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/eyescan/internal/camera"
	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/config"
	"github.com/example/eyescan/internal/handlers"
	"github.com/example/eyescan/internal/imagesource"
	"github.com/example/eyescan/internal/logging"
	"github.com/example/eyescan/internal/usecase"
)

func main() {
	cfg, err := config.Load(getEnv("EYESCAN_CONFIG", ""))
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	backend, cleanup, err := buildBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to configure classifier backend", zap.Error(err))
	}
	defer cleanup()

	svc := classifier.NewService(backend, cfg.Classifier.InitTimeout, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to close classifier", zap.Error(err))
		}
	}()
	if cfg.Classifier.Warmup {
		go func() {
			if err := svc.Warmup(context.Background()); err != nil {
				logger.Error("model warmup failed", zap.Error(err))
			}
		}()
	}

	capture := imagesource.NewCamera(newCameraDevice(cfg.Camera), imagesource.StreamOptions{
		FacingMode: cfg.Camera.FacingMode,
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
	}, logger)
	defer capture.Stop()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if ok, err := capture.CheckAvailability(checkCtx); !ok {
		logger.Warn("camera capture unavailable, upload only", zap.Error(err))
	}
	checkCancel()

	uc := usecase.NewScanUseCase(usecase.Config{
		MaxSessions:    cfg.Sessions.Max,
		SessionTTL:     cfg.Sessions.TTL,
		AnalyzeTimeout: cfg.Classifier.AnalyzeTimeout,
	}, svc, capture, logger)

	gin.SetMode(cfg.Server.Mode)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(cfg, uc, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("eyescan API listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", backend.Name()),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer drainCancel()
	if err := uc.Wait(drainCtx); err != nil {
		logger.Warn("background analyses still running at exit", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, uc *usecase.ScanUseCase, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestID(), handlers.RequestLogger(logger), handlers.CORS())

	var limiter *rate.Limiter
	if cfg.RateLimit.AnalyzePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.AnalyzePerSecond), cfg.RateLimit.Burst)
	}
	handlers.RegisterRoutes(r, uc, logger, limiter)
	return r
}

func newCameraDevice(cfg config.CameraConfig) imagesource.Device {
	if !cfg.Enabled {
		return camera.Disabled{}
	}
	return camera.NewDevice(cfg.DeviceIndex)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

package bootstrap

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"loopy/internal/blob"
	"loopy/internal/config"
	"loopy/internal/logging"
	"loopy/internal/ports"
	"loopy/internal/providers/loopserver"
	"loopy/internal/usecase"
)

// Engine is a waveform engine that reports its callbacks to a handler.
type Engine interface {
	ports.WaveformEngine
	Attach(handler ports.EngineEventHandler)
}

// Services is the assembled runtime graph.
type Services struct {
	Session *usecase.SessionStateMachine
	Blobs   *blob.Store
	Config  config.Config
	Logger  *zap.Logger
}

// Build wires all backend dependencies around the given engine and event sink.
func Build(engine Engine, eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, os.Stderr)
	if err != nil {
		return Services{}, fmt.Errorf("init logging: %w", err)
	}

	backend, err := loopserver.NewClient(loopserver.Config{
		BaseURL:          cfg.Backend.BaseURL,
		Timeout:          cfg.Backend.Timeout,
		MaxResponseBytes: cfg.Backend.MaxResponseBytes,
	}, logger)
	if err != nil {
		return Services{}, err
	}

	blobs := blob.NewStore(blob.Config{
		TTL:             cfg.Blob.TTL,
		CleanupInterval: cfg.Blob.CleanupInterval,
	}, logger)

	session := usecase.NewSessionStateMachine(
		backend,
		engine,
		blobs,
		eventSink,
		logger,
		usecase.Config{
			LoopingEnabled:       cfg.Session.LoopingEnabled,
			DefaultLoopMinutes:   cfg.Session.DefaultLoopMinutes,
			DefaultRegionSeconds: cfg.Session.DefaultRegionSeconds,
			ProgressInterval:     cfg.Session.ProgressInterval,
			MaxUploadBytes:       cfg.Session.MaxUploadBytes,
		},
	)
	engine.Attach(session)

	logger.Info("services ready",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Bool("looping", cfg.Session.LoopingEnabled),
	)

	return Services{Session: session, Blobs: blobs, Config: cfg, Logger: logger}, nil
}

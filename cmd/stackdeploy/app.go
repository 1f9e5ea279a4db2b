package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/stackdeploy/internal/core/artifact"
	"github.com/artpar/stackdeploy/internal/core/descriptor"
	"github.com/artpar/stackdeploy/internal/engine"
	"github.com/artpar/stackdeploy/internal/shell/cloudformation"
	"github.com/artpar/stackdeploy/internal/shell/metrics"
	"github.com/artpar/stackdeploy/internal/shell/provider"
	"github.com/artpar/stackdeploy/internal/shell/storage"
	"github.com/artpar/stackdeploy/internal/shell/store"
)

// =============================================================================
// Application Wiring
// =============================================================================

// App holds the wired pipeline for one command invocation.
type App struct {
	config       *Config
	descriptor   descriptor.Descriptor
	orchestrator *engine.Orchestrator
	history      store.Store
	metrics      *metrics.Recorder
	logger       *slog.Logger
}

// AppOptions selects what a command needs.
type AppOptions struct {
	DescriptorPath string
	Overrides      descriptor.Overrides

	// Offline builds without AWS clients. Only the build phase can run.
	Offline bool
}

// NewApp loads the descriptor and wires the orchestrator.
func NewApp(ctx context.Context, cfg *Config, opts AppOptions, logger *slog.Logger) (*App, error) {
	d, err := loadDescriptor(opts.DescriptorPath, opts.Overrides)
	if err != nil {
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}
	baseDir := filepath.Dir(opts.DescriptorPath)

	app := &App{
		config:     cfg,
		descriptor: d,
		metrics:    metrics.NewRecorder(logger),
		logger:     logger,
	}

	if cfg.History.DSN != "" {
		h, err := store.NewSQLiteStore(resolveDSN(baseDir, cfg.History.DSN))
		if err != nil {
			return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
		}
		app.history = h
	}

	engineCfg := engine.Config{
		Compiler:  engine.FileCompiler{BaseDir: baseDir},
		History:   app.history,
		Metrics:   app.metrics,
		Retention: artifact.RetentionPolicy{KeepPrevious: cfg.Deploy.KeepPrevious},
		BaseDir:   baseDir,
		Logger:    logger,
	}

	if opts.Offline {
		engineCfg.Validator = engine.NewValidator(nil, baseDir, logger)
		app.orchestrator = engine.NewOrchestrator(engineCfg)
		return app, nil
	}

	awsCfg, err := provider.LoadAWSConfig(ctx, cfg.AWS.Credentials(), d.Region)
	if err != nil {
		app.Close()
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}

	stacks := cloudformation.NewCloudFormationServiceFromConfig(awsCfg, logger)
	engineCfg.Validator = engine.NewValidator(provider.NewAWSProvider(awsCfg, logger), baseDir, logger)
	engineCfg.Storage = storage.NewGateway(storage.NewS3StorageFromConfig(awsCfg, logger), storage.Options{
		Region:      d.Region,
		Concurrency: cfg.Deploy.UploadConcurrency,
		Logger:      logger,
	})
	engineCfg.Stacks = cloudformation.NewManager(stacks, logger)
	engineCfg.Monitor = cloudformation.NewMonitor(stacks, cloudformation.MonitorOptions{
		Interval:    cfg.Monitor.Interval,
		MaxInterval: cfg.Monitor.MaxInterval,
		Timeout:     cfg.Monitor.Timeout,
		Logger:      logger,
	})
	engineCfg.Outputs = stacks

	app.orchestrator = engine.NewOrchestrator(engineCfg)
	return app, nil
}

// PushMetrics pushes the run's metrics when a Pushgateway is configured.
// Failures are logged only.
func (a *App) PushMetrics(ctx context.Context) {
	err := a.metrics.Push(ctx, a.config.Metrics.PushgatewayURL, map[string]string{
		"service": a.descriptor.Service,
		"stage":   a.descriptor.Stage,
	})
	if err != nil {
		a.logger.Warn("failed to push metrics", "error", err)
	}
}

// Close releases the history database.
func (a *App) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("failed to close history", "error", err)
		}
	}
}

func loadDescriptor(path string, overrides descriptor.Overrides) (descriptor.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return descriptor.Descriptor{}, fmt.Errorf("descriptor %s not found", path)
		}
		return descriptor.Descriptor{}, err
	}
	d, err := descriptor.Parse(data)
	if err != nil {
		return descriptor.Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d.WithOverrides(overrides), nil
}

func resolveDSN(baseDir, dsn string) string {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") || filepath.IsAbs(dsn) {
		return dsn
	}
	return filepath.Join(baseDir, dsn)
}

// =============================================================================
// Errors
// =============================================================================

// AppError carries the exit code for a wiring failure.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *AppError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

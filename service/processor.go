package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"assetExtractor/config"
	"assetExtractor/events"
	"assetExtractor/fault"
	"assetExtractor/fileutil"
	"assetExtractor/models"
	"assetExtractor/repository"
)

// Ripper is the slice of the process supervisor the pipeline drives.
type Ripper interface {
	LoadFile(ctx context.Context, path string) error
	ExportPrimaryContent(ctx context.Context, exportPath string) error
	Reset(ctx context.Context)
}

// StatusCache is the write side of the status cache. Cache writes are
// best-effort: a cache miss only costs a store read on the next poll.
type StatusCache interface {
	Set(ctx context.Context, taskID string, status models.TaskStatus) error
}

// Processor drives one task through the load/export state machine:
// PENDING -> PROCESSING -> COMPLETED | FAILED. Terminal states are never
// left again.
type Processor struct {
	repo   repository.Repository
	ripper Ripper
	cache  StatusCache
	events events.Publisher
	cfg    *config.Config
	logger *zap.Logger
}

func NewProcessor(repo repository.Repository, ripper Ripper, cache StatusCache, publisher events.Publisher, cfg *config.Config, logger *zap.Logger) *Processor {
	return &Processor{
		repo:   repo,
		ripper: ripper,
		cache:  cache,
		events: publisher,
		cfg:    cfg,
		logger: logger,
	}
}

// Process runs the full cycle for one task. Worker and file faults terminate
// only this task, as a FAILED row with a readable message; a non-nil return
// means the outcome could not be recorded and is left to the dispatch loop.
func (p *Processor) Process(ctx context.Context, taskID string) error {
	task, err := p.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			p.logger.Error("Task not found in store", zap.String("task_id", taskID))
			return nil
		}
		return err
	}

	if task.Status != models.StatusPending {
		p.logger.Warn("Task is not PENDING, skipping",
			zap.String("task_id", taskID),
			zap.String("status", string(task.Status)))
		return nil
	}

	if err := p.repo.MarkProcessing(ctx, taskID); err != nil {
		return err
	}
	p.recordStatus(ctx, taskID, models.StatusProcessing, "")

	if _, err := os.Stat(task.UploadPath); err != nil {
		return p.fail(ctx, taskID,
			fault.Newf(fault.File, "load file", "upload file not found: %s", task.UploadPath))
	}

	if err := p.ripper.LoadFile(ctx, task.UploadPath); err != nil {
		p.ripper.Reset(ctx)
		return p.fail(ctx, taskID, err)
	}

	exportDir := fileutil.TaskExportDir(p.cfg.ExportDir, taskID)
	if err := p.ripper.ExportPrimaryContent(ctx, exportDir); err != nil {
		p.ripper.Reset(ctx)
		return p.fail(ctx, taskID, err)
	}

	assetsDir := fileutil.TaskAssetsDir(p.cfg.ExportDir, taskID)
	if _, err := os.Stat(assetsDir); err != nil {
		return p.fail(ctx, taskID,
			fault.Newf(fault.File, "export primary content", "assets directory not found after export: %s", assetsDir))
	}

	exportSize, err := fileutil.DirSize(assetsDir)
	if err != nil {
		return p.fail(ctx, taskID, fault.New(fault.File, "measure export", err))
	}

	// The worker ignores stale state on the next load, so a failed reset
	// must not fail an otherwise-successful task.
	p.ripper.Reset(ctx)

	if err := p.repo.MarkCompleted(ctx, taskID, assetsDir, exportSize); err != nil {
		return err
	}
	p.recordStatus(ctx, taskID, models.StatusCompleted, "")

	p.logger.Info("Task completed",
		zap.String("task_id", taskID),
		zap.String("export_path", assetsDir),
		zap.Int64("export_size_bytes", exportSize))
	return nil
}

func (p *Processor) fail(ctx context.Context, taskID string, cause error) error {
	message := cause.Error()
	p.logger.Error("Task failed",
		zap.String("task_id", taskID),
		zap.String("reason", message))

	if err := p.repo.MarkFailed(ctx, taskID, message); err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	p.recordStatus(ctx, taskID, models.StatusFailed, message)
	return nil
}

func (p *Processor) recordStatus(ctx context.Context, taskID string, status models.TaskStatus, errorMessage string) {
	if err := p.cache.Set(ctx, taskID, status); err != nil {
		p.logger.Warn("Failed to cache task status",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
	if err := p.events.PublishStatusChange(ctx, taskID, status, errorMessage); err != nil {
		p.logger.Warn("Failed to publish status event",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

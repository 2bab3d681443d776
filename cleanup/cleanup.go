// Package cleanup runs the retention sweep: on a cron schedule, task files
// older than the retention period are removed from disk and the removal is
// logged to the cleanup_log table. Task rows themselves are kept.
package cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"assetExtractor/config"
	"assetExtractor/fileutil"
	"assetExtractor/models"
	"assetExtractor/repository"
)

type Scheduler struct {
	cron   *cron.Cron
	repo   repository.Repository
	cfg    *config.Config
	logger *zap.Logger
}

func NewScheduler(repo repository.Repository, cfg *config.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("File cleanup scheduler started",
		zap.String("schedule", s.cfg.CleanupSchedule),
		zap.Int("retention_days", s.cfg.RetentionDays))
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("File cleanup scheduler stopped")
}

// Sweep deletes upload and export files of every task created before the
// retention cutoff. A failure on one task never aborts the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	s.logger.Info("Starting file cleanup", zap.Time("cutoff", cutoff))

	tasks, err := s.repo.ListTasksCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to list old tasks", zap.Error(err))
		return
	}
	if len(tasks) == 0 {
		s.logger.Info("No old tasks to clean up")
		return
	}

	cleaned, failed := 0, 0
	for _, task := range tasks {
		if err := fileutil.CleanupTaskFiles(s.cfg.UploadDir, s.cfg.ExportDir, task.ID); err != nil {
			s.logger.Error("Failed to clean up task files",
				zap.String("task_id", task.ID),
				zap.Error(err))
			failed++
			continue
		}

		entry := &models.CleanupLog{
			TaskID:     task.ID,
			UploadPath: task.UploadPath,
			ExportPath: task.ExportPath,
			Reason:     models.CleanupReasonRetention,
		}
		if err := s.repo.RecordCleanup(ctx, entry); err != nil {
			s.logger.Error("Failed to record cleanup",
				zap.String("task_id", task.ID),
				zap.Error(err))
		}
		cleaned++
	}

	s.logger.Info("File cleanup completed",
		zap.Int("cleaned", cleaned),
		zap.Int("failed", failed))
}

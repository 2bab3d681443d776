package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"assetExtractor/config"
	"assetExtractor/dto"
	"assetExtractor/events"
	"assetExtractor/fileutil"
	"assetExtractor/models"
	"assetExtractor/repository"
)

// Queue is the slice of the task queue manager the API layer needs.
type Queue interface {
	Enqueue(taskID string) error
	Depth() int
	CurrentTask() string
}

// StatusReader is the full status cache surface the API layer uses.
type StatusReader interface {
	StatusCache
	Get(ctx context.Context, taskID string) (models.TaskStatus, error)
	Delete(ctx context.Context, taskID string) error
}

type TaskService struct {
	repo   repository.Repository
	cache  StatusReader
	queue  Queue
	events events.Publisher
	cfg    *config.Config
	logger *zap.Logger
}

func NewTaskService(repo repository.Repository, cache StatusReader, queue Queue, publisher events.Publisher, cfg *config.Config, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		cache:  cache,
		queue:  queue,
		events: publisher,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTask records a freshly uploaded file as a PENDING task and hands its
// ID to the queue.
func (s *TaskService) CreateTask(ctx context.Context, req *dto.CreateTaskRequest) (*dto.TaskUploadResponse, error) {
	task := &models.Task{
		ID:               req.TaskID,
		Status:           models.StatusPending,
		CreatedAt:        time.Now().UTC(),
		OriginalFilename: req.OriginalFilename,
		UploadPath:       req.UploadPath,
		FileSizeBytes:    req.FileSizeBytes,
		FileHash:         req.FileHash,
		UserIP:           req.UserIP,
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, task.ID, models.StatusPending); err != nil {
		s.logger.Warn("Failed to cache task status", zap.String("task_id", task.ID), zap.Error(err))
	}
	if err := s.events.PublishStatusChange(ctx, task.ID, models.StatusPending, ""); err != nil {
		s.logger.Warn("Failed to publish status event", zap.String("task_id", task.ID), zap.Error(err))
	}

	if err := s.queue.Enqueue(task.ID); err != nil {
		return nil, err
	}

	return &dto.TaskUploadResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Message:   "File uploaded successfully. Task queued for processing.",
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetTaskStatus answers status polls from the cache when it can, falling
// back to the store for the full record.
func (s *TaskService) GetTaskStatus(ctx context.Context, taskID string) (*dto.TaskResponse, error) {
	if status, err := s.cache.Get(ctx, taskID); err == nil {
		return &dto.TaskResponse{
			TaskID: taskID,
			Status: string(status),
		}, nil
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, task.ID, task.Status); err != nil {
		s.logger.Warn("Failed to cache task status", zap.String("task_id", task.ID), zap.Error(err))
	}

	return toResponse(task), nil
}

// GetTask always reads the full record from the store.
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*dto.TaskResponse, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return toResponse(task), nil
}

// DeleteTask removes the task's files (best-effort) and its record.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.repo.GetTask(ctx, taskID); err != nil {
		return err
	}

	if err := fileutil.CleanupTaskFiles(s.cfg.UploadDir, s.cfg.ExportDir, taskID); err != nil {
		s.logger.Warn("Failed to clean up task files",
			zap.String("task_id", taskID),
			zap.Error(err))
	}

	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, taskID); err != nil {
		s.logger.Warn("Failed to drop cached status", zap.String("task_id", taskID), zap.Error(err))
	}

	s.logger.Info("Task deleted", zap.String("task_id", taskID))
	return nil
}

func toResponse(task *models.Task) *dto.TaskResponse {
	resp := &dto.TaskResponse{
		TaskID:           task.ID,
		Status:           string(task.Status),
		CreatedAt:        task.CreatedAt.Format(time.RFC3339),
		OriginalFilename: task.OriginalFilename,
		FileSizeBytes:    task.FileSizeBytes,
		ErrorMessage:     task.ErrorMessage,
	}
	if task.StartedAt != nil {
		formatted := task.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &formatted
	}
	if task.CompletedAt != nil {
		formatted := task.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &formatted
	}
	if task.ExportPath != "" {
		resp.ExportPath = task.ExportPath
		resp.ExportSizeBytes = task.ExportSizeBytes
	}
	return resp
}

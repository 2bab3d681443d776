package repository

import (
	"context"
	"errors"
	"time"

	"assetExtractor/models"
)

var ErrTaskNotFound = errors.New("task not found")

// Repository is the persistence contract for task records. Every status
// transition is a single atomic row update keyed by task ID.
type Repository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
	ListTasksCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Task, error)

	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, exportPath string, exportSize int64) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error

	DeleteTask(ctx context.Context, id string) error
	RecordCleanup(ctx context.Context, entry *models.CleanupLog) error
}

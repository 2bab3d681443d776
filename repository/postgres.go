package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"assetExtractor/database"
	"assetExtractor/models"
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

const taskColumns = `id, status, created_at, started_at, completed_at,
	original_filename, upload_path, file_size_bytes, file_hash,
	export_path, export_size_bytes, error_message, retry_count, user_ip`

func (r *PostgresRepo) CreateTask(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, status, created_at, original_filename, upload_path,
			file_size_bytes, file_hash, user_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.CreatedAt,
		task.OriginalFilename,
		task.UploadPath,
		task.FileSizeBytes,
		task.FileHash,
		task.UserIP,
	)
	return err
}

func (r *PostgresRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *PostgresRepo) ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (r *PostgresRepo) ListTasksCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE created_at < $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (r *PostgresRepo) MarkProcessing(ctx context.Context, id string) error {
	query := `
		UPDATE tasks
		SET status = $1, started_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, models.StatusProcessing, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string, exportPath string, exportSize int64) error {
	query := `
		UPDATE tasks
		SET status = $1, completed_at = NOW(), export_path = $2,
			export_size_bytes = $3, error_message = ''
		WHERE id = $4
	`

	result, err := r.db.Pool.Exec(ctx, query, models.StatusCompleted, exportPath, exportSize, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	query := `
		UPDATE tasks
		SET status = $1, completed_at = NOW(), error_message = $2
		WHERE id = $3
	`

	result, err := r.db.Pool.Exec(ctx, query, models.StatusFailed, errorMessage, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PostgresRepo) DeleteTask(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PostgresRepo) RecordCleanup(ctx context.Context, entry *models.CleanupLog) error {
	query := `
		INSERT INTO cleanup_log (task_id, upload_path, export_path, reason)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query, entry.TaskID, entry.UploadPath, entry.ExportPath, entry.Reason)
	return err
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.Status,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
		&task.OriginalFilename,
		&task.UploadPath,
		&task.FileSizeBytes,
		&task.FileHash,
		&task.ExportPath,
		&task.ExportSizeBytes,
		&task.ErrorMessage,
		&task.RetryCount,
		&task.UserIP,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

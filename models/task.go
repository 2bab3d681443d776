package models

import (
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusProcessing TaskStatus = "PROCESSING"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusFailed     TaskStatus = "FAILED"
)

type Task struct {
	ID               string
	Status           TaskStatus
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	OriginalFilename string
	UploadPath       string
	FileSizeBytes    int64
	FileHash         string
	ExportPath       string
	ExportSizeBytes  int64
	ErrorMessage     string
	RetryCount       int
	UserIP           string
}

// CleanupLog records a single file removal performed by the retention sweep.
type CleanupLog struct {
	ID         int64
	CleanedAt  time.Time
	TaskID     string
	UploadPath string
	ExportPath string
	Reason     string
}

const (
	CleanupReasonRetention = "retention_expired"
	CleanupReasonManual    = "manual"
)

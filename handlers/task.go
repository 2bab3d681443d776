package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"assetExtractor/config"
	"assetExtractor/dto"
	"assetExtractor/fileutil"
	"assetExtractor/middleware"
	"assetExtractor/repository"
	"assetExtractor/validation"
)

// TaskService is the API-facing behavior the handlers call into.
type TaskService interface {
	CreateTask(ctx context.Context, req *dto.CreateTaskRequest) (*dto.TaskUploadResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*dto.TaskResponse, error)
	GetTask(ctx context.Context, taskID string) (*dto.TaskResponse, error)
	DeleteTask(ctx context.Context, taskID string) error
}

type TaskHandler struct {
	service TaskService
	cfg     *config.Config
	logger  *zap.Logger
}

func NewTaskHandler(service TaskService, cfg *config.Config, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
}

// Upload accepts a multipart archive upload, stores it under a fresh task ID
// and queues the task for processing. Responds 202: processing is async.
func (h *TaskHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, "Failed to get file", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.handleError(w, "Invalid file", validation.ErrNoFilename, traceID, http.StatusBadRequest)
		return
	}
	if header.Size > h.cfg.MaxFileSize {
		h.handleError(w, "Invalid file", validation.ErrFileTooLarge, traceID, http.StatusBadRequest)
		return
	}
	if !validation.IsAllowedExtension(header.Filename) {
		h.handleError(w, "Invalid file", validation.ErrUnsupportedExt, traceID, http.StatusBadRequest)
		return
	}
	if err := validation.CheckZipContent(file); err != nil {
		h.handleError(w, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}

	taskID := uuid.New().String()
	uploadPath := fileutil.TaskUploadPath(h.cfg.UploadDir, taskID, header.Filename)

	size, err := fileutil.SaveUpload(file, uploadPath)
	if err != nil {
		h.handleError(w, "Failed to save file", err, traceID, http.StatusInternalServerError)
		return
	}

	hash, err := fileutil.HashFile(uploadPath)
	if err != nil {
		h.handleError(w, "Failed to hash file", err, traceID, http.StatusInternalServerError)
		return
	}

	req := &dto.CreateTaskRequest{
		TaskID:           taskID,
		OriginalFilename: header.Filename,
		UploadPath:       uploadPath,
		FileSizeBytes:    size,
		FileHash:         hash,
		UserIP:           clientIP(r),
	}

	resp, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		os.RemoveAll(fileutil.TaskUploadDir(h.cfg.UploadDir, taskID))
		h.handleError(w, "Failed to create task", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("task_id", resp.TaskID),
		zap.String("filename", header.Filename),
		zap.Int64("size_bytes", size),
	)

	h.respondJSON(w, http.StatusAccepted, resp)
}

// Status returns the task record; the status field is served cache-first.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Download serves the exported assets of a completed task as a zip archive
// built on demand.
func (h *TaskHandler) Download(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := chi.URLParam(r, "taskID")
	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get task", err, traceID, http.StatusInternalServerError)
		return
	}

	if task.Status != "COMPLETED" {
		h.handleError(w, fmt.Sprintf("Task is not completed (status: %s)", task.Status),
			nil, traceID, http.StatusBadRequest)
		return
	}

	assetsDir := fileutil.TaskAssetsDir(h.cfg.ExportDir, taskID)
	if _, err := os.Stat(assetsDir); err != nil {
		h.handleError(w, "Export files have been cleaned up", err, traceID, http.StatusGone)
		return
	}

	tmp, err := os.CreateTemp("", "assets-*.zip")
	if err != nil {
		h.handleError(w, "Failed to create download archive", err, traceID, http.StatusInternalServerError)
		return
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if _, err := fileutil.CreateZipArchive(assetsDir, tmp.Name(), "Assets"); err != nil {
		h.handleError(w, "Failed to create download archive", err, traceID, http.StatusInternalServerError)
		return
	}

	downloadName := strings.TrimSuffix(task.OriginalFilename, filepath.Ext(task.OriginalFilename)) + "_assets.zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	http.ServeFile(w, r, tmp.Name())
}

// Delete removes a task's files and record.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := chi.URLParam(r, "taskID")
	if err := h.service.DeleteTask(r.Context(), taskID); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to delete task", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Task deleted successfully",
		"task_id": taskID,
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

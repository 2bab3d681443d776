package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"assetExtractor/config"
	"assetExtractor/events"
	"assetExtractor/fault"
	"assetExtractor/fileutil"
	"assetExtractor/models"
	"assetExtractor/repository"
)

type memRepo struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: make(map[string]*models.Task)}
}

func (r *memRepo) add(task *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
}

func (r *memRepo) get(id string) *models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id]
}

func (r *memRepo) CreateTask(ctx context.Context, task *models.Task) error {
	r.add(task)
	return nil
}

func (r *memRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (r *memRepo) ListTasksByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	return nil, nil
}

func (r *memRepo) ListTasksCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Task, error) {
	return nil, nil
}

func (r *memRepo) MarkProcessing(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return repository.ErrTaskNotFound
	}
	now := time.Now()
	task.Status = models.StatusProcessing
	task.StartedAt = &now
	return nil
}

func (r *memRepo) MarkCompleted(ctx context.Context, id string, exportPath string, exportSize int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return repository.ErrTaskNotFound
	}
	now := time.Now()
	task.Status = models.StatusCompleted
	task.CompletedAt = &now
	task.ExportPath = exportPath
	task.ExportSizeBytes = exportSize
	task.ErrorMessage = ""
	return nil
}

func (r *memRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return repository.ErrTaskNotFound
	}
	now := time.Now()
	task.Status = models.StatusFailed
	task.CompletedAt = &now
	task.ErrorMessage = errorMessage
	return nil
}

func (r *memRepo) DeleteTask(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *memRepo) RecordCleanup(ctx context.Context, entry *models.CleanupLog) error {
	return nil
}

type fakeRipper struct {
	mu         sync.Mutex
	loadCalls  []string
	exports    []string
	resetCalls int

	loadFunc   func(ctx context.Context, path string) error
	exportFunc func(ctx context.Context, exportPath string) error
}

func (f *fakeRipper) LoadFile(ctx context.Context, path string) error {
	f.mu.Lock()
	f.loadCalls = append(f.loadCalls, path)
	f.mu.Unlock()
	if f.loadFunc != nil {
		return f.loadFunc(ctx, path)
	}
	return nil
}

func (f *fakeRipper) ExportPrimaryContent(ctx context.Context, exportPath string) error {
	f.mu.Lock()
	f.exports = append(f.exports, exportPath)
	f.mu.Unlock()
	if f.exportFunc != nil {
		return f.exportFunc(ctx, exportPath)
	}
	return nil
}

func (f *fakeRipper) Reset(ctx context.Context) {
	f.mu.Lock()
	f.resetCalls++
	f.mu.Unlock()
}

type memStatusCache struct {
	mu       sync.Mutex
	statuses map[string]models.TaskStatus
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{statuses: make(map[string]models.TaskStatus)}
}

func (c *memStatusCache) Set(ctx context.Context, taskID string, status models.TaskStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[taskID] = status
	return nil
}

func newTestProcessor(t *testing.T, repo *memRepo, ripper *fakeRipper, cfg *config.Config) *Processor {
	t.Helper()
	return NewProcessor(repo, ripper, newMemStatusCache(), events.NewNoopPublisher(), cfg, zaptest.NewLogger(t))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		UploadDir: t.TempDir(),
		ExportDir: t.TempDir(),
	}
}

func pendingTask(t *testing.T, repo *memRepo, cfg *config.Config, id string) *models.Task {
	t.Helper()
	uploadPath := fileutil.TaskUploadPath(cfg.UploadDir, id, "game.apk")
	if err := os.MkdirAll(filepath.Dir(uploadPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(uploadPath, []byte("PK\x03\x04 payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	task := &models.Task{
		ID:               id,
		Status:           models.StatusPending,
		CreatedAt:        time.Now(),
		OriginalFilename: "game.apk",
		UploadPath:       uploadPath,
	}
	repo.add(task)
	return task
}

func TestProcessor_Success(t *testing.T) {
	cfg := testConfig(t)
	repo := newMemRepo()
	pendingTask(t, repo, cfg, "t1")

	ripper := &fakeRipper{
		exportFunc: func(ctx context.Context, exportPath string) error {
			// The worker writes its output into an Assets subdirectory.
			assetsDir := filepath.Join(exportPath, "Assets")
			if err := os.MkdirAll(assetsDir, 0o755); err != nil {
				return err
			}
			for name, size := range map[string]int{"a.png": 500, "b.txt": 300, "c.dat": 400} {
				if err := os.WriteFile(filepath.Join(assetsDir, name), make([]byte, size), 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}

	p := newTestProcessor(t, repo, ripper, cfg)
	if err := p.Process(context.Background(), "t1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	task := repo.get("t1")
	if task.Status != models.StatusCompleted {
		t.Fatalf("Task status = %s, want COMPLETED", task.Status)
	}
	if task.ExportSizeBytes != 1200 {
		t.Errorf("ExportSizeBytes = %d, want 1200", task.ExportSizeBytes)
	}
	if want := fileutil.TaskAssetsDir(cfg.ExportDir, "t1"); task.ExportPath != want {
		t.Errorf("ExportPath = %q, want %q", task.ExportPath, want)
	}
	if task.StartedAt == nil || task.CompletedAt == nil {
		t.Error("StartedAt and CompletedAt must both be set")
	}
	if task.StartedAt != nil && task.CompletedAt != nil && task.CompletedAt.Before(*task.StartedAt) {
		t.Error("CompletedAt precedes StartedAt")
	}
	if ripper.resetCalls != 1 {
		t.Errorf("Reset calls = %d, want 1", ripper.resetCalls)
	}
	if len(ripper.loadCalls) != 1 || ripper.loadCalls[0] != task.UploadPath {
		t.Errorf("LoadFile calls = %v, want the upload path", ripper.loadCalls)
	}
}

func TestProcessor_ExportTimeoutMarksFailed(t *testing.T) {
	cfg := testConfig(t)
	repo := newMemRepo()
	pendingTask(t, repo, cfg, "t2")

	ripper := &fakeRipper{
		exportFunc: func(ctx context.Context, exportPath string) error {
			return fault.Newf(fault.Timeout, "export primary content", "no response within 1h")
		},
	}

	p := newTestProcessor(t, repo, ripper, cfg)
	if err := p.Process(context.Background(), "t2"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	task := repo.get("t2")
	if task.Status != models.StatusFailed {
		t.Fatalf("Task status = %s, want FAILED", task.Status)
	}
	if !strings.Contains(task.ErrorMessage, "timeout") {
		t.Errorf("Error message = %q, want it to mention the timeout", task.ErrorMessage)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt not set on failure")
	}
	if ripper.resetCalls == 0 {
		t.Error("Best-effort reset was not attempted after export fault")
	}
}

func TestProcessor_MissingUploadFile(t *testing.T) {
	cfg := testConfig(t)
	repo := newMemRepo()
	task := pendingTask(t, repo, cfg, "t3")
	if err := os.Remove(task.UploadPath); err != nil {
		t.Fatal(err)
	}

	ripper := &fakeRipper{}
	p := newTestProcessor(t, repo, ripper, cfg)
	if err := p.Process(context.Background(), "t3"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	got := repo.get("t3")
	if got.Status != models.StatusFailed {
		t.Fatalf("Task status = %s, want FAILED", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "not found") {
		t.Errorf("Error message = %q, want a file-not-found message", got.ErrorMessage)
	}
	if len(ripper.loadCalls) != 0 || len(ripper.exports) != 0 {
		t.Error("Worker was called despite the missing upload file")
	}
}

func TestProcessor_MissingAssetsDirMarksFailed(t *testing.T) {
	cfg := testConfig(t)
	repo := newMemRepo()
	pendingTask(t, repo, cfg, "t4")

	// Export succeeds but never produces the Assets subdirectory.
	p := newTestProcessor(t, repo, &fakeRipper{}, cfg)
	if err := p.Process(context.Background(), "t4"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	task := repo.get("t4")
	if task.Status != models.StatusFailed {
		t.Fatalf("Task status = %s, want FAILED", task.Status)
	}
	if !strings.Contains(task.ErrorMessage, "assets directory not found") {
		t.Errorf("Error message = %q, want missing assets directory", task.ErrorMessage)
	}
}

func TestProcessor_SkipsNonPendingTask(t *testing.T) {
	cfg := testConfig(t)
	repo := newMemRepo()
	task := pendingTask(t, repo, cfg, "t5")
	task.Status = models.StatusCompleted

	ripper := &fakeRipper{}
	p := newTestProcessor(t, repo, ripper, cfg)
	if err := p.Process(context.Background(), "t5"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if got := repo.get("t5"); got.Status != models.StatusCompleted {
		t.Errorf("Terminal task was mutated: status = %s", got.Status)
	}
	if len(ripper.loadCalls) != 0 {
		t.Error("Worker was called for a non-pending task")
	}
}

func TestProcessor_UnknownTaskIsNoop(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, newMemRepo(), &fakeRipper{}, cfg)
	if err := p.Process(context.Background(), "ghost"); err != nil {
		t.Fatalf("Process returned error for unknown task: %v", err)
	}
}

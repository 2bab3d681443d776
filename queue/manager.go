// Package queue serializes all task execution through a single dispatch
// goroutine, so at most one task is ever in flight against the worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"assetExtractor/models"
	"assetExtractor/repository"
)

// RecoveryMessage is written to every task found stranded in PROCESSING when
// the service starts after an unclean shutdown.
const RecoveryMessage = "interrupted by service restart"

const loopRetryPause = time.Second

var ErrNotRunning = errors.New("task queue is not running")

// Processor runs the full load/export cycle for one task. A returned error
// means the processor could not even record the task's outcome; the manager
// then marks the task failed itself.
type Processor interface {
	Process(ctx context.Context, taskID string) error
}

// Manager owns the in-memory FIFO of pending task IDs and the dispatch loop
// consuming it. Queue state is deliberately not persisted: tasks stranded by
// a crash are resolved by rescanning the store on Start, not by replaying
// the queue.
type Manager struct {
	repo      repository.Repository
	processor Processor
	logger    *zap.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	pending []string
	current string
	running bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(repo repository.Repository, processor Processor, pollInterval time.Duration, logger *zap.Logger) *Manager {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Manager{
		repo:         repo,
		processor:    processor,
		logger:       logger,
		pollInterval: pollInterval,
		wake:         make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop, then fails over every task left in
// PROCESSING by a previous process instance.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("Task queue already running")
		return nil
	}
	m.running = true
	dctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.dispatch(dctx)
	m.logger.Info("Task queue started")

	return m.recoverInterrupted(ctx)
}

// Stop signals the dispatch loop and waits for it to exit. An in-flight
// pipeline step is not aborted; it runs to completion or to its own timeout.
// Safe to call twice or before Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("Task queue stopped")
}

// Enqueue appends the task ID to the FIFO. Never blocks; fails only when the
// queue is shut down, which callers must treat as a scheduling fault.
func (m *Manager) Enqueue(taskID string) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.pending = append(m.pending, taskID)
	depth := len(m.pending)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}

	m.logger.Info("Task enqueued",
		zap.String("task_id", taskID),
		zap.Int("queue_depth", depth))
	return nil
}

// Depth returns the number of not-yet-dequeued task IDs.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CurrentTask returns the ID of the task presently executing, or "".
func (m *Manager) CurrentTask() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// dispatch consumes the FIFO one task at a time. loopCtx cancellation is
// only observed at the wait points between tasks: a dequeued task runs on a
// fresh context so Stop never aborts an in-flight pipeline call or the write
// recording its outcome.
func (m *Manager) dispatch(loopCtx context.Context) {
	defer close(m.done)
	m.logger.Info("Dispatch loop started")

	for {
		taskID, ok := m.next(loopCtx)
		if !ok {
			m.logger.Info("Dispatch loop stopped")
			return
		}

		m.setCurrent(taskID)
		m.logger.Info("Processing task", zap.String("task_id", taskID))

		taskCtx := context.Background()
		if err := m.runTask(taskCtx, taskID); err != nil {
			m.logger.Error("Task processing failed",
				zap.String("task_id", taskID),
				zap.Error(err))
			if markErr := m.repo.MarkFailed(taskCtx, taskID, err.Error()); markErr != nil {
				// Bookkeeping failure, not a task failure. A dead loop
				// silently halts all future processing, so pause and go on.
				m.logger.Error("Failed to mark task failed",
					zap.String("task_id", taskID),
					zap.Error(markErr))
				m.pause(loopCtx)
			}
		}

		m.setCurrent("")
	}
}

// runTask invokes the pipeline, converting a panic into an error so a broken
// task can never take the dispatch loop down with it.
func (m *Manager) runTask(ctx context.Context, taskID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing task: %v", r)
		}
	}()
	return m.processor.Process(ctx, taskID)
}

// next blocks until a task ID is available or ctx is cancelled. The wait is
// bounded by the poll interval so a stop is noticed promptly even when the
// queue stays empty.
func (m *Manager) next(ctx context.Context) (string, bool) {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			taskID := m.pending[0]
			m.pending = m.pending[1:]
			m.mu.Unlock()
			return taskID, true
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-m.wake:
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *Manager) setCurrent(taskID string) {
	m.mu.Lock()
	m.current = taskID
	m.mu.Unlock()
}

func (m *Manager) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(loopRetryPause):
	}
}

// recoverInterrupted marks every PROCESSING row as FAILED. Such rows can only
// exist if a previous process instance died mid-task; the in-memory queue,
// including which task was current, is gone with it.
func (m *Manager) recoverInterrupted(ctx context.Context) error {
	tasks, err := m.repo.ListTasksByStatus(ctx, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("scan interrupted tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	m.logger.Info("Recovering interrupted tasks", zap.Int("count", len(tasks)))

	for _, task := range tasks {
		if err := m.repo.MarkFailed(ctx, task.ID, RecoveryMessage); err != nil {
			return fmt.Errorf("recover task %s: %w", task.ID, err)
		}
		m.logger.Info("Interrupted task marked failed", zap.String("task_id", task.ID))
	}
	return nil
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"assetExtractor/dto"
)

// QueueInfo is the queue introspection surface the health endpoint reports.
type QueueInfo interface {
	Depth() int
	CurrentTask() string
}

// WorkerHealth reports the last-known health of the worker process.
type WorkerHealth interface {
	IsHealthy() bool
}

type HealthHandler struct {
	queue     QueueInfo
	worker    WorkerHealth
	startedAt time.Time
}

func NewHealthHandler(queue QueueInfo, worker WorkerHealth) *HealthHandler {
	return &HealthHandler{
		queue:     queue,
		worker:    worker,
		startedAt: time.Now(),
	}
}

// Health reports composite service health: 503 whenever the worker is down,
// since every task would fail at the load step.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	healthy := h.worker.IsHealthy()

	resp := dto.HealthResponse{
		Status:        "healthy",
		RipperStatus:  "running",
		QueueDepth:    h.queue.Depth(),
		CurrentTask:   h.queue.CurrentTask(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		resp.RipperStatus = "down"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Root serves the service banner.
func Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"name":    "Asset Extractor API",
		"version": "1.0.0",
		"status":  "running",
		"health":  "/api/v1/health",
	})
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"assetExtractor/dto"
)

type fakeQueue struct {
	depth   int
	current string
}

func (f *fakeQueue) Depth() int          { return f.depth }
func (f *fakeQueue) CurrentTask() string { return f.current }

type fakeWorker struct {
	healthy bool
}

func (f *fakeWorker) IsHealthy() bool { return f.healthy }

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHealthHandler(&fakeQueue{depth: 2, current: "abc"}, &fakeWorker{healthy: true})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp dto.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.RipperStatus != "running" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.QueueDepth != 2 || resp.CurrentTask != "abc" {
		t.Errorf("Queue info not reported: %+v", resp)
	}
}

func TestHealthHandler_WorkerDown(t *testing.T) {
	handler := NewHealthHandler(&fakeQueue{}, &fakeWorker{healthy: false})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", rec.Code)
	}

	var resp dto.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "unhealthy" || resp.RipperStatus != "down" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

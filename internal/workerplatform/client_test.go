package workerplatform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
)

func TestCreateTask_SuccessOnFirstAttempt(t *testing.T) {
	wantID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		if r.URL.Path != "/api/v1/tasks/create-tasks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(createTaskResponse{Body: []uuid.UUID{wantID}})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	ids, err := c.CreateTask(context.Background(), domain.TaskSynapse{Prompt: "hi", ExpireAt: time.Now().Add(time.Hour)}, 3)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if len(ids) != 1 || ids[0] != wantID {
		t.Errorf("ids = %v, want [%v]", ids, wantID)
	}
}

func TestCreateTask_FailsOnServerErrorBeforeDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := c.CreateTask(ctx, domain.TaskSynapse{Prompt: "hi", ExpireAt: time.Now().Add(time.Hour)}, 3)
	if err == nil {
		t.Fatal("expected error from exhausted retries or cancelled context")
	}
}

func TestGetTaskResultsByTaskId_EmptyReturnsNilNoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"body": map[string]any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	results, err := c.GetTaskResultsByTaskId(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetTaskResultsByTaskId: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %+v", results)
	}
}

func TestGetTaskResultsByTaskId_ReturnsParsedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"body": map[string]any{
				"taskResults": []domain.Result{
					{Type: domain.CriteriaMultiScore, Value: map[string]float64{"model_a": 80}},
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	results, err := c.GetTaskResultsByTaskId(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetTaskResultsByTaskId: %v", err)
	}
	if len(results) != 1 || results[0].Value["model_a"] != 80 {
		t.Errorf("unexpected results: %+v", results)
	}
}

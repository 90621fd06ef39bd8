package monitor

import (
	"testing"

	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
)

// TestCalculateAverages_S1HappyPath covers two workers reporting
// MULTI_SCORE over two real models, both labels present in the
// de-obfuscation map, where worker-2 reports no score for model_b.
func TestCalculateAverages_S1HappyPath(t *testing.T) {
	obfToReal := map[string]string{
		"model_a": "gpt-4",
		"model_b": "claude-3",
	}

	results := []domain.TaskResult{
		{
			ID:       uuid.New(),
			Status:   domain.ResultCompleted,
			WorkerID: "worker-1",
			ResultData: []domain.Result{
				{Type: domain.CriteriaMultiScore, Value: map[string]float64{"model_a": 80, "model_b": 60}},
			},
		},
		{
			ID:       uuid.New(),
			Status:   domain.ResultCompleted,
			WorkerID: "worker-2",
			ResultData: []domain.Result{
				{Type: domain.CriteriaMultiScore, Value: map[string]float64{"model_a": 90}},
			},
		},
	}

	out := CalculateAverages(results, obfToReal)

	gpt4, ok := out["gpt-4"]
	if !ok || gpt4.Score == nil {
		t.Fatalf("expected a score for gpt-4, got %+v", out)
	}
	if want := (80.0 + 90.0) / 2; *gpt4.Score != want {
		t.Errorf("gpt-4 score = %v, want %v", *gpt4.Score, want)
	}

	claude, ok := out["claude-3"]
	if !ok || claude.Score == nil {
		t.Fatalf("expected a score for claude-3, got %+v", out)
	}
	// claude-3 was only reported by worker-1, but the denominator is the
	// total distinct scoreWorkers count (2), not claude-3's own count (1).
	if want := 60.0 / 2; *claude.Score != want {
		t.Errorf("claude-3 score = %v, want %v (shared denominator quirk)", *claude.Score, want)
	}
}

func TestCalculateAverages_DeobfuscateFallback(t *testing.T) {
	results := []domain.TaskResult{
		{
			Status:   domain.ResultCompleted,
			WorkerID: "worker-1",
			ResultData: []domain.Result{
				{Type: domain.CriteriaMultiScore, Value: map[string]float64{"unmapped_model": 50}},
			},
		},
	}
	out := CalculateAverages(results, map[string]string{})
	agg, ok := out["unmapped_model"]
	if !ok || agg.Score == nil {
		t.Fatalf("expected fallback key unmapped_model in output, got %+v", out)
	}
	if *agg.Score != 50 {
		t.Errorf("score = %v, want 50", *agg.Score)
	}
}

func TestCalculateAverages_RankingCriteria(t *testing.T) {
	results := []domain.TaskResult{
		{
			Status:   domain.ResultCompleted,
			WorkerID: "worker-1",
			ResultData: []domain.Result{
				{Type: domain.CriteriaRanking, Value: map[string]float64{"model_a": 1, "model_b": 2}},
			},
		},
		{
			Status:   domain.ResultCompleted,
			WorkerID: "worker-2",
			ResultData: []domain.Result{
				{Type: domain.CriteriaRanking, Value: map[string]float64{"model_a": 2, "model_b": 1}},
			},
		},
	}
	out := CalculateAverages(results, map[string]string{"model_a": "gpt-4", "model_b": "claude-3"})
	if *out["gpt-4"].RankID != 1 {
		t.Errorf("gpt-4 rank = %d, want 1", *out["gpt-4"].RankID)
	}
	if *out["claude-3"].RankID != 1 {
		t.Errorf("claude-3 rank = %d, want 1", *out["claude-3"].RankID)
	}
}

func TestCalculateAverages_SkipsNonCompletedResults(t *testing.T) {
	results := []domain.TaskResult{
		{
			Status:   domain.ResultFailed,
			WorkerID: "worker-1",
			ResultData: []domain.Result{
				{Type: domain.CriteriaMultiScore, Value: map[string]float64{"model_a": 100}},
			},
		},
	}
	out := CalculateAverages(results, nil)
	if len(out) != 0 {
		t.Errorf("expected no aggregates from a FAILED result, got %+v", out)
	}
}

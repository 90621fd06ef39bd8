package orm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/store"
	"github.com/dojonet/subnet/internal/taskerr"
)

// newTestORM opens an in-memory sqlite database for package tests, so the
// suite doesn't require a live postgres instance. Production always runs
// against postgres (cmd/dojovalidator); sqlite is test-only wiring.
func newTestORM(t *testing.T) *ORM {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return New(store.New(db))
}

func sampleRow(expireAt time.Time) *store.ValidatorTaskRow {
	return &store.ValidatorTaskRow{
		ID:       uuid.New(),
		Prompt:   "build a snake game",
		TaskType: string(domain.TaskTypeCodeGeneration),
		ExpireAt: expireAt,
		Completions: []store.CompletionRow{
			{ID: uuid.New(), Model: "model_a", CompletionJSON: []byte(`{}`)},
		},
		GroundTruths: []store.GroundTruthRow{
			{ID: uuid.New(), ObfuscatedModelID: "model_a", RealModelID: "gpt-4", RankID: 1},
		},
	}
}

func TestSaveTask_RejectsZeroValidMinerResponses(t *testing.T) {
	o := newTestORM(t)
	row := sampleRow(time.Now().Add(time.Hour))
	_, err := o.SaveTask(context.Background(), row, []domain.TaskSynapse{{}})
	if err != taskerr.ErrInvalidTask {
		t.Fatalf("err = %v, want ErrInvalidTask", err)
	}
}

func TestSaveTask_DropsInvalidMinersButKeepsValid(t *testing.T) {
	o := newTestORM(t)
	row := sampleRow(time.Now().Add(time.Hour))
	synapses := []domain.TaskSynapse{
		{}, // missing identity, dropped
		{MinerHotkey: "hotkey-1", MinerColdkey: "coldkey-1", DojoTaskID: uuid.New()},
	}
	saved, err := o.SaveTask(context.Background(), row, synapses)
	if err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if saved == nil {
		t.Fatal("expected a saved row")
	}
	if len(saved.MinerResponses) != 1 {
		t.Errorf("len(MinerResponses) = %d, want 1", len(saved.MinerResponses))
	}
}

func TestGetRealModelIds(t *testing.T) {
	o := newTestORM(t)
	row := sampleRow(time.Now().Add(time.Hour))
	synapses := []domain.TaskSynapse{{MinerHotkey: "hotkey-1", MinerColdkey: "coldkey-1", DojoTaskID: uuid.New()}}
	if _, err := o.SaveTask(context.Background(), row, synapses); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	ids, err := o.GetRealModelIds(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("GetRealModelIds: %v", err)
	}
	if ids["model_a"] != "gpt-4" {
		t.Errorf("GetRealModelIds = %+v, want model_a->gpt-4", ids)
	}
}

func TestMarkValidatorTaskAsProcessed_Idempotent(t *testing.T) {
	o := newTestORM(t)
	row := sampleRow(time.Now().Add(time.Hour))
	synapses := []domain.TaskSynapse{{MinerHotkey: "hotkey-1", MinerColdkey: "coldkey-1", DojoTaskID: uuid.New()}}
	if _, err := o.SaveTask(context.Background(), row, synapses); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	if err := o.MarkValidatorTaskAsProcessed(context.Background(), []uuid.UUID{row.ID}); err != nil {
		t.Fatalf("MarkValidatorTaskAsProcessed: %v", err)
	}
	if err := o.MarkValidatorTaskAsProcessed(context.Background(), []uuid.UUID{row.ID}); err != nil {
		t.Fatalf("MarkValidatorTaskAsProcessed (repeat): %v", err)
	}

	count, err := o.GetNumProcessedTasks(context.Background())
	if err != nil {
		t.Fatalf("GetNumProcessedTasks: %v", err)
	}
	if count != 1 {
		t.Errorf("GetNumProcessedTasks = %d, want 1", count)
	}
}

func TestUpdateMinerCompletions_ReplacesExistingSet(t *testing.T) {
	o := newTestORM(t)
	row := sampleRow(time.Now().Add(time.Hour))
	synapses := []domain.TaskSynapse{{MinerHotkey: "hotkey-1", MinerColdkey: "coldkey-1", DojoTaskID: uuid.New()}}
	if _, err := o.SaveTask(context.Background(), row, synapses); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	score := 88.0
	newCompletions := []store.CompletionRow{
		{ID: uuid.New(), ValidatorTaskID: row.ID, Model: "model_a", CompletionJSON: []byte(`{}`), Score: &score},
	}
	if err := o.UpdateMinerCompletions(context.Background(), row.ID, newCompletions); err != nil {
		t.Fatalf("UpdateMinerCompletions: %v", err)
	}

	var stored []store.CompletionRow
	if err := o.Store.DB.Where("validator_task_id = ?", row.ID).Find(&stored).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(stored) != 1 || stored[0].Score == nil || *stored[0].Score != 88.0 {
		t.Errorf("unexpected completions after replace: %+v", stored)
	}
}

func TestGetExpiredTasks_RejectsInvertedWindow(t *testing.T) {
	o := newTestORM(t)
	from := time.Now()
	to := from.Add(-time.Hour)
	_, err := o.GetExpiredTasks(context.Background(), 10, time.Hour, &from, &to)
	if err != taskerr.ErrExpiredFromMoreThanExpireTo {
		t.Fatalf("err = %v, want ErrExpiredFromMoreThanExpireTo", err)
	}
}

func TestGetExpiredTasks_NoRowsYieldsBenignError(t *testing.T) {
	o := newTestORM(t)
	_, err := o.GetExpiredTasks(context.Background(), 10, time.Hour, nil, nil)
	if err != taskerr.ErrNoNewExpiredTasksYet {
		t.Fatalf("err = %v, want ErrNoNewExpiredTasksYet", err)
	}
}

func TestGetUnexpiredTasks_StreamsMatchingHotkey(t *testing.T) {
	o := newTestORM(t)
	row := sampleRow(time.Now().Add(time.Hour))
	synapses := []domain.TaskSynapse{{MinerHotkey: "hotkey-1", MinerColdkey: "coldkey-1", DojoTaskID: uuid.New()}}
	if _, err := o.SaveTask(context.Background(), row, synapses); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	batches, err := o.GetUnexpiredTasks(context.Background(), []string{"hotkey-1"}, 10)
	if err != nil {
		t.Fatalf("GetUnexpiredTasks: %v", err)
	}
	var total int
	for batch := range batches {
		total += len(batch.Tasks)
	}
	if total != 1 {
		t.Errorf("total streamed tasks = %d, want 1", total)
	}
}

func TestGetUnexpiredTasks_NoMatchingHotkeyIsBenign(t *testing.T) {
	o := newTestORM(t)
	row := sampleRow(time.Now().Add(time.Hour))
	synapses := []domain.TaskSynapse{{MinerHotkey: "hotkey-1", MinerColdkey: "coldkey-1", DojoTaskID: uuid.New()}}
	if _, err := o.SaveTask(context.Background(), row, synapses); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	_, err := o.GetUnexpiredTasks(context.Background(), []string{"some-other-hotkey"}, 10)
	if err != taskerr.ErrNoNewUnexpiredTasksYet {
		t.Fatalf("err = %v, want ErrNoNewUnexpiredTasksYet", err)
	}
}

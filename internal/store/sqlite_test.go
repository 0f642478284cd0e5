package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evantohost/tesseract/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestJob(action string) *model.JobRecord {
	return &model.JobRecord{
		ID:        model.NewID(),
		WorkerID:  "worker-1",
		Action:    action,
		Status:    model.JobPending,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := makeTestJob(model.ActionRecognize)

	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}

	if got.ID != rec.ID {
		t.Errorf("ID = %q, want %q", got.ID, rec.ID)
	}
	if got.WorkerID != rec.WorkerID {
		t.Errorf("WorkerID = %q, want %q", got.WorkerID, rec.WorkerID)
	}
	if got.Action != rec.Action {
		t.Errorf("Action = %q, want %q", got.Action, rec.Action)
	}
	if got.Status != model.JobPending {
		t.Errorf("Status = %q, want %q", got.Status, model.JobPending)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", got.FinishedAt)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetJob(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob error = %v, want ErrNotFound", err)
	}
}

func TestCreateJobStampsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	rec := makeTestJob(model.ActionLoad)
	rec.CreatedAt = time.Time{}

	if err := s.CreateJob(context.Background(), rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped")
	}
}

func TestListJobsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := makeTestJob(model.ActionLoad)
		rec.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := s.CreateJob(ctx, rec); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	jobs, total, err := s.ListJobs(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].CreatedAt.Before(jobs[1].CreatedAt) {
		t.Error("jobs not ordered newest first")
	}

	rest, _, err := s.ListJobs(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ListJobs offset: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("len(rest) = %d, want 3", len(rest))
	}
}

func TestUpdateJobStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := makeTestJob(model.ActionInitialize)

	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.UpdateJobStatus(ctx, rec.ID, model.JobRunning); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	got, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobRunning {
		t.Errorf("Status = %q, want %q", got.Status, model.JobRunning)
	}
}

func TestUpdateJobStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateJobStatus(context.Background(), "nonexistent", model.JobRunning)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateJobStatus error = %v, want ErrNotFound", err)
	}
}

func TestFinishJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := makeTestJob(model.ActionRecognize)

	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.FinishJob(ctx, rec.ID, model.JobRejected, "engine not loaded", 42); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}

	got, err := s.GetJob(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobRejected {
		t.Errorf("Status = %q, want %q", got.Status, model.JobRejected)
	}
	if got.Error != "engine not loaded" {
		t.Errorf("Error = %q, want %q", got.Error, "engine not loaded")
	}
	if got.DurationMS == nil || *got.DurationMS != 42 {
		t.Errorf("DurationMS = %v, want 42", got.DurationMS)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestGetJobStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := makeTestJob(model.ActionRecognize)
		if err := s.CreateJob(ctx, rec); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		if err := s.FinishJob(ctx, rec.ID, model.JobResolved, "", 100); err != nil {
			t.Fatalf("FinishJob: %v", err)
		}
	}
	rec := makeTestJob(model.ActionLoad)
	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	stats, err := s.GetJobStats(ctx)
	if err != nil {
		t.Fatalf("GetJobStats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByStatus[model.JobResolved] != 3 {
		t.Errorf("resolved count = %d, want 3", stats.CountByStatus[model.JobResolved])
	}
	if stats.CountByAction[model.ActionRecognize] != 3 {
		t.Errorf("recognize count = %d, want 3", stats.CountByAction[model.ActionRecognize])
	}
	if stats.AvgDurationMS != 100 {
		t.Errorf("AvgDurationMS = %v, want 100", stats.AvgDurationMS)
	}
}

func TestInsertAndGetEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := makeTestJob(model.ActionLoadLanguage)

	if err := s.CreateJob(ctx, rec); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	statuses := []string{"loading language traineddata", "loaded language traineddata"}
	for i, status := range statuses {
		ev := &model.ProgressRecord{
			JobID:    rec.ID,
			Seq:      i,
			Status:   status,
			Progress: float64(i),
		}
		if err := s.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	events, err := s.GetEvents(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	for i, ev := range events {
		if ev.Seq != i {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i)
		}
		if ev.Status != statuses[i] {
			t.Errorf("events[%d].Status = %q, want %q", i, ev.Status, statuses[i])
		}
	}

	other, err := s.GetEvents(ctx, "other-job")
	if err != nil {
		t.Fatalf("GetEvents other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("len(other) = %d, want 0", len(other))
	}
}

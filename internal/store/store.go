// Package store persists the job journal: one record per dispatched job plus
// its progress event trail.
package store

import (
	"context"
	"errors"

	"github.com/evantohost/tesseract/internal/model"
)

// ErrNotFound is returned when a job is not found.
var ErrNotFound = errors.New("job not found")

// JobStats holds aggregate dispatch statistics.
type JobStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByAction map[string]int `json:"count_by_action"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for the job journal.
type Store interface {
	CreateJob(ctx context.Context, rec *model.JobRecord) error
	GetJob(ctx context.Context, id string) (*model.JobRecord, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*model.JobRecord, int, error)
	UpdateJobStatus(ctx context.Context, id, status string) error
	FinishJob(ctx context.Context, id, status, errMsg string, durationMS int) error
	GetJobStats(ctx context.Context) (*JobStats, error)
	InsertEvent(ctx context.Context, rec *model.ProgressRecord) error
	GetEvents(ctx context.Context, jobID string) ([]model.ProgressRecord, error)
	Close() error
}

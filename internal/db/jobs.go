package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/scriptreel/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// RecordJobRun upserts the terminal outcome of a job.
func (db *DB) RecordJobRun(ctx context.Context, run *models.JobRun) error {
	query := `
		INSERT INTO job_runs (
			job_id, title, status, scene_count,
			artifact_path, preview_path, error_message, created_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			scene_count = EXCLUDED.scene_count,
			artifact_path = EXCLUDED.artifact_path,
			preview_path = EXCLUDED.preview_path,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at
	`

	_, err := db.ExecContext(
		ctx, query,
		run.JobID, run.Title, run.Status, run.SceneCount,
		run.ArtifactPath, run.PreviewPath, run.ErrorMessage, run.CreatedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record job run: %w", err)
	}
	return nil
}

// ListJobRuns returns the most recent outcomes, newest first.
func (db *DB) ListJobRuns(ctx context.Context, limit int) ([]models.JobRun, error) {
	limit = ClampLimit(limit)

	query := `
		SELECT
			job_id, title, status, scene_count,
			artifact_path, preview_path, error_message, created_at, finished_at
		FROM job_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}
	defer rows.Close()

	runs := []models.JobRun{}
	for rows.Next() {
		var run models.JobRun
		err := rows.Scan(
			&run.JobID, &run.Title, &run.Status, &run.SceneCount,
			&run.ArtifactPath, &run.PreviewPath, &run.ErrorMessage, &run.CreatedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job runs: %w", err)
	}

	return runs, nil
}

// ClampLimit bounds a caller-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// JobRunFromJob converts a terminal job snapshot into a history row.
func JobRunFromJob(job models.Job) models.JobRun {
	return models.JobRun{
		JobID:        job.ID,
		Title:        job.Title,
		Status:       job.Status,
		SceneCount:   job.SceneCount,
		ArtifactPath: job.ArtifactPath,
		PreviewPath:  job.PreviewPath,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		FinishedAt:   job.UpdatedAt,
	}
}

// HistoryRecorder records terminal job transitions. It implements
// jobs.Observer; non-terminal snapshots are ignored.
type HistoryRecorder struct {
	db *DB
}

func NewHistoryRecorder(database *DB) *HistoryRecorder {
	return &HistoryRecorder{db: database}
}

func (h *HistoryRecorder) JobChanged(job models.Job) {
	if !job.Status.IsTerminal() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := JobRunFromJob(job)
	if err := h.db.RecordJobRun(ctx, &run); err != nil {
		log.Printf("[DB] Failed to record job %s: %v", job.ID, err)
	}
}

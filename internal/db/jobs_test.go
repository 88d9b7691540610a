package db

import (
	"testing"
	"time"

	"github.com/bobarin/scriptreel/internal/models"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultHistoryLimit},
		{-5, DefaultHistoryLimit},
		{10, 10},
		{MaxHistoryLimit, MaxHistoryLimit},
		{MaxHistoryLimit + 1, MaxHistoryLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestJobRunFromJob(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := created.Add(90 * time.Second)
	msg := "assemble: cannot assemble timeline"

	run := JobRunFromJob(models.Job{
		ID:           "j1",
		Title:        "movie",
		Status:       models.JobStatusError,
		SceneCount:   2,
		ErrorMessage: &msg,
		CreatedAt:    created,
		UpdatedAt:    finished,
	})

	if run.JobID != "j1" || run.Status != models.JobStatusError || run.SceneCount != 2 {
		t.Errorf("run = %+v", run)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage != msg {
		t.Errorf("error = %v", run.ErrorMessage)
	}
	if !run.FinishedAt.Equal(finished) || !run.CreatedAt.Equal(created) {
		t.Errorf("times = %v / %v", run.CreatedAt, run.FinishedAt)
	}
	if run.ArtifactPath != nil {
		t.Errorf("artifact should be nil for failed runs")
	}
}

func TestHistoryRecorderIgnoresNonTerminal(t *testing.T) {
	// A nil DB would panic if the recorder tried to write.
	rec := NewHistoryRecorder(nil)
	rec.JobChanged(models.Job{ID: "j", Status: models.JobStatusPending})
	rec.JobChanged(models.Job{ID: "j", Status: models.JobStatusRunning, Progress: 50})
}

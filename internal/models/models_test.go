package models

import (
	"encoding/json"
	"testing"
)

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusDone, true},
		{JobStatusError, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestJobStatusValues(t *testing.T) {
	statuses := []JobStatus{
		JobStatusPending,
		JobStatusRunning,
		JobStatusDone,
		JobStatusError,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestStatusResponseOmitsErrorWhenAbsent(t *testing.T) {
	data, err := json.Marshal(StatusResponse{JobID: "abc", Status: JobStatusRunning, Progress: 40})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if _, ok := result["error"]; ok {
		t.Errorf("expected no error field, got %v", result["error"])
	}
	if result["progress"].(float64) != 40 {
		t.Errorf("expected progress=40, got %v", result["progress"])
	}
}

package models

import (
	"time"
)

// Enums
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// DefaultSpeaker is the role assigned to untagged script lines.
const DefaultSpeaker = "NARRATOR"

// Models

// Job is one end-to-end request to produce a narrated video.
// ArtifactPath and PreviewPath are set together with the done transition;
// ErrorMessage is set only with the error transition.
type Job struct {
	ID           string    `json:"job_id"`
	Title        string    `json:"title"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	SceneCount   int       `json:"scene_count"`
	ArtifactPath *string   `json:"artifact_path,omitempty"`
	PreviewPath  *string   `json:"preview_path,omitempty"`
	ErrorMessage *string   `json:"error,omitempty"`
	// Remote object paths when the artifact was published to storage
	ArtifactStoragePath *string   `json:"artifact_storage_path,omitempty"`
	PreviewStoragePath  *string   `json:"preview_storage_path,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Scene is one ordered (speaker, text) unit derived from a script.
type Scene struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// DTOs for API requests/responses

// SubmitRequest carries everything a job run needs. Images and Clips are
// readable paths already materialized on local storage.
type SubmitRequest struct {
	JobID      string   `json:"-"`
	Script     string   `json:"script"`
	Title      string   `json:"title,omitempty"`      // Default: "movie"
	Images     []string `json:"images,omitempty"`     // Image-like asset paths
	Clips      []string `json:"clips,omitempty"`      // Video-like asset paths
	Resolution string   `json:"resolution,omitempty"` // "WIDTHxHEIGHT", default from config
	FPS        int      `json:"fps,omitempty"`        // Default from config
}

type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// StatusResponse is what pollers see. Paths are never exposed here;
// retrieval goes through the download/preview endpoints.
type StatusResponse struct {
	JobID       string    `json:"job_id"`
	Title       string    `json:"title"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Error       *string   `json:"error,omitempty"`
	SceneCount  int       `json:"scene_count"`
	ArtifactURL *string   `json:"artifact_url,omitempty"`
	PreviewURL  *string   `json:"preview_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobRun is one terminal outcome recorded in the history table.
type JobRun struct {
	JobID        string    `json:"job_id"`
	Title        string    `json:"title"`
	Status       JobStatus `json:"status"`
	SceneCount   int       `json:"scene_count"`
	ArtifactPath *string   `json:"artifact_path,omitempty"`
	PreviewPath  *string   `json:"preview_path,omitempty"`
	ErrorMessage *string   `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

type ListJobRunsResponse struct {
	Runs  []JobRun `json:"runs"`
	Limit int      `json:"limit"`
}

type VoicesResponse struct {
	Providers []string          `json:"providers"`
	Profile   map[string]string `json:"profile"`
	Default   string            `json:"default"`
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/bobarin/scriptreel/internal/models"
	"github.com/go-redis/redis/v8"
)

// ---------------------------------------------------------------------------
// StatusMirror
//
// Mirrors job snapshots into Redis so other processes can poll or subscribe
// to progress: one hash per job (with TTL) plus a pub/sub message per change.
// Writes happen on a background goroutine in the order they were observed;
// a slow or unreachable Redis never blocks a job.
// ---------------------------------------------------------------------------

const (
	KeyPrefix     = "scriptreel:job:"
	UpdateChannel = "scriptreel:jobs"

	defaultTTL   = 24 * time.Hour
	writeTimeout = 3 * time.Second
	bufferSize   = 256
)

type StatusMirror struct {
	client  *redis.Client
	ttl     time.Duration
	updates chan models.Job
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func New(redisURL string) (*StatusMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &StatusMirror{
		client:  client,
		ttl:     defaultTTL,
		updates: make(chan models.Job, bufferSize),
		done:    make(chan struct{}),
	}
	go m.loop()

	return m, nil
}

// JobChanged implements jobs.Observer.
func (m *StatusMirror) JobChanged(job models.Job) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.updates <- job:
	default:
		log.Printf("[Redis] Mirror buffer full, dropping update for job %s (%s %d%%)", job.ID, job.Status, job.Progress)
	}
}

func (m *StatusMirror) loop() {
	defer close(m.done)
	for job := range m.updates {
		if err := m.write(job); err != nil {
			log.Printf("[Redis] Failed to mirror job %s: %v", job.ID, err)
		}
	}
}

func (m *StatusMirror) write(job models.Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	msg, err := UpdateMessage(job)
	if err != nil {
		return err
	}

	key := JobKey(job.ID)
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, JobFields(job))
	pipe.Expire(ctx, key, m.ttl)
	pipe.Publish(ctx, UpdateChannel, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetStatus reads a mirrored job hash. An empty map means the key is absent
// or expired.
func (m *StatusMirror) GetStatus(ctx context.Context, jobID string) (map[string]string, error) {
	return m.client.HGetAll(ctx, JobKey(jobID)).Result()
}

// Close drains pending updates and closes the client.
func (m *StatusMirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.updates)
	m.mu.Unlock()

	<-m.done
	return m.client.Close()
}

func JobKey(jobID string) string {
	return KeyPrefix + jobID
}

// JobFields flattens a job into hash fields. Absent optional values are
// written as empty strings so stale values are overwritten.
func JobFields(job models.Job) map[string]interface{} {
	return map[string]interface{}{
		"status":           string(job.Status),
		"progress":         strconv.Itoa(job.Progress),
		"title":            job.Title,
		"scene_count":      strconv.Itoa(job.SceneCount),
		"error":            deref(job.ErrorMessage),
		"artifact":         deref(job.ArtifactPath),
		"preview":          deref(job.PreviewPath),
		"artifact_storage": deref(job.ArtifactStoragePath),
		"preview_storage":  deref(job.PreviewStoragePath),
		"updated_at":       job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// JobFromFields rebuilds a job from a hash read back by GetStatus. The
// mirror does not carry CreatedAt, so it is left zero.
func JobFromFields(jobID string, fields map[string]string) (models.Job, error) {
	job := models.Job{
		ID:                  jobID,
		Title:               fields["title"],
		Status:              models.JobStatus(fields["status"]),
		ErrorMessage:        optional(fields["error"]),
		ArtifactPath:        optional(fields["artifact"]),
		PreviewPath:         optional(fields["preview"]),
		ArtifactStoragePath: optional(fields["artifact_storage"]),
		PreviewStoragePath:  optional(fields["preview_storage"]),
	}

	switch job.Status {
	case models.JobStatusPending, models.JobStatusRunning, models.JobStatusDone, models.JobStatusError:
	default:
		return models.Job{}, fmt.Errorf("mirrored job %s has unknown status %q", jobID, fields["status"])
	}

	var err error
	if job.Progress, err = strconv.Atoi(fields["progress"]); err != nil {
		return models.Job{}, fmt.Errorf("mirrored job %s: bad progress: %w", jobID, err)
	}
	if s := fields["scene_count"]; s != "" {
		if job.SceneCount, err = strconv.Atoi(s); err != nil {
			return models.Job{}, fmt.Errorf("mirrored job %s: bad scene_count: %w", jobID, err)
		}
	}
	if s := fields["updated_at"]; s != "" {
		if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return models.Job{}, fmt.Errorf("mirrored job %s: bad updated_at: %w", jobID, err)
		}
	}
	return job, nil
}

type updateMessage struct {
	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Error    *string          `json:"error,omitempty"`
}

// UpdateMessage is the JSON payload published on UpdateChannel.
func UpdateMessage(job models.Job) (string, error) {
	data, err := json.Marshal(updateMessage{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.ErrorMessage,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job update: %w", err)
	}
	return string(data), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package jobs

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/bobarin/scriptreel/internal/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrNotReady          = errors.New("job output not ready")
	ErrAlreadyClaimed    = errors.New("job already claimed")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Observer is notified with a snapshot after every write to a job.
// Notifications for one job arrive in write order. When concurrent writes
// race, a snapshot older than one already delivered is skipped, so the
// last notification always reflects the latest write.
type Observer interface {
	JobChanged(job models.Job)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(job models.Job)

func (f ObserverFunc) JobChanged(job models.Job) { f(job) }

type entry struct {
	job     models.Job
	claimed bool
	version uint64 // Bumped under Store.mu on every write

	notifyMu sync.Mutex // Serializes delivery for this job
	notified uint64     // Highest version delivered, guarded by notifyMu
}

// Store is the process-wide job table. Anyone may read; only the holder of
// a job's Handle may write to it.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*entry
	observers []Observer
	now       func() time.Time
}

func NewStore(observers ...Observer) *Store {
	return &Store{
		jobs:      make(map[string]*entry),
		observers: observers,
		now:       time.Now,
	}
}

// AddObserver registers o for subsequent writes. Call before serving jobs.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Create inserts a pending job.
func (s *Store) Create(id, title string) (models.Job, error) {
	s.mu.Lock()
	if _, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobExists, id)
	}

	now := s.now()
	e := &entry{job: models.Job{
		ID:        id,
		Title:     title,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.jobs[id] = e
	snapshot := cloneJob(e.job)
	observers := s.observers
	s.mu.Unlock()

	notify(observers, snapshot)
	return snapshot, nil
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return cloneJob(e.job), nil
}

// List returns copies of all jobs, newest first.
func (s *Store) List() []models.Job {
	s.mu.RLock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, cloneJob(e.job))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ArtifactPath returns the final artifact of a done job.
func (s *Store) ArtifactPath(id string) (string, error) {
	job, err := s.Get(id)
	if err != nil {
		return "", err
	}
	if job.Status != models.JobStatusDone || job.ArtifactPath == nil {
		return "", ErrNotReady
	}
	return *job.ArtifactPath, nil
}

// PreviewPath returns the preview of a done job.
func (s *Store) PreviewPath(id string) (string, error) {
	job, err := s.Get(id)
	if err != nil {
		return "", err
	}
	if job.Status != models.JobStatusDone || job.PreviewPath == nil {
		return "", ErrNotReady
	}
	return *job.PreviewPath, nil
}

// Claim hands out the single write handle for a job.
func (s *Store) Claim(id string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if e.claimed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, id)
	}
	e.claimed = true
	return &Handle{store: s, id: id}, nil
}

// update applies fn under the write lock and notifies observers afterwards.
func (s *Store) update(id string, fn func(job *models.Job) error) error {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if err := fn(&e.job); err != nil {
		s.mu.Unlock()
		return err
	}
	e.job.UpdatedAt = s.now()
	e.version++
	version := e.version
	snapshot := cloneJob(e.job)
	observers := s.observers
	s.mu.Unlock()

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if version <= e.notified {
		return nil
	}
	e.notified = version
	notify(observers, snapshot)
	return nil
}

func notify(observers []Observer, job models.Job) {
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Store] Observer panic for job %s: %v", job.ID, r)
				}
			}()
			o.JobChanged(cloneJob(job))
		}()
	}
}

func isValidTransition(from, to models.JobStatus) bool {
	switch from {
	case models.JobStatusPending:
		return to == models.JobStatusRunning
	case models.JobStatusRunning:
		return to == models.JobStatusDone || to == models.JobStatusError
	default:
		return false
	}
}

func cloneJob(job models.Job) models.Job {
	job.ArtifactPath = cloneString(job.ArtifactPath)
	job.PreviewPath = cloneString(job.PreviewPath)
	job.ErrorMessage = cloneString(job.ErrorMessage)
	job.ArtifactStoragePath = cloneString(job.ArtifactStoragePath)
	job.PreviewStoragePath = cloneString(job.PreviewStoragePath)
	return job
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ---------------------------------------------------------------------------
// Handle
// ---------------------------------------------------------------------------

// Handle is the exclusive writer of one job record.
type Handle struct {
	store *Store
	id    string
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) transition(to models.JobStatus, fn func(job *models.Job)) error {
	return h.store.update(h.id, func(job *models.Job) error {
		if !isValidTransition(job.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
		}
		job.Status = to
		if fn != nil {
			fn(job)
		}
		return nil
	})
}

// Start moves the job from pending to running.
func (h *Handle) Start() error {
	return h.transition(models.JobStatusRunning, nil)
}

// SetProgress raises progress while running. Lower values are ignored and
// values are capped at 99; only Complete reports 100.
func (h *Handle) SetProgress(progress int) error {
	if progress > 99 {
		progress = 99
	}
	return h.store.update(h.id, func(job *models.Job) error {
		if job.Status != models.JobStatusRunning {
			return fmt.Errorf("%w: progress update while %s", ErrInvalidTransition, job.Status)
		}
		if progress > job.Progress {
			job.Progress = progress
		}
		return nil
	})
}

// SetSceneCount records how many scenes the script produced.
func (h *Handle) SetSceneCount(n int) error {
	return h.store.update(h.id, func(job *models.Job) error {
		job.SceneCount = n
		return nil
	})
}

// SetPublished records the remote object paths of a published artifact.
func (h *Handle) SetPublished(artifactStoragePath, previewStoragePath string) error {
	return h.store.update(h.id, func(job *models.Job) error {
		if artifactStoragePath != "" {
			job.ArtifactStoragePath = &artifactStoragePath
		}
		if previewStoragePath != "" {
			job.PreviewStoragePath = &previewStoragePath
		}
		return nil
	})
}

// Complete marks the job done with both output paths and progress 100.
func (h *Handle) Complete(artifactPath, previewPath string) error {
	return h.transition(models.JobStatusDone, func(job *models.Job) {
		job.Progress = 100
		job.ArtifactPath = &artifactPath
		job.PreviewPath = &previewPath
		job.ErrorMessage = nil
	})
}

// Fail marks the job failed with message and resets progress to 0.
func (h *Handle) Fail(message string) error {
	if message == "" {
		message = "unknown error"
	}
	return h.transition(models.JobStatusError, func(job *models.Job) {
		job.Progress = 0
		job.ErrorMessage = &message
		job.ArtifactPath = nil
		job.PreviewPath = nil
	})
}

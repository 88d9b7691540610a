package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bobarin/scriptreel/internal/jobs"
	"github.com/bobarin/scriptreel/internal/models"
	"github.com/bobarin/scriptreel/internal/services"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidSubmission wraps every validation failure of Submit.
var ErrInvalidSubmission = errors.New("invalid submission")

const defaultTitle = "movie"

// Progress checkpoints. Per-scene stages advance proportionally inside their
// band as scenes complete.
const (
	progressStarted        = 5
	progressParsed         = 10
	progressAudioStart     = 15
	progressAudioEnd       = 35
	progressVisualStart    = 40
	progressVisualEnd      = 60
	progressComposeEnd     = 75
	progressAssembled      = 88
	progressPreviewed      = 95
	progressPublished      = 99
	maxConcurrentPublishes = 2
)

// Publisher copies finished outputs to durable remote storage and returns
// their remote object paths.
type Publisher interface {
	PublishJob(ctx context.Context, jobID, artifactPath, previewPath string) (artifactRemote, previewRemote string, err error)
}

type Options struct {
	WorkDir           string
	OutputDir         string
	DefaultResolution services.Resolution
	DefaultFPS        int
	PreviewSeconds    int
	PreviewResolution services.Resolution
	SceneConcurrency  int  // Parallel audio syntheses per job; 1 keeps strict order
	KeepScratch       bool // Leave <WorkDir>/<jobID> in place after a terminal state
}

// Orchestrator runs one goroutine per job through
// parse -> audio -> visuals -> mux -> assemble -> preview -> publish.
type Orchestrator struct {
	store      *jobs.Store
	voices     *services.VoiceRegistry
	ffmpeg     *services.FFmpegService
	publisher  Publisher // Optional: nil when storage is not configured
	opts       Options
	wg         sync.WaitGroup
	publishSem chan struct{}
}

func New(
	store *jobs.Store,
	voices *services.VoiceRegistry,
	ffmpegSvc *services.FFmpegService,
	publisher Publisher,
	opts Options,
) *Orchestrator {
	if opts.DefaultFPS <= 0 {
		opts.DefaultFPS = 24
	}
	if opts.DefaultResolution.Width == 0 {
		opts.DefaultResolution = services.Resolution{Width: 1920, Height: 1080}
	}
	if opts.PreviewSeconds <= 0 {
		opts.PreviewSeconds = 15
	}
	if opts.PreviewResolution.Width == 0 {
		opts.PreviewResolution = services.Resolution{Width: 640, Height: 360}
	}
	if opts.SceneConcurrency <= 0 {
		opts.SceneConcurrency = 1
	}

	return &Orchestrator{
		store:      store,
		voices:     voices,
		ffmpeg:     ffmpegSvc,
		publisher:  publisher,
		opts:       opts,
		publishSem: make(chan struct{}, maxConcurrentPublishes),
	}
}

// plan is a validated submission.
type plan struct {
	jobID      string
	title      string
	script     string
	images     []string
	clips      []string
	resolution services.Resolution
	fps        int
}

// Submit validates the request, creates a pending job and starts its run.
// It returns as soon as the run is scheduled.
func (o *Orchestrator) Submit(req models.SubmitRequest) (string, error) {
	p, err := o.validate(req)
	if err != nil {
		return "", err
	}

	if _, err := o.store.Create(p.jobID, p.title); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	handle, err := o.store.Claim(p.jobID)
	if err != nil {
		return "", fmt.Errorf("failed to claim job: %w", err)
	}

	log.Printf("[Worker] Job %s submitted (title=%s, images=%d, clips=%d, %s@%dfps)",
		p.jobID, p.title, len(p.images), len(p.clips), p.resolution, p.fps)

	o.wg.Add(1)
	go o.run(context.Background(), handle, p)

	return p.jobID, nil
}

func (o *Orchestrator) validate(req models.SubmitRequest) (plan, error) {
	if strings.TrimSpace(req.Script) == "" {
		return plan{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, services.ErrEmptyScript)
	}

	res := o.opts.DefaultResolution
	if strings.TrimSpace(req.Resolution) != "" {
		parsed, err := services.ParseResolution(req.Resolution)
		if err != nil {
			return plan{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
		}
		res = parsed
	}

	fps := o.opts.DefaultFPS
	if req.FPS < 0 {
		return plan{}, fmt.Errorf("%w: fps must be positive, got %d", ErrInvalidSubmission, req.FPS)
	}
	if req.FPS > 0 {
		fps = req.FPS
	}

	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	}

	return plan{
		jobID:      id,
		title:      SanitizeTitle(req.Title),
		script:     req.Script,
		images:     nonEmpty(req.Images),
		clips:      nonEmpty(req.Clips),
		resolution: res,
		fps:        fps,
	}, nil
}

var unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeTitle keeps a title safe for use in file names.
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = unsafeTitleChars.ReplaceAllString(strings.ReplaceAll(title, " ", "_"), "")
	if len(title) > 64 {
		title = title[:64]
	}
	if title == "" {
		return defaultTitle
	}
	return title
}

func nonEmpty(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Wait blocks until every submitted run has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Status returns a snapshot of the job.
func (o *Orchestrator) Status(jobID string) (models.Job, error) {
	return o.store.Get(jobID)
}

// List returns snapshots of every job known to this process, newest first.
func (o *Orchestrator) List() []models.Job {
	return o.store.List()
}

// ArtifactPath returns the final artifact, or jobs.ErrNotReady before done.
func (o *Orchestrator) ArtifactPath(jobID string) (string, error) {
	return o.store.ArtifactPath(jobID)
}

// PreviewPath returns the preview, or jobs.ErrNotReady before done.
func (o *Orchestrator) PreviewPath(jobID string) (string, error) {
	return o.store.PreviewPath(jobID)
}

// ScratchDir is the job-scoped working directory.
func (o *Orchestrator) ScratchDir(jobID string) string {
	return filepath.Join(o.opts.WorkDir, jobID)
}

// CleanupScratch removes the scratch directory of a terminal job.
func (o *Orchestrator) CleanupScratch(jobID string) error {
	job, err := o.store.Get(jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", jobs.ErrNotReady, jobID, job.Status)
	}

	if err := os.RemoveAll(o.ScratchDir(jobID)); err != nil {
		return fmt.Errorf("failed to remove scratch for job %s: %w", jobID, err)
	}
	log.Printf("[Worker] Scratch removed for job %s", jobID)
	return nil
}

// ---------------------------------------------------------------------------
// Job run
// ---------------------------------------------------------------------------

func (o *Orchestrator) run(ctx context.Context, h *jobs.Handle, p plan) {
	defer o.wg.Done()

	err := o.execute(ctx, h, p)
	if err != nil {
		log.Printf("[Worker] Job %s failed: %v", p.jobID, err)
		if failErr := h.Fail(err.Error()); failErr != nil {
			log.Printf("[Worker] Failed to record error for job %s: %v", p.jobID, failErr)
		}
	} else {
		log.Printf("[Worker] Job %s completed successfully", p.jobID)
	}

	if !o.opts.KeepScratch {
		if err := o.CleanupScratch(p.jobID); err != nil {
			log.Printf("[Worker] Warning: %v", err)
		}
	}
}

// execute drives the stages in order. A panic in any stage becomes an error.
func (o *Orchestrator) execute(ctx context.Context, h *jobs.Handle, p plan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Job %s panicked: %v\n%s", p.jobID, r, debug.Stack())
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	if err := h.Start(); err != nil {
		return err
	}
	o.progress(h, progressStarted)

	// --- Parse ---
	scenes := services.ParseScript(p.script)
	if len(scenes) == 0 {
		return services.NewStageError(services.KindParseFailure, "parse", "script has no content", services.ErrNoScenes)
	}
	if err := h.SetSceneCount(len(scenes)); err != nil {
		return err
	}
	o.progress(h, progressParsed)
	log.Printf("[Worker] Job %s: %d scene(s)", p.jobID, len(scenes))

	workDir := o.ScratchDir(p.jobID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}

	// --- Audio ---
	audioPaths, err := o.synthesizeScenes(ctx, h, scenes, workDir)
	if err != nil {
		return err
	}

	// --- Visuals ---
	o.progress(h, progressVisualStart)
	videoPaths := make([]string, len(scenes))
	for i, scene := range scenes {
		asset := services.SelectAsset(i, p.images, p.clips)
		duration := services.SceneDuration(scene.Text)
		out := scenePath(workDir, i, "video.mp4")

		kind, err := o.ffmpeg.RenderSceneVisual(ctx, services.VisualRequest{
			AssetPath:  asset,
			Text:       scene.Text,
			Duration:   duration,
			Resolution: p.resolution,
			FPS:        p.fps,
			OutputPath: out,
		})
		if err != nil {
			return fmt.Errorf("scene %d visual: %w", i, err)
		}
		log.Printf("[Worker] Job %s scene %d: %ds visual from %s", p.jobID, i, duration, kind)

		videoPaths[i] = out
		o.progress(h, band(progressVisualStart, progressVisualEnd, i+1, len(scenes)))
	}

	// --- Compose ---
	finalClips := make([]string, len(scenes))
	for i := range scenes {
		out := scenePath(workDir, i, "final.mp4")
		if err := o.ffmpeg.MuxAudio(ctx, videoPaths[i], audioPaths[i], out); err != nil {
			return fmt.Errorf("scene %d compose: %w", i, err)
		}
		finalClips[i] = out
		o.progress(h, band(progressVisualEnd, progressComposeEnd, i+1, len(scenes)))
	}

	// --- Assemble ---
	if err := os.MkdirAll(o.opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	base := filepath.Join(o.opts.OutputDir, fmt.Sprintf("%s_%s", p.title, p.jobID))
	artifactPath := base + ".mp4"
	previewPath := base + "_preview.mp4"

	if err := o.ffmpeg.ConcatenateClips(ctx, finalClips, artifactPath, p.resolution, p.fps); err != nil {
		return err
	}
	o.progress(h, progressAssembled)

	// --- Preview ---
	length, err := o.ffmpeg.GeneratePreview(ctx, artifactPath, previewPath, o.opts.PreviewSeconds, o.opts.PreviewResolution)
	if err != nil {
		return err
	}
	o.progress(h, progressPreviewed)
	log.Printf("[Worker] Job %s: preview %.2fs", p.jobID, length)

	// --- Publish (best effort) ---
	if o.publisher != nil {
		o.publish(ctx, h, p.jobID, artifactPath, previewPath)
		o.progress(h, progressPublished)
	}

	return h.Complete(artifactPath, previewPath)
}

// synthesizeScenes produces one audio track per scene. With a concurrency of
// one, scenes run strictly in index order.
func (o *Orchestrator) synthesizeScenes(ctx context.Context, h *jobs.Handle, scenes []models.Scene, workDir string) ([]string, error) {
	o.progress(h, progressAudioStart)

	audioPaths := make([]string, len(scenes))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.SceneConcurrency)

	for i, scene := range scenes {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Worker] Scene %d synthesis panicked: %v\n%s", i, r, debug.Stack())
					err = fmt.Errorf("internal error in scene %d audio: %v", i, r)
				}
			}()
			if gctx.Err() != nil {
				return nil
			}

			path, err := o.voices.Synthesize(gctx, scene.Speaker, scene.Text, scenePath(workDir, i, "audio.mp3"))
			if err != nil {
				return fmt.Errorf("scene %d audio: %w", i, err)
			}
			audioPaths[i] = path

			n := int(done.Add(1))
			o.progress(h, band(progressAudioStart, progressAudioEnd, n, len(scenes)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return audioPaths, nil
}

func (o *Orchestrator) publish(ctx context.Context, h *jobs.Handle, jobID, artifactPath, previewPath string) {
	o.publishSem <- struct{}{}
	defer func() { <-o.publishSem }()

	artifactRemote, previewRemote, err := o.publisher.PublishJob(ctx, jobID, artifactPath, previewPath)
	if err != nil {
		log.Printf("[Worker] Warning: publishing job %s failed, keeping local outputs: %v", jobID, err)
		return
	}
	if err := h.SetPublished(artifactRemote, previewRemote); err != nil {
		log.Printf("[Worker] Warning: failed to record published paths for job %s: %v", jobID, err)
	}
}

func (o *Orchestrator) progress(h *jobs.Handle, value int) {
	if err := h.SetProgress(value); err != nil {
		log.Printf("[Worker] Warning: progress update for job %s: %v", h.ID(), err)
	}
}

// band maps done/total onto [start, end].
func band(start, end, done, total int) int {
	if total <= 0 {
		return end
	}
	return start + (end-start)*done/total
}

func scenePath(workDir string, index int, suffix string) string {
	return filepath.Join(workDir, fmt.Sprintf("scene_%d_%s", index, suffix))
}

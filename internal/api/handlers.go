package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/scriptreel/internal/db"
	"github.com/bobarin/scriptreel/internal/jobs"
	"github.com/bobarin/scriptreel/internal/models"
	"github.com/bobarin/scriptreel/internal/queue"
	"github.com/bobarin/scriptreel/internal/services"
	"github.com/bobarin/scriptreel/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before parts spill to temporary files.
const multipartMemory = 32 << 20

// History lists terminal job outcomes. Implemented by *db.DB.
type History interface {
	ListJobRuns(ctx context.Context, limit int) ([]models.JobRun, error)
}

// URLSigner issues temporary download links for published objects.
// Implemented by *storage.Storage.
type URLSigner interface {
	GetSignedURL(ctx context.Context, objectPath string, expiresIn int) (string, error)
}

// StatusLookup reads job state mirrored by other processes. Implemented by
// *queue.StatusMirror.
type StatusLookup interface {
	GetStatus(ctx context.Context, jobID string) (map[string]string, error)
}

// PublicLinker builds permanent links into a public bucket. Implemented by
// *storage.Storage.
type PublicLinker interface {
	GetPublicURL(objectPath string) string
}

// HandlerConfig carries the optional collaborators. Leave any of them nil
// when the backing service is not configured.
type HandlerConfig struct {
	MaxUploadMB  int
	History      History
	Signer       URLSigner
	SignedURLTTL int
	// Mirror answers status polls for jobs this process does not own
	Mirror StatusLookup
	// Public is set only when the bucket is publicly readable
	Public PublicLinker
}

type Handler struct {
	orchestrator *worker.Orchestrator
	voices       *services.VoiceRegistry
	cfg          HandlerConfig
}

func NewHandler(orchestrator *worker.Orchestrator, voices *services.VoiceRegistry, cfg HandlerConfig) *Handler {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 512
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 3600
	}
	return &Handler{
		orchestrator: orchestrator,
		voices:       voices,
		cfg:          cfg,
	}
}

// SubmitJob handles POST /v1/jobs (and the legacy POST /generate_movie).
// Multipart forms carry uploaded assets; JSON bodies reference paths that
// already exist on local storage.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxUploadMB)<<20)

	jobID := uuid.NewString()
	var req models.SubmitRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		parsed, err := h.parseMultipart(r, jobID)
		if err != nil {
			h.discardUploads(jobID)
			respondError(w, statusForBodyError(err), err.Error())
			return
		}
		req = parsed
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, statusForBodyError(err), "Invalid request body")
			return
		}
	}
	req.JobID = jobID

	id, err := h.orchestrator.Submit(req)
	if err != nil {
		h.discardUploads(jobID)
		if errors.Is(err, worker.ErrInvalidSubmission) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[API] Failed to submit job: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to submit job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.SubmitResponse{
		JobID:  id,
		Status: models.JobStatusPending,
	})
}

func (h *Handler) parseMultipart(r *http.Request, jobID string) (models.SubmitRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return models.SubmitRequest{}, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	req := models.SubmitRequest{
		Script:     r.FormValue("script"),
		Title:      r.FormValue("title"),
		Resolution: r.FormValue("resolution"),
	}

	if fps := strings.TrimSpace(r.FormValue("fps")); fps != "" {
		n, err := strconv.Atoi(fps)
		if err != nil {
			return models.SubmitRequest{}, fmt.Errorf("fps must be an integer, got %q", fps)
		}
		req.FPS = n
	}

	uploadDir := filepath.Join(h.orchestrator.ScratchDir(jobID), "uploads")

	var err error
	if req.Images, err = saveUploads(uploadDir, formFiles(r.MultipartForm, "images")); err != nil {
		return models.SubmitRequest{}, err
	}
	if req.Clips, err = saveUploads(uploadDir, formFiles(r.MultipartForm, "clips")); err != nil {
		return models.SubmitRequest{}, err
	}

	return req, nil
}

// formFiles accepts both "images" and "images[]" style field names.
func formFiles(form *multipart.Form, field string) []*multipart.FileHeader {
	return append(form.File[field], form.File[field+"[]"]...)
}

// saveUploads writes each part under dir with a collision-free name that
// keeps the original extension, since asset classification goes by it.
func saveUploads(dir string, files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		dst := filepath.Join(dir, uuid.NewString()+ext)
		if err := saveUpload(fh, dst); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", fh.Filename, err)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// discardUploads removes files saved for a submission that was rejected.
func (h *Handler) discardUploads(jobID string) {
	if err := os.RemoveAll(h.orchestrator.ScratchDir(jobID)); err != nil {
		log.Printf("[API] Failed to remove uploads for rejected job %s: %v", jobID, err)
	}
}

func statusForBodyError(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	all := h.orchestrator.List()
	resp := make([]models.StatusResponse, len(all))
	for i, job := range all {
		resp[i] = h.statusResponse(job, true)
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /v1/jobs/{id}. Jobs unknown to this process are
// looked up in the Redis mirror when one is configured.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if job, err := h.orchestrator.Status(jobID); err == nil {
		respondJSON(w, http.StatusOK, h.statusResponse(job, true))
		return
	}

	if job, ok := h.mirroredJob(r.Context(), jobID); ok {
		respondJSON(w, http.StatusOK, h.statusResponse(job, false))
		return
	}

	respondError(w, http.StatusNotFound, "Job not found")
}

func (h *Handler) mirroredJob(ctx context.Context, jobID string) (models.Job, bool) {
	if h.cfg.Mirror == nil {
		return models.Job{}, false
	}

	fields, err := h.cfg.Mirror.GetStatus(ctx, jobID)
	if err != nil {
		log.Printf("[API] Mirror lookup failed for job %s: %v", jobID, err)
		return models.Job{}, false
	}
	if len(fields) == 0 {
		return models.Job{}, false
	}

	job, err := queue.JobFromFields(jobID, fields)
	if err != nil {
		log.Printf("[API] Ignoring mirrored job %s: %v", jobID, err)
		return models.Job{}, false
	}
	return job, true
}

// statusResponse links a done job's outputs. Public bucket links win;
// the local download routes are only offered for jobs this process ran.
func (h *Handler) statusResponse(job models.Job, local bool) models.StatusResponse {
	resp := models.StatusResponse{
		JobID:      job.ID,
		Title:      job.Title,
		Status:     job.Status,
		Progress:   job.Progress,
		Error:      job.ErrorMessage,
		SceneCount: job.SceneCount,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	if job.Status != models.JobStatusDone {
		return resp
	}

	resp.ArtifactURL = h.outputURL(job.ArtifactStoragePath, local, "/v1/jobs/"+job.ID+"/download")
	resp.PreviewURL = h.outputURL(job.PreviewStoragePath, local, "/v1/jobs/"+job.ID+"/preview")
	return resp
}

func (h *Handler) outputURL(remote *string, local bool, route string) *string {
	if h.cfg.Public != nil && remote != nil {
		u := h.cfg.Public.GetPublicURL(*remote)
		return &u
	}
	if local {
		return &route
	}
	return nil
}

// DownloadArtifact handles GET /v1/jobs/{id}/download
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	h.serveOutput(w, r, h.orchestrator.ArtifactPath, func(job models.Job) *string {
		return job.ArtifactStoragePath
	})
}

// DownloadPreview handles GET /v1/jobs/{id}/preview
func (h *Handler) DownloadPreview(w http.ResponseWriter, r *http.Request) {
	h.serveOutput(w, r, h.orchestrator.PreviewPath, func(job models.Job) *string {
		return job.PreviewStoragePath
	})
}

func (h *Handler) serveOutput(
	w http.ResponseWriter,
	r *http.Request,
	localPath func(jobID string) (string, error),
	remotePath func(job models.Job) *string,
) {
	jobID := chi.URLParam(r, "id")

	path, err := localPath(jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "Job not found")
		return
	case errors.Is(err, jobs.ErrNotReady):
		respondError(w, http.StatusConflict, "Job not ready")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to resolve output")
		return
	}

	// Published outputs can be fetched from storage directly
	if r.URL.Query().Get("redirect") == "1" && h.cfg.Signer != nil {
		if job, err := h.orchestrator.Status(jobID); err == nil {
			if remote := remotePath(job); remote != nil {
				signedURL, err := h.cfg.Signer.GetSignedURL(r.Context(), *remote, h.cfg.SignedURLTTL)
				if err == nil {
					http.Redirect(w, r, signedURL, http.StatusTemporaryRedirect)
					return
				}
				log.Printf("[API] Signed URL failed for job %s, serving local file: %v", jobID, err)
			}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		log.Printf("[API] Output for job %s missing on disk: %v", jobID, err)
		respondError(w, http.StatusNotFound, "Output file missing")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read output")
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// ListHistory handles GET /v1/jobs/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.cfg.History == nil {
		respondError(w, http.StatusNotImplemented, "History disabled")
		return
	}

	limit := db.DefaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = db.ClampLimit(n)
	}

	runs, err := h.cfg.History.ListJobRuns(r.Context(), limit)
	if err != nil {
		log.Printf("[API] Failed to list job history: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}

	respondJSON(w, http.StatusOK, models.ListJobRunsResponse{
		Runs:  runs,
		Limit: limit,
	})
}

// ListVoices handles GET /v1/voices
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.VoicesResponse{
		Providers: h.voices.Providers(),
		Profile:   h.voices.Profile(),
		Default:   h.voices.Baseline(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

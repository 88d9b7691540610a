package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// FFmpegService
//
// Every scene-level media operation of the pipeline: the per-scene visual
// (asset trim/loop, still hold, placeholder card), the audio mux, timeline
// concatenation and the preview derivative. All work is delegated to ffmpeg
// and ffprobe through a CommandRunner.
// ---------------------------------------------------------------------------

const (
	previewFPS      = 24
	audioBitrate    = "192k"
	stderrTailBytes = 600
)

// videoEncodeArgs is the H.264 profile used for every re-encode.
var videoEncodeArgs = []string{
	"-c:v", "libx264",
	"-preset", "fast",
	"-crf", "23",
	"-pix_fmt", "yuv420p",
}

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	runner      CommandRunner
}

func NewFFmpegService(ffmpegPath, ffprobePath string, runner CommandRunner) *FFmpegService {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}

	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
	}
}

// runFFmpeg executes ffmpeg and converts failures into EncodingFailure errors
// carrying the tail of ffmpeg's stderr.
func (s *FFmpegService) runFFmpeg(ctx context.Context, stage string, args ...string) error {
	args = append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)

	result, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		msg := fmt.Sprintf("ffmpeg exited with code %d", result.ExitCode)
		if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
			msg += ": " + tail(stderr, stderrTailBytes)
		}
		return NewStageError(KindEncodingFailure, stage, msg, err)
	}

	return nil
}

// MediaDuration returns the container duration of a media file in seconds.
func (s *FFmpegService) MediaDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	result, err := s.runner.Run(ctx, s.ffprobePath, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration of %s: %w", path, err)
	}

	return durationSec, nil
}

// fitFilter scales into the frame preserving aspect ratio, pads to a centered
// composition and normalizes frame rate and pixel format.
func fitFilter(res Resolution, fps int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=%d,format=yuv420p",
		res.Width, res.Height,
		res.Width, res.Height,
		fps,
	)
}

// ---------------------------------------------------------------------------
// Scene visual
// ---------------------------------------------------------------------------

// VisualRequest describes one scene's silent clip.
type VisualRequest struct {
	AssetPath  string // "" when no asset was selected
	Text       string // Scene text, shown on the placeholder card
	Duration   int    // Target duration in seconds
	Resolution Resolution
	FPS        int
	OutputPath string
}

// RenderSceneVisual produces a silent clip of exactly req.Duration seconds.
// Missing, unclassified or unprobeable assets fall back to a placeholder card
// instead of failing the scene. It returns the kind of source actually used.
func (s *FFmpegService) RenderSceneVisual(ctx context.Context, req VisualRequest) (AssetKind, error) {
	if req.Duration <= 0 {
		return AssetKindNone, NewStageError(KindEncodingFailure, "visual", fmt.Sprintf("invalid scene duration %d", req.Duration), nil)
	}

	kind := ClassifyAsset(req.AssetPath)
	if req.AssetPath != "" && kind == AssetKindNone {
		log.Printf("[FFmpeg] Asset %s has an unrecognized type, using placeholder", req.AssetPath)
	}

	if kind != AssetKindNone {
		if _, err := os.Stat(req.AssetPath); err != nil {
			log.Printf("[FFmpeg] Warning: %v", NewStageError(KindAssetUnreadable, "visual", "asset not readable, using placeholder", err))
			kind = AssetKindNone
		}
	}

	if kind == AssetKindVideo {
		clipDuration, err := s.MediaDuration(ctx, req.AssetPath)
		if err != nil || clipDuration <= 0 {
			log.Printf("[FFmpeg] Warning: %v", NewStageError(KindAssetUnreadable, "visual", fmt.Sprintf("cannot probe clip %s (duration=%.2f), using placeholder", req.AssetPath, clipDuration), err))
			kind = AssetKindNone
		} else {
			return kind, s.renderVideoAsset(ctx, req, clipDuration)
		}
	}

	if kind == AssetKindImage {
		return kind, s.renderStill(ctx, req.AssetPath, req)
	}

	cardPath := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + "_card.png"
	if err := s.RenderPlaceholderCard(ctx, req.Text, req.Resolution, cardPath); err != nil {
		return AssetKindNone, err
	}
	return AssetKindNone, s.renderStill(ctx, cardPath, req)
}

// renderVideoAsset trims a clip to the target duration from its start, looping
// it first when it is shorter than the target.
func (s *FFmpegService) renderVideoAsset(ctx context.Context, req VisualRequest, clipDuration float64) error {
	target := float64(req.Duration)

	var args []string
	if clipDuration < target {
		// -stream_loop N plays the input N+1 times
		loops := int(math.Ceil(target / clipDuration))
		log.Printf("[FFmpeg] Looping %s (%.2fs) %d extra time(s) to cover %ds", req.AssetPath, clipDuration, loops, req.Duration)
		args = append(args, "-stream_loop", strconv.Itoa(loops))
	} else {
		log.Printf("[FFmpeg] Trimming %s (%.2fs) to %ds", req.AssetPath, clipDuration, req.Duration)
	}

	args = append(args,
		"-i", req.AssetPath,
		"-t", strconv.Itoa(req.Duration),
		"-vf", fitFilter(req.Resolution, req.FPS),
		"-an",
	)
	args = append(args, videoEncodeArgs...)
	args = append(args, req.OutputPath)

	return s.runFFmpeg(ctx, "visual", args...)
}

// renderStill holds a single image for the target duration.
func (s *FFmpegService) renderStill(ctx context.Context, imagePath string, req VisualRequest) error {
	log.Printf("[FFmpeg] Holding still %s for %ds at %s", imagePath, req.Duration, req.Resolution)

	args := []string{
		"-loop", "1",
		"-i", imagePath,
		"-t", strconv.Itoa(req.Duration),
		"-vf", fitFilter(req.Resolution, req.FPS),
		"-an",
	}
	args = append(args, videoEncodeArgs...)
	args = append(args, req.OutputPath)

	return s.runFFmpeg(ctx, "visual", args...)
}

// RenderPlaceholderCard renders a single PNG frame with the (truncated) text.
func (s *FFmpegService) RenderPlaceholderCard(ctx context.Context, text string, res Resolution, outputPath string) error {
	scriptPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".ass"
	if err := WriteTitleCardASS(text, res, scriptPath); err != nil {
		return NewStageError(KindEncodingFailure, "placeholder", "cannot write title card", err)
	}

	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s:d=1", cardBackground, res),
		"-vf", fmt.Sprintf("ass='%s'", escapeFFmpegFilterPath(scriptPath)),
		"-frames:v", "1",
		outputPath,
	}

	return s.runFFmpeg(ctx, "placeholder", args...)
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
// FFmpeg filter strings treat colons, backslashes, and single quotes specially.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// ---------------------------------------------------------------------------
// Composer, timeline and preview
// ---------------------------------------------------------------------------

// MuxAudio attaches an audio track to a silent clip as its soundtrack.
// Durations are not reconciled: the container ends with the longer stream.
func (s *FFmpegService) MuxAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	log.Printf("[FFmpeg] Muxing %s onto %s", filepath.Base(audioPath), filepath.Base(videoPath))

	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
	}
	args = append(args, videoEncodeArgs...)
	args = append(args,
		"-c:a", "aac",
		"-b:a", audioBitrate,
		outputPath,
	)

	return s.runFFmpeg(ctx, "compose", args...)
}

// ConcatenateClips joins finished scene clips in order into one re-encoded
// stream. Each input is normalized to res/fps first so clips with differing
// sizes or rates still concatenate.
func (s *FFmpegService) ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string, res Resolution, fps int) error {
	if len(clipPaths) == 0 {
		return NewStageError(KindTimelineEmpty, "assemble", "cannot assemble timeline", ErrTimelineEmpty)
	}

	log.Printf("[FFmpeg] Concatenating %d clip(s) into %s", len(clipPaths), filepath.Base(outputPath))

	var args []string
	var filter strings.Builder
	var pads strings.Builder
	for i, path := range clipPaths {
		args = append(args, "-i", path)
		fmt.Fprintf(&filter, "[%d:v]%s[v%d];", i, fitFilter(res, fps), i)
		fmt.Fprintf(&filter, "[%d:a]aformat=sample_rates=44100:channel_layouts=stereo[a%d];", i, i)
		fmt.Fprintf(&pads, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&filter, "%sconcat=n=%d:v=1:a=1[v][a]", pads.String(), len(clipPaths))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[v]",
		"-map", "[a]",
	)
	args = append(args, videoEncodeArgs...)
	args = append(args,
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-movflags", "+faststart",
		outputPath,
	)

	return s.runFFmpeg(ctx, "assemble", args...)
}

// GeneratePreview writes a shorter, lower-resolution copy of the artifact's
// opening seconds. The preview length is clamped to the artifact's duration.
// The source is never modified. It returns the preview length in seconds.
func (s *FFmpegService) GeneratePreview(ctx context.Context, artifactPath, previewPath string, seconds int, res Resolution) (float64, error) {
	if artifactPath == previewPath {
		return 0, NewStageError(KindEncodingFailure, "preview", "preview path must differ from the artifact", nil)
	}

	length := float64(seconds)
	duration, err := s.MediaDuration(ctx, artifactPath)
	if err != nil {
		return 0, NewStageError(KindEncodingFailure, "preview", "cannot probe artifact", err)
	}
	if duration > 0 && duration < length {
		length = duration
	}

	log.Printf("[FFmpeg] Preview %s: %.2fs at %s", filepath.Base(previewPath), length, res)

	args := []string{
		"-i", artifactPath,
		"-t", strconv.FormatFloat(length, 'f', 3, 64),
		"-vf", fmt.Sprintf("scale=%d:%d,setsar=1", res.Width, res.Height),
		"-r", strconv.Itoa(previewFPS),
	}
	args = append(args, videoEncodeArgs...)
	args = append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		previewPath,
	)

	if err := s.runFFmpeg(ctx, "preview", args...); err != nil {
		return 0, err
	}
	return length, nil
}

// ConvertAudio transcodes an intermediate audio file to MP3. inputArgs are
// placed before -i, e.g. to describe raw PCM.
func (s *FFmpegService) ConvertAudio(ctx context.Context, inputPath, outputPath string, inputArgs ...string) error {
	args := append([]string{}, inputArgs...)
	args = append(args,
		"-i", inputPath,
		"-c:a", "libmp3lame",
		"-q:a", "4",
		outputPath,
	)

	return s.runFFmpeg(ctx, "audio", args...)
}

// Cleanup removes temporary files
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

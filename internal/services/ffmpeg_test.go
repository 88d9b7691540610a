package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestMediaDuration(t *testing.T) {
	runner := newFakeRunner()
	runner.durations["/tmp/a.mp4"] = 7.25
	svc := NewFFmpegService("", "", runner)

	got, err := svc.MediaDuration(context.Background(), "/tmp/a.mp4")
	if err != nil {
		t.Fatalf("MediaDuration: %v", err)
	}
	if got != 7.25 {
		t.Errorf("duration = %v, want 7.25", got)
	}

	if _, err := svc.MediaDuration(context.Background(), "/tmp/missing.mp4"); err == nil {
		t.Error("expected error for unprobeable file")
	}
}

func TestRenderSceneVisualVideo(t *testing.T) {
	dir := t.TempDir()
	clip := touch(t, filepath.Join(dir, "clip.mp4"))
	res := Resolution{Width: 1280, Height: 720}

	tests := []struct {
		name      string
		clipDur   float64
		target    int
		wantLoops string
	}{
		{name: "shorter clip is looped", clipDur: 3, target: 7, wantLoops: "3"},
		{name: "fractional clip is looped", clipDur: 1.5, target: 4, wantLoops: "3"},
		{name: "longer clip is trimmed", clipDur: 12, target: 4, wantLoops: ""},
		{name: "equal clip is trimmed", clipDur: 4, target: 4, wantLoops: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.durations[clip] = tt.clipDur
			svc := NewFFmpegService("", "", runner)

			out := filepath.Join(dir, "scene_0_video.mp4")
			kind, err := svc.RenderSceneVisual(context.Background(), VisualRequest{
				AssetPath:  clip,
				Text:       "hello",
				Duration:   tt.target,
				Resolution: res,
				FPS:        24,
				OutputPath: out,
			})
			if err != nil {
				t.Fatalf("RenderSceneVisual: %v", err)
			}
			if kind != AssetKindVideo {
				t.Errorf("kind = %s, want video", kind)
			}

			args := runner.lastCall()
			if got := argAfter(args, "-stream_loop"); got != tt.wantLoops {
				t.Errorf("-stream_loop = %q, want %q", got, tt.wantLoops)
			}
			if got := argAfter(args, "-t"); got != strconv.Itoa(tt.target) {
				t.Errorf("-t = %q, want %d", got, tt.target)
			}
			if !hasArg(args, "-an") {
				t.Error("visual clip must be silent")
			}
			if vf := argAfter(args, "-vf"); !strings.Contains(vf, "pad=1280:720") || !strings.Contains(vf, "fps=24") {
				t.Errorf("-vf = %q", vf)
			}
			if args[len(args)-1] != out {
				t.Errorf("output = %q, want %q", args[len(args)-1], out)
			}
		})
	}
}

func TestRenderSceneVisualImage(t *testing.T) {
	dir := t.TempDir()
	img := touch(t, filepath.Join(dir, "still.JPG"))
	runner := newFakeRunner()
	svc := NewFFmpegService("", "", runner)

	kind, err := svc.RenderSceneVisual(context.Background(), VisualRequest{
		AssetPath:  img,
		Duration:   5,
		Resolution: Resolution{Width: 640, Height: 360},
		FPS:        30,
		OutputPath: filepath.Join(dir, "out.mp4"),
	})
	if err != nil {
		t.Fatalf("RenderSceneVisual: %v", err)
	}
	if kind != AssetKindImage {
		t.Errorf("kind = %s, want image", kind)
	}

	args := runner.lastCall()
	if argAfter(args, "-loop") != "1" || argAfter(args, "-i") != img || argAfter(args, "-t") != "5" {
		t.Errorf("unexpected still args: %v", args)
	}
	if len(runner.callsTo("ffprobe")) != 0 {
		t.Error("images should not be probed")
	}
}

func TestRenderSceneVisualPlaceholder(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		asset string
	}{
		{name: "no asset", asset: ""},
		{name: "missing file", asset: filepath.Join(dir, "gone.mp4")},
		{name: "unknown extension", asset: touch(t, filepath.Join(dir, "notes.txt"))},
		{name: "unprobeable clip", asset: touch(t, filepath.Join(dir, "broken.mov"))},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			svc := NewFFmpegService("", "", runner)
			out := filepath.Join(dir, "scene_"+strconv.Itoa(i)+"_video.mp4")

			kind, err := svc.RenderSceneVisual(context.Background(), VisualRequest{
				AssetPath:  tt.asset,
				Text:       "The world was quiet.",
				Duration:   4,
				Resolution: Resolution{Width: 1920, Height: 1080},
				FPS:        24,
				OutputPath: out,
			})
			if err != nil {
				t.Fatalf("RenderSceneVisual: %v", err)
			}
			if kind != AssetKindNone {
				t.Errorf("kind = %s, want none", kind)
			}

			card := strings.TrimSuffix(out, ".mp4") + "_card.png"
			calls := runner.callsTo("ffmpeg")
			if len(calls) != 2 {
				t.Fatalf("ffmpeg calls = %d, want 2", len(calls))
			}
			if calls[0][len(calls[0])-1] != card {
				t.Errorf("card output = %q, want %q", calls[0][len(calls[0])-1], card)
			}
			if !strings.HasPrefix(argAfter(calls[0], "-i"), "color=c=0x14141E:s=1920x1080") {
				t.Errorf("card source = %q", argAfter(calls[0], "-i"))
			}
			if argAfter(calls[1], "-i") != card || argAfter(calls[1], "-t") != "4" {
				t.Errorf("card not held for the scene: %v", calls[1])
			}

			ass, err := os.ReadFile(strings.TrimSuffix(card, ".png") + ".ass")
			if err != nil {
				t.Fatalf("read card script: %v", err)
			}
			if !strings.Contains(string(ass), "The world was quiet.") {
				t.Error("card script missing scene text")
			}
		})
	}
}

func TestRenderSceneVisualRejectsZeroDuration(t *testing.T) {
	svc := NewFFmpegService("", "", newFakeRunner())
	_, err := svc.RenderSceneVisual(context.Background(), VisualRequest{OutputPath: "x.mp4"})
	if KindOf(err) != KindEncodingFailure {
		t.Errorf("kind = %q, want encoding_failure", KindOf(err))
	}
}

func TestMuxAudioKeepsBothStreams(t *testing.T) {
	runner := newFakeRunner()
	svc := NewFFmpegService("", "", runner)

	if err := svc.MuxAudio(context.Background(), "v.mp4", "a.mp3", "out.mp4"); err != nil {
		t.Fatalf("MuxAudio: %v", err)
	}

	args := runner.lastCall()
	if hasArg(args, "-shortest") {
		t.Error("mux must not reconcile durations")
	}
	if !hasArg(args, "0:v:0") || !hasArg(args, "1:a:0") || argAfter(args, "-c:a") != "aac" {
		t.Errorf("unexpected mux args: %v", args)
	}
}

func TestConcatenateClips(t *testing.T) {
	runner := newFakeRunner()
	svc := NewFFmpegService("", "", runner)
	res := Resolution{Width: 1280, Height: 720}

	clips := []string{"s0.mp4", "s1.mp4", "s2.mp4"}
	if err := svc.ConcatenateClips(context.Background(), clips, "final.mp4", res, 24); err != nil {
		t.Fatalf("ConcatenateClips: %v", err)
	}

	args := runner.lastCall()
	var inputs []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	if strings.Join(inputs, ",") != strings.Join(clips, ",") {
		t.Errorf("inputs = %v, want %v in order", inputs, clips)
	}

	filter := argAfter(args, "-filter_complex")
	if !strings.Contains(filter, "[v0][a0][v1][a1][v2][a2]concat=n=3:v=1:a=1") {
		t.Errorf("filter = %q", filter)
	}
	if strings.Count(filter, "pad=1280:720") != 3 {
		t.Errorf("every input should be normalized: %q", filter)
	}
}

func TestConcatenateClipsEmpty(t *testing.T) {
	runner := newFakeRunner()
	svc := NewFFmpegService("", "", runner)

	err := svc.ConcatenateClips(context.Background(), nil, "final.mp4", Resolution{Width: 2, Height: 2}, 24)
	if !errors.Is(err, ErrTimelineEmpty) {
		t.Fatalf("err = %v, want ErrTimelineEmpty", err)
	}
	if KindOf(err) != KindTimelineEmpty {
		t.Errorf("kind = %q, want timeline_empty", KindOf(err))
	}
	if len(runner.calls) != 0 {
		t.Error("ffmpeg must not run for an empty timeline")
	}
}

func TestGeneratePreviewClampsToArtifact(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		want     float64
		wantArg  string
	}{
		{name: "short artifact", duration: 6, want: 6, wantArg: "6.000"},
		{name: "long artifact", duration: 42.5, want: 15, wantArg: "15.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.durations["final.mp4"] = tt.duration
			svc := NewFFmpegService("", "", runner)

			got, err := svc.GeneratePreview(context.Background(), "final.mp4", "preview.mp4", 15, Resolution{Width: 640, Height: 360})
			if err != nil {
				t.Fatalf("GeneratePreview: %v", err)
			}
			if got != tt.want {
				t.Errorf("length = %v, want %v", got, tt.want)
			}

			args := runner.lastCall()
			if argAfter(args, "-t") != tt.wantArg {
				t.Errorf("-t = %q, want %q", argAfter(args, "-t"), tt.wantArg)
			}
			if !strings.HasPrefix(argAfter(args, "-vf"), "scale=640:360") {
				t.Errorf("-vf = %q", argAfter(args, "-vf"))
			}
			if args[len(args)-1] != "preview.mp4" {
				t.Errorf("preview written to %q", args[len(args)-1])
			}
		})
	}
}

func TestGeneratePreviewRejectsInPlace(t *testing.T) {
	svc := NewFFmpegService("", "", newFakeRunner())
	if _, err := svc.GeneratePreview(context.Background(), "a.mp4", "a.mp4", 15, Resolution{Width: 640, Height: 360}); err == nil {
		t.Error("expected error when preview would overwrite the artifact")
	}
}

func TestEncodingFailureCarriesStderr(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn = "out.mp4"
	svc := NewFFmpegService("", "", runner)

	err := svc.MuxAudio(context.Background(), "v.mp4", "a.mp3", "out.mp4")
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %v, want *StageError", err)
	}
	if stageErr.Kind != KindEncodingFailure || stageErr.Stage != "compose" {
		t.Errorf("got kind=%s stage=%s", stageErr.Kind, stageErr.Stage)
	}
	if !strings.Contains(err.Error(), "simulated failure") {
		t.Errorf("error should include stderr tail: %v", err)
	}
}

func TestEscapeFFmpegFilterPath(t *testing.T) {
	got := escapeFFmpegFilterPath(`C:\tmp\it's.ass`)
	want := `C\:\\tmp\\it'\''s.ass`
	if got != want {
		t.Errorf("escape = %q, want %q", got, want)
	}
}

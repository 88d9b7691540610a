package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func newTestGeminiService(t *testing.T, handler http.HandlerFunc, runner *fakeRunner) *GeminiService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewGeminiServiceWithConfig(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: server.URL},
	}, NewFFmpegService("ffmpeg", "ffprobe", runner))
	if err != nil {
		t.Fatalf("NewGeminiServiceWithConfig: %v", err)
	}
	return svc
}

func TestGeminiService(t *testing.T) {
	var path, body string
	first := base64.StdEncoding.EncodeToString([]byte("pcm-"))
	second := base64.StdEncoding.EncodeToString([]byte("bytes"))

	runner := newFakeRunner()
	svc := newTestGeminiService(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[
			{"inlineData":{"mimeType":"audio/L16;rate=24000","data":%q}},
			{"inlineData":{"mimeType":"audio/L16;rate=24000","data":%q}}]}}]}`, first, second)
	}, runner)

	out := filepath.Join(t.TempDir(), "scene_0_audio.mp3")
	if err := svc.Synthesize(context.Background(), "Puck", "Hello there", out); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if !strings.Contains(path, geminiTTSModel+":generateContent") {
		t.Errorf("path = %q", path)
	}
	if !strings.Contains(body, `"Puck"`) || !strings.Contains(body, "AUDIO") || !strings.Contains(body, "Hello there") {
		t.Errorf("request body = %s", body)
	}

	calls := runner.callsTo("ffmpeg")
	if len(calls) != 1 {
		t.Fatalf("ffmpeg calls = %d, want 1", len(calls))
	}
	args := strings.Join(calls[0], " ")
	if !strings.Contains(args, "-f s16le -ar 24000 -ac 1 -i ") {
		t.Errorf("ffmpeg args = %s", args)
	}
	if !hasArg(calls[0], out) {
		t.Errorf("ffmpeg does not write %s: %s", out, args)
	}

	pcm := strings.TrimSuffix(out, ".mp3") + ".pcm"
	if _, err := os.Stat(pcm); !os.IsNotExist(err) {
		t.Errorf("intermediate pcm left behind: %v", err)
	}
}

func TestGeminiServiceDefaultVoice(t *testing.T) {
	var body string
	data := base64.StdEncoding.EncodeToString([]byte("pcm"))
	svc := newTestGeminiService(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"data":%q}}]}}]}`, data)
	}, newFakeRunner())

	if err := svc.Synthesize(context.Background(), "", "Hi", filepath.Join(t.TempDir(), "a.mp3")); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(body, `"`+geminiDefaultVoice+`"`) {
		t.Errorf("default voice missing from request: %s", body)
	}
}

func TestGeminiServiceNoAudio(t *testing.T) {
	runner := newFakeRunner()
	svc := newTestGeminiService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}, runner)

	err := svc.Synthesize(context.Background(), "Kore", "Hi", filepath.Join(t.TempDir(), "a.mp3"))
	if err == nil || !strings.Contains(err.Error(), "returned no audio") {
		t.Fatalf("err = %v, want no audio error", err)
	}
	if len(runner.callsTo("ffmpeg")) != 0 {
		t.Error("ffmpeg should not run without audio")
	}
}

func TestGeminiServiceRequestError(t *testing.T) {
	svc := newTestGeminiService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":400,"message":"bad voice","status":"INVALID_ARGUMENT"}}`, http.StatusBadRequest)
	}, newFakeRunner())

	if err := svc.Synthesize(context.Background(), "Kore", "Hi", filepath.Join(t.TempDir(), "a.mp3")); err == nil {
		t.Fatal("expected error for failed request")
	}
}

func TestExtractInlineAudio(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ""},
		{
			"text and audio parts",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "ignored"},
					{InlineData: &genai.Blob{Data: []byte("ab")}},
					nil,
					{InlineData: &genai.Blob{Data: []byte("cd")}},
				}},
			}}},
			"abcd",
		},
	}

	for _, tt := range tests {
		if got := string(extractInlineAudio(tt.resp)); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

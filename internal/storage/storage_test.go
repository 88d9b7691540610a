package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStorage(url string) *Storage {
	s := New(url, "service-key", "scriptreel")
	s.retryBase = time.Millisecond
	return s
}

func TestUploadRetriesTransientStatus(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	var bodies []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))

		if r.Header.Get("Authorization") != "Bearer service-key" || r.Header.Get("x-upsert") != "true" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	local := filepath.Join(t.TempDir(), "movie.mp4")
	os.WriteFile(local, []byte("video-bytes"), 0644)

	s := newTestStorage(server.URL)
	if err := s.UploadFile(context.Background(), "job/movie.mp4", local, "video/mp4"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	for i, b := range bodies {
		if b != "video-bytes" {
			t.Errorf("attempt %d sent %q", i+1, b)
		}
	}
}

func TestUploadStopsOnPermanentStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
	}))
	defer server.Close()

	s := newTestStorage(server.URL)
	err := s.Upload(context.Background(), "job/movie.mp4", []byte("x"), "video/mp4")
	if err == nil || !strings.Contains(err.Error(), "413") {
		t.Fatalf("err = %v, want status 413", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestUploadMissingFile(t *testing.T) {
	s := newTestStorage("http://127.0.0.1:0")
	if err := s.UploadFile(context.Background(), "a", filepath.Join(t.TempDir(), "nope.mp4"), "video/mp4"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPublishJob(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	artifact := filepath.Join(dir, "movie_j1.mp4")
	preview := filepath.Join(dir, "movie_j1_preview.mp4")
	os.WriteFile(artifact, []byte("a"), 0644)
	os.WriteFile(preview, []byte("p"), 0644)

	s := newTestStorage(server.URL)
	a, p, err := s.PublishJob(context.Background(), "j1", artifact, preview)
	if err != nil {
		t.Fatalf("PublishJob: %v", err)
	}
	if a != "j1/movie_j1.mp4" || p != "j1/movie_j1_preview.mp4" {
		t.Errorf("object paths = %q, %q", a, p)
	}

	want := []string{
		"/storage/v1/object/scriptreel/j1/movie_j1.mp4",
		"/storage/v1/object/scriptreel/j1/movie_j1_preview.mp4",
	}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestGetSignedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/sign/scriptreel/j1/movie.mp4" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"signedURL":"/object/sign/scriptreel/j1/movie.mp4?token=abc"}`))
	}))
	defer server.Close()

	s := newTestStorage(server.URL)
	got, err := s.GetSignedURL(context.Background(), "j1/movie.mp4", SignedURLTTL)
	if err != nil {
		t.Fatalf("GetSignedURL: %v", err)
	}
	if want := server.URL + "/storage/v1/object/sign/scriptreel/j1/movie.mp4?token=abc"; got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	s := New("http://x", "k", "b")
	for attempt := 1; attempt <= 10; attempt++ {
		if d := s.retryDelay(attempt); d > maxRetryDelay+maxRetryDelay/4 {
			t.Errorf("attempt %d delay %v exceeds cap", attempt, d)
		}
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/scriptreel/internal/api"
	"github.com/bobarin/scriptreel/internal/config"
	"github.com/bobarin/scriptreel/internal/db"
	"github.com/bobarin/scriptreel/internal/jobs"
	"github.com/bobarin/scriptreel/internal/queue"
	"github.com/bobarin/scriptreel/internal/services"
	"github.com/bobarin/scriptreel/internal/storage"
	"github.com/bobarin/scriptreel/internal/worker"
)

func main() {
	log.Println("Starting Scriptreel API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	for _, dir := range []string{cfg.OutputDir, cfg.WorkDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	runner := services.ExecRunner{}
	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath, runner)

	voices := registerVoices(cfg, runner, ffmpegSvc)
	voices.SetProfile(cfg.VoiceProfile)
	log.Printf("Voice providers: %v (default %s)", voices.Providers(), voices.Baseline())

	store := jobs.NewStore()
	handlerCfg := api.HandlerConfig{
		MaxUploadMB:  cfg.MaxUploadMB,
		SignedURLTTL: storage.SignedURLTTL,
	}

	// Redis status mirror (optional)
	var mirror *queue.StatusMirror
	if cfg.RedisURL != "" {
		mirror, err = queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		store.AddObserver(mirror)
		handlerCfg.Mirror = mirror
		log.Println("Redis status mirror enabled")
	}

	// Postgres job history (optional)
	var database *db.DB
	if cfg.DatabaseURL != "" {
		database, err = db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = database.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}
		store.AddObserver(db.NewHistoryRecorder(database))
		handlerCfg.History = database
		log.Println("Job history enabled")
	}

	// Supabase publishing (optional)
	var publisher worker.Publisher
	if cfg.SupabaseURL != "" {
		stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		publisher = stor
		handlerCfg.Signer = stor
		if cfg.SupabasePublicBucket {
			handlerCfg.Public = stor
		}
		log.Printf("Artifact publishing enabled (bucket: %s)", cfg.SupabaseStorageBucket)
	}

	orchestrator := worker.New(store, voices, ffmpegSvc, publisher, worker.Options{
		WorkDir:           cfg.WorkDir,
		OutputDir:         cfg.OutputDir,
		DefaultResolution: cfg.DefaultResolution,
		DefaultFPS:        cfg.DefaultFPS,
		PreviewSeconds:    cfg.PreviewSeconds,
		PreviewResolution: cfg.PreviewResolution,
		SceneConcurrency:  cfg.SceneConcurrency,
		KeepScratch:       cfg.KeepScratch,
	})

	handler := api.NewHandler(orchestrator, voices, handlerCfg)
	router := api.NewRouter(handler, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// SIGHUP reloads the voice profile; SIGINT/SIGTERM shut down
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range sigs {
		if sig != syscall.SIGHUP {
			break
		}
		profile, err := cfg.LoadVoiceProfile()
		if err != nil {
			log.Printf("Voice profile reload failed, keeping current mapping: %v", err)
			continue
		}
		voices.SetProfile(profile)
		log.Printf("Voice profile reloaded (%d speakers)", len(profile))
	}

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let in-flight jobs reach a terminal state before closing observers
	log.Println("Waiting for running jobs...")
	orchestrator.Wait()

	if mirror != nil {
		if err := mirror.Close(); err != nil {
			log.Printf("Failed to close Redis mirror: %v", err)
		}
	}
	if database != nil {
		database.Close()
	}

	log.Println("Server exited")
}

// registerVoices registers the baseline synthesizer and every provider
// whose credentials are configured.
func registerVoices(cfg *config.Config, runner services.CommandRunner, ffmpegSvc *services.FFmpegService) *services.VoiceRegistry {
	voices := services.NewVoiceRegistry(cfg.TTSLanguage)

	local := services.NewLocalTTSService(cfg.EspeakPath, cfg.TTSLanguage, runner, ffmpegSvc)
	voices.Register(services.FamilyLocal, local)
	voices.Register(services.FamilyGTTS, local)

	if cfg.OpenAIKey != "" {
		voices.Register(services.FamilyOpenAI, services.NewOpenAIService(cfg.OpenAIKey))
	}

	if cfg.GeminiKey != "" {
		geminiSvc, err := services.NewGeminiService(context.Background(), cfg.GeminiKey, ffmpegSvc)
		if err != nil {
			log.Printf("Gemini voices disabled: %v", err)
		} else {
			voices.Register(services.FamilyGemini, geminiSvc)
		}
	}

	if cfg.ElevenLabsKey != "" {
		voices.Register(services.FamilyElevenLabs, services.NewElevenLabsService(cfg.ElevenLabsKey))
	}

	if cfg.CartesiaKey != "" {
		voices.Register(services.FamilyCartesia, services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.TTSLanguage))
	}

	return voices
}

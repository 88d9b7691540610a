package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bobarin/scriptreel/internal/services"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	APIPort            string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	MaxUploadMB        int

	// Filesystem
	OutputDir   string
	WorkDir     string
	KeepScratch bool // Leave <WorkDir>/<jobID> after the job ends

	// Rendering
	DefaultResolution services.Resolution
	DefaultFPS        int
	PreviewSeconds    int
	PreviewResolution services.Resolution
	SceneConcurrency  int // Parallel audio syntheses per job

	// Executors
	FFmpegPath  string
	FFprobePath string
	EspeakPath  string

	// Voices
	TTSLanguage      string
	VoiceProfile     map[string]string // Speaker -> provider id, file entries win over inline ones
	VoiceProfileFile string
	EnvFile          string // Dotenv file read at startup and again on reload

	// VOICE_PROFILE came from the real environment, not EnvFile
	voiceProfilePinned bool

	// OpenAI (openai_<voice>)
	OpenAIKey string

	// Gemini (gemini_<voice>)
	GeminiKey string

	// ElevenLabs (elevenlabs_<voiceID>)
	ElevenLabsKey string

	// Cartesia (cartesia_<voiceID>)
	CartesiaKey string
	CartesiaURL string

	// Redis status mirror (optional)
	RedisURL string

	// Postgres job history (optional)
	DatabaseURL string

	// Supabase artifact publishing (optional)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	SupabasePublicBucket  bool // Status responses link straight to the bucket
}

func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	pinned := os.Getenv("VOICE_PROFILE") != ""

	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load(envFile)

	cfg := &Config{
		EnvFile:               envFile,
		voiceProfilePinned:    pinned,
		APIPort:               getEnv("API_PORT", "8080"),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		MaxUploadMB:           getEnvInt("MAX_UPLOAD_MB", 512),
		OutputDir:             getEnv("OUTPUT_DIR", "outputs"),
		WorkDir:               getEnv("WORK_DIR", "tmp"),
		KeepScratch:           getEnvBool("KEEP_SCRATCH", true),
		DefaultFPS:            getEnvInt("DEFAULT_FPS", 24),
		PreviewSeconds:        getEnvInt("PREVIEW_SECONDS", 15),
		SceneConcurrency:      getEnvInt("SCENE_CONCURRENCY", 1),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		EspeakPath:            getEnv("ESPEAK_PATH", "espeak-ng"),
		TTSLanguage:           getEnv("TTS_LANGUAGE", "en"),
		VoiceProfileFile:      getEnv("VOICE_PROFILE_FILE", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		CartesiaKey:           getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:           getEnv("CARTESIA_API_URL", services.DefaultCartesiaURL),
		RedisURL:              getEnv("REDIS_URL", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "scriptreel"),
		SupabasePublicBucket:  getEnvBool("SUPABASE_PUBLIC_BUCKET", false),
	}

	var err error
	if cfg.DefaultResolution, err = services.ParseResolution(getEnv("DEFAULT_RESOLUTION", "1920x1080")); err != nil {
		return nil, fmt.Errorf("DEFAULT_RESOLUTION: %w", err)
	}
	if cfg.PreviewResolution, err = services.ParseResolution(getEnv("PREVIEW_RESOLUTION", "640x360")); err != nil {
		return nil, fmt.Errorf("PREVIEW_RESOLUTION: %w", err)
	}

	if cfg.DefaultFPS <= 0 {
		return nil, fmt.Errorf("DEFAULT_FPS must be positive, got %d", cfg.DefaultFPS)
	}
	if cfg.PreviewSeconds <= 0 {
		return nil, fmt.Errorf("PREVIEW_SECONDS must be positive, got %d", cfg.PreviewSeconds)
	}
	if cfg.SceneConcurrency <= 0 {
		return nil, fmt.Errorf("SCENE_CONCURRENCY must be positive, got %d", cfg.SceneConcurrency)
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMB)
	}

	// Supabase needs both halves or neither
	if (cfg.SupabaseURL == "") != (cfg.SupabaseServiceKey == "") {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}

	if cfg.VoiceProfile, err = cfg.LoadVoiceProfile(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadVoiceProfile merges VOICE_PROFILE with VOICE_PROFILE_FILE. It is
// re-run on SIGHUP. The process environment cannot change after start, so
// unless VOICE_PROFILE was exported by the caller it is re-read from
// EnvFile, and VOICE_PROFILE_FILE is re-read too.
func (c *Config) LoadVoiceProfile() (map[string]string, error) {
	profile, err := services.ParseVoiceProfile(c.inlineVoiceProfile())
	if err != nil {
		return nil, fmt.Errorf("VOICE_PROFILE: %w", err)
	}

	if c.VoiceProfileFile == "" {
		return profile, nil
	}

	fromFile, err := ReadVoiceProfileFile(c.VoiceProfileFile)
	if err != nil {
		return nil, fmt.Errorf("VOICE_PROFILE_FILE: %w", err)
	}
	for speaker, id := range fromFile {
		profile[speaker] = id
	}
	return profile, nil
}

func (c *Config) inlineVoiceProfile() string {
	fallback := defaultVoiceProfile(c.TTSLanguage)
	if c.voiceProfilePinned || c.EnvFile == "" {
		return getEnv("VOICE_PROFILE", fallback)
	}

	vars, err := godotenv.Read(c.EnvFile)
	if err != nil {
		return getEnv("VOICE_PROFILE", fallback)
	}
	if v := vars["VOICE_PROFILE"]; v != "" {
		return v
	}
	return fallback
}

// voiceProfileFile is the on-disk layout:
//
//	voices:
//	  NARRATOR: local_en
//	  ALICE: elevenlabs_21m00Tcm4TlvDq8ikWAM
type voiceProfileFile struct {
	Voices map[string]string `yaml:"voices"`
}

// ReadVoiceProfileFile parses a YAML voice profile. Speaker keys are
// upper-cased; blank entries are rejected.
func ReadVoiceProfileFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file voiceProfileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	profile := make(map[string]string, len(file.Voices))
	for speaker, id := range file.Voices {
		speaker = strings.ToUpper(strings.TrimSpace(speaker))
		id = strings.TrimSpace(id)
		if speaker == "" || id == "" {
			return nil, fmt.Errorf("invalid entry %q: %q in %s", speaker, id, path)
		}
		profile[speaker] = id
	}
	return profile, nil
}

func defaultVoiceProfile(language string) string {
	return "NARRATOR=" + services.FamilyLocal + "_" + language
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

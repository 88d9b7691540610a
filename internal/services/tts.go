package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Voice providers and registry
//
// A provider identifier has the form "<family>_<voice>", e.g. "local_en" or
// "openai_alloy". The family selects a registered VoiceProvider, the voice is
// passed through to it. Speakers map to identifiers through the voice profile;
// anything unmapped or unregistered resolves to the baseline local provider,
// which needs no credentials.
// ---------------------------------------------------------------------------

const (
	FamilyLocal      = "local"
	FamilyGTTS       = "gtts" // alias of local
	FamilyOpenAI     = "openai"
	FamilyGemini     = "gemini"
	FamilyElevenLabs = "elevenlabs"
	FamilyCartesia   = "cartesia"
)

// VoiceProvider turns text into a playable MP3 file at outputPath.
type VoiceProvider interface {
	Synthesize(ctx context.Context, voice, text, outputPath string) error
}

// VoiceProviderFunc adapts a function to VoiceProvider.
type VoiceProviderFunc func(ctx context.Context, voice, text, outputPath string) error

func (f VoiceProviderFunc) Synthesize(ctx context.Context, voice, text, outputPath string) error {
	return f(ctx, voice, text, outputPath)
}

// VoiceRegistry resolves speakers to providers.
type VoiceRegistry struct {
	mu        sync.RWMutex
	providers map[string]VoiceProvider
	profile   map[string]string
	baseline  string
}

// NewVoiceRegistry creates a registry whose baseline identifier is
// "local_<language>". The local provider must be registered separately.
func NewVoiceRegistry(language string) *VoiceRegistry {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "en"
	}

	return &VoiceRegistry{
		providers: make(map[string]VoiceProvider),
		profile:   make(map[string]string),
		baseline:  FamilyLocal + "_" + language,
	}
}

// Register binds a family name to a provider, replacing any previous binding.
func (r *VoiceRegistry) Register(family string, provider VoiceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(family)] = provider
}

// SetProfile atomically replaces the speaker mapping. Speaker keys are
// upper-cased to match parsed scenes.
func (r *VoiceRegistry) SetProfile(profile map[string]string) {
	next := make(map[string]string, len(profile))
	for speaker, id := range profile {
		speaker = strings.ToUpper(strings.TrimSpace(speaker))
		id = strings.TrimSpace(id)
		if speaker == "" || id == "" {
			continue
		}
		next[speaker] = id
	}

	r.mu.Lock()
	r.profile = next
	r.mu.Unlock()

	log.Printf("[TTS] Voice profile set (%d speaker(s))", len(next))
}

// Profile returns a copy of the current speaker mapping.
func (r *VoiceRegistry) Profile() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.profile))
	for k, v := range r.profile {
		out[k] = v
	}
	return out
}

// Providers lists registered family names in sorted order.
func (r *VoiceRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Baseline returns the default provider identifier.
func (r *VoiceRegistry) Baseline() string {
	return r.baseline
}

// SplitProviderID splits "<family>_<voice>". An identifier without an
// underscore is a bare family with an empty voice.
func SplitProviderID(id string) (family, voice string) {
	family, voice, _ = strings.Cut(strings.TrimSpace(id), "_")
	return strings.ToLower(family), voice
}

// Resolve returns the provider identifier for speaker together with the
// provider itself. Unknown speakers and unregistered families resolve to the
// baseline.
func (r *VoiceRegistry) Resolve(speaker string) (string, VoiceProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.profile[strings.ToUpper(strings.TrimSpace(speaker))]
	if !ok {
		id = r.baseline
	}

	family, _ := SplitProviderID(id)
	if provider, ok := r.providers[family]; ok {
		return id, provider, nil
	}

	if id != r.baseline {
		log.Printf("[TTS] Warning: provider %q for speaker %s is not registered, using %s", id, speaker, r.baseline)
		id = r.baseline
		family, _ = SplitProviderID(id)
		if provider, ok := r.providers[family]; ok {
			return id, provider, nil
		}
	}

	return "", nil, fmt.Errorf("no provider registered for %q", id)
}

// Synthesize writes speaker's reading of text to outputPath and returns the
// path. Any provider failure, including a missing or empty output file, is
// reported as a SynthesisFailure.
func (r *VoiceRegistry) Synthesize(ctx context.Context, speaker, text, outputPath string) (string, error) {
	id, provider, err := r.Resolve(speaker)
	if err != nil {
		return "", NewStageError(KindSynthesisFailure, "audio", "cannot resolve voice for "+speaker, err)
	}

	_, voice := SplitProviderID(id)
	log.Printf("[TTS] %s -> %s (%d chars) -> %s", speaker, id, len(text), outputPath)

	if err := provider.Synthesize(ctx, voice, text, outputPath); err != nil {
		return "", NewStageError(KindSynthesisFailure, "audio", fmt.Sprintf("provider %s failed", id), err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", NewStageError(KindSynthesisFailure, "audio", fmt.Sprintf("provider %s wrote no audio", id), err)
	}
	if info.Size() == 0 {
		return "", NewStageError(KindSynthesisFailure, "audio", fmt.Sprintf("provider %s wrote empty audio", id), nil)
	}

	return outputPath, nil
}

// ParseVoiceProfile parses "SPEAKER=provider" pairs separated by commas.
func ParseVoiceProfile(s string) (map[string]string, error) {
	profile := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		speaker, id, ok := strings.Cut(pair, "=")
		speaker = strings.TrimSpace(speaker)
		id = strings.TrimSpace(id)
		if !ok || speaker == "" || id == "" {
			return nil, fmt.Errorf("invalid voice profile entry %q: want SPEAKER=provider", pair)
		}
		profile[strings.ToUpper(speaker)] = id
	}
	return profile, nil
}

// writeAudioFile persists provider output.
func writeAudioFile(outputPath string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("provider returned empty audio")
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}

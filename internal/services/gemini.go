package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Text-to-Speech
// The model answers with raw PCM (s16le, 24kHz, mono) which ffmpeg converts
// to MP3. Voice names are Gemini prebuilt voices (Kore, Puck, Charon, ...).
// ---------------------------------------------------------------------------

const (
	geminiTTSModel     = "gemini-2.5-flash-preview-tts"
	geminiDefaultVoice = "Kore"
	geminiSampleRate   = "24000"
)

type GeminiService struct {
	client *genai.Client
	model  string
	ffmpeg *FFmpegService
}

var _ VoiceProvider = (*GeminiService)(nil)

func NewGeminiService(ctx context.Context, apiKey string, ffmpeg *FFmpegService) (*GeminiService, error) {
	return NewGeminiServiceWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, ffmpeg)
}

// NewGeminiServiceWithConfig allows a custom endpoint or HTTP client.
func NewGeminiServiceWithConfig(ctx context.Context, cfg *genai.ClientConfig, ffmpeg *FFmpegService) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiService{
		client: client,
		model:  geminiTTSModel,
		ffmpeg: ffmpeg,
	}, nil
}

// Synthesize implements VoiceProvider.
func (s *GeminiService) Synthesize(ctx context.Context, voice, text, outputPath string) error {
	if voice == "" {
		voice = geminiDefaultVoice
	}

	log.Printf("[Gemini] Generating speech (voice=%s, model=%s, textLen=%d)", voice, s.model, len(text))

	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	)
	if err != nil {
		return fmt.Errorf("gemini speech request failed: %w", err)
	}

	pcm := extractInlineAudio(resp)
	if len(pcm) == 0 {
		return fmt.Errorf("gemini returned no audio")
	}

	pcmPath := strings.TrimSuffix(outputPath, ".mp3") + ".pcm"
	defer s.ffmpeg.Cleanup(pcmPath)
	if err := os.WriteFile(pcmPath, pcm, 0644); err != nil {
		return fmt.Errorf("failed to write gemini pcm: %w", err)
	}

	if err := s.ffmpeg.ConvertAudio(ctx, pcmPath, outputPath,
		"-f", "s16le", "-ar", geminiSampleRate, "-ac", "1"); err != nil {
		return err
	}

	log.Printf("[Gemini] Speech generated (%d pcm bytes)", len(pcm))
	return nil
}

// extractInlineAudio concatenates all inline data parts of the first candidate.
func extractInlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}

	var data []byte
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil {
			data = append(data, part.InlineData.Data...)
		}
	}
	return data
}

package services

import (
	"context"
	"fmt"
	"io"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// OpenAI Text-to-Speech
// Registered as the "openai" family; the voice part of the identifier is an
// OpenAI voice name (alloy, onyx, nova, ...).
// ---------------------------------------------------------------------------

const openAIDefaultVoice = openai.VoiceAlloy

type OpenAIService struct {
	client *openai.Client
	model  openai.SpeechModel
}

var _ VoiceProvider = (*OpenAIService)(nil)

func NewOpenAIService(apiKey string) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey))
}

// NewOpenAIServiceWithConfig allows a custom base URL or HTTP client.
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.TTSModel1,
	}
}

// Synthesize implements VoiceProvider.
func (s *OpenAIService) Synthesize(ctx context.Context, voice, text, outputPath string) error {
	speechVoice := openai.SpeechVoice(voice)
	if voice == "" {
		speechVoice = openAIDefaultVoice
	}

	log.Printf("[OpenAI] Generating speech (voice=%s, model=%s, textLen=%d)", speechVoice, s.model, len(text))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          speechVoice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return fmt.Errorf("failed to read openai audio response: %w", err)
	}

	if err := writeAudioFile(outputPath, audioData); err != nil {
		return err
	}

	log.Printf("[OpenAI] Speech generated (%d bytes)", len(audioData))
	return nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

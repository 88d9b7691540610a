package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	// Default Cartesia API version
	CartesiaAPIVersion = "2024-06-10"

	// DefaultCartesiaURL is the public API host.
	DefaultCartesiaURL = "https://api.cartesia.ai"

	cartesiaDefaultVoice = "a0e99841-438c-4a64-b679-ae501e7d6091"
	cartesiaModel        = "sonic-english"
)

// CartesiaService synthesizes speech through Cartesia's /tts/bytes endpoint.
// The voice part of a "cartesia_<voice>" identifier is a voice ID.
type CartesiaService struct {
	apiKey     string
	apiURL     string
	apiVersion string
	language   string
	client     *http.Client
}

var _ VoiceProvider = (*CartesiaService)(nil)

func NewCartesiaService(apiKey, apiURL, language string) *CartesiaService {
	if apiURL == "" {
		apiURL = DefaultCartesiaURL
	}
	if language == "" {
		language = "en"
	}
	return &CartesiaService{
		apiKey:     apiKey,
		apiURL:     apiURL,
		apiVersion: CartesiaAPIVersion,
		language:   language,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// CartesiaRequest matches the Cartesia API request body
type CartesiaRequest struct {
	ModelID      string                 `json:"model_id"`
	Transcript   string                 `json:"transcript"`
	Voice        CartesiaVoiceSpecifier `json:"voice"`
	Language     *string                `json:"language,omitempty"`
	OutputFormat CartesiaOutputFormat   `json:"output_format"`
}

type CartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

// Synthesize implements VoiceProvider.
func (s *CartesiaService) Synthesize(ctx context.Context, voice, text, outputPath string) error {
	if voice == "" {
		voice = cartesiaDefaultVoice
	}

	language := s.language
	reqBody := CartesiaRequest{
		ModelID:    cartesiaModel,
		Transcript: text,
		Voice: CartesiaVoiceSpecifier{
			Mode: "id",
			ID:   voice,
		},
		Language: &language,
		OutputFormat: CartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/tts/bytes", s.apiURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", s.apiVersion)

	log.Printf("[Cartesia] Generating speech (voiceID=%s, textLen=%d)", voice, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, truncateString(string(body), 300))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}

	return writeAudioFile(outputPath, audioData)
}

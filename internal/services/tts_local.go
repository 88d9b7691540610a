package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// Local text-to-speech
// espeak-ng renders a WAV which ffmpeg converts to MP3. Needs no network or
// credentials, so it is always registered as the baseline provider.
// ---------------------------------------------------------------------------

type LocalTTSService struct {
	espeakPath string
	language   string
	runner     CommandRunner
	ffmpeg     *FFmpegService
}

var _ VoiceProvider = (*LocalTTSService)(nil)

func NewLocalTTSService(espeakPath, language string, runner CommandRunner, ffmpeg *FFmpegService) *LocalTTSService {
	if espeakPath == "" {
		espeakPath = "espeak-ng"
	}
	if language == "" {
		language = "en"
	}
	if runner == nil {
		runner = ExecRunner{}
	}

	return &LocalTTSService{
		espeakPath: espeakPath,
		language:   language,
		runner:     runner,
		ffmpeg:     ffmpeg,
	}
}

// Synthesize implements VoiceProvider. voice is an espeak-ng voice/language
// name; empty uses the configured language.
func (s *LocalTTSService) Synthesize(ctx context.Context, voice, text, outputPath string) error {
	if voice == "" {
		voice = s.language
	}

	base := strings.TrimSuffix(outputPath, ".mp3")
	textPath := base + ".txt"
	wavPath := base + ".wav"
	defer s.ffmpeg.Cleanup(textPath, wavPath)

	// Text goes through a file so scripts starting with "-" are never flags
	if err := os.WriteFile(textPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write speech text: %w", err)
	}

	result, err := s.runner.Run(ctx, s.espeakPath, "-v", voice, "-f", textPath, "-w", wavPath)
	if err != nil {
		return fmt.Errorf("espeak-ng failed (voice=%s, code=%d): %s: %w", voice, result.ExitCode, tail(strings.TrimSpace(result.Stderr), stderrTailBytes), err)
	}

	if err := s.ffmpeg.ConvertAudio(ctx, wavPath, outputPath); err != nil {
		return err
	}

	log.Printf("[TTS] Local speech generated (voice=%s, textLen=%d)", voice, len(text))
	return nil
}

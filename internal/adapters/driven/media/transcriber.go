package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

var _ driven.Transcriber = (*WhisperTranscriber)(nil)

// TranscriberConfig tunes the ASR pass.
type TranscriberConfig struct {
	// Binary is the whisper.cpp CLI command.
	Binary string

	// ModelPath points at the ggml model file. Empty uses the tool default.
	ModelPath string

	// Language hints the spoken language; empty autodetects.
	Language string

	Timeout time.Duration
}

// WhisperTranscriber runs whisper.cpp over a WAV file and parses the SRT
// output into timed segments.
type WhisperTranscriber struct {
	cfg TranscriberConfig
}

// NewTranscriber creates the whisper adapter.
func NewTranscriber(cfg TranscriberConfig) *WhisperTranscriber {
	if cfg.Binary == "" {
		cfg.Binary = "whisper-cli"
	}
	return &WhisperTranscriber{cfg: cfg}
}

// Transcribe converts denoised audio into transcript segments.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) ([]domain.TranscriptSegment, error) {
	dir, err := os.MkdirTemp("", "aurora-transcribe-")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in, err := stageFile(dir, "audio.wav", audio)
	if err != nil {
		return nil, err
	}
	outPrefix := filepath.Join(dir, "transcript")

	args := []string{"-f", in, "-osrt", "-of", outPrefix}
	if t.cfg.ModelPath != "" {
		args = append(args, "-m", t.cfg.ModelPath)
	}
	if t.cfg.Language != "" {
		args = append(args, "-l", t.cfg.Language)
	}

	if err := runTool(ctx, t.cfg.Timeout, t.cfg.Binary, args...); err != nil {
		return nil, err
	}

	srt, err := os.ReadFile(outPrefix + ".srt")
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	segments := domain.ParseSubtitles(string(srt))
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: transcriber produced no cues", domain.ErrInvalidInput)
	}
	return segments, nil
}

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

var _ driven.Denoiser = (*FFmpegDenoiser)(nil)

// DenoiserConfig tunes the audio cleanup pass.
type DenoiserConfig struct {
	// Binary is the ffmpeg command.
	Binary string

	// Filter is the ffmpeg audio filter chain.
	Filter string

	Timeout time.Duration
}

// FFmpegDenoiser cleans audio with an ffmpeg filter chain and downmixes to
// 16kHz mono, the rate the transcriber expects.
type FFmpegDenoiser struct {
	cfg DenoiserConfig
}

// NewDenoiser creates the ffmpeg adapter.
func NewDenoiser(cfg DenoiserConfig) *FFmpegDenoiser {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.Filter == "" {
		cfg.Filter = "afftdn=nf=-25,highpass=f=80"
	}
	return &FFmpegDenoiser{cfg: cfg}
}

// Denoise runs the filter chain over the audio and returns 16kHz mono WAV.
func (d *FFmpegDenoiser) Denoise(ctx context.Context, audio []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "aurora-denoise-")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in, err := stageFile(dir, "source.m4a", audio)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(dir, "denoised.wav")

	err = runTool(ctx, d.cfg.Timeout, d.cfg.Binary,
		"-y",
		"-i", in,
		"-af", d.cfg.Filter,
		"-ar", "16000",
		"-ac", "1",
		out,
	)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading denoised audio: %w", err)
	}
	return data, nil
}

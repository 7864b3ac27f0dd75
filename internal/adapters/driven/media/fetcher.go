package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

var _ driven.MediaFetcher = (*Fetcher)(nil)

// FetcherConfig tunes the audio downloader.
type FetcherConfig struct {
	// Binary is the downloader command (default: yt-dlp).
	Binary string

	// Format is the requested audio format selector.
	Format string

	Timeout time.Duration
}

// Fetcher downloads source audio with yt-dlp.
type Fetcher struct {
	cfg FetcherConfig
}

// NewFetcher creates the downloader adapter.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.Format == "" {
		cfg.Format = "bestaudio[ext=m4a]/bestaudio"
	}
	return &Fetcher{cfg: cfg}
}

// FetchAudio downloads the URL's audio track and returns its bytes.
func (f *Fetcher) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "aurora-fetch-")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "audio.m4a")
	err = runTool(ctx, f.cfg.Timeout, f.cfg.Binary,
		"-f", f.cfg.Format,
		"--no-playlist",
		"-o", out,
		url,
	)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading downloaded audio: %w", err)
	}
	return data, nil
}

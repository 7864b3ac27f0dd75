// Package media wraps the external audio toolchain behind the pipeline's
// media ports. Each adapter shells out to a CLI tool (yt-dlp, ffmpeg,
// whisper, or site-local scripts) through temp files, so the binaries are
// swappable per deployment without code changes.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 15 * time.Minute

// runTool executes one command, returning a readable error with the tool's
// stderr tail on failure.
func runTool(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 400))
	}
	return nil
}

// runToolOutput executes one command and returns its stdout.
func runToolOutput(ctx context.Context, timeout time.Duration, stdin []byte, name string, args ...string) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 400))
	}
	return stdout.Bytes(), nil
}

// stageFile writes data into a scratch dir and returns its path.
func stageFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("staging %s: %w", name, err)
	}
	return path, nil
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

var _ driven.Diarizer = (*ScriptDiarizer)(nil)
var _ driven.Voiceprinter = (*ScriptVoiceprinter)(nil)

// ScriptDiarizer wraps a site-local diarization script. The script gets the
// audio file path as its argument and the transcript segments as JSONL on
// stdin, and prints speaker-labelled segments as JSONL on stdout.
type ScriptDiarizer struct {
	binary  string
	timeout time.Duration
}

// NewDiarizer creates the diarization wrapper.
func NewDiarizer(binary string, timeout time.Duration) *ScriptDiarizer {
	if binary == "" {
		binary = "aurora-diarize"
	}
	return &ScriptDiarizer{binary: binary, timeout: timeout}
}

// Diarize assigns speaker labels via the external script.
func (d *ScriptDiarizer) Diarize(ctx context.Context, audio []byte, segments []domain.TranscriptSegment) ([]domain.TranscriptSegment, error) {
	dir, err := os.MkdirTemp("", "aurora-diarize-")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	audioPath, err := stageFile(dir, "audio.wav", audio)
	if err != nil {
		return nil, err
	}

	var stdin bytes.Buffer
	enc := json.NewEncoder(&stdin)
	for _, seg := range segments {
		if err := enc.Encode(seg); err != nil {
			return nil, fmt.Errorf("encoding segment: %w", err)
		}
	}

	stdout, err := runToolOutput(ctx, d.timeout, stdin.Bytes(), d.binary, audioPath)
	if err != nil {
		return nil, err
	}

	var labelled []domain.TranscriptSegment
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var seg domain.TranscriptSegment
		if err := json.Unmarshal(line, &seg); err != nil {
			return nil, fmt.Errorf("decoding diarized segment: %w", err)
		}
		labelled = append(labelled, seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading diarizer output: %w", err)
	}
	if len(labelled) == 0 {
		return nil, fmt.Errorf("%w: diarizer produced no segments", domain.ErrInvalidInput)
	}
	return labelled, nil
}

// ScriptVoiceprinter wraps a speaker-embedding script. The script gets the
// audio file path plus the span in milliseconds, and prints a JSON float
// array on stdout.
type ScriptVoiceprinter struct {
	binary  string
	timeout time.Duration
}

// NewVoiceprinter creates the voiceprint wrapper.
func NewVoiceprinter(binary string, timeout time.Duration) *ScriptVoiceprinter {
	if binary == "" {
		binary = "aurora-voiceprint"
	}
	return &ScriptVoiceprinter{binary: binary, timeout: timeout}
}

// Fingerprint produces a speaker embedding for the audio span.
func (v *ScriptVoiceprinter) Fingerprint(ctx context.Context, audio []byte, startMS, endMS int64) ([]float32, error) {
	dir, err := os.MkdirTemp("", "aurora-voiceprint-")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	audioPath, err := stageFile(dir, "audio.wav", audio)
	if err != nil {
		return nil, err
	}

	stdout, err := runToolOutput(ctx, v.timeout, nil, v.binary,
		audioPath,
		strconv.FormatInt(startMS, 10),
		strconv.FormatInt(endMS, 10),
	)
	if err != nil {
		return nil, err
	}

	var vector []float32
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &vector); err != nil {
		return nil, fmt.Errorf("decoding voiceprint: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty voiceprint", domain.ErrInvalidInput)
	}
	return vector, nil
}

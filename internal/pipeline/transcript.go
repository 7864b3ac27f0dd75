package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// stageDenoiseAudio cleans the source audio ahead of transcription.
func (p *Pipeline) stageDenoiseAudio(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.Denoiser == nil {
		return nil, fmt.Errorf("%w: denoiser not configured", domain.ErrUnsupportedType)
	}

	audio, err := p.readInputBytes(m, domain.ArtifactSourceAudio)
	if err != nil {
		return nil, err
	}

	denoised, err := p.deps.Denoiser.Denoise(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("denoising audio: %w", err)
	}

	if err := p.deps.Artifacts.WriteBytes(m.SourceID, m.SourceVersion, relDenoisedAudio, denoised); err != nil {
		return nil, fmt.Errorf("writing denoised audio: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactDenoisedAudio: relDenoisedAudio},
		detail:    map[string]any{"bytes": len(denoised)},
	}, nil
}

// stageTranscribe converts denoised audio into timed segments, plus an SRT
// rendering for tools that want subtitles.
func (p *Pipeline) stageTranscribe(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.Transcriber == nil {
		return nil, fmt.Errorf("%w: transcriber not configured", domain.ErrUnsupportedType)
	}

	audio, err := p.readInputBytes(m, domain.ArtifactDenoisedAudio)
	if err != nil {
		return nil, err
	}

	segments, err := p.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		return nil, fmt.Errorf("transcribing audio: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: transcription produced no segments", domain.ErrInvalidInput)
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relSegments, rowsOf(segments)); err != nil {
		return nil, fmt.Errorf("writing transcript segments: %w", err)
	}
	if err := p.deps.Artifacts.WriteText(m.SourceID, m.SourceVersion, relSubtitles, renderSRT(segments)); err != nil {
		return nil, fmt.Errorf("writing subtitles: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{
			domain.ArtifactTranscriptSegments: relSegments,
			domain.ArtifactSubtitles:          relSubtitles,
		},
		detail: map[string]any{
			"segments":    len(segments),
			"duration_ms": segments[len(segments)-1].EndMS,
		},
	}, nil
}

// stageDiarizeAudio assigns speaker labels to the transcript. It runs as a
// sibling of transcribe_whisper and retries until the segments exist.
func (p *Pipeline) stageDiarizeAudio(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.Diarizer == nil {
		return nil, fmt.Errorf("%w: diarizer not configured", domain.ErrUnsupportedType)
	}

	audio, err := p.readInputBytes(m, domain.ArtifactDenoisedAudio)
	if err != nil {
		return nil, err
	}
	segments, err := p.readSegments(m, domain.ArtifactTranscriptSegments)
	if err != nil {
		return nil, err
	}

	diarized, err := p.deps.Diarizer.Diarize(ctx, audio, segments)
	if err != nil {
		return nil, fmt.Errorf("diarizing audio: %w", err)
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relDiarized, rowsOf(diarized)); err != nil {
		return nil, fmt.Errorf("writing diarized segments: %w", err)
	}

	speakers := make(map[string]bool)
	for _, seg := range diarized {
		if seg.Speaker != "" {
			speakers[seg.Speaker] = true
		}
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactDiarizedSegments: relDiarized},
		detail:    map[string]any{"segments": len(diarized), "speakers": len(speakers)},
	}, nil
}

// renderSRT serialises segments as SubRip cues.
func renderSRT(segments []domain.TranscriptSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(seg.StartMS), srtTimestamp(seg.EndMS), seg.Text)
	}
	return b.String()
}

// srtTimestamp formats milliseconds as HH:MM:SS,mmm.
func srtTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// SpeakerMixed labels chunks merged from several speakers.
const SpeakerMixed = "MIXED"

// stageChunkText splits canonical text into overlapping word windows.
func (p *Pipeline) stageChunkText(_ context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	text, err := p.readInputText(m, domain.ArtifactCanonicalText)
	if err != nil {
		return nil, err
	}

	refs := annotationRefs(manifestAnnotations(m))
	chunks := chunkWords(m.SourceID, text, p.cfg.ChunkMaxWords, p.cfg.ChunkOverlapWords, refs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: nothing to chunk for %s", domain.ErrInvalidInput, m.SourceID)
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relChunks, rowsOf(chunks)); err != nil {
		return nil, fmt.Errorf("writing chunks: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactChunks: relChunks},
		detail:    map[string]any{"chunks": len(chunks)},
	}, nil
}

// stageChunkTranscript merges transcript segments into retrieval-sized
// chunks and writes the transcript summary pair. It retries until
// transcribe_whisper has produced the segments.
func (p *Pipeline) stageChunkTranscript(_ context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	segments, err := p.readSegments(m, domain.ArtifactTranscriptSegments)
	if err != nil {
		return nil, err
	}

	refs := annotationRefs(manifestAnnotations(m))
	chunks := chunkTranscript(m.SourceID, segments, p.cfg.TranscriptChunkChars, refs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: transcript has no text for %s", domain.ErrInvalidInput, m.SourceID)
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relChunks, rowsOf(chunks)); err != nil {
		return nil, fmt.Errorf("writing chunks: %w", err)
	}

	summary := buildTranscriptSummary(segments, len(chunks))
	if err := p.writeJSON(m, relSummaryJSON, summary); err != nil {
		return nil, fmt.Errorf("writing transcript summary: %w", err)
	}
	if err := p.deps.Artifacts.WriteText(m.SourceID, m.SourceVersion, relSummaryMD, renderTranscriptSummary(m.SourceID, summary)); err != nil {
		return nil, fmt.Errorf("writing transcript summary: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{
			domain.ArtifactChunks:            relChunks,
			domain.ArtifactTranscriptSummary: relSummaryMD,
			domain.ArtifactTranscriptDigest:  relSummaryJSON,
		},
		detail: map[string]any{
			"chunks":      len(chunks),
			"segments":    summary.Segments,
			"duration_ms": summary.DurationMS,
		},
	}, nil
}

// transcriptExcerptChars caps the opening excerpt in the summary pair.
const transcriptExcerptChars = 300

// transcriptSummary is the machine-readable transcript digest.
type transcriptSummary struct {
	Segments   int      `json:"segments"`
	Chunks     int      `json:"chunks"`
	DurationMS int64    `json:"duration_ms"`
	Speakers   []string `json:"speakers,omitempty"`
	Excerpt    string   `json:"excerpt,omitempty"`
}

// buildTranscriptSummary digests segment counts, speakers, duration, and an
// opening excerpt. Speakers keep first-seen order.
func buildTranscriptSummary(segments []domain.TranscriptSegment, chunks int) *transcriptSummary {
	s := &transcriptSummary{Segments: len(segments), Chunks: chunks}

	seen := make(map[string]bool)
	var excerpt strings.Builder
	for _, seg := range segments {
		if seg.Speaker != "" && !seen[seg.Speaker] {
			seen[seg.Speaker] = true
			s.Speakers = append(s.Speakers, seg.Speaker)
		}
		if seg.EndMS > s.DurationMS {
			s.DurationMS = seg.EndMS
		}
		if text := strings.TrimSpace(seg.Text); text != "" && excerpt.Len() < transcriptExcerptChars {
			if excerpt.Len() > 0 {
				excerpt.WriteByte(' ')
			}
			excerpt.WriteString(text)
		}
	}

	s.Excerpt = excerpt.String()
	if len(s.Excerpt) > transcriptExcerptChars {
		s.Excerpt = s.Excerpt[:transcriptExcerptChars]
	}
	return s
}

// renderTranscriptSummary renders the digest as markdown.
func renderTranscriptSummary(sourceID string, s *transcriptSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transcript summary: %s\n\n", sourceID)
	fmt.Fprintf(&b, "- Segments: %d\n", s.Segments)
	fmt.Fprintf(&b, "- Chunks: %d\n", s.Chunks)
	fmt.Fprintf(&b, "- Duration: %s\n", srtTimestamp(s.DurationMS))
	if len(s.Speakers) > 0 {
		fmt.Fprintf(&b, "- Speakers: %s\n", strings.Join(s.Speakers, ", "))
	}
	if s.Excerpt != "" {
		b.WriteString("\n## Opening\n\n")
		b.WriteString(s.Excerpt)
		b.WriteByte('\n')
	}
	return b.String()
}

// chunkWords windows text into maxWords-sized chunks with overlap words of
// lookback. Segment IDs are "chunk_<n>", 1-based.
func chunkWords(docID, text string, maxWords, overlap int, refs map[string]any) []domain.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := maxWords - overlap

	var chunks []domain.Chunk
	for start, n := 0, 1; start < len(words); start, n = start+step, n+1 {
		end := min(start+maxWords, len(words))
		chunks = append(chunks, domain.Chunk{
			DocID:      docID,
			SegmentID:  fmt.Sprintf("chunk_%d", n),
			Text:       strings.Join(words[start:end], " "),
			SourceRefs: copyRefs(refs),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// chunkTranscript merges consecutive segments until the character budget is
// reached. Chunks spanning several speakers are labelled MIXED, and each
// chunk records the ordinals of the segments it merged.
func chunkTranscript(docID string, segments []domain.TranscriptSegment, maxChars int, refs map[string]any) []domain.Chunk {
	var chunks []domain.Chunk

	var (
		texts      []string
		segmentIDs []any
		speakers   = make(map[string]bool)
		startMS    int64
		endMS      int64
		chars      int
	)

	flush := func() {
		if len(texts) == 0 {
			return
		}
		speaker := ""
		if len(speakers) == 1 {
			for s := range speakers {
				speaker = s
			}
		} else if len(speakers) > 1 {
			speaker = SpeakerMixed
		}

		chunkRefs := copyRefs(refs)
		if chunkRefs == nil {
			chunkRefs = make(map[string]any)
		}
		chunkRefs["segment_ids"] = segmentIDs

		start, end := startMS, endMS
		chunks = append(chunks, domain.Chunk{
			DocID:      docID,
			SegmentID:  fmt.Sprintf("chunk_%d", len(chunks)+1),
			StartMS:    &start,
			EndMS:      &end,
			Speaker:    speaker,
			Text:       strings.Join(texts, " "),
			SourceRefs: chunkRefs,
		})

		texts = nil
		segmentIDs = nil
		speakers = make(map[string]bool)
		chars = 0
	}

	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if len(texts) == 0 {
			startMS = seg.StartMS
		}
		texts = append(texts, text)
		segmentIDs = append(segmentIDs, i)
		if seg.Speaker != "" {
			speakers[seg.Speaker] = true
		}
		endMS = seg.EndMS
		chars += len(text)

		if chars >= maxChars {
			flush()
		}
	}
	flush()

	return chunks
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// voiceprintRow is one enrolled speaker in voiceprint/voiceprints.jsonl.
type voiceprintRow struct {
	Speaker string    `json:"speaker"`
	Vector  []float32 `json:"vector"`
	StartMS int64     `json:"start_ms"`
	EndMS   int64     `json:"end_ms"`
}

// voiceMatchRow is one gallery comparison in voiceprint/matches.jsonl.
type voiceMatchRow struct {
	Speaker    string  `json:"speaker"`
	BestMatch  string  `json:"best_match,omitempty"`
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
}

// voiceReview is the voiceprint/review.json document.
type voiceReview struct {
	AutoAccepted []voiceMatchRow `json:"auto_accepted"`
	NeedsReview  []voiceMatchRow `json:"needs_review"`
}

// galleryFile is the root-scoped voice_gallery.json of known speakers.
type galleryFile struct {
	Speakers []struct {
		Name   string    `json:"name"`
		Vector []float32 `json:"vector"`
	} `json:"speakers"`
}

// stageVoiceprintEnroll fingerprints each diarized speaker from their first
// span of speech.
func (p *Pipeline) stageVoiceprintEnroll(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.Voiceprinter == nil {
		return nil, fmt.Errorf("%w: voiceprint service not configured", domain.ErrUnsupportedType)
	}

	audio, err := p.readInputBytes(m, domain.ArtifactDenoisedAudio)
	if err != nil {
		return nil, err
	}
	segments, err := p.readSegments(m, domain.ArtifactDiarizedSegments)
	if err != nil {
		return nil, err
	}

	enrolled := make(map[string]bool)
	var prints []voiceprintRow
	for _, seg := range segments {
		if seg.Speaker == "" || enrolled[seg.Speaker] {
			continue
		}
		enrolled[seg.Speaker] = true

		vector, err := p.deps.Voiceprinter.Fingerprint(ctx, audio, seg.StartMS, seg.EndMS)
		if err != nil {
			return nil, fmt.Errorf("fingerprinting %s: %w", seg.Speaker, err)
		}
		prints = append(prints, voiceprintRow{
			Speaker: seg.Speaker,
			Vector:  vector,
			StartMS: seg.StartMS,
			EndMS:   seg.EndMS,
		})
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relVoiceprints, rowsOf(prints)); err != nil {
		return nil, fmt.Errorf("writing voiceprints: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactVoiceprints: relVoiceprints},
		detail:    map[string]any{"speakers": len(prints)},
	}, nil
}

// stageVoiceprintMatch compares enrolled prints against the shared gallery.
// A missing gallery yields empty matches rather than an error.
func (p *Pipeline) stageVoiceprintMatch(_ context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	prints, err := p.readVoiceprints(m)
	if err != nil {
		return nil, err
	}
	gallery := p.loadGallery()

	var matches []voiceMatchRow
	for _, print := range prints {
		row := voiceMatchRow{Speaker: print.Speaker}
		for _, known := range gallery.Speakers {
			if sim := cosineSimilarity(print.Vector, known.Vector); sim > row.Similarity {
				row.Similarity = sim
				row.BestMatch = known.Name
			}
		}
		row.Matched = row.Similarity >= p.cfg.VoiceMatchThreshold
		matches = append(matches, row)
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relVoiceMatches, rowsOf(matches)); err != nil {
		return nil, fmt.Errorf("writing voice matches: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactVoiceMatches: relVoiceMatches},
		detail:    map[string]any{"matches": len(matches), "gallery": len(gallery.Speakers)},
	}, nil
}

// stageVoiceprintReview splits matches into auto-accepted and
// needs-review buckets for the operator.
func (p *Pipeline) stageVoiceprintReview(_ context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	rel := m.ArtifactPath(domain.ArtifactVoiceMatches)
	if rel == "" {
		return nil, fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, domain.ArtifactVoiceMatches, m.SourceID, m.SourceVersion)
	}

	review := voiceReview{
		AutoAccepted: []voiceMatchRow{},
		NeedsReview:  []voiceMatchRow{},
	}
	err := p.deps.Artifacts.ReadJSONL(m.SourceID, m.SourceVersion, rel, func(line []byte) error {
		var row voiceMatchRow
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("decoding match row: %w", err)
		}
		if row.Matched {
			review.AutoAccepted = append(review.AutoAccepted, row)
		} else {
			review.NeedsReview = append(review.NeedsReview, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := p.writeJSON(m, relVoiceReview, review); err != nil {
		return nil, err
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactVoiceReview: relVoiceReview},
		detail: map[string]any{
			"auto_accepted": len(review.AutoAccepted),
			"needs_review":  len(review.NeedsReview),
		},
	}, nil
}

// readVoiceprints loads voiceprint/voiceprints.jsonl.
func (p *Pipeline) readVoiceprints(m *domain.Manifest) ([]voiceprintRow, error) {
	rel := m.ArtifactPath(domain.ArtifactVoiceprints)
	if rel == "" {
		return nil, fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, domain.ArtifactVoiceprints, m.SourceID, m.SourceVersion)
	}
	var prints []voiceprintRow
	err := p.deps.Artifacts.ReadJSONL(m.SourceID, m.SourceVersion, rel, func(line []byte) error {
		var row voiceprintRow
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("decoding voiceprint row: %w", err)
		}
		prints = append(prints, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prints, nil
}

// loadGallery reads the shared gallery; absence means no known speakers.
func (p *Pipeline) loadGallery() galleryFile {
	var gallery galleryFile
	content, err := p.deps.Artifacts.ReadRootText(galleryPath)
	if err != nil {
		return gallery
	}
	if err := json.Unmarshal([]byte(content), &gallery); err != nil {
		logger.Warn("unparseable voice gallery: %v", err)
	}
	return gallery
}

// cosineSimilarity is zero for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

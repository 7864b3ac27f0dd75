package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// stageEmbedChunks upserts one embedding row per chunk. Rows whose text
// hash is unchanged are skipped, so re-runs after partial failures only
// embed what is missing.
func (p *Pipeline) stageEmbedChunks(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.Embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	chunks, err := p.readChunks(m, domain.ArtifactChunks)
	if err != nil {
		return nil, err
	}

	embedded, skipped := 0, 0
	for i := range chunks {
		chunk := &chunks[i]
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			continue
		}
		hash := domain.TextHash(text)

		existing, err := p.deps.Embeddings.Get(ctx, chunk.DocID, chunk.SegmentID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("checking embedding %s/%s: %w", chunk.DocID, chunk.SegmentID, err)
		}
		if existing != nil && existing.TextHash == hash {
			skipped++
			continue
		}

		vector, err := p.deps.Embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding %s/%s: %w", chunk.DocID, chunk.SegmentID, err)
		}

		row := &domain.Embedding{
			DocID:         chunk.DocID,
			SegmentID:     chunk.SegmentID,
			SourceID:      m.SourceID,
			SourceVersion: m.SourceVersion,
			Text:          text,
			TextHash:      hash,
			Vector:        vector,
			StartMS:       chunk.StartMS,
			EndMS:         chunk.EndMS,
			Speaker:       chunk.Speaker,
			SourceRefs:    chunk.SourceRefs,
			CreatedAt:     p.now().UTC(),
		}
		if err := p.deps.Embeddings.Upsert(ctx, row); err != nil {
			return nil, fmt.Errorf("upserting embedding %s/%s: %w", chunk.DocID, chunk.SegmentID, err)
		}
		embedded++
	}

	return &stageOutput{
		detail: map[string]any{"embedded": embedded, "skipped": skipped},
		model:  p.deps.Embedder.ModelName(),
	}, nil
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// stagePublishWarehouse ships enriched chunks to the warehouse. The payload
// is materialised alongside the receipt so a failed publish can be replayed
// by hand.
func (p *Pipeline) stagePublishWarehouse(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	chunks, err := p.readChunks(m, domain.ArtifactEnrichedChunks)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		encoded, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("encoding chunk %s: %w", chunk.SegmentID, err)
		}
		var row map[string]any
		if err := json.Unmarshal(encoded, &row); err != nil {
			return nil, fmt.Errorf("shaping chunk %s: %w", chunk.SegmentID, err)
		}
		row["source_version"] = m.SourceVersion
		rows = append(rows, row)
	}

	if err := p.writeJSON(m, relPublishPayload, rows); err != nil {
		return nil, err
	}

	receipt := p.publishRows(ctx, "chunks", rows)
	receipt["source_id"] = m.SourceID
	receipt["published_at"] = p.now().UTC()

	if err := p.writeJSON(m, relPublishReceipt, receipt); err != nil {
		return nil, err
	}

	return &stageOutput{
		artifacts: map[string]string{
			domain.ArtifactPublishPayload: relPublishPayload,
			domain.ArtifactPublishReceipt: relPublishReceipt,
		},
		detail: map[string]any{"rows": len(rows)},
	}, nil
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// docSummary is the enrich/doc_summary.json document.
type docSummary struct {
	SourceID  string    `json:"source_id"`
	Summary   string    `json:"summary"`
	Topics    []string  `json:"topics,omitempty"`
	Entities  []string  `json:"entities,omitempty"`
	Model     string    `json:"model,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// chunkEnrichment is what the model returns per chunk.
type chunkEnrichment struct {
	Topics   []string `json:"topics"`
	Entities []string `json:"entities"`
}

const docSummaryPrompt = `Summarise the document below. Respond with JSON only:
{"summary": "...", "topics": ["..."], "entities": ["..."]}
Keep the summary under 200 words. Topics are short noun phrases; entities
are proper names mentioned in the text.

Document:
%s`

const chunkEnrichPrompt = `Extract topics and named entities from the passage
below. Respond with JSON only: {"topics": ["..."], "entities": ["..."]}
At most 5 of each.

Passage:
%s`

// stageEnrichDoc produces a document-level summary. Without a model, or
// when the model output is unusable, it degrades to a head-of-text summary
// rather than blocking the pipeline.
func (p *Pipeline) stageEnrichDoc(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	text, err := p.readInputText(m, domain.ArtifactCanonicalText)
	if err != nil {
		return nil, err
	}

	summary := docSummary{
		SourceID:  m.SourceID,
		CreatedAt: p.now().UTC(),
	}

	if p.deps.LLM != nil {
		summary.Model = p.deps.LLM.ModelName()
		response, genErr := p.deps.LLM.Generate(ctx, fmt.Sprintf(docSummaryPrompt, head(text, p.cfg.PromptInputChars)), driven.GenerateOptions{
			MaxTokens:   768,
			Temperature: 0.2,
		})
		if genErr != nil {
			logger.Warn("doc summary generation for %s: %v", m.SourceID, genErr)
		} else if err := json.Unmarshal([]byte(jsonSlice(response)), &summary); err != nil {
			logger.Warn("doc summary parse for %s: %v", m.SourceID, err)
			summary.Summary = ""
		}
	}

	if strings.TrimSpace(summary.Summary) == "" {
		summary.Summary = head(strings.TrimSpace(text), 500)
		summary.Degraded = true
	}
	summary.SourceID = m.SourceID

	if err := p.writeJSON(m, relDocSummary, summary); err != nil {
		return nil, err
	}

	detail := map[string]any{"topics": len(summary.Topics), "entities": len(summary.Entities)}
	if summary.Degraded {
		detail["degraded"] = true
	}
	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactDocSummary: relDocSummary},
		detail:    detail,
		model:     summary.Model,
	}, nil
}

// stageEnrichChunks annotates chunks with topics and entities. Chunks the
// model cannot enrich pass through unchanged; the stage only fails on
// storage errors.
func (p *Pipeline) stageEnrichChunks(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	chunks, err := p.readChunks(m, domain.ArtifactChunks)
	if err != nil {
		return nil, err
	}

	enriched := 0
	model := ""
	if p.deps.LLM != nil {
		model = p.deps.LLM.ModelName()
		for i := range chunks {
			if i >= p.cfg.EnrichChunkLimit {
				break
			}
			chunk := &chunks[i]
			if strings.TrimSpace(chunk.Text) == "" {
				continue
			}

			response, genErr := p.deps.LLM.Generate(ctx, fmt.Sprintf(chunkEnrichPrompt, head(chunk.Text, p.cfg.PromptInputChars)), driven.GenerateOptions{
				MaxTokens:   256,
				Temperature: 0.1,
			})
			if genErr != nil {
				logger.Warn("chunk enrichment for %s/%s: %v", chunk.DocID, chunk.SegmentID, genErr)
				continue
			}

			var result chunkEnrichment
			if err := json.Unmarshal([]byte(jsonSlice(response)), &result); err != nil {
				logger.Warn("chunk enrichment parse for %s/%s: %v", chunk.DocID, chunk.SegmentID, err)
				continue
			}
			chunk.Topics = result.Topics
			chunk.Entities = result.Entities
			enriched++
		}
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relEnrichedChunks, rowsOf(chunks)); err != nil {
		return nil, fmt.Errorf("writing enriched chunks: %w", err)
	}

	detail := map[string]any{"chunks": len(chunks), "enriched": enriched}
	if enriched == 0 {
		detail["degraded"] = true
	}
	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactEnrichedChunks: relEnrichedChunks},
		detail:    detail,
		model:     model,
	}, nil
}

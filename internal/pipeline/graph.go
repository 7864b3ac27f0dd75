package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

const ontologyPrompt = `Propose a knowledge-graph ontology for the document
described below. Respond with JSON only:
{"entity_types": ["..."], "predicates": [{"name": "...", "domain": "...", "range": "..."}]}
Use snake_case predicate names. Include the generic type "Entity".

Document summary:
%s`

const entitiesPrompt = `Extract named entities from the passages below.
Known entity types: %s.
Respond with a JSON array only: [{"name": "...", "type": "..."}]
Use the closest known type, or "Entity" when unsure. At most 30 entities.

Candidate names already spotted: %s

Passages:
%s`

const relationsPrompt = `Extract relations between the entities below from
the passages. Allowed predicates (name, subject type, object type):
%s
Respond with a JSON array only:
[{"subj": "...", "predicate": "...", "obj": "...", "subj_type": "...", "obj_type": "..."}]
Use entity names exactly as given. At most 40 relations.

Entities:
%s

Passages:
%s`

// EntityID derives the deterministic identifier for a named entity.
func EntityID(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return "ent_" + hex.EncodeToString(sum[:])[:24]
}

// stageGraphOntology seeds the per-source ontology. Model failures fall
// back to the generic default schema instead of blocking extraction.
func (p *Pipeline) stageGraphOntology(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	ontology := p.proposeOntology(ctx, m)

	if !containsString(ontology.EntityTypes, domain.EntityTypeAny) {
		ontology.EntityTypes = append(ontology.EntityTypes, domain.EntityTypeAny)
	}

	if err := p.writeJSON(m, relOntology, ontology); err != nil {
		return nil, err
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactGraphOntology: relOntology},
		detail: map[string]any{
			"entity_types": len(ontology.EntityTypes),
			"predicates":   len(ontology.Predicates),
		},
	}, nil
}

// proposeOntology asks the model for a schema, defaulting on any failure.
func (p *Pipeline) proposeOntology(ctx context.Context, m *domain.Manifest) *domain.Ontology {
	if p.deps.LLM == nil {
		return domain.DefaultOntology()
	}

	summaryText := m.SourceURI
	if raw, err := p.readInputBytes(m, domain.ArtifactDocSummary); err == nil {
		summaryText = string(raw)
	}

	response, err := p.deps.LLM.Generate(ctx, fmt.Sprintf(ontologyPrompt, head(summaryText, p.cfg.PromptInputChars)), driven.GenerateOptions{
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		logger.Warn("ontology proposal for %s: %v", m.SourceID, err)
		return domain.DefaultOntology()
	}

	var ontology domain.Ontology
	if err := json.Unmarshal([]byte(jsonSlice(response)), &ontology); err != nil {
		logger.Warn("ontology parse for %s: %v", m.SourceID, err)
		return domain.DefaultOntology()
	}
	if len(ontology.Predicates) == 0 || len(ontology.EntityTypes) == 0 {
		return domain.DefaultOntology()
	}
	return &ontology
}

// stageGraphEntities extracts typed entities from the enriched chunks.
// There is no usable default here, so model failures fail the stage.
func (p *Pipeline) stageGraphEntities(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.LLM == nil {
		return nil, domain.ErrLLMUnavailable
	}

	chunks, err := p.readChunks(m, domain.ArtifactEnrichedChunks)
	if err != nil {
		return nil, err
	}
	ontology := p.loadOntology(m)

	candidates := entityCandidates(chunks)
	prompt := fmt.Sprintf(entitiesPrompt,
		strings.Join(ontology.EntityTypes, ", "),
		strings.Join(candidates, ", "),
		p.chunkSample(chunks))

	response, err := p.deps.LLM.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   1024,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting entities for %s: %w", m.SourceID, err)
	}

	var extracted []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(jsonSlice(response)), &extracted); err != nil {
		return nil, fmt.Errorf("parsing entity extraction for %s: %w", m.SourceID, err)
	}

	seen := make(map[string]bool)
	var entities []domain.GraphEntity
	for _, e := range extracted {
		name := strings.TrimSpace(e.Name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		entityType := strings.TrimSpace(e.Type)
		if entityType == "" {
			entityType = domain.EntityTypeAny
		}
		entities = append(entities, domain.GraphEntity{
			ID:   EntityID(name),
			Name: name,
			Type: entityType,
			Refs: map[string]any{"source_id": m.SourceID},
		})
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: no entities extracted for %s", domain.ErrInvalidInput, m.SourceID)
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relEntities, rowsOf(entities)); err != nil {
		return nil, fmt.Errorf("writing entities: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactGraphEntities: relEntities},
		detail:    map[string]any{"entities": len(entities)},
		model:     p.deps.LLM.ModelName(),
	}, nil
}

// stageGraphRelations extracts triples and validates them against the
// ontology. Valid rows land in relations.jsonl; rows failing validation are
// preserved in relations_invalid.jsonl with the reason, never dropped
// silently.
func (p *Pipeline) stageGraphRelations(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.LLM == nil {
		return nil, domain.ErrLLMUnavailable
	}

	entities, err := p.readEntities(m)
	if err != nil {
		return nil, err
	}
	chunks, err := p.readChunks(m, domain.ArtifactEnrichedChunks)
	if err != nil {
		return nil, err
	}
	ontology := p.loadOntology(m)

	var predicateLines, entityLines []string
	for _, pred := range ontology.Predicates {
		predicateLines = append(predicateLines, fmt.Sprintf("- %s (%s -> %s)", pred.Name, pred.Domain, pred.Range))
	}
	typeByName := make(map[string]string, len(entities))
	for _, e := range entities {
		entityLines = append(entityLines, fmt.Sprintf("- %s (%s)", e.Name, e.Type))
		typeByName[strings.ToLower(e.Name)] = e.Type
	}

	prompt := fmt.Sprintf(relationsPrompt,
		strings.Join(predicateLines, "\n"),
		strings.Join(entityLines, "\n"),
		p.chunkSample(chunks))

	response, err := p.deps.LLM.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   1536,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting relations for %s: %w", m.SourceID, err)
	}

	var extracted []struct {
		Subj      string `json:"subj"`
		Predicate string `json:"predicate"`
		Obj       string `json:"obj"`
		SubjType  string `json:"subj_type"`
		ObjType   string `json:"obj_type"`
	}
	if err := json.Unmarshal([]byte(jsonSlice(response)), &extracted); err != nil {
		return nil, fmt.Errorf("parsing relation extraction for %s: %w", m.SourceID, err)
	}

	var claims, valid, invalid []domain.GraphRelation
	seen := make(map[string]bool)
	for _, r := range extracted {
		subj, obj := strings.TrimSpace(r.Subj), strings.TrimSpace(r.Obj)
		predicate := strings.TrimSpace(r.Predicate)
		if subj == "" || predicate == "" || obj == "" {
			continue
		}

		rel := domain.GraphRelation{
			ID:        domain.RelationID(subj, predicate, obj),
			Subject:   subj,
			Predicate: predicate,
			Object:    obj,
			SubjType:  strings.TrimSpace(r.SubjType),
			ObjType:   strings.TrimSpace(r.ObjType),
			Refs:      map[string]any{"source_id": m.SourceID},
		}
		if seen[rel.ID] {
			continue
		}
		seen[rel.ID] = true

		if rel.SubjType == "" {
			rel.SubjType = typeByName[strings.ToLower(subj)]
		}
		if rel.ObjType == "" {
			rel.ObjType = typeByName[strings.ToLower(obj)]
		}

		claims = append(claims, rel)
		if reason := ontology.Validate(rel); reason != "" {
			rel.ValidationError = reason
			invalid = append(invalid, rel)
		} else {
			valid = append(valid, rel)
		}
	}

	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relClaims, rowsOf(claims)); err != nil {
		return nil, fmt.Errorf("writing claims: %w", err)
	}
	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relInvalid, rowsOf(invalid)); err != nil {
		return nil, fmt.Errorf("writing invalid relations: %w", err)
	}
	if err := p.deps.Artifacts.WriteJSONL(m.SourceID, m.SourceVersion, relRelations, rowsOf(valid)); err != nil {
		return nil, fmt.Errorf("writing relations: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{
			domain.ArtifactGraphClaims:    relClaims,
			domain.ArtifactGraphRelations: relRelations,
			domain.ArtifactGraphInvalid:   relInvalid,
		},
		detail: map[string]any{"relations": len(valid), "invalid": len(invalid)},
		model:  p.deps.LLM.ModelName(),
	}, nil
}

// stageGraphPublish ships the validated graph downstream. Publishing is
// best-effort: failures are captured on the receipt so the pipeline
// completes either way.
func (p *Pipeline) stageGraphPublish(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	rows, err := p.readRows(m, domain.ArtifactGraphRelations)
	if err != nil {
		return nil, err
	}

	receipt := p.publishRows(ctx, "graph_relations", rows)
	receipt["source_id"] = m.SourceID
	receipt["published_at"] = p.now().UTC()

	if err := p.writeJSON(m, relGraphReceipt, receipt); err != nil {
		return nil, err
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactGraphReceipt: relGraphReceipt},
		detail:    map[string]any{"rows": len(rows)},
	}, nil
}

// loadOntology reads the seeded ontology, falling back to the default
// schema when the artifact is absent or unparseable.
func (p *Pipeline) loadOntology(m *domain.Manifest) *domain.Ontology {
	raw, err := p.readInputBytes(m, domain.ArtifactGraphOntology)
	if err != nil {
		return domain.DefaultOntology()
	}
	var ontology domain.Ontology
	if err := json.Unmarshal(raw, &ontology); err != nil || len(ontology.Predicates) == 0 {
		logger.Warn("unusable ontology for %s, using default", m.SourceID)
		return domain.DefaultOntology()
	}
	return &ontology
}

// readEntities loads graph/entities.jsonl.
func (p *Pipeline) readEntities(m *domain.Manifest) ([]domain.GraphEntity, error) {
	rel := m.ArtifactPath(domain.ArtifactGraphEntities)
	if rel == "" {
		return nil, fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, domain.ArtifactGraphEntities, m.SourceID, m.SourceVersion)
	}
	var entities []domain.GraphEntity
	err := p.deps.Artifacts.ReadJSONL(m.SourceID, m.SourceVersion, rel, func(line []byte) error {
		var e domain.GraphEntity
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("decoding entity row: %w", err)
		}
		entities = append(entities, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// readRows loads a JSONL artifact as generic rows for publishing.
func (p *Pipeline) readRows(m *domain.Manifest, name string) ([]map[string]any, error) {
	rel := m.ArtifactPath(name)
	if rel == "" {
		return nil, fmt.Errorf("%w: %s not yet produced for %s@%s", domain.ErrArtifactMissing, name, m.SourceID, m.SourceVersion)
	}
	var rows []map[string]any
	err := p.deps.Artifacts.ReadJSONL(m.SourceID, m.SourceVersion, rel, func(line []byte) error {
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("decoding row: %w", err)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// publishRows sends rows to the warehouse, capturing any failure on the
// returned receipt.
func (p *Pipeline) publishRows(ctx context.Context, table string, rows []map[string]any) map[string]any {
	if p.deps.Warehouse == nil {
		return map[string]any{"table": table, "rows": len(rows), "skipped": true}
	}
	receipt, err := p.deps.Warehouse.Publish(ctx, table, rows)
	if receipt == nil {
		receipt = make(map[string]any)
	}
	receipt["table"] = table
	receipt["rows"] = len(rows)
	if err != nil {
		logger.Warn("publishing %d rows to %s: %v", len(rows), table, err)
		receipt["error"] = err.Error()
	}
	return receipt
}

// chunkSample inlines up to the configured number of chunks into a prompt.
func (p *Pipeline) chunkSample(chunks []domain.Chunk) string {
	var b strings.Builder
	budget := p.cfg.PromptInputChars
	for i, chunk := range chunks {
		if i >= p.cfg.GraphChunkLimit || b.Len() >= budget {
			break
		}
		b.WriteString(head(chunk.Text, budget-b.Len()))
		b.WriteString("\n---\n")
	}
	return b.String()
}

// entityCandidates collects entity names the enrichment pass already found.
func entityCandidates(chunks []domain.Chunk) []string {
	seen := make(map[string]bool)
	var names []string
	for _, chunk := range chunks {
		for _, name := range chunk.Entities {
			name = strings.TrimSpace(name)
			if name == "" || seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			names = append(names, name)
		}
	}
	return names
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

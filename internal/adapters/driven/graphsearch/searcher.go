// Package graphsearch answers retrieval queries from the extracted graph
// artifacts. It scans recent manifests for relation files and scores each
// triple by token overlap with the query. Graph hits are supporting
// evidence, so scores sit below a full segment match.
package graphsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

var _ driven.GraphSearcher = (*Searcher)(nil)

const (
	// defaultManifestLimit bounds how many recent sources are scanned.
	defaultManifestLimit = 20

	// scoreWeight keeps graph evidence below exact segment matches.
	scoreWeight = 0.6
)

// Searcher scans relation artifacts for query matches.
type Searcher struct {
	manifests     driven.ManifestStore
	artifacts     driven.ArtifactStore
	manifestLimit int
}

// NewSearcher creates the graph searcher.
func NewSearcher(manifests driven.ManifestStore, artifacts driven.ArtifactStore) *Searcher {
	return &Searcher{
		manifests:     manifests,
		artifacts:     artifacts,
		manifestLimit: defaultManifestLimit,
	}
}

// SearchGraph returns relation evidence matching the query tokens.
func (s *Searcher) SearchGraph(ctx context.Context, query string, limit int) ([]domain.Evidence, error) {
	tokens := domain.Tokens(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	manifests, err := s.manifests.List(ctx, s.manifestLimit)
	if err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}

	var hits []domain.Evidence
	for i := range manifests {
		m := &manifests[i]
		rel := m.ArtifactPath(domain.ArtifactGraphRelations)
		if rel == "" {
			continue
		}

		err := s.artifacts.ReadJSONL(m.SourceID, m.SourceVersion, rel, func(line []byte) error {
			var relation domain.GraphRelation
			if err := json.Unmarshal(line, &relation); err != nil {
				return fmt.Errorf("decoding relation row: %w", err)
			}

			text := relation.Subject + " " + relation.Predicate + " " + relation.Object
			overlap := domain.OverlapRatio(tokens, domain.TokenSet(text))
			if overlap <= 0 {
				return nil
			}

			hits = append(hits, domain.Evidence{
				DocID:     "graph:" + relation.ID,
				Text:      strings.ReplaceAll(text, "_", " "),
				Score:     overlap * scoreWeight,
				Origin:    "graph",
				SourceRefs: map[string]any{
					"source_id": m.SourceID,
					"predicate": relation.Predicate,
				},
			})
			return nil
		})
		if err != nil {
			// One unreadable file should not hide the rest of the graph.
			logger.Warn("scanning relations for %s: %v", m.SourceID, err)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

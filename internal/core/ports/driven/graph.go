package driven

import (
	"context"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// GraphSearcher queries the knowledge graph artifacts for evidence. The
// orchestrator treats it as best-effort: errors are logged and swallowed.
type GraphSearcher interface {
	SearchGraph(ctx context.Context, query string, limit int) ([]domain.Evidence, error)
}

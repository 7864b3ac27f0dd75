package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// Signal labels recorded per evidence key.
const (
	signalCited  = "cited"
	signalMissed = "missed"
)

// maxQueryTokens caps the tokens stored with one feedback row.
const maxQueryTokens = 10

// FeedbackConfig carries the retrieval-feedback knobs.
type FeedbackConfig struct {
	Enabled         bool
	HistoryLimit    int
	SignalLimit     int
	CitedBoost      float64
	MissedPenalty   float64
	MinTokenOverlap float64
}

// FeedbackService learns from answer citations: after each answer it
// records which evidence was cited versus missed, and on later retrievals
// for overlapping queries it boosts previously cited segments and demotes
// missed ones.
type FeedbackService struct {
	memories driven.MemoryStore
	cfg      FeedbackConfig
	now      func() time.Time
}

// NewFeedbackService creates the feedback service.
func NewFeedbackService(cfg FeedbackConfig, memories driven.MemoryStore) *FeedbackService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 25
	}
	if cfg.SignalLimit <= 0 {
		cfg.SignalLimit = 8
	}
	if cfg.CitedBoost <= 0 {
		cfg.CitedBoost = 0.12
	}
	if cfg.MissedPenalty <= 0 {
		cfg.MissedPenalty = 0.08
	}
	if cfg.MinTokenOverlap <= 0 {
		cfg.MinTokenOverlap = 0.2
	}
	return &FeedbackService{
		memories: memories,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Record persists one feedback row after an answer: the top evidence keys
// labelled cited or missed by the answer's citations.
func (s *FeedbackService) Record(ctx context.Context, scope domain.Scope, question string, evidence []domain.Evidence, citations []domain.Citation) error {
	if !s.cfg.Enabled || len(evidence) == 0 {
		return nil
	}

	top := evidence
	if len(top) > s.cfg.SignalLimit {
		top = top[:s.cfg.SignalLimit]
	}

	var signals []map[string]any
	cited, missed := 0, 0
	for i := range top {
		label := signalMissed
		if isCited(&top[i], citations) {
			label = signalCited
			cited++
		} else {
			missed++
		}
		signals = append(signals, map[string]any{
			"doc_id":     top[i].DocID,
			"segment_id": top[i].SegmentID,
			"signal":     label,
		})
	}

	ratio := 0.0
	if cited+missed > 0 {
		ratio = float64(cited) / float64(cited+missed)
	}

	tokens := domain.Tokens(question)
	if len(tokens) > maxQueryTokens {
		tokens = tokens[:maxQueryTokens]
	}

	now := s.now().UTC()
	scope = scope.Normalize()

	refs := map[string]any{
		"kind":         feedbackRefKind,
		"query_tokens": tokens,
		"signals":      signals,
		"cited_count":  cited,
		"missed_count": missed,
	}
	if !scope.IsZero() {
		refs["scope"] = map[string]any{
			"user_id":    scope.UserID,
			"project_id": scope.ProjectID,
			"session_id": scope.SessionID,
		}
	}

	item := &domain.MemoryItem{
		ID:             uuid.NewString(),
		Type:           domain.MemoryWorking,
		Text:           "retrieval feedback: " + snippet(question, 200),
		SourceRefs:     refs,
		Importance:     domain.Clamp01(0.58 + 0.22*ratio),
		Confidence:     defaultConfidence,
		LastAccessedAt: now,
		ExpiresAt:      domain.DefaultExpiry(domain.MemoryWorking, now),
		CreatedAt:      now,
	}
	if err := s.memories.Insert(ctx, item); err != nil {
		return fmt.Errorf("recording retrieval feedback: %w", err)
	}
	return nil
}

// isCited reports whether any citation points at this evidence. A citation
// without a segment matches the whole document.
func isCited(e *domain.Evidence, citations []domain.Citation) bool {
	for _, c := range citations {
		if c.DocID != e.DocID {
			continue
		}
		if c.SegmentID == "" || c.SegmentID == e.SegmentID {
			return true
		}
	}
	return false
}

// Apply reranks evidence in place from the recent feedback history. Each
// row's final_score becomes max(0, score + boost); rows with no applicable
// feedback keep their base score as final.
func (s *FeedbackService) Apply(ctx context.Context, scope domain.Scope, question string, evidence []domain.Evidence) error {
	if !s.cfg.Enabled || len(evidence) == 0 {
		return nil
	}

	history, err := s.memories.ListRecent(ctx, feedbackRefKind, s.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("loading feedback history: %w", err)
	}

	queryTokens := domain.Tokens(question)
	scope = scope.Normalize()

	// Segment-exact boosts apply at full strength; the per-doc aggregate
	// applies at half strength to the doc's other segments.
	segBoost := make(map[string]float64)
	docBoost := make(map[string]float64)

	for i := range history {
		row := &history[i]
		if !row.ItemScope().Matches(scope) {
			continue
		}
		overlap := domain.Jaccard(queryTokens, refTokens(row.SourceRefs["query_tokens"]))
		if overlap < s.cfg.MinTokenOverlap {
			continue
		}
		for _, sig := range refSignals(row.SourceRefs["signals"]) {
			delta := 0.0
			switch sig.label {
			case signalCited:
				delta = s.cfg.CitedBoost * overlap
			case signalMissed:
				delta = -s.cfg.MissedPenalty * overlap
			default:
				continue
			}
			segBoost[sig.docID+"\x00"+sig.segmentID] += delta
			docBoost[sig.docID] += delta / 2
		}
	}

	for i := range evidence {
		e := &evidence[i]
		boost, exact := segBoost[e.DocID+"\x00"+e.SegmentID]
		if !exact {
			boost = docBoost[e.DocID]
		}
		final := e.Score + boost
		if final < 0 {
			final = 0
		}
		e.FinalScore = &final
	}
	return nil
}

// refTokens reads a query_tokens list that may be []string (fresh) or
// []any (after a JSON round-trip through the store).
func refTokens(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

type feedbackSignal struct {
	docID     string
	segmentID string
	label     string
}

// refSignals reads a signals list in either its fresh or JSON-decoded form.
func refSignals(raw any) []feedbackSignal {
	var out []feedbackSignal
	appendMap := func(m map[string]any) {
		sig := feedbackSignal{}
		sig.docID, _ = m["doc_id"].(string)
		sig.segmentID, _ = m["segment_id"].(string)
		sig.label, _ = m["signal"].(string)
		if sig.docID != "" && sig.label != "" {
			out = append(out, sig)
		}
	}
	switch v := raw.(type) {
	case []map[string]any:
		for _, m := range v {
			appendMap(m)
		}
	case []any:
		for _, entry := range v {
			if m, ok := entry.(map[string]any); ok {
				appendMap(m)
			}
		}
	}
	return out
}

// snippet truncates text for display.
func snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}

package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// HandoffRelPath is the root-scoped handoff file rewritten after each turn.
const HandoffRelPath = "context/auto_handoff.md"

// HandoffDocID names the synthetic evidence injected on session resume.
const HandoffDocID = "context:auto_handoff"

// handoffScore ranks the injected handoff above normal evidence.
const handoffScore = 1.05

// source_refs kinds written by the handoff subsystem.
const (
	sessionTurnKind   = "session_turn"
	preCompactionKind = "session_pre_compaction"
)

// answerSnapshotChars caps the answer snapshot in the handoff file.
const answerSnapshotChars = 800

// HandoffConfig carries the context-handoff knobs.
type HandoffConfig struct {
	Enabled                   bool
	TurnLimit                 int
	ResumeIdleMinutes         int
	BackgroundIntervalSeconds int
	PreCompactionTurns        int
}

// HandoffService preserves conversational context across process restarts:
// every answered turn is persisted as a session memory, the handoff file is
// rewritten from the recent turns, and a returning session gets the current
// handoff injected into its first retrieval.
type HandoffService struct {
	memories  driven.MemoryStore
	artifacts driven.ArtifactStore
	cfg       HandoffConfig
	now       func() time.Time

	// mu guards the session tracking maps.
	mu        sync.Mutex
	lastSeen  map[string]time.Time
	turnCount map[string]int

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewHandoffService creates the handoff service.
func NewHandoffService(cfg HandoffConfig, memories driven.MemoryStore, artifacts driven.ArtifactStore) *HandoffService {
	if cfg.TurnLimit <= 0 {
		cfg.TurnLimit = 12
	}
	if cfg.ResumeIdleMinutes <= 0 {
		cfg.ResumeIdleMinutes = 60
	}
	if cfg.BackgroundIntervalSeconds <= 0 {
		cfg.BackgroundIntervalSeconds = 300
	}
	if cfg.PreCompactionTurns <= 0 {
		cfg.PreCompactionTurns = 8
	}
	return &HandoffService{
		memories:  memories,
		artifacts: artifacts,
		cfg:       cfg,
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
		turnCount: make(map[string]int),
	}
}

// RecordTurn persists one answered turn as a session memory, rewrites the
// handoff file, and emits a pre-compaction checkpoint on cadence.
func (s *HandoffService) RecordTurn(ctx context.Context, scope domain.Scope, question string, answer *domain.Answer) error {
	if !s.cfg.Enabled || answer == nil {
		return nil
	}

	now := s.now().UTC()
	scope = scope.Normalize()

	refs := map[string]any{
		"kind":        sessionTurnKind,
		"question":    question,
		"citations":   citationRefs(answer.Citations),
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
		Type:           domain.MemorySession,
		Text:           "Q: " + question + "\nA: " + answer.Text,
		SourceRefs:     refs,
		Importance:     defaultImportance,
		Confidence:     defaultConfidence,
		LastAccessedAt: now,
		ExpiresAt:      domain.DefaultExpiry(domain.MemorySession, now),
		CreatedAt:      now,
	}
	if err := s.memories.Insert(ctx, item); err != nil {
		return fmt.Errorf("recording session turn: %w", err)
	}

	s.mu.Lock()
	s.turnCount[scope.SessionID]++
	count := s.turnCount[scope.SessionID]
	s.mu.Unlock()

	if count%s.cfg.PreCompactionTurns == 0 {
		if err := s.writePreCompaction(ctx, scope, now); err != nil {
			logger.Warn("pre-compaction checkpoint failed: %v", err)
		}
	}

	if err := s.RefreshHandoff(ctx); err != nil {
		logger.Warn("handoff refresh failed: %v", err)
	}
	return nil
}

// writePreCompaction emits a working memory summarising the last window of
// turns, the rolling compaction checkpoint.
func (s *HandoffService) writePreCompaction(ctx context.Context, scope domain.Scope, now time.Time) error {
	turns, err := s.memories.ListRecent(ctx, sessionTurnKind, s.cfg.PreCompactionTurns)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("Session checkpoint covering the last turns:\n")
	for i := len(turns) - 1; i >= 0; i-- {
		if q, _ := turns[i].SourceRefs["question"].(string); q != "" {
			b.WriteString("- " + q + "\n")
		}
	}

	refs := map[string]any{"kind": preCompactionKind}
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
		Text:           b.String(),
		SourceRefs:     refs,
		Importance:     0.7,
		Confidence:     defaultConfidence,
		LastAccessedAt: now,
		ExpiresAt:      domain.DefaultExpiry(domain.MemoryWorking, now),
		CreatedAt:      now,
	}
	return s.memories.Insert(ctx, item)
}

// RefreshHandoff rewrites the handoff file from the most recent session
// turns.
func (s *HandoffService) RefreshHandoff(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	turns, err := s.memories.ListRecent(ctx, sessionTurnKind, s.cfg.TurnLimit)
	if err != nil {
		return fmt.Errorf("loading session turns: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	text := renderHandoff(turns)
	if err := s.artifacts.WriteRootText(HandoffRelPath, text); err != nil {
		return fmt.Errorf("writing handoff file: %w", err)
	}
	return nil
}

// renderHandoff builds the handoff markdown: current focus, recent threads,
// the latest answer snapshot, next-action sentences, and evidence anchors.
// turns arrive newest first.
func renderHandoff(turns []domain.MemoryItem) string {
	latest := &turns[0]
	latestQ, _ := latest.SourceRefs["question"].(string)
	latestA := turnAnswer(latest)

	var b strings.Builder
	b.WriteString("# Session Handoff\n\n")

	b.WriteString("## Current Focus\n\n")
	b.WriteString(latestQ + "\n\n")

	b.WriteString("## Recent Threads\n\n")
	for i := range turns {
		if q, _ := turns[i].SourceRefs["question"].(string); q != "" {
			b.WriteString("- " + q + "\n")
		}
	}
	b.WriteString("\n")

	b.WriteString("## Latest Answer\n\n")
	b.WriteString(snippet(latestA, answerSnapshotChars) + "\n\n")

	if actions := nextActions(latestA); len(actions) > 0 {
		b.WriteString("## Next Actions\n\n")
		for _, a := range actions {
			b.WriteString("- " + a + "\n")
		}
		b.WriteString("\n")
	}

	if anchors := evidenceAnchors(turns); len(anchors) > 0 {
		b.WriteString("## Evidence Anchors\n\n")
		for _, a := range anchors {
			b.WriteString("- " + a + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// turnAnswer extracts the answer half of a "Q: ...\nA: ..." turn.
func turnAnswer(turn *domain.MemoryItem) string {
	if _, after, found := strings.Cut(turn.Text, "\nA: "); found {
		return after
	}
	return turn.Text
}

// markers that flag a sentence as a follow-up action.
var actionMarkers = []string{
	"next step", "next,", "todo", "should ", "need to", "plan to", "follow up",
}

// nextActions extracts follow-up sentences from an answer, capped at five.
func nextActions(answer string) []string {
	var actions []string
	for _, sentence := range strings.FieldsFunc(answer, func(r rune) bool {
		return r == '.' || r == '\n'
	}) {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, marker := range actionMarkers {
			if strings.Contains(lower, marker) {
				actions = append(actions, trimmed)
				break
			}
		}
		if len(actions) == 5 {
			break
		}
	}
	return actions
}

// evidenceAnchors collects distinct citation keys across the turns.
func evidenceAnchors(turns []domain.MemoryItem) []string {
	seen := make(map[string]struct{})
	var anchors []string
	for i := range turns {
		raw, ok := turns[i].SourceRefs["citations"].([]any)
		if !ok {
			// fresh rows keep the typed slice
			if typed, tok := turns[i].SourceRefs["citations"].([]map[string]any); tok {
				for _, m := range typed {
					raw = append(raw, m)
				}
			}
		}
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			docID, _ := m["doc_id"].(string)
			segmentID, _ := m["segment_id"].(string)
			if docID == "" {
				continue
			}
			key := docID
			if segmentID != "" {
				key = docID + " / " + segmentID
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			anchors = append(anchors, key)
		}
	}
	return anchors
}

func citationRefs(citations []domain.Citation) []map[string]any {
	refs := make([]map[string]any, 0, len(citations))
	for _, c := range citations {
		refs = append(refs, map[string]any{
			"doc_id":     c.DocID,
			"segment_id": c.SegmentID,
		})
	}
	return refs
}

// InjectResume returns synthetic handoff evidence when the session is new
// or idle past the resume window. At most one injection per idle window per
// session; the session's last-seen time advances on every call.
func (s *HandoffService) InjectResume(ctx context.Context, sessionID string) (*domain.Evidence, bool) {
	if !s.cfg.Enabled || sessionID == "" {
		return nil, false
	}

	now := s.now().UTC()
	idle := time.Duration(s.cfg.ResumeIdleMinutes) * time.Minute

	s.mu.Lock()
	last, seen := s.lastSeen[sessionID]
	s.lastSeen[sessionID] = now
	s.mu.Unlock()

	if seen && now.Sub(last) <= idle {
		return nil, false
	}

	text, err := s.artifacts.ReadRootText(HandoffRelPath)
	if err != nil || strings.TrimSpace(text) == "" {
		return nil, false
	}

	return &domain.Evidence{
		DocID:  HandoffDocID,
		Text:   text,
		Score:  handoffScore,
		Origin: "handoff",
	}, true
}

// Start launches the background refresh loop. Returns immediately; the loop
// runs until Stop or context cancellation.
func (s *HandoffService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}

	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.runMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Duration(s.cfg.BackgroundIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.RefreshHandoff(ctx); err != nil {
					logger.Warn("background handoff refresh failed: %v", err)
				}
			}
		}
	}()
}

// Stop signals the background loop and waits for it to exit.
func (s *HandoffService) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.runMu.Unlock()

	s.wg.Wait()
}

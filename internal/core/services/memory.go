package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driving"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// Ensure MemoryService implements the admin interface.
var _ driving.MemoryAdmin = (*MemoryService)(nil)

// Recall scoring weights. raw is scaled by the type weight, then access
// frequency and pinning add small fixed bonuses.
const (
	weightText       = 0.50
	weightTopics     = 0.20
	weightRecency    = 0.15
	weightImportance = 0.10
	weightConfidence = 0.05

	recencyHalfLife = 14 * 24 * time.Hour

	accessCountCap = 20
	pinBonus       = 0.05
)

// Default importance and confidence for writes that leave them unset.
const (
	defaultImportance = 0.5
	defaultConfidence = 0.5
)

// candidateFactor caps the recall candidate fetch at factor×limit.
const candidateFactor = 5

// maintenanceScanLimit bounds how many rows one maintenance or stats pass
// examines.
const maintenanceScanLimit = 1000

// minMaintenanceDeleteCap is the floor on per-run deletions.
const minMaintenanceDeleteCap = 10

// feedbackRefKind tags retrieval-feedback rows in source_refs.
const feedbackRefKind = "retrieval_feedback"

// MemoryConfig carries the memory policy knobs.
type MemoryConfig struct {
	Enabled       bool
	RetrieveLimit int

	// FeedbackRetentionDays and FeedbackHistoryLimit drive maintenance of
	// retrieval_feedback rows.
	FeedbackRetentionDays int
	FeedbackHistoryLimit  int

	// MaintenanceDeleteCap bounds deletions per maintenance run.
	MaintenanceDeleteCap int
}

// MemoryService owns memory policy: kind routing, slot extraction, TTLs,
// supersede-on-conflict, recall scoring, and maintenance. Rows themselves
// live behind the MemoryStore port.
type MemoryService struct {
	store    driven.MemoryStore
	longTerm driven.LongTermMemory
	cfg      MemoryConfig
	now      func() time.Time
}

// NewMemoryService creates the memory service. longTerm may be nil when no
// remote long-term store is configured.
func NewMemoryService(cfg MemoryConfig, store driven.MemoryStore, longTerm driven.LongTermMemory) *MemoryService {
	if cfg.RetrieveLimit <= 0 {
		cfg.RetrieveLimit = 6
	}
	if cfg.MaintenanceDeleteCap < minMaintenanceDeleteCap {
		cfg.MaintenanceDeleteCap = minMaintenanceDeleteCap
	}
	return &MemoryService{
		store:    store,
		longTerm: longTerm,
		cfg:      cfg,
		now:      time.Now,
	}
}

// MemoryWrite is one write_memory request.
type MemoryWrite struct {
	Type     domain.MemoryType
	Text     string
	Topics   []string
	Entities []string

	// SourceRefs are merged into the stored refs under the caller's keys.
	SourceRefs map[string]any

	// Importance and Confidence default to 0.5 when nil. Pointers keep an
	// explicit zero distinct from unset.
	Importance *float64
	Confidence *float64

	ExpiresAt   *time.Time
	PinnedUntil *time.Time

	// Kind forces the retrieval flavour; empty routes heuristically.
	Kind domain.MemoryKind

	// Slot and Value force the slot pair; empty extracts from the text.
	Slot  string
	Value string

	// OverwriteConflicts supersedes live rows holding the same (kind, slot)
	// with a different value in scope.
	OverwriteConflicts bool

	Scope domain.Scope
}

// Write persists a new memory row. Rows are append-only: a conflicting slot
// is superseded, never edited.
func (s *MemoryService) Write(ctx context.Context, w MemoryWrite) (*domain.MemoryItem, error) {
	if !s.cfg.Enabled {
		return nil, domain.ErrMemoryDisabled
	}

	text := strings.TrimSpace(w.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty memory text", domain.ErrInvalidInput)
	}

	memType := w.Type
	switch memType {
	case domain.MemorySession, domain.MemoryWorking, domain.MemoryLongTerm:
	case "":
		memType = domain.MemoryWorking
	default:
		return nil, fmt.Errorf("%w: memory type %q", domain.ErrInvalidInput, memType)
	}

	now := s.now().UTC()
	scope := w.Scope.Normalize()

	kind := w.Kind
	if kind == "" {
		kind = domain.RouteKind(memType, text)
	}

	slot, value := w.Slot, w.Value
	if slot == "" {
		slot, value = domain.ExtractSlot(text)
	}

	importance := defaultImportance
	if w.Importance != nil {
		importance = *w.Importance
	}
	confidence := defaultConfidence
	if w.Confidence != nil {
		confidence = *w.Confidence
	}

	refs := make(map[string]any, len(w.SourceRefs)+4)
	for k, v := range w.SourceRefs {
		refs[k] = v
	}
	refs["memory_kind"] = string(kind)
	if slot != "" {
		refs["memory_slot"] = slot
		refs["memory_value"] = value
	}
	if !scope.IsZero() {
		refs["scope"] = map[string]any{
			"user_id":    scope.UserID,
			"project_id": scope.ProjectID,
			"session_id": scope.SessionID,
		}
	}

	expires := w.ExpiresAt
	if expires == nil {
		expires = domain.DefaultExpiry(memType, now)
	}

	item := &domain.MemoryItem{
		ID:             uuid.NewString(),
		Type:           memType,
		Text:           text,
		Topics:         w.Topics,
		Entities:       w.Entities,
		SourceRefs:     refs,
		Importance:     domain.Clamp01(importance),
		Confidence:     domain.Clamp01(confidence),
		LastAccessedAt: now,
		ExpiresAt:      expires,
		PinnedUntil:    w.PinnedUntil,
		CreatedAt:      now,
	}

	if err := s.store.Insert(ctx, item); err != nil {
		return nil, fmt.Errorf("inserting memory: %w", err)
	}

	if w.OverwriteConflicts && slot != "" {
		if err := s.supersedeConflicts(ctx, item, kind, slot, value, scope, now); err != nil {
			return nil, err
		}
	}

	if memType == domain.MemoryLongTerm && s.longTerm != nil {
		// Best-effort: a remote failure never fails the local write.
		if err := s.longTerm.Publish(ctx, item); err != nil {
			logger.Warn("long-term publish failed for %s: %v", item.ID, err)
		}
	}

	return item, nil
}

// supersedeConflicts expires live rows holding the same slot with a
// different value in scope, linking them to the replacement.
func (s *MemoryService) supersedeConflicts(ctx context.Context, item *domain.MemoryItem, kind domain.MemoryKind, slot, value string, scope domain.Scope, now time.Time) error {
	conflicts, err := s.store.BySlot(ctx, kind, slot)
	if err != nil {
		return fmt.Errorf("finding slot conflicts: %w", err)
	}
	for i := range conflicts {
		old := &conflicts[i]
		if old.ID == item.ID {
			continue
		}
		if _, oldValue := old.Slot(); oldValue == value {
			continue
		}
		if !old.ItemScope().Matches(scope) {
			continue
		}
		if err := s.store.Supersede(ctx, old.ID, item.ID, now); err != nil {
			return fmt.Errorf("superseding %s: %w", old.ID, err)
		}
	}
	return nil
}

// ScoredMemory is one recall result with its relevance score.
type ScoredMemory struct {
	Item  domain.MemoryItem
	Score float64
}

// Recall returns the best-scoring live memories for a query, bumping
// access counters on the returned rows. Returns nil when memory is
// disabled.
func (s *MemoryService) Recall(ctx context.Context, query string, opts domain.RetrieveOptions) ([]ScoredMemory, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.RetrieveLimit
	}

	candidates, err := s.store.Search(ctx, query, limit*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}

	if opts.IncludeLongTerm && s.longTerm != nil {
		remote, err := s.longTerm.Recall(ctx, query, limit)
		if err != nil {
			logger.Warn("long-term recall failed: %v", err)
		} else {
			candidates = mergeCandidates(candidates, remote)
		}
	}

	now := s.now().UTC()
	queryTokens := domain.Tokens(query)

	scored := make([]ScoredMemory, 0, len(candidates))
	for i := range candidates {
		item := &candidates[i]
		if item.Expired(now) {
			continue
		}
		if !item.ItemScope().Matches(opts.Scope.Normalize()) {
			continue
		}
		if opts.MemoryType != "" && item.Type != opts.MemoryType {
			continue
		}
		if opts.MemoryKind != "" && item.Kind() != opts.MemoryKind {
			continue
		}
		if !domain.MatchesAny(opts.Topics, item.Topics) {
			continue
		}
		if !domain.MatchesAny(opts.Entities, item.Entities) {
			continue
		}
		scored = append(scored, ScoredMemory{
			Item:  *item,
			Score: scoreMemory(item, queryTokens, now),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	if len(scored) > 0 {
		ids := make([]string, len(scored))
		for i := range scored {
			ids[i] = scored[i].Item.ID
		}
		if err := s.store.BumpAccess(ctx, ids, now); err != nil {
			logger.Warn("bumping memory access counters: %v", err)
		}
	}

	return scored, nil
}

// scoreMemory ranks one candidate: token overlap with text and
// topics/entities, recency with a 14-day half-life, and the row's own
// importance and confidence, scaled by the type weight.
func scoreMemory(item *domain.MemoryItem, queryTokens []string, now time.Time) float64 {
	textOverlap := domain.OverlapRatio(queryTokens, domain.TokenSet(item.Text))
	topicOverlap := domain.OverlapRatio(queryTokens, listTokenSet(item.Topics))
	entityOverlap := domain.OverlapRatio(queryTokens, listTokenSet(item.Entities))

	age := now.Sub(item.CreatedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Pow(0.5, age.Hours()/recencyHalfLife.Hours())

	raw := weightText*textOverlap +
		weightTopics*math.Max(topicOverlap, entityOverlap) +
		weightRecency*recency +
		weightImportance*item.Importance +
		weightConfidence*item.Confidence

	score := raw * typeWeight(item.Type)

	access := item.AccessCount
	if access > accessCountCap {
		access = accessCountCap
	}
	score += float64(access) / 200

	if item.PinnedUntil != nil && !now.After(*item.PinnedUntil) {
		score += pinBonus
	}
	return score
}

// typeWeight favours fresher lifecycle tiers.
func typeWeight(t domain.MemoryType) float64 {
	switch t {
	case domain.MemorySession:
		return 1.0
	case domain.MemoryLongTerm:
		return 0.8
	default:
		return 0.9
	}
}

func listTokenSet(values []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, v := range values {
		for _, tok := range domain.Tokens(v) {
			set[tok] = struct{}{}
		}
	}
	return set
}

// mergeCandidates appends remote rows not already present locally.
func mergeCandidates(local, remote []domain.MemoryItem) []domain.MemoryItem {
	seen := make(map[string]struct{}, len(local))
	for i := range local {
		seen[local[i].ID] = struct{}{}
	}
	for i := range remote {
		if _, ok := seen[remote[i].ID]; ok {
			continue
		}
		local = append(local, remote[i])
	}
	return local
}

// Stats aggregates memory rows visible in scope.
func (s *MemoryService) Stats(ctx context.Context, scope domain.Scope) (*driving.MemoryStats, error) {
	if !s.cfg.Enabled {
		return nil, domain.ErrMemoryDisabled
	}

	rows, err := s.store.ListRecent(ctx, "", maintenanceScanLimit)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}

	now := s.now().UTC()
	scope = scope.Normalize()

	stats := &driving.MemoryStats{
		ByType: make(map[domain.MemoryType]int),
		ByKind: make(map[domain.MemoryKind]int),
	}
	for i := range rows {
		item := &rows[i]
		if !item.ItemScope().Matches(scope) {
			continue
		}
		stats.Total++
		stats.ByType[item.Type]++
		if kind := item.Kind(); kind != "" {
			stats.ByKind[kind]++
		}
		if item.Expired(now) {
			stats.Expired++
		}
		if item.PinnedUntil != nil && !now.After(*item.PinnedUntil) {
			stats.Pinned++
		}
		if refKind, _ := item.SourceRefs["kind"].(string); refKind == feedbackRefKind {
			stats.Feedback++
		}
	}
	return stats, nil
}

// Maintain deletes expired rows, stale feedback, and feedback overflow in
// scope, bounded by the per-run cap.
func (s *MemoryService) Maintain(ctx context.Context, scope domain.Scope) (*driving.MaintenanceReport, error) {
	if !s.cfg.Enabled {
		return nil, domain.ErrMemoryDisabled
	}

	rows, err := s.store.ListRecent(ctx, "", maintenanceScanLimit)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}

	now := s.now().UTC()
	scope = scope.Normalize()
	retention := time.Duration(s.cfg.FeedbackRetentionDays) * 24 * time.Hour

	report := &driving.MaintenanceReport{}
	var deletes []string
	remaining := s.cfg.MaintenanceDeleteCap

	take := func(id string, counter *int) {
		if remaining <= 0 {
			return
		}
		deletes = append(deletes, id)
		*counter++
		remaining--
	}

	// feedbackSeen counts live feedback rows per scope key, newest first,
	// so rows past the history limit are overflow.
	feedbackSeen := make(map[string]int)

	for i := range rows {
		item := &rows[i]
		if !item.ItemScope().Matches(scope) {
			continue
		}
		report.Scanned++

		if item.Expired(now) {
			take(item.ID, &report.DeletedExpired)
			continue
		}

		refKind, _ := item.SourceRefs["kind"].(string)
		if refKind != feedbackRefKind {
			continue
		}
		if retention > 0 && now.Sub(item.CreatedAt) > retention {
			take(item.ID, &report.DeletedStale)
			continue
		}
		key := scopeKey(item.ItemScope())
		feedbackSeen[key]++
		if s.cfg.FeedbackHistoryLimit > 0 && feedbackSeen[key] > s.cfg.FeedbackHistoryLimit {
			take(item.ID, &report.DeletedExcess)
		}
	}

	if len(deletes) > 0 {
		if err := s.store.Delete(ctx, deletes); err != nil {
			return nil, fmt.Errorf("deleting memories: %w", err)
		}
	}
	return report, nil
}

func scopeKey(s domain.Scope) string {
	return s.UserID + "|" + s.ProjectID + "|" + s.SessionID
}

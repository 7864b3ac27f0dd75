package domain

import (
	"strings"
	"time"
)

// MemoryType controls a memory's TTL and lifecycle.
type MemoryType string

// Memory lifecycle tiers.
const (
	MemorySession  MemoryType = "session"
	MemoryWorking  MemoryType = "working"
	MemoryLongTerm MemoryType = "long_term"
)

// MemoryKind is the retrieval flavour, distinct from MemoryType.
type MemoryKind string

// Retrieval flavours.
const (
	KindSemantic   MemoryKind = "semantic"
	KindEpisodic   MemoryKind = "episodic"
	KindProcedural MemoryKind = "procedural"
)

// Default TTLs per memory type. Long-term memories never expire.
const (
	SessionTTL = 24 * time.Hour
	WorkingTTL = 30 * 24 * time.Hour
)

// maxScopeIDLen caps each scope identifier.
const maxScopeIDLen = 120

// Scope is the (user, project, session) tuple under which memories are
// written, recalled, and maintained.
type Scope struct {
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Normalize lowercases and truncates each identifier.
func (s Scope) Normalize() Scope {
	return Scope{
		UserID:    normalizeScopeID(s.UserID),
		ProjectID: normalizeScopeID(s.ProjectID),
		SessionID: normalizeScopeID(s.SessionID),
	}
}

// IsZero reports whether no identifier is set.
func (s Scope) IsZero() bool {
	return s.UserID == "" && s.ProjectID == "" && s.SessionID == ""
}

// Matches reports whether a memory written under s is visible to other.
// Every identifier set on other must match; empty fields are wildcards.
func (s Scope) Matches(other Scope) bool {
	if other.UserID != "" && other.UserID != s.UserID {
		return false
	}
	if other.ProjectID != "" && other.ProjectID != s.ProjectID {
		return false
	}
	if other.SessionID != "" && other.SessionID != s.SessionID {
		return false
	}
	return true
}

func normalizeScopeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) > maxScopeIDLen {
		id = id[:maxScopeIDLen]
	}
	return id
}

// MemoryItem is one row of the memory store. Rows are append-only;
// conflicting rows are superseded, never edited in place.
type MemoryItem struct {
	ID         string
	Type       MemoryType
	Text       string
	Topics     []string
	Entities   []string

	// SourceRefs is free-form JSON carrying memory_kind, memory_slot,
	// memory_value, scope, supersede metadata and citations.
	SourceRefs map[string]any

	Importance float64
	Confidence float64

	AccessCount    int
	LastAccessedAt time.Time
	ExpiresAt      *time.Time
	PinnedUntil    *time.Time
	CreatedAt      time.Time
}

// Kind returns the retrieval flavour stored in source_refs.
func (m *MemoryItem) Kind() MemoryKind {
	if m.SourceRefs == nil {
		return ""
	}
	if k, ok := m.SourceRefs["memory_kind"].(string); ok {
		return MemoryKind(k)
	}
	return ""
}

// Slot returns the (memory_slot, memory_value) pair, if any.
func (m *MemoryItem) Slot() (slot, value string) {
	if m.SourceRefs == nil {
		return "", ""
	}
	slot, _ = m.SourceRefs["memory_slot"].(string)
	value, _ = m.SourceRefs["memory_value"].(string)
	return slot, value
}

// ItemScope returns the scope recorded at write time.
func (m *MemoryItem) ItemScope() Scope {
	if m.SourceRefs == nil {
		return Scope{}
	}
	raw, ok := m.SourceRefs["scope"].(map[string]any)
	if !ok {
		return Scope{}
	}
	var s Scope
	s.UserID, _ = raw["user_id"].(string)
	s.ProjectID, _ = raw["project_id"].(string)
	s.SessionID, _ = raw["session_id"].(string)
	return s
}

// Expired reports whether the memory is past its TTL and not pinned.
// A pin extends visibility until pinned_until passes.
func (m *MemoryItem) Expired(now time.Time) bool {
	if m.ExpiresAt == nil || now.Before(*m.ExpiresAt) {
		return false
	}
	if m.PinnedUntil != nil && !now.After(*m.PinnedUntil) {
		return false
	}
	return true
}

// DefaultExpiry computes expires_at from the type TTL. Long-term memories
// return nil (never expire).
func DefaultExpiry(memType MemoryType, now time.Time) *time.Time {
	var ttl time.Duration
	switch memType {
	case MemorySession:
		ttl = SessionTTL
	case MemoryWorking:
		ttl = WorkingTTL
	default:
		return nil
	}
	t := now.Add(ttl)
	return &t
}

// Clamp01 restricts importance/confidence values to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// procedural phrasing that routes a memory to the procedural kind.
var proceduralMarkers = []string{
	"steps", "step 1", "workflow", "how to", "procedure",
	"first,", "then,", "checklist", "runbook", "in order to",
}

// episodic phrasing: temporal, self-referential statements.
var episodicMarkers = []string{
	"today", "yesterday", "this morning", "last week", "earlier",
	"we discussed", "we decided", "i did", "i met", "just now",
}

// RouteKind derives a memory kind when the caller does not force one.
// Session memories are episodic by definition; procedural keywords win
// over temporal phrasing; everything else is semantic.
func RouteKind(memType MemoryType, text string) MemoryKind {
	if memType == MemorySession {
		return KindEpisodic
	}
	lower := strings.ToLower(text)
	for _, marker := range proceduralMarkers {
		if strings.Contains(lower, marker) {
			return KindProcedural
		}
	}
	for _, marker := range episodicMarkers {
		if strings.Contains(lower, marker) {
			return KindEpisodic
		}
	}
	return KindSemantic
}

// ExtractSlot pulls a (memory_slot, memory_value) pair from common
// preference phrasings: "my X is Y", "I prefer Y", "default X = Y".
// Returns empty strings when no pattern matches.
func ExtractSlot(text string) (slot, value string) {
	lower := strings.ToLower(strings.TrimSpace(text))

	if rest, ok := strings.CutPrefix(lower, "my "); ok {
		for _, sep := range []string{" is ", " are "} {
			if s, v, found := strings.Cut(rest, sep); found {
				return slotPair(s, v)
			}
		}
	}

	if rest, ok := strings.CutPrefix(lower, "i prefer "); ok {
		if v := trimValue(rest); v != "" {
			return "preference", v
		}
	}

	if rest, ok := strings.CutPrefix(lower, "default "); ok {
		for _, sep := range []string{"=", " is "} {
			if s, v, found := strings.Cut(rest, sep); found {
				return slotPair(s, v)
			}
		}
	}

	return "", ""
}

// slotPair normalizes both halves; a blank half voids the match.
func slotPair(slot, value string) (string, string) {
	s := normalizeSlot(slot)
	v := trimValue(value)
	if s == "" || v == "" {
		return "", ""
	}
	return s, v
}

func trimValue(v string) string {
	return strings.TrimSuffix(strings.TrimSpace(v), ".")
}

func normalizeSlot(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), "_")
}

package domain

import "time"

// Evidence is one ranked retrieval result handed to answer synthesis.
type Evidence struct {
	DocID     string  `json:"doc_id"`
	SegmentID string  `json:"segment_id,omitempty"`
	Text      string  `json:"text_snippet"`

	// Score is the backend's base relevance score.
	Score float64 `json:"score"`

	// FinalScore is Score after retrieval-feedback reranking.
	// Sorting prefers FinalScore when set.
	FinalScore *float64 `json:"final_score,omitempty"`

	// Origin names the contributing backend: segment, memory, graph, handoff.
	Origin string `json:"origin,omitempty"`

	SourceRefs map[string]any `json:"source_refs,omitempty"`
}

// Ranking returns FinalScore when reranked, otherwise Score.
func (e *Evidence) Ranking() float64 {
	if e.FinalScore != nil {
		return *e.FinalScore
	}
	return e.Score
}

// RetrieveOptions filter a retrieval request.
type RetrieveOptions struct {
	Limit      int
	Topics     []string
	Entities   []string
	SourceType string
	MemoryType MemoryType
	MemoryKind MemoryKind
	Scope      Scope
	After      time.Time
	Before     time.Time

	// IncludeLongTerm also queries the remote long-term store.
	IncludeLongTerm bool
}

// Answer is the synthesized response to an ask request.
type Answer struct {
	Question  string     `json:"question"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`

	// Fallback marks an answer produced without the model, after a
	// synthesis failure.
	Fallback bool `json:"fallback,omitempty"`
}

// Citation points an answer back at a piece of evidence.
type Citation struct {
	DocID     string `json:"doc_id"`
	SegmentID string `json:"segment_id,omitempty"`
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driving"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// Ensure RetrievalService implements the asker interface.
var _ driving.Asker = (*RetrievalService)(nil)

// Retrieval defaults.
const (
	defaultRetrieveLimit = 8
	evidenceSnippetChars = 700
	fallbackSnippets     = 3
	fallbackErrorChars   = 200
)

// RetrievalService merges evidence from the segment index, the memory
// store, the knowledge graph, and the session handoff, reranks it with
// retrieval feedback, and synthesizes answers.
type RetrievalService struct {
	embeddings driven.EmbeddingStore
	memory     *MemoryService
	feedback   *FeedbackService
	handoff    *HandoffService
	graph      driven.GraphSearcher
	llm        driven.LLMService
	runLog     driven.RunLogStore
	now        func() time.Time
}

// NewRetrievalService creates the orchestrator. memory, feedback, handoff,
// graph, and runLog may be nil when the corresponding subsystem is off.
func NewRetrievalService(
	embeddings driven.EmbeddingStore,
	memory *MemoryService,
	feedback *FeedbackService,
	handoff *HandoffService,
	graph driven.GraphSearcher,
	llm driven.LLMService,
	runLog driven.RunLogStore,
) *RetrievalService {
	return &RetrievalService{
		embeddings: embeddings,
		memory:     memory,
		feedback:   feedback,
		handoff:    handoff,
		graph:      graph,
		llm:        llm,
		runLog:     runLog,
		now:        time.Now,
	}
}

// Retrieve runs the full retrieval loop: segment retrieval, memory recall,
// graph lookup (best-effort), handoff injection, feedback reranking, and a
// final sort by final score.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Evidence, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	evidence, err := s.segmentEvidence(ctx, query, opts, limit)
	if err != nil {
		return nil, err
	}

	if s.memory != nil {
		recalled, err := s.memory.Recall(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		for i := range recalled {
			evidence = append(evidence, domain.Evidence{
				DocID:      "memory:" + recalled[i].Item.ID,
				Text:       snippet(recalled[i].Item.Text, evidenceSnippetChars),
				Score:      recalled[i].Score,
				Origin:     "memory",
				SourceRefs: recalled[i].Item.SourceRefs,
			})
		}
	}

	if s.graph != nil {
		graphHits, err := s.graph.SearchGraph(ctx, query, limit)
		if err != nil {
			// Graph retrieval is best-effort.
			logger.Warn("graph retrieval failed: %v", err)
		} else {
			evidence = append(evidence, graphHits...)
		}
	}

	if s.handoff != nil {
		if injected, ok := s.handoff.InjectResume(ctx, opts.Scope.Normalize().SessionID); ok {
			evidence = append([]domain.Evidence{*injected}, evidence...)
		}
	}

	if s.feedback != nil {
		if err := s.feedback.Apply(ctx, opts.Scope, query, evidence); err != nil {
			logger.Warn("feedback rerank failed: %v", err)
		}
	}

	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Ranking() > evidence[j].Ranking()
	})
	if len(evidence) > limit {
		evidence = evidence[:limit]
	}
	return evidence, nil
}

// segmentEvidence queries the embeddings index by substring and scores hits
// by query-token overlap.
func (s *RetrievalService) segmentEvidence(ctx context.Context, query string, opts domain.RetrieveOptions, limit int) ([]domain.Evidence, error) {
	rows, err := s.embeddings.Search(ctx, query, limit*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("searching segments: %w", err)
	}

	queryTokens := domain.Tokens(query)
	evidence := make([]domain.Evidence, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		if !opts.After.IsZero() && row.CreatedAt.Before(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && row.CreatedAt.After(opts.Before) {
			continue
		}
		if opts.SourceType != "" && !strings.HasPrefix(row.SourceID, opts.SourceType+":") {
			continue
		}
		if !segmentMatchesTerms(row, opts.Topics) || !segmentMatchesTerms(row, opts.Entities) {
			continue
		}
		evidence = append(evidence, domain.Evidence{
			DocID:      row.DocID,
			SegmentID:  row.SegmentID,
			Text:       snippet(row.Text, evidenceSnippetChars),
			Score:      domain.OverlapRatio(queryTokens, domain.TokenSet(row.Text)),
			Origin:     "segment",
			SourceRefs: row.SourceRefs,
		})
	}
	return evidence, nil
}

// segmentMatchesTerms applies a topic or entity filter to one segment row.
// Segments carry no label columns, so a term matches when every one of its
// tokens occurs in the segment text, or when it equals an annotation tag.
// An empty term list matches everything.
func segmentMatchesTerms(row *domain.Embedding, terms []string) bool {
	if len(terms) == 0 {
		return true
	}

	var tags []string
	if raw, ok := row.SourceRefs["tags"].([]any); ok {
		for _, tag := range raw {
			if s, ok := tag.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	textTokens := domain.TokenSet(row.Text)
	for _, term := range terms {
		if domain.MatchesAny([]string{term}, tags) {
			return true
		}
		termTokens := domain.Tokens(term)
		if len(termTokens) == 0 {
			continue
		}
		all := true
		for _, tok := range termTokens {
			if _, ok := textTokens[tok]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Ask retrieves evidence and synthesizes an answer. A model failure
// degrades to a fallback answer built from the evidence, never an error.
func (s *RetrievalService) Ask(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}

	evidence, err := s.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	answer := s.synthesize(ctx, question, evidence)

	if s.handoff != nil {
		if err := s.handoff.RecordTurn(ctx, opts.Scope, question, answer); err != nil {
			logger.Warn("recording turn failed: %v", err)
		}
	}
	if s.feedback != nil {
		if err := s.feedback.Record(ctx, opts.Scope, question, evidence, answer.Citations); err != nil {
			logger.Warn("recording feedback failed: %v", err)
		}
	}
	s.logAsk(ctx, question, answer, len(evidence))

	return answer, nil
}

// synthesize calls the model over the evidence. On failure it returns the
// fallback: the question snippet, up to three evidence snippets, and the
// first part of the error.
func (s *RetrievalService) synthesize(ctx context.Context, question string, evidence []domain.Evidence) *domain.Answer {
	prompt := buildAnswerPrompt(question, evidence)

	text, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		logger.Warn("answer synthesis failed: %v", err)
		return fallbackAnswer(question, evidence, err)
	}

	citations := parseCitations(text, evidence)
	if len(citations) == 0 {
		citations = defaultCitations(evidence, fallbackSnippets)
	}
	return &domain.Answer{
		Question:  question,
		Text:      strings.TrimSpace(text),
		Citations: citations,
	}
}

// buildAnswerPrompt numbers the evidence so the model can cite [n].
func buildAnswerPrompt(question string, evidence []domain.Evidence) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the evidence below. ")
	b.WriteString("Cite evidence with bracketed numbers like [1].\n\n")
	for i := range evidence {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, evidence[i].Text)
	}
	b.WriteString("\nQuestion: " + question + "\nAnswer:")
	return b.String()
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// parseCitations maps bracketed numbers in the answer back to evidence.
func parseCitations(text string, evidence []domain.Evidence) []domain.Citation {
	seen := make(map[int]struct{})
	var citations []domain.Citation
	for _, match := range citationRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(evidence) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		citations = append(citations, domain.Citation{
			DocID:     evidence[n-1].DocID,
			SegmentID: evidence[n-1].SegmentID,
		})
	}
	return citations
}

func defaultCitations(evidence []domain.Evidence, max int) []domain.Citation {
	var citations []domain.Citation
	for i := range evidence {
		if len(citations) == max {
			break
		}
		citations = append(citations, domain.Citation{
			DocID:     evidence[i].DocID,
			SegmentID: evidence[i].SegmentID,
		})
	}
	return citations
}

// fallbackAnswer degrades gracefully when the model is unreachable.
func fallbackAnswer(question string, evidence []domain.Evidence, cause error) *domain.Answer {
	var b strings.Builder
	b.WriteString("Unable to synthesize an answer for: " + snippet(question, 200) + "\n\n")
	shown := evidence
	if len(shown) > fallbackSnippets {
		shown = shown[:fallbackSnippets]
	}
	if len(shown) > 0 {
		b.WriteString("Most relevant evidence:\n")
		for i := range shown {
			b.WriteString("- " + snippet(shown[i].Text, 300) + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Error: " + snippet(cause.Error(), fallbackErrorChars))

	return &domain.Answer{
		Question:  question,
		Text:      b.String(),
		Citations: defaultCitations(shown, fallbackSnippets),
		Fallback:  true,
	}
}

// logAsk appends a best-effort run-log entry for the ask loop.
func (s *RetrievalService) logAsk(ctx context.Context, question string, answer *domain.Answer, evidenceCount int) {
	if s.runLog == nil {
		return
	}
	input, _ := json.Marshal(map[string]any{"question": question, "evidence_count": evidenceCount})
	output, _ := json.Marshal(map[string]any{
		"fallback":  answer.Fallback,
		"citations": len(answer.Citations),
	})
	entry := &domain.RunEntry{
		Component:  "ask",
		Model:      s.llm.ModelName(),
		InputJSON:  string(input),
		OutputJSON: string(output),
	}
	if err := s.runLog.Append(ctx, entry); err != nil {
		logger.Warn("run-log append failed: %v", err)
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

// stubMemoryStore is an in-memory driven.MemoryStore.
type stubMemoryStore struct {
	mu    sync.Mutex
	items []*domain.MemoryItem
}

func newStubMemoryStore() *stubMemoryStore {
	return &stubMemoryStore{}
}

func (s *stubMemoryStore) Insert(_ context.Context, item *domain.MemoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *item
	s.items = append(s.items, &clone)
	return nil
}

func (s *stubMemoryStore) Get(_ context.Context, id string) (*domain.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id {
			clone := *item
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("memory %s: %w", id, domain.ErrNotFound)
}

func (s *stubMemoryStore) Search(_ context.Context, query string, limit int) ([]domain.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(query)
	var out []domain.MemoryItem
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		if !memoryMatches(item, lower) {
			continue
		}
		out = append(out, *item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func memoryMatches(item *domain.MemoryItem, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(item.Text), lowerQuery) {
		return true
	}
	for _, t := range item.Topics {
		if strings.Contains(strings.ToLower(t), lowerQuery) {
			return true
		}
	}
	for _, e := range item.Entities {
		if strings.Contains(strings.ToLower(e), lowerQuery) {
			return true
		}
	}
	return false
}

func (s *stubMemoryStore) BySlot(_ context.Context, kind domain.MemoryKind, slot string) ([]domain.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []domain.MemoryItem
	for _, item := range s.items {
		itemSlot, _ := item.Slot()
		if item.Kind() != kind || itemSlot != slot {
			continue
		}
		if item.ExpiresAt != nil && !now.Before(*item.ExpiresAt) {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *stubMemoryStore) ListRecent(_ context.Context, kind string, limit int) ([]domain.MemoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MemoryItem
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		if kind != "" {
			refKind, _ := item.SourceRefs["kind"].(string)
			if refKind != kind {
				continue
			}
		}
		out = append(out, *item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubMemoryStore) Supersede(_ context.Context, oldID, newID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID != oldID {
			continue
		}
		if item.SourceRefs == nil {
			item.SourceRefs = make(map[string]any)
		}
		item.SourceRefs["superseded_by"] = newID
		timeline, _ := item.SourceRefs["revision_timeline"].([]any)
		timeline = append(timeline, map[string]any{"superseded_by": newID, "at": at.Format(time.RFC3339)})
		item.SourceRefs["revision_timeline"] = timeline
		expires := at
		item.ExpiresAt = &expires
		return nil
	}
	return fmt.Errorf("memory %s: %w", oldID, domain.ErrNotFound)
}

func (s *stubMemoryStore) BumpAccess(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for _, item := range s.items {
			if item.ID == id {
				item.AccessCount++
				item.LastAccessedAt = at
			}
		}
	}
	return nil
}

func (s *stubMemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := s.items[:0]
	for _, item := range s.items {
		if _, gone := drop[item.ID]; !gone {
			kept = append(kept, item)
		}
	}
	s.items = kept
	return nil
}

// stubArtifactStore is an in-memory driven.ArtifactStore.
type stubArtifactStore struct {
	mu    sync.Mutex
	files map[string][]byte
	root  map[string]string
}

func newStubArtifactStore() *stubArtifactStore {
	return &stubArtifactStore{
		files: make(map[string][]byte),
		root:  make(map[string]string),
	}
}

func artifactKey(sourceID, sourceVersion, relPath string) string {
	return domain.SafeSourceID(sourceID) + "/" + sourceVersion + "/" + relPath
}

func (s *stubArtifactStore) Root() string { return "stub" }

func (s *stubArtifactStore) Exists(sourceID, sourceVersion, relPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[artifactKey(sourceID, sourceVersion, relPath)]
	return ok
}

func (s *stubArtifactStore) WriteText(sourceID, sourceVersion, relPath, text string) error {
	return s.WriteBytes(sourceID, sourceVersion, relPath, []byte(text))
}

func (s *stubArtifactStore) ReadText(sourceID, sourceVersion, relPath string) (string, error) {
	data, err := s.ReadBytes(sourceID, sourceVersion, relPath)
	return string(data), err
}

func (s *stubArtifactStore) WriteBytes(sourceID, sourceVersion, relPath string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[artifactKey(sourceID, sourceVersion, relPath)] = append([]byte(nil), data...)
	return nil
}

func (s *stubArtifactStore) ReadBytes(sourceID, sourceVersion, relPath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[artifactKey(sourceID, sourceVersion, relPath)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, relPath)
	}
	return append([]byte(nil), data...), nil
}

func (s *stubArtifactStore) WriteJSONL(sourceID, sourceVersion, relPath string, rows []any) error {
	var b strings.Builder
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return s.WriteBytes(sourceID, sourceVersion, relPath, []byte(b.String()))
}

func (s *stubArtifactStore) ReadJSONL(sourceID, sourceVersion, relPath string, visit func(line []byte) error) error {
	data, err := s.ReadBytes(sourceID, sourceVersion, relPath)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := visit([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubArtifactStore) WriteRootText(relPath, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root[relPath] = text
	return nil
}

func (s *stubArtifactStore) ReadRootText(relPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.root[relPath]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrArtifactMissing, relPath)
	}
	return text, nil
}

// stubEmbeddingStore is an in-memory driven.EmbeddingStore.
type stubEmbeddingStore struct {
	mu   sync.Mutex
	rows []domain.Embedding
}

func newStubEmbeddingStore() *stubEmbeddingStore {
	return &stubEmbeddingStore{}
}

func (s *stubEmbeddingStore) Upsert(_ context.Context, e *domain.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].DocID == e.DocID && s.rows[i].SegmentID == e.SegmentID {
			s.rows[i] = *e
			return nil
		}
	}
	s.rows = append(s.rows, *e)
	return nil
}

func (s *stubEmbeddingStore) Get(_ context.Context, docID, segmentID string) (*domain.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].DocID == docID && s.rows[i].SegmentID == segmentID {
			clone := s.rows[i]
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("embedding %s/%s: %w", docID, segmentID, domain.ErrNotFound)
}

func (s *stubEmbeddingStore) Search(_ context.Context, query string, limit int) ([]domain.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(query)
	var out []domain.Embedding
	for i := range s.rows {
		if !strings.Contains(strings.ToLower(s.rows[i].Text), lower) {
			continue
		}
		out = append(out, s.rows[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// stubJobStore is an in-memory driven.JobStore.
type stubJobStore struct {
	mu   sync.Mutex
	jobs []*domain.Job
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{}
}

func (s *stubJobStore) Enqueue(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	if clone.Status == "" {
		clone.Status = domain.JobQueued
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.jobs = append(s.jobs, &clone)
	return nil
}

func (s *stubJobStore) Claim(_ context.Context, lane domain.Lane, leaseSeconds int) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, job := range s.jobs {
		if job.Lane != lane || job.Status != domain.JobQueued || job.NextRunAt.After(now) {
			continue
		}
		job.Status = domain.JobRunning
		job.Attempts++
		job.LockedUntil = now.Add(time.Duration(leaseSeconds) * time.Second)
		clone := *job
		return &clone, nil
	}
	return nil, nil
}

func (s *stubJobStore) Complete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID == jobID {
			job.Status = domain.JobDone
			return nil
		}
	}
	return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
}

func (s *stubJobStore) Fail(_ context.Context, jobID, lastError string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID != jobID {
			continue
		}
		job.LastError = lastError
		if job.Attempts >= maxAttempts {
			job.Status = domain.JobFailed
		} else {
			job.Status = domain.JobQueued
			job.NextRunAt = time.Now().UTC().Add(domain.RetryBackoff(job.Attempts))
		}
		return nil
	}
	return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
}

func (s *stubJobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ID == jobID {
			clone := *job
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
}

func (s *stubJobStore) Counts(_ context.Context) (map[domain.Lane]map[domain.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.Lane]map[domain.JobStatus]int)
	for _, job := range s.jobs {
		if counts[job.Lane] == nil {
			counts[job.Lane] = make(map[domain.JobStatus]int)
		}
		counts[job.Lane][job.Status]++
	}
	return counts, nil
}

// byKind returns stored jobs of one kind.
func (s *stubJobStore) byKind(kind domain.JobKind) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Kind == kind {
			out = append(out, *job)
		}
	}
	return out
}

// stubManifestStore is an in-memory driven.ManifestStore.
type stubManifestStore struct {
	mu        sync.Mutex
	manifests map[string]*domain.Manifest
}

func newStubManifestStore() *stubManifestStore {
	return &stubManifestStore{manifests: make(map[string]*domain.Manifest)}
}

func manifestKey(sourceID, sourceVersion string) string {
	return sourceID + "@" + sourceVersion
}

func (s *stubManifestStore) Upsert(_ context.Context, m *domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	s.manifests[manifestKey(m.SourceID, m.SourceVersion)] = &clone
	return nil
}

func (s *stubManifestStore) Get(_ context.Context, sourceID, sourceVersion string) (*domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.manifests[manifestKey(sourceID, sourceVersion)]
	if !ok {
		return nil, fmt.Errorf("manifest %s@%s: %w", sourceID, sourceVersion, domain.ErrNotFound)
	}
	clone := *m
	return &clone, nil
}

func (s *stubManifestStore) List(_ context.Context, limit int) ([]domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Manifest
	for _, m := range s.manifests {
		out = append(out, *m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// stubLLM is a canned driven.LLMService.
type stubLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func (s *stubLLM) Generate(_ context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubLLM) ModelName() string { return "stub-model" }

// stubScraper returns a canned page.
type stubScraper struct {
	page *driven.Page
	err  error
}

func (s *stubScraper) Scrape(_ context.Context, _ string) (*driven.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *stubScraper) Extract(_ []byte, _ string) (*driven.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

// stubGraph returns canned graph evidence.
type stubGraph struct {
	hits []domain.Evidence
	err  error
}

func (s *stubGraph) SearchGraph(_ context.Context, _ string, _ int) ([]domain.Evidence, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

// stubRunLog records appended entries.
type stubRunLog struct {
	mu      sync.Mutex
	entries []domain.RunEntry
}

func (s *stubRunLog) Append(_ context.Context, entry *domain.RunEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *stubRunLog) Recent(_ context.Context, limit int) ([]domain.RunEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.RunEntry(nil), s.entries...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

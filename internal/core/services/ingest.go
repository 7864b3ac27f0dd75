package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driving"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// Ensure IngestService implements the ingestor interface.
var _ driving.Ingestor = (*IngestService)(nil)

// Raw artifact paths written at intake.
const (
	rawHTMLPath = "raw/source.html"
)

// File extensions accepted by document ingest.
var (
	textExtensions  = map[string]bool{".txt": true, ".md": true, ".markdown": true}
	htmlExtensions  = map[string]bool{".html": true, ".htm": true}
	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}
)

// IngestConfig carries the intake policy knobs.
type IngestConfig struct {
	// PathAllowlist lists roots a file ingest may read from.
	PathAllowlist []string

	// PathAllowlistEnforced rejects paths resolving outside the roots.
	PathAllowlistEnforced bool
}

// IngestService accepts new sources: it resolves the content-addressed
// (source_id, source_version) pair, stores the raw bytes, creates the
// manifest, and enqueues the first pipeline stage. Re-ingesting identical
// content is a no-op.
type IngestService struct {
	jobs      driven.JobStore
	manifests driven.ManifestStore
	artifacts driven.ArtifactStore
	scraper   driven.Scraper
	cfg       IngestConfig
	now       func() time.Time
}

// NewIngestService creates the ingest service.
func NewIngestService(cfg IngestConfig, jobs driven.JobStore, manifests driven.ManifestStore, artifacts driven.ArtifactStore, scraper driven.Scraper) *IngestService {
	return &IngestService{
		jobs:      jobs,
		manifests: manifests,
		artifacts: artifacts,
		scraper:   scraper,
		cfg:       cfg,
		now:       time.Now,
	}
}

// IngestURL fetches the page once to content-address it, stores the raw
// HTML, and enqueues ingest_url.
func (s *IngestService) IngestURL(ctx context.Context, url string, annotations map[string]any) (string, string, error) {
	page, err := s.scraper.Scrape(ctx, url)
	if err != nil {
		return "", "", err
	}

	sourceID := domain.SourceID(domain.SourceKindURL, url)
	sourceVersion := domain.SourceVersionText(page.Text)

	done, err := s.alreadyIngested(ctx, sourceID, sourceVersion, domain.JobIngestURL)
	if err != nil {
		return "", "", err
	}
	if done {
		logger.Info("source %s@%s already ingested", sourceID, sourceVersion)
		return sourceID, sourceVersion, nil
	}

	if err := s.artifacts.WriteText(sourceID, sourceVersion, rawHTMLPath, page.HTML); err != nil {
		return "", "", fmt.Errorf("storing raw page: %w", err)
	}

	manifest := domain.NewManifest(sourceID, sourceVersion, string(domain.SourceKindURL), url)
	manifest.AddArtifact(domain.ArtifactRawSource, rawHTMLPath)
	if page.Title != "" {
		manifest.Metadata = map[string]any{"title": page.Title}
	}
	addAnnotations(manifest, annotations)

	if err := s.commit(ctx, manifest, domain.JobIngestURL); err != nil {
		return "", "", err
	}
	return sourceID, sourceVersion, nil
}

// IngestDoc reads a local file, content-addresses its bytes, stores them,
// and enqueues ingest_doc (or ingest_image for image extensions).
func (s *IngestService) IngestDoc(ctx context.Context, path string, annotations map[string]any) (string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidInput, path)
	}
	if err := s.checkAllowed(abs); err != nil {
		return "", "", err
	}

	ext := strings.ToLower(filepath.Ext(abs))
	kind := domain.JobIngestDoc
	sourceKind := domain.SourceKindFile
	switch {
	case textExtensions[ext], htmlExtensions[ext]:
	case imageExtensions[ext]:
		kind = domain.JobIngestImage
		sourceKind = domain.SourceKindImage
	default:
		return "", "", fmt.Errorf("%w: extension %q", domain.ErrUnsupportedType, ext)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", "", fmt.Errorf("reading source file: %w", err)
	}

	sourceID := domain.SourceID(sourceKind, abs)
	sourceVersion := domain.SourceVersion(data)

	done, err := s.alreadyIngested(ctx, sourceID, sourceVersion, kind)
	if err != nil {
		return "", "", err
	}
	if done {
		logger.Info("source %s@%s already ingested", sourceID, sourceVersion)
		return sourceID, sourceVersion, nil
	}

	rawPath := "raw/source" + ext
	if err := s.artifacts.WriteBytes(sourceID, sourceVersion, rawPath, data); err != nil {
		return "", "", fmt.Errorf("storing raw file: %w", err)
	}

	manifest := domain.NewManifest(sourceID, sourceVersion, string(sourceKind), abs)
	manifest.AddArtifact(domain.ArtifactRawSource, rawPath)
	addAnnotations(manifest, annotations)

	if err := s.commit(ctx, manifest, kind); err != nil {
		return "", "", err
	}
	return sourceID, sourceVersion, nil
}

// IngestYouTube registers a video source. The audio itself is fetched by
// the ingest_youtube stage, so the version addresses the URL.
func (s *IngestService) IngestYouTube(ctx context.Context, url string, annotations map[string]any) (string, string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", "", fmt.Errorf("%w: not a fetchable url: %q", domain.ErrInvalidInput, url)
	}

	sourceID := domain.SourceID(domain.SourceKindYouTube, url)
	sourceVersion := domain.SourceVersion([]byte(url))

	done, err := s.alreadyIngested(ctx, sourceID, sourceVersion, domain.JobIngestYouTube)
	if err != nil {
		return "", "", err
	}
	if done {
		logger.Info("source %s@%s already ingested", sourceID, sourceVersion)
		return sourceID, sourceVersion, nil
	}

	manifest := domain.NewManifest(sourceID, sourceVersion, string(domain.SourceKindYouTube), url)
	addAnnotations(manifest, annotations)

	if err := s.commit(ctx, manifest, domain.JobIngestYouTube); err != nil {
		return "", "", err
	}
	return sourceID, sourceVersion, nil
}

// alreadyIngested reports whether the ingest stage for this source pair has
// completed, making re-ingest a no-op.
func (s *IngestService) alreadyIngested(ctx context.Context, sourceID, sourceVersion string, kind domain.JobKind) (bool, error) {
	manifest, err := s.manifests.Get(ctx, sourceID, sourceVersion)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking manifest: %w", err)
	}
	return manifest.StepDone(kind), nil
}

// commit upserts the manifest and enqueues the first stage.
func (s *IngestService) commit(ctx context.Context, manifest *domain.Manifest, kind domain.JobKind) error {
	if err := s.manifests.Upsert(ctx, manifest); err != nil {
		return fmt.Errorf("upserting manifest: %w", err)
	}

	job := &domain.Job{
		ID:            uuid.NewString(),
		Kind:          kind,
		Lane:          domain.LaneFor(kind),
		Status:        domain.JobQueued,
		SourceID:      manifest.SourceID,
		SourceVersion: manifest.SourceVersion,
		NextRunAt:     s.now().UTC(),
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueuing %s: %w", kind, err)
	}
	logger.Debug("enqueued %s for %s@%s on lane %s", kind, manifest.SourceID, manifest.SourceVersion, job.Lane)
	return nil
}

// checkAllowed enforces the file ingest allow-list.
func (s *IngestService) checkAllowed(abs string) error {
	if !s.cfg.PathAllowlistEnforced {
		return nil
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	for _, root := range s.cfg.PathAllowlist {
		root = strings.TrimRight(root, string(filepath.Separator))
		if root == "" {
			continue
		}
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrPathNotAllowed, abs)
}

func addAnnotations(m *domain.Manifest, annotations map[string]any) {
	if len(annotations) == 0 {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata["annotations"] = annotations
}

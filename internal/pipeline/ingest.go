package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

// stageIngestURL re-extracts the stored raw page into canonical text. The
// fetch happened at intake, so this stage never touches the network.
func (p *Pipeline) stageIngestURL(_ context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.Scraper == nil {
		return nil, fmt.Errorf("%w: scraper not configured", domain.ErrUnsupportedType)
	}

	raw, err := p.readInputBytes(m, domain.ArtifactRawSource)
	if err != nil {
		return nil, err
	}

	page, err := p.deps.Scraper.Extract(raw, m.SourceURI)
	if err != nil {
		return nil, fmt.Errorf("extracting page content: %w", err)
	}

	text := strings.TrimSpace(page.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: no extractable content in %s", domain.ErrInvalidInput, m.SourceURI)
	}

	if err := p.deps.Artifacts.WriteText(m.SourceID, m.SourceVersion, relCanonicalText, text); err != nil {
		return nil, fmt.Errorf("writing canonical text: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactCanonicalText: relCanonicalText},
		detail:    map[string]any{"chars": len(text)},
	}, nil
}

// stageIngestDoc converts the stored raw file into canonical text. HTML
// files go through the extractor; plain text passes through.
func (p *Pipeline) stageIngestDoc(_ context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	raw, err := p.readInputBytes(m, domain.ArtifactRawSource)
	if err != nil {
		return nil, err
	}

	text := string(raw)
	ext := strings.ToLower(path.Ext(m.ArtifactPath(domain.ArtifactRawSource)))
	if ext == ".html" || ext == ".htm" {
		if p.deps.Scraper == nil {
			return nil, fmt.Errorf("%w: scraper not configured", domain.ErrUnsupportedType)
		}
		page, err := p.deps.Scraper.Extract(raw, m.SourceURI)
		if err != nil {
			return nil, fmt.Errorf("extracting html content: %w", err)
		}
		text = page.Text
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty document %s", domain.ErrInvalidInput, m.SourceURI)
	}

	if err := p.deps.Artifacts.WriteText(m.SourceID, m.SourceVersion, relCanonicalText, text); err != nil {
		return nil, fmt.Errorf("writing canonical text: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactCanonicalText: relCanonicalText},
		detail:    map[string]any{"chars": len(text)},
	}, nil
}

// stageIngestImage derives canonical text from the intake annotations. No
// vision model runs locally, so the text is whatever the operator supplied:
// context, caption, tags. The chunk and retrieval stages treat it like any
// other document.
func (p *Pipeline) stageIngestImage(_ context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	ann := manifestAnnotations(m)

	var parts []string
	if title, ok := m.Metadata["title"].(string); ok && title != "" {
		parts = append(parts, title)
	}
	for _, key := range []string{"context", "caption", "description"} {
		if v, ok := ann[key].(string); ok && strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	if tags := stringList(ann["tags"]); len(tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(tags, ", "))
	}

	text := strings.Join(parts, "\n\n")
	degraded := false
	if text == "" {
		text = "[image] " + m.SourceURI
		degraded = true
	}

	if err := p.deps.Artifacts.WriteText(m.SourceID, m.SourceVersion, relCanonicalText, text); err != nil {
		return nil, fmt.Errorf("writing canonical text: %w", err)
	}

	detail := map[string]any{"chars": len(text)}
	if degraded {
		detail["degraded"] = true
	}
	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactCanonicalText: relCanonicalText},
		detail:    detail,
	}, nil
}

// stageIngestYouTube downloads the source audio. Intake only registered the
// URL, so this is the first stage that produces bytes.
func (p *Pipeline) stageIngestYouTube(ctx context.Context, _ *domain.Job, m *domain.Manifest) (*stageOutput, error) {
	if p.deps.Media == nil {
		return nil, fmt.Errorf("%w: media fetcher not configured", domain.ErrUnsupportedType)
	}

	audio, err := p.deps.Media.FetchAudio(ctx, m.SourceURI)
	if err != nil {
		return nil, fmt.Errorf("fetching audio for %s: %w", m.SourceURI, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio stream for %s", domain.ErrInvalidInput, m.SourceURI)
	}

	if err := p.deps.Artifacts.WriteBytes(m.SourceID, m.SourceVersion, relSourceAudio, audio); err != nil {
		return nil, fmt.Errorf("writing source audio: %w", err)
	}

	return &stageOutput{
		artifacts: map[string]string{domain.ArtifactSourceAudio: relSourceAudio},
		detail:    map[string]any{"bytes": len(audio)},
	}, nil
}

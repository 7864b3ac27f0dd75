// Package scrape fetches web pages and extracts their main content as
// markdown for the url ingest stage.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
)

var _ driven.Scraper = (*Scraper)(nil)

// Default configuration values.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultUserAgent      = "aurora-cli/1.0"
	DefaultMaxContentSize = 10 << 20 // 10 MiB
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Config holds configuration for the web scraper.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	MaxContentSize int64
}

// Scraper fetches a page, runs readability extraction, and converts the
// main content to markdown.
type Scraper struct {
	client         *http.Client
	userAgent      string
	maxContentSize int64
	converter      *md.Converter
}

// NewScraper creates a web scraper.
func NewScraper(cfg Config) *Scraper {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxContentSize == 0 {
		cfg.MaxContentSize = DefaultMaxContentSize
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Scraper{
		client:         &http.Client{Timeout: cfg.Timeout},
		userAgent:      cfg.UserAgent,
		maxContentSize: cfg.MaxContentSize,
		converter:      converter,
	}
}

// Scrape fetches the URL and returns the extracted page. Network failures
// are retryable; extraction failures are not.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*driven.Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: not a fetchable url: %q", domain.ErrInvalidInput, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", domain.ErrRetryable, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: fetching %s: status %d", domain.ErrRetryable, rawURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxContentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrRetryable, rawURL, err)
	}

	return s.extract(body, parsed)
}

// Extract runs readability and markdown conversion over already-fetched
// HTML. The URL resolves relative links during extraction.
func (s *Scraper) Extract(html []byte, rawURL string) (*driven.Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidInput, rawURL)
	}
	return s.extract(html, parsed)
}

// extract runs readability over the raw HTML and converts the main content
// to markdown. Falls back to converting the whole document when readability
// finds nothing.
func (s *Scraper) extract(body []byte, pageURL *url.URL) (*driven.Page, error) {
	page := &driven.Page{HTML: string(body)}

	article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL)
	content := page.HTML
	if err == nil && strings.TrimSpace(article.Content) != "" {
		page.Title = strings.TrimSpace(article.Title)
		content = article.Content
	}

	markdown, err := s.converter.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("converting to markdown: %w", err)
	}
	page.Text = cleanMarkdown(markdown)
	if page.Text == "" {
		return nil, fmt.Errorf("%w: no extractable content at %s", domain.ErrUnsupportedType, pageURL)
	}

	if page.Title == "" {
		page.Title = markdownTitle(page.Text)
	}
	return page, nil
}

// cleanMarkdown collapses excessive blank lines and trims trailing spaces.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// markdownTitle returns the first H1 heading, if any.
func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

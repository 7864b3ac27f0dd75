package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Release Notes</title></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Release Notes</h1>
<p>This release improves the transcription pipeline. Audio segments are now
denoised before they reach the speech model, which cuts word error rates on
noisy recordings by a noticeable margin.</p>
<p>We also fixed a bug where retried jobs could lose their lane assignment
after a worker crash. Jobs now keep their lane through any number of retries
and the queue remains strictly first-in, first-out per lane.</p>
</article>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestScrape_ExtractsMainContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	scraper := NewScraper(Config{})

	page, err := scraper.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Release Notes", page.Title)
	assert.Contains(t, page.Text, "transcription pipeline")
	assert.Contains(t, page.HTML, "<article>")
	assert.NotContains(t, page.Text, "Copyright 2026")
}

func TestScrape_RejectsNonHTTPURLs(t *testing.T) {
	scraper := NewScraper(Config{})

	_, err := scraper.Scrape(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = scraper.Scrape(context.Background(), "not a url")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestScrape_ServerErrorsAreRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	scraper := NewScraper(Config{})

	_, err := scraper.Scrape(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, domain.Retryable(err))
}

func TestScrape_NotFoundIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	scraper := NewScraper(Config{})

	_, err := scraper.Scrape(context.Background(), server.URL)
	require.Error(t, err)
	assert.False(t, domain.Retryable(err))
}

func TestCleanMarkdown(t *testing.T) {
	in := "# Title  \n\n\n\n\n\nBody text\t\n"
	out := cleanMarkdown(in)
	assert.Equal(t, "# Title\n\n\nBody text", out)
}

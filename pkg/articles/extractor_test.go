package articles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkaakuHub/twix-saver/pkg/config"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Breaking News</title>
  <meta name="description" content="A short summary.">
  <meta property="og:image" content="https://example.com/lead.jpg">
  <style>body { color: red }</style>
</head>
<body>
  <nav>Home | About</nav>
  <article>
    <p>First paragraph of   the story.</p>
    <p>Second paragraph.</p>
  </article>
  <script>trackEverything()</script>
  <footer>copyright</footer>
</body>
</html>`

func newExtractor() *HTTPExtractor {
	cfg := config.DefaultConfig().Articles
	return NewHTTPExtractor(&cfg)
}

func TestExtractParsesMetadataAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	article, err := newExtractor().Extract(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Breaking News", article.Title)
	assert.Equal(t, "A short summary.", article.Description)
	assert.Equal(t, "https://example.com/lead.jpg", article.ImageURL)
	assert.Contains(t, article.CleanedText, "First paragraph of the story.")
	assert.Contains(t, article.CleanedText, "Second paragraph.")
	assert.NotContains(t, article.CleanedText, "trackEverything")
	assert.NotContains(t, article.CleanedText, "copyright")
	assert.NotEmpty(t, article.RetrievedAt)
}

func TestExtractRejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	_, err := newExtractor().Extract(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestExtractRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newExtractor().Extract(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestArticlePayloadOmitsEmptyFields(t *testing.T) {
	article := &Article{URL: "https://example.com", Title: "only title", RetrievedAt: "2024-01-01T00:00:00Z"}

	payload := article.Payload()

	assert.Equal(t, "https://example.com", payload["url"])
	assert.Equal(t, "only title", payload["title"])
	_, hasText := payload["cleaned_text"]
	assert.False(t, hasText)
	_, hasImage := payload["image_url"]
	assert.False(t, hasImage)
}

package articles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/AkaakuHub/twix-saver/pkg/config"
	xerrors "github.com/AkaakuHub/twix-saver/pkg/errors"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
)

// Article is the extracted content of one outbound link
type Article struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	CleanedText string `json:"cleaned_text,omitempty"`
	RetrievedAt string `json:"retrieved_at"`
}

// Extractor fetches and parses linked articles
type Extractor interface {
	Extract(ctx context.Context, url string) (*Article, error)
}

// HTTPExtractor extracts articles over plain HTTP. Pages behind paywalls or
// bot checks come back partial; whatever metadata is present is kept.
type HTTPExtractor struct {
	client *resty.Client
	log    logger.Logger
}

// NewHTTPExtractor creates an article extractor from config
func NewHTTPExtractor(cfg *config.ArticlesConfig) *HTTPExtractor {
	client := resty.New().
		SetTimeout(cfg.FetchTimeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	return &HTTPExtractor{
		client: client,
		log:    logger.GetLogger().WithField("component", "articles"),
	}
}

// Extract fetches one URL and pulls out its title, description, lead image
// and body text
func (e *HTTPExtractor) Extract(ctx context.Context, url string) (*Article, error) {
	resp, err := e.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, xerrors.Transient("article fetch failed: "+url, err)
	}
	if resp.StatusCode() != 200 {
		return nil, xerrors.Transient(fmt.Sprintf("article fetch returned %d: %s", resp.StatusCode(), url), nil)
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, xerrors.Transient("not an html page: "+url, nil)
	}

	doc, err := html.Parse(strings.NewReader(string(resp.Body())))
	if err != nil {
		return nil, xerrors.Transient("article parse failed: "+url, err)
	}

	article := &Article{
		URL:         url,
		RetrievedAt: time.Now().UTC().Format(time.RFC3339),
	}
	e.walk(doc, article)
	article.CleanedText = collapseWhitespace(article.CleanedText)

	return article, nil
}

func (e *HTTPExtractor) walk(n *html.Node, article *Article) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if article.Title == "" {
				article.Title = strings.TrimSpace(textContent(n))
			}
		case "meta":
			e.readMeta(n, article)
		case "script", "style", "noscript", "nav", "footer", "header", "aside":
			return
		case "p":
			article.CleanedText += " " + textContent(n)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c, article)
	}
}

func (e *HTTPExtractor) readMeta(n *html.Node, article *Article) {
	var name, property, content string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "name":
			name = attr.Val
		case "property":
			property = attr.Val
		case "content":
			content = attr.Val
		}
	}
	if content == "" {
		return
	}

	switch {
	case property == "og:title" && article.Title == "":
		article.Title = content
	case (name == "description" || property == "og:description") && article.Description == "":
		article.Description = content
	case property == "og:image" && article.ImageURL == "":
		article.ImageURL = content
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Payload converts the article to the map form the store persists
func (a *Article) Payload() map[string]any {
	payload := map[string]any{
		"url":          a.URL,
		"retrieved_at": a.RetrievedAt,
	}
	if a.Title != "" {
		payload["title"] = a.Title
	}
	if a.Description != "" {
		payload["description"] = a.Description
	}
	if a.ImageURL != "" {
		payload["image_url"] = a.ImageURL
	}
	if a.CleanedText != "" {
		payload["cleaned_text"] = a.CleanedText
	}
	return payload
}

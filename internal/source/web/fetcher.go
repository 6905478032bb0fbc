// Package web fetches web pages and converts their main content to Markdown.
package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"ragchat/internal/httpx"
	"ragchat/internal/source"
)

const userAgent = "Mozilla/5.0 (compatible; ragchat/1.0)"

// Fetcher implements source.PageFetcher.
type Fetcher struct {
	client *httpx.Client
}

var _ source.PageFetcher = (*Fetcher)(nil)

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := httpx.New(timeout, 0)
	c.MaxRetries = 2
	return &Fetcher{client: c}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (source.Page, error) {
	body, err := f.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8")
		return req, nil
	})
	if err != nil {
		return source.Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	return Convert(url, body)
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// Convert extracts the title and main content of an HTML document.
// Plain-text bodies are returned as-is.
func Convert(baseURL string, body []byte) (source.Page, error) {
	if !looksLikeHTML(body) {
		return source.Page{Markdown: strings.TrimSpace(string(body))}, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return source.Page{}, fmt.Errorf("parse html: %w", err)
	}
	title := extractTitle(doc)

	doc.Find("script, style, noscript, nav, footer, aside, iframe, form, svg").Remove()

	content := doc.Find("main, article, [role=main], .content, .main-content, #content, #main").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	html, err := goquery.OuterHtml(content)
	if err != nil {
		return source.Page{}, fmt.Errorf("render html: %w", err)
	}

	converter := md.NewConverter(baseURL, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return source.Page{}, fmt.Errorf("convert markdown: %w", err)
	}
	markdown = blankLinesRe.ReplaceAllString(strings.TrimSpace(markdown), "\n\n")
	return source.Page{Title: title, Markdown: markdown}, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) ||
		bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<body")) ||
		bytes.Contains(head, []byte("<head"))
}

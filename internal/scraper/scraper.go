// Package scraper pulls a representative image out of an article page. It is
// best-effort by nature and sits behind an interface so the pipeline can run
// with it disabled or stubbed.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// pages are read at most this far; metadata lives near the top
	maxBodyBytes = 700_000
)

type Scraper struct {
	http *http.Client
}

func New() *Scraper {
	return &Scraper{
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

// ArticleImage fetches the page and returns the best metadata image URL,
// resolved against the final (post-redirect) page URL. Empty string means no
// image was found; that is not an error.
func (s *Scraper) ArticleImage(ctx context.Context, pageURL string) (string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http status %d", resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return ExtractImage(doc, finalURL), nil
}

// ExtractImage walks the usual metadata locations in priority order and
// returns the first usable URL, resolved against the page URL.
func ExtractImage(doc *goquery.Document, pageURL string) string {
	selectors := []struct {
		query string
		attr  string
	}{
		{`meta[property="og:image"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`link[rel="image_src"]`, "href"},
		{`img[src]`, "src"},
	}

	for _, sel := range selectors {
		raw, ok := doc.Find(sel.query).First().Attr(sel.attr)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		return resolveAgainst(pageURL, raw)
	}
	return ""
}

func resolveAgainst(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

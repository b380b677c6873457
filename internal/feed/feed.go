// Package feed fetches RSS/Atom sources and normalizes them into Entry values.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one normalized news item. Entries are ephemeral: fetched fresh each
// cycle and never persisted individually (only their ids enter the seen-set).
type Entry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published"`
	ImageURL  string `json:"image_url"`
}

// UID returns the dedup id: feed guid, else link, else title.
func (e Entry) UID() string {
	for _, v := range []string{e.ID, e.Link, e.Title} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Fetcher struct {
	parser *gofeed.Parser
}

func NewFetcher() *Fetcher {
	p := gofeed.NewParser()
	p.UserAgent = browserUserAgent
	p.Client = &http.Client{Timeout: 20 * time.Second}
	return &Fetcher{parser: p}
}

// Fetch downloads one feed and returns its normalized entries in document
// order. Fetch and parse failures propagate so the caller can count the
// source as failed for this cycle.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Entry, error) {
	doc, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", url, err)
	}
	return Normalize(doc), nil
}

// Normalize maps a parsed feed into entries. It is a pure function of the
// parsed document: the same feed bytes always yield the same entries.
func Normalize(doc *gofeed.Feed) []Entry {
	entries := make([]Entry, 0, len(doc.Items))
	for _, item := range doc.Items {
		entries = append(entries, entryFromItem(item))
	}
	return entries
}

func entryFromItem(item *gofeed.Item) Entry {
	link := NormalizeLink(item.Link)

	published := strings.TrimSpace(item.Published)
	if published == "" {
		published = strings.TrimSpace(item.Updated)
	}

	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = link
	}
	if id == "" {
		id = strings.TrimSpace(item.Title)
	}

	return Entry{
		ID:        id,
		Title:     strings.TrimSpace(item.Title),
		Link:      link,
		Published: published,
		ImageURL:  NormalizeImageURL(itemImageURL(item)),
	}
}

// itemImageURL picks a thumbnail in fixed priority order: the item's image
// element, then media:content / media:thumbnail, then an image enclosure.
// First non-empty match wins.
func itemImageURL(item *gofeed.Item) string {
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return strings.TrimSpace(item.Image.URL)
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if url := strings.TrimSpace(ext.Attrs["url"]); url != "" {
					return url
				}
			}
		}
	}

	for _, enc := range item.Enclosures {
		url := strings.TrimSpace(enc.URL)
		if url != "" && strings.HasPrefix(strings.ToLower(enc.Type), "image") {
			return url
		}
	}

	return ""
}

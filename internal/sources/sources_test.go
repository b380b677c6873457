package sources

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	reg := Default()

	if reg.Len() != 9 {
		t.Fatalf("expected 9 built-in sources, got %d", reg.Len())
	}
	for _, s := range reg.All() {
		if s.Name == "" || s.Domain == "" || s.FeedURL == "" {
			t.Errorf("built-in source incomplete: %+v", s)
		}
	}
	if first := reg.All()[0].Name; first != "NYP" {
		t.Errorf("registration order must be stable, first = %q", first)
	}
}

func TestFind(t *testing.T) {
	reg := Default()

	s, ok := reg.Find("WSJ")
	if !ok || s.Domain != "wsj.com" {
		t.Errorf("Find(WSJ) = %+v, %v", s, ok)
	}
	if _, ok := reg.Find("Nonexistent Daily"); ok {
		t.Error("Find must report unknown labels")
	}
}

func TestLogoCandidates(t *testing.T) {
	s := Source{Name: "WSJ", Domain: "wsj.com"}

	logos := s.LogoCandidates()
	if len(logos) != 2 {
		t.Fatalf("expected 2 logo candidates, got %d", len(logos))
	}
	if !strings.Contains(logos[0], "logo.clearbit.com/wsj.com") {
		t.Errorf("primary candidate should be the clearbit logo, got %q", logos[0])
	}
	if !strings.Contains(logos[1], "favicons?domain=wsj.com") {
		t.Errorf("fallback candidate should be the favicon service, got %q", logos[1])
	}

	if got := (Source{Name: "X"}).LogoCandidates(); got != nil {
		t.Errorf("no domain means no candidates, got %v", got)
	}
}

func TestNewDerivesSearchFeed(t *testing.T) {
	reg := New([]Source{{Name: "Example", Domain: "example.com"}})

	feed := reg.All()[0].FeedURL
	if !strings.Contains(feed, "news.google.com/rss/search") {
		t.Errorf("missing feed URL should derive a search feed, got %q", feed)
	}
	if !strings.Contains(feed, "site%3Aexample.com") {
		t.Errorf("derived feed should query the source domain, got %q", feed)
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `sources:
  - name: WSJ
    domain: wsj.com
    url: https://feeds.a.dj.com/rss/RSSWorldNews.xml
  - name: Example
    domain: example.com
`
	path := filepath.Join(t.TempDir(), "sources.yml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 sources, got %d", reg.Len())
	}
	if got := reg.All()[0].FeedURL; got != "https://feeds.a.dj.com/rss/RSSWorldNews.xml" {
		t.Errorf("explicit url must be kept, got %q", got)
	}
	if got := reg.All()[1].FeedURL; !strings.Contains(got, "news.google.com") {
		t.Errorf("url-less source should get a derived feed, got %q", got)
	}
}

func TestLoadRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"missing name":           "sources:\n  - domain: example.com\n",
		"missing url and domain": "sources:\n  - name: Ghost\n",
	}
	for label, doc := range cases {
		path := filepath.Join(t.TempDir(), "sources.yml")
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected a validation error", label)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("expected an error for a missing sources file")
	}
}

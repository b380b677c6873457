// Package sources holds the static registry of news sources. The registry is
// built once at startup and never mutated afterwards.
package sources

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Source is one news provider: a display label, its primary domain and the
// feed URL polled each cycle.
type Source struct {
	Name    string `yaml:"name"`
	Domain  string `yaml:"domain"`
	FeedURL string `yaml:"url"`
}

// LogoCandidates returns fallback images for the source, primary CDN first.
func (s Source) LogoCandidates() []string {
	if s.Domain == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("https://logo.clearbit.com/%s", s.Domain),
		fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=256", s.Domain),
	}
}

// Registry is an ordered list of sources. Order matters: entries are
// delivered in source order within a cycle.
type Registry struct {
	sources []Source
}

// All returns the sources in registration order.
func (r *Registry) All() []Source {
	return r.sources
}

func (r *Registry) Len() int {
	return len(r.sources)
}

// Find looks a source up by its label.
func (r *Registry) Find(name string) (Source, bool) {
	for _, s := range r.sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Default builds the built-in registry. Sources without an explicit feed URL
// get a derived Google News site-search feed for their domain.
func Default() *Registry {
	srcs := []Source{
		{Name: "NYP", Domain: "nypost.com", FeedURL: "https://nypost.com/feed/"},
		{Name: "WaPo", Domain: "washingtonpost.com", FeedURL: "https://feeds.washingtonpost.com/rss/world"},
		{Name: "Politico", Domain: "politico.com", FeedURL: "https://rss.politico.com/politics-news.xml"},
		{Name: "Economist", Domain: "economist.com", FeedURL: "https://www.bing.com/news/search?q=site%3Aeconomist.com&format=rss"},
		{Name: "WSJ", Domain: "wsj.com", FeedURL: "https://feeds.a.dj.com/rss/RSSWorldNews.xml"},
		{Name: "AP NEWS", Domain: "apnews.com", FeedURL: "https://www.bing.com/news/search?q=site%3Aapnews.com&format=rss"},
		{Name: "The Atlantic", Domain: "theatlantic.com", FeedURL: "https://www.theatlantic.com/feed/channel/news/"},
		{Name: "Reuters", Domain: "reuters.com", FeedURL: "https://www.bing.com/news/search?q=site%3Areuters.com&format=rss"},
		{Name: "SCMP", Domain: "scmp.com", FeedURL: "https://www.scmp.com/rss/91/feed"},
	}
	return newRegistry(srcs)
}

// Load reads a YAML sources file:
//
//	sources:
//	  - name: WSJ
//	    domain: wsj.com
//	    url: https://feeds.a.dj.com/rss/RSSWorldNews.xml
//
// Sources without a url get the derived search feed for their domain.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc struct {
		Sources []Source `yaml:"sources"`
	}
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing sources file %s: %w", path, err)
	}
	for i, s := range doc.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if s.FeedURL == "" && s.Domain == "" {
			return nil, fmt.Errorf("source %q: needs a url or a domain", s.Name)
		}
	}
	return newRegistry(doc.Sources), nil
}

// New builds a registry from an explicit source list, deriving search feeds
// for sources without a URL.
func New(srcs []Source) *Registry {
	return newRegistry(srcs)
}

func newRegistry(srcs []Source) *Registry {
	for i := range srcs {
		if srcs[i].FeedURL == "" {
			srcs[i].FeedURL = googleNewsSearchURL(srcs[i].Domain)
		}
	}
	return &Registry{sources: srcs}
}

func googleNewsSearchURL(domain string) string {
	q := url.QueryEscape("site:" + domain)
	return fmt.Sprintf("https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en", q)
}

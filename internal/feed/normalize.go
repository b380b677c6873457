package feed

import (
	"net/url"
	"regexp"
	"strings"
)

// NormalizeLink unwraps known redirect/tracking wrappers. Currently that is
// the Bing News click wrapper, which carries the real article URL in a query
// parameter. Anything unrecognized (including unparseable URLs) passes
// through unchanged.
func NormalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	host := strings.ToLower(u.Hostname())
	if strings.HasSuffix(host, "bing.com") && strings.HasPrefix(u.Path, "/news/apiclick.aspx") {
		if raw := u.Query().Get("url"); raw != "" {
			if unescaped, err := url.QueryUnescape(raw); err == nil {
				return unescaped
			}
			return raw
		}
	}

	return link
}

var (
	googleSizeRe  = regexp.MustCompile(`=s0-w\d+(-rw)?`)
	googleWidthRe = regexp.MustCompile(`=w\d+-h\d+(-p)?`)
)

// NormalizeImageURL forces https and rewrites two known CDN shapes to request
// a larger rendition. Bing News thumbnails default to 100x100; Google-hosted
// images embed width parameters in the path. Unrecognized shapes and
// malformed URLs pass through unchanged.
func NormalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") {
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.ToLower(u.Hostname())

	if strings.HasSuffix(host, "bing.com") && u.Path == "/th" {
		q := u.Query()
		if q.Get("id") != "" || q.Get("thid") != "" {
			q.Set("w", "1600")
			q.Set("h", "900")
			q.Set("c", "14")
			q.Set("rs", "1")
			u.RawQuery = q.Encode()
			return u.String()
		}
	}

	if strings.HasSuffix(host, "googleusercontent.com") {
		raw = googleSizeRe.ReplaceAllString(raw, "=s0-w1600-rw")
		raw = googleWidthRe.ReplaceAllString(raw, "=w1600-h900-p")
		return raw
	}

	return raw
}

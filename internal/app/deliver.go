package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mkravets/newsdrop/internal/digest"
	"github.com/mkravets/newsdrop/internal/feed"
	"github.com/mkravets/newsdrop/internal/logger"
	"github.com/mkravets/newsdrop/internal/metrics"
	"github.com/mkravets/newsdrop/internal/state"
	"github.com/mkravets/newsdrop/internal/telegram"
)

// fallbackImage is the last photo candidate when everything else fails;
// Telegram still renders the caption under it.
const fallbackImage = "https://upload.wikimedia.org/wikipedia/commons/thumb/a/ac/No_image_available.svg/512px-No_image_available.svg.png"

// deliverItem pushes one entry as a photo with caption, walking an ordered
// candidate list: the entry's own image, then the article page image, then
// the source logos, then a placeholder. Each candidate gets one attempt and
// duplicates are skipped. If every photo fails the caption goes out as plain
// text; if that also fails the item is surfaced to the caller for retry next
// cycle.
func (a *App) deliverItem(ctx context.Context, source string, e feed.Entry, prefix string) error {
	caption := a.buildCaption(source, e, prefix)

	var articleImage string
	if a.scraper != nil && a.cfg.FetchArticleImage {
		img, err := a.scraper.ArticleImage(ctx, strings.TrimSpace(e.Link))
		if err != nil {
			logger.Warn("article image scrape failed", "source", source, "error", err)
		} else {
			articleImage = feed.NormalizeImageURL(img)
		}
	}

	candidates := []string{
		feed.NormalizeImageURL(strings.TrimSpace(e.ImageURL)),
		articleImage,
	}
	if src, ok := a.registry.Find(source); ok {
		for _, logo := range src.LogoCandidates() {
			candidates = append(candidates, feed.NormalizeImageURL(logo))
		}
	}
	candidates = append(candidates, fallbackImage)

	tried := make(map[string]struct{})
	for _, photoURL := range candidates {
		if photoURL == "" {
			continue
		}
		if _, dup := tried[photoURL]; dup {
			continue
		}
		tried[photoURL] = struct{}{}

		if err := a.msg.SendPhoto(photoURL, caption); err != nil {
			logger.Warn("sendPhoto failed, trying next candidate", "source", source, "url", photoURL, "error", err)
			continue
		}
		return nil
	}

	// Telegram often cannot fetch a remote image the browser can; the news
	// itself must still go out.
	if err := a.msg.SendMessage(caption); err != nil {
		return fmt.Errorf("all photo candidates and the text fallback failed for %s: %w", source, err)
	}
	logger.Info("photo delivery exhausted, degraded to text", "source", source)
	return nil
}

func (a *App) buildCaption(source string, e feed.Entry, prefix string) string {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		title = "(无标题)"
	}

	published := strings.TrimSpace(e.Published)
	if published == "" {
		published = a.now().UTC().Format("2006-01-02 15:04 UTC")
	}

	text := strings.TrimSpace(fmt.Sprintf("%s[%s]\n%s\n%s\n%s",
		prefix, source, title, published, strings.TrimSpace(e.Link)))
	return telegram.TruncateCaption(text)
}

// flushNightDigest sends the buffered quiet-hours items on the first active
// cycle of a new day: as one compact summary above the threshold, item by
// item otherwise. last_digest_date advances only when nothing is left
// behind; failed items stay buffered for the next eligible cycle.
func (a *App) flushNightDigest(ctx context.Context, st *state.State, today string, nowLocal time.Time) {
	buffered := st.NightBuffer
	if len(buffered) == 0 {
		return
	}

	logger.Info("flushing night digest", "items", len(buffered))

	if len(buffered) > a.cfg.AISummaryThreshold {
		items := make([]digest.Item, 0, len(buffered))
		for _, b := range buffered {
			items = append(items, digest.Item{Source: b.Source, Entry: b.Entry})
		}
		text := a.composer.Compose(ctx, items, nowLocal)
		if err := a.msg.SendMessage(text); err != nil {
			logger.Error("night digest summary failed, falling back to per-item delivery", "error", err)
		} else {
			st.NightBuffer = nil
			st.LastDigestDate = today
			metrics.Global.SummarySent()
			logger.Info("night digest summarized", "covered", len(buffered))
			return
		}
	}

	var remain []state.BufferedItem
	okCount, failCount := 0, 0
	for _, b := range buffered {
		if err := a.deliverItem(ctx, b.Source, b.Entry, "[夜间汇总] "); err != nil {
			failCount++
			remain = append(remain, b)
			logger.Error("night digest push failed", "source", b.Source, "error", err)
			continue
		}
		okCount++
	}

	if failCount > 0 {
		// keep failed items for retry and do not advance the digest date
		st.NightBuffer = remain
		logger.Warn("night digest partially failed, will retry the rest", "ok", okCount, "failed", failCount)
		return
	}

	st.NightBuffer = nil
	st.LastDigestDate = today
}

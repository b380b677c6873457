// Package app ties the pipeline together: one cycle fetches every source,
// filters new major entries, routes them through the quiet-hours scheduler
// and the delivery engine, and persists state with run telemetry.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mkravets/newsdrop/internal/config"
	"github.com/mkravets/newsdrop/internal/digest"
	"github.com/mkravets/newsdrop/internal/feed"
	"github.com/mkravets/newsdrop/internal/filter"
	"github.com/mkravets/newsdrop/internal/logger"
	"github.com/mkravets/newsdrop/internal/metrics"
	"github.com/mkravets/newsdrop/internal/sources"
	"github.com/mkravets/newsdrop/internal/state"
)

// Messenger delivers to the notification channel.
type Messenger interface {
	SendMessage(text string) error
	SendPhoto(photoURL, caption string) error
}

// FeedFetcher pulls one source's normalized entries.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]feed.Entry, error)
}

// ImageScraper extracts a best-effort image from an article page.
type ImageScraper interface {
	ArticleImage(ctx context.Context, pageURL string) (string, error)
}

type App struct {
	cfg      *config.Config
	registry *sources.Registry
	store    *state.Store
	matcher  *filter.Matcher
	msg      Messenger
	fetcher  FeedFetcher
	scraper  ImageScraper // nil disables article image scraping
	composer *digest.Composer

	now func() time.Time
}

func New(cfg *config.Config, reg *sources.Registry, store *state.Store,
	msg Messenger, fetcher FeedFetcher, scraper ImageScraper, composer *digest.Composer) *App {
	return &App{
		cfg:      cfg,
		registry: reg,
		store:    store,
		matcher:  filter.Compile(cfg.MajorKeywords),
		msg:      msg,
		fetcher:  fetcher,
		scraper:  scraper,
		composer: composer,
		now:      time.Now,
	}
}

// RunLoop executes cycles until the context is canceled. With once set it
// executes exactly one cycle and returns.
func (a *App) RunLoop(ctx context.Context, once bool) {
	st := a.store.Load()
	st.Seen = state.PruneSeen(st.Seen, a.cfg.SeenTTLHours, a.now())

	logger.Info("starting poll loop",
		"interval", a.cfg.PollInterval,
		"sources", a.registry.Len(),
		"tz", a.cfg.TZName,
		"quiet_start", a.cfg.QuietHourStart,
		"quiet_end", a.cfg.QuietHourEnd,
	)

	for {
		a.safeCycle(ctx, st)

		if once {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.PollInterval):
		}
	}
}

// safeCycle contains any failure inside the cycle body, including panics, so
// the loop always proceeds to the next tick.
func (a *App) safeCycle(ctx context.Context, st *state.State) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle panicked", "panic", r)
			metrics.Global.SetError(fmt.Sprintf("panic: %v", r))
		}
	}()

	start := time.Now()
	if err := a.runCycle(ctx, st); err != nil {
		logger.Error("cycle failed", "error", err)
		metrics.Global.SetError(err.Error())
		return
	}
	metrics.Global.CycleCompleted(time.Since(start))
}

type candidate struct {
	source string
	entry  feed.Entry
	uid    string
}

type cycleTally struct {
	sourcesOK     int
	sourcesFail   int
	entriesTotal  int
	skippedSeen   int
	skippedMajor  int
	pushedOK      int
	pushedFail    int
	bufferedAdded int
}

func (a *App) runCycle(ctx context.Context, st *state.State) error {
	nowLocal := a.now().In(a.cfg.Location)
	cycleTS := a.now().Unix()
	today := nowLocal.Format("2006-01-02")
	quietNow := isQuietHour(nowLocal.Hour(), a.cfg.QuietHourStart, a.cfg.QuietHourEnd)

	if !quietNow && nowLocal.Hour() >= a.cfg.QuietHourEnd && st.LastDigestDate != today {
		a.flushNightDigest(ctx, st, today, nowLocal)
	}

	var tally cycleTally
	newItems := a.collectNewItems(ctx, st, &tally)

	st.Seen = state.PruneSeen(st.Seen, a.cfg.SeenTTLHours, a.now())

	if tally.sourcesOK == 0 {
		logger.Warn("every source failed this cycle", "sources_fail", tally.sourcesFail)
	}
	if tally.entriesTotal > 0 && len(newItems) == 0 {
		logger.Info("no new entries this cycle",
			"entries_total", tally.entriesTotal,
			"skipped_seen", tally.skippedSeen,
			"skipped_major", tally.skippedMajor,
		)
	}

	if !st.Initialized {
		// Seed the seen-set on the very first run so the historical backlog
		// is never delivered.
		for _, it := range newItems {
			st.MarkSeen(it.uid, cycleTS)
		}
		st.Initialized = true
		if err := a.store.Save(st); err != nil {
			return fmt.Errorf("saving bootstrap state: %w", err)
		}
		if a.cfg.BootstrapSilent {
			logger.Info("bootstrap complete, seen cache seeded silently", "seeded", len(newItems))
			return nil
		}
	}

	if quietNow {
		a.bufferQuietItems(st, newItems, cycleTS, &tally)
	} else {
		a.deliverActiveItems(ctx, st, newItems, nowLocal, cycleTS, &tally)
	}

	st.LastRun = a.buildLastRun(nowLocal, quietNow, tally, len(newItems), len(st.NightBuffer), len(st.Seen))
	if err := a.store.Save(st); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	metrics.Global.AddSourcesFailed(tally.sourcesFail)
	metrics.Global.AddItemsDelivered(tally.pushedOK)
	metrics.Global.AddDeliveryFailures(tally.pushedFail)
	metrics.Global.AddItemsBuffered(tally.bufferedAdded)

	logger.Info("cycle summary",
		"tz", a.cfg.TZName,
		"local_hour", nowLocal.Hour(),
		"quiet", quietNow,
		"sources_ok", tally.sourcesOK,
		"sources_fail", tally.sourcesFail,
		"entries_total", tally.entriesTotal,
		"new", len(newItems),
		"pushed_ok", tally.pushedOK,
		"pushed_fail", tally.pushedFail,
		"skipped_seen", tally.skippedSeen,
		"skipped_major", tally.skippedMajor,
		"buffered", len(st.NightBuffer),
		"buffered_added", tally.bufferedAdded,
	)
	return nil
}

// collectNewItems fetches every source sequentially and returns unseen major
// entries, capped per source. Source failures are counted, never fatal.
func (a *App) collectNewItems(ctx context.Context, st *state.State, tally *cycleTally) []candidate {
	var newItems []candidate
	cycleSeen := make(map[string]struct{})

	for _, src := range a.registry.All() {
		entries, err := a.fetcher.Fetch(ctx, src.FeedURL)
		if err != nil {
			tally.sourcesFail++
			logger.Error("source fetch failed", "source", src.Name, "error", err)
			continue
		}
		tally.sourcesOK++
		tally.entriesTotal += len(entries)

		perSource := 0
		for _, e := range entries {
			uid := e.UID()
			if uid == "" {
				continue
			}
			if st.IsSeen(uid) {
				tally.skippedSeen++
				continue
			}
			if _, dup := cycleSeen[uid]; dup {
				continue
			}
			if a.cfg.MajorOnly && !a.matcher.IsMajor(e.Title) {
				tally.skippedMajor++
				continue
			}

			cycleSeen[uid] = struct{}{}
			newItems = append(newItems, candidate{source: src.Name, entry: e, uid: uid})
			perSource++
			if perSource >= a.cfg.MaxItemsPerSource {
				break
			}
		}
	}
	return newItems
}

func (a *App) bufferQuietItems(st *state.State, items []candidate, cycleTS int64, tally *cycleTally) {
	for _, it := range items {
		if len(st.NightBuffer) >= a.cfg.NightDigestMax {
			break
		}
		st.NightBuffer = append(st.NightBuffer, state.BufferedItem{Source: it.source, Entry: it.entry})
		st.MarkSeen(it.uid, cycleTS)
		tally.bufferedAdded++
	}
	if tally.bufferedAdded > 0 {
		logger.Info("quiet hours active, buffered for the morning digest", "added", tally.bufferedAdded)
	}
}

func (a *App) deliverActiveItems(ctx context.Context, st *state.State, items []candidate,
	nowLocal time.Time, cycleTS int64, tally *cycleTally) {
	if len(items) == 0 {
		return
	}

	if len(items) > a.cfg.AISummaryThreshold {
		text := a.composer.Compose(ctx, toDigestItems(items), nowLocal)
		if err := a.msg.SendMessage(text); err != nil {
			logger.Error("summary push failed, falling back to per-item delivery", "error", err)
		} else {
			for _, it := range items {
				st.MarkSeen(it.uid, cycleTS)
			}
			tally.pushedOK++
			metrics.Global.SummarySent()
			logger.Info("pushed compact summary", "covered", len(items))
			return
		}
	}

	for _, it := range items {
		if err := a.deliverItem(ctx, it.source, it.entry, ""); err != nil {
			tally.pushedFail++
			logger.Error("push failed", "source", it.source, "error", err)
			continue
		}
		st.MarkSeen(it.uid, cycleTS)
		tally.pushedOK++
		logger.Info("pushed", "source", it.source, "title", it.entry.Title)
	}
}

func toDigestItems(items []candidate) []digest.Item {
	out := make([]digest.Item, 0, len(items))
	for _, it := range items {
		out = append(out, digest.Item{Source: it.source, Entry: it.entry})
	}
	return out
}

package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mkravets/newsdrop/internal/config"
	"github.com/mkravets/newsdrop/internal/digest"
	"github.com/mkravets/newsdrop/internal/feed"
	"github.com/mkravets/newsdrop/internal/sources"
	"github.com/mkravets/newsdrop/internal/state"
)

const testFeedURL = "https://feeds.example/src"

type photoSend struct {
	url     string
	caption string
}

// fakeMessenger records sends; photoErr fails every photo, msgErrFor can fail
// selected text messages.
type fakeMessenger struct {
	messages  []string
	photos    []photoSend
	photoErr  error
	msgErrFor func(text string) error
}

func (m *fakeMessenger) SendMessage(text string) error {
	if m.msgErrFor != nil {
		if err := m.msgErrFor(text); err != nil {
			return err
		}
	}
	m.messages = append(m.messages, text)
	return nil
}

func (m *fakeMessenger) SendPhoto(photoURL, caption string) error {
	if m.photoErr != nil {
		return m.photoErr
	}
	m.photos = append(m.photos, photoSend{url: photoURL, caption: caption})
	return nil
}

type fakeFetcher struct {
	entries map[string][]feed.Entry
	errs    map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]feed.Entry, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.entries[url], nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		TelegramToken:      "token",
		TelegramChatID:     "42",
		PollInterval:       time.Minute,
		MaxItemsPerSource:  50,
		StateFile:          filepath.Join(t.TempDir(), "state.json"),
		SeenTTLHours:       72,
		QuietHourStart:     23,
		QuietHourEnd:       9,
		NightDigestMax:     40,
		BootstrapSilent:    true,
		AISummaryThreshold: 10,
		AISummaryMaxItems:  30,
		TZName:             "UTC",
		Location:           time.UTC,
	}
}

// middayTest is well outside the 23-9 quiet window.
var middayTest = time.Date(2024, 8, 5, 12, 0, 0, 0, time.UTC)

func newTestApp(cfg *config.Config, msg Messenger, fetcher FeedFetcher) (*App, *state.Store) {
	store := state.NewStore(cfg.StateFile)
	composer := &digest.Composer{TZName: cfg.TZName, MaxItems: cfg.AISummaryMaxItems}
	a := New(cfg, testRegistry(), store, msg, fetcher, nil, composer)
	a.now = func() time.Time { return middayTest }
	return a, store
}

func testRegistry() *sources.Registry {
	return sources.New([]sources.Source{
		{Name: "SRC", Domain: "src.example", FeedURL: testFeedURL},
	})
}

func wireEntries(n int) []feed.Entry {
	out := make([]feed.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, feed.Entry{
			ID:        fmt.Sprintf("guid-%d", i),
			Title:     fmt.Sprintf("Breaking story %d", i),
			Link:      fmt.Sprintf("https://src.example/%d", i),
			Published: "2024-08-05 10:00 UTC",
		})
	}
	return out
}

func initializedState() *state.State {
	return &state.State{
		Initialized: true,
		Seen:        map[string]int64{},
		NightBuffer: []state.BufferedItem{},
	}
}

func TestBootstrapSeedsWithoutSending(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, store := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(2)}})

	st := store.Load()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.messages) != 0 || len(msg.photos) != 0 {
		t.Errorf("bootstrap must not deliver anything, got %d messages, %d photos",
			len(msg.messages), len(msg.photos))
	}
	if !st.Initialized {
		t.Error("state should be initialized after the first cycle")
	}
	for _, uid := range []string{"guid-0", "guid-1"} {
		if !st.IsSeen(uid) {
			t.Errorf("backlog id %q should be seeded as seen", uid)
		}
	}

	reloaded := store.Load()
	if !reloaded.Initialized || len(reloaded.Seen) != 2 {
		t.Error("seeded state must be persisted")
	}
}

func TestBootstrapLoudWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.BootstrapSilent = false
	msg := &fakeMessenger{}
	a, store := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(2)}})

	if err := a.runCycle(context.Background(), store.Load()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 2 {
		t.Errorf("loud bootstrap should deliver the first batch, got %d photos", len(msg.photos))
	}
}

func TestActiveDeliveryPerItem(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(3)}})

	st := initializedState()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 3 {
		t.Fatalf("expected one photo per item, got %d", len(msg.photos))
	}
	if !strings.Contains(msg.photos[0].caption, "[SRC]") ||
		!strings.Contains(msg.photos[0].caption, "Breaking story 0") {
		t.Errorf("caption should carry source and title:\n%s", msg.photos[0].caption)
	}
	for i := 0; i < 3; i++ {
		if !st.IsSeen(fmt.Sprintf("guid-%d", i)) {
			t.Errorf("delivered item guid-%d must be marked seen", i)
		}
	}
	if st.LastRun == nil || st.LastRun.PushedOK != 3 {
		t.Errorf("run telemetry should record 3 pushes, got %+v", st.LastRun)
	}
}

func TestFailedDeliveryLeavesItemUnseen(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{
		photoErr: errors.New("image rejected"),
		msgErrFor: func(text string) error {
			if strings.Contains(text, "Breaking story 1") {
				return errors.New("network blip")
			}
			return nil
		},
	}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(3)}})

	st := initializedState()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if st.IsSeen("guid-1") {
		t.Error("a fully failed item must stay unseen for retry next cycle")
	}
	if !st.IsSeen("guid-0") || !st.IsSeen("guid-2") {
		t.Error("delivered items must be marked seen")
	}
	if st.LastRun.PushedOK != 2 || st.LastRun.PushedFail != 1 {
		t.Errorf("telemetry = ok:%d fail:%d, want 2/1", st.LastRun.PushedOK, st.LastRun.PushedFail)
	}
}

func TestHighVolumeCollapsesToSummary(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(15)}})

	st := initializedState()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 0 {
		t.Errorf("summary mode must not push photos, got %d", len(msg.photos))
	}
	if len(msg.messages) != 1 {
		t.Fatalf("expected exactly one summary message, got %d", len(msg.messages))
	}
	if !strings.Contains(msg.messages[0], "【新闻汇总】") {
		t.Errorf("summary should use the digest format:\n%s", msg.messages[0])
	}
	for i := 0; i < 15; i++ {
		if !st.IsSeen(fmt.Sprintf("guid-%d", i)) {
			t.Errorf("summarized item guid-%d must be marked seen", i)
		}
	}
}

func TestExactThresholdStaysPerItem(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(10)}})

	if err := a.runCycle(context.Background(), initializedState()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 10 || len(msg.messages) != 0 {
		t.Errorf("exactly threshold items stay per-item, got %d photos, %d messages",
			len(msg.photos), len(msg.messages))
	}
}

func TestSummaryFailureFallsBackToPerItem(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{
		msgErrFor: func(text string) error {
			if strings.Contains(text, "【新闻汇总】") {
				return errors.New("message too long")
			}
			return nil
		},
	}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(15)}})

	st := initializedState()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 15 {
		t.Errorf("summary failure should degrade to per-item pushes, got %d photos", len(msg.photos))
	}
}

func TestQuietHoursBufferInsteadOfSending(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(3)}})
	a.now = func() time.Time { return time.Date(2024, 8, 5, 23, 30, 0, 0, time.UTC) }

	st := initializedState()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.messages) != 0 || len(msg.photos) != 0 {
		t.Error("quiet hours must not deliver")
	}
	if len(st.NightBuffer) != 3 {
		t.Fatalf("expected 3 buffered items, got %d", len(st.NightBuffer))
	}
	for i := 0; i < 3; i++ {
		if !st.IsSeen(fmt.Sprintf("guid-%d", i)) {
			t.Errorf("buffered item guid-%d must be marked seen at buffer time", i)
		}
	}
	if !st.LastRun.Quiet || st.LastRun.BufferedAdded != 3 {
		t.Errorf("telemetry should record quiet buffering, got %+v", st.LastRun)
	}
}

func TestNightBufferCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.NightDigestMax = 2
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(3)}})
	a.now = func() time.Time { return time.Date(2024, 8, 5, 23, 30, 0, 0, time.UTC) }

	st := initializedState()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(st.NightBuffer) != 2 {
		t.Fatalf("buffer must stop at the cap, got %d", len(st.NightBuffer))
	}
	if st.IsSeen("guid-2") {
		t.Error("an item dropped by the cap stays unseen so the next cycle can pick it up")
	}
}

func TestNightDigestFlushPerItem(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{}})

	st := initializedState()
	st.LastDigestDate = "2024-08-04"
	for _, e := range wireEntries(2) {
		st.NightBuffer = append(st.NightBuffer, state.BufferedItem{Source: "SRC", Entry: e})
	}

	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 2 {
		t.Fatalf("expected 2 flushed items, got %d photos", len(msg.photos))
	}
	if !strings.Contains(msg.photos[0].caption, "[夜间汇总]") {
		t.Errorf("flushed items carry the overnight prefix:\n%s", msg.photos[0].caption)
	}
	if len(st.NightBuffer) != 0 {
		t.Error("buffer must be cleared after a full flush")
	}
	if st.LastDigestDate != "2024-08-05" {
		t.Errorf("digest date should advance to today, got %q", st.LastDigestDate)
	}
}

func TestNightDigestFlushAsSummary(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{}})

	st := initializedState()
	st.LastDigestDate = "2024-08-04"
	for _, e := range wireEntries(12) {
		st.NightBuffer = append(st.NightBuffer, state.BufferedItem{Source: "SRC", Entry: e})
	}

	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.messages) != 1 || len(msg.photos) != 0 {
		t.Fatalf("large buffers flush as one summary, got %d messages, %d photos",
			len(msg.messages), len(msg.photos))
	}
	if len(st.NightBuffer) != 0 || st.LastDigestDate != "2024-08-05" {
		t.Error("summary flush clears the buffer and advances the date")
	}
}

func TestNightDigestPartialFailureRetries(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{
		photoErr: errors.New("image rejected"),
		msgErrFor: func(text string) error {
			if strings.Contains(text, "Breaking story 1") {
				return errors.New("network blip")
			}
			return nil
		},
	}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{}})

	st := initializedState()
	st.LastDigestDate = "2024-08-04"
	for _, e := range wireEntries(2) {
		st.NightBuffer = append(st.NightBuffer, state.BufferedItem{Source: "SRC", Entry: e})
	}

	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(st.NightBuffer) != 1 {
		t.Fatalf("failed item must stay buffered, got %d", len(st.NightBuffer))
	}
	if st.NightBuffer[0].Entry.ID != "guid-1" {
		t.Errorf("the failed item should remain, got %q", st.NightBuffer[0].Entry.ID)
	}
	if st.LastDigestDate == "2024-08-05" {
		t.Error("digest date must not advance while items are left behind")
	}
}

func TestNoFlushDuringQuietHours(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{}})
	a.now = func() time.Time { return time.Date(2024, 8, 5, 2, 0, 0, 0, time.UTC) }

	st := initializedState()
	st.LastDigestDate = "2024-08-04"
	st.NightBuffer = []state.BufferedItem{{Source: "SRC", Entry: wireEntries(1)[0]}}

	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.messages) != 0 || len(msg.photos) != 0 || len(st.NightBuffer) != 1 {
		t.Error("the buffer holds until the quiet window ends")
	}
}

func TestNoSecondFlushSameDay(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{}})

	st := initializedState()
	st.LastDigestDate = "2024-08-05"
	st.NightBuffer = []state.BufferedItem{{Source: "SRC", Entry: wireEntries(1)[0]}}

	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 0 || len(st.NightBuffer) != 1 {
		t.Error("a day's digest flushes at most once")
	}
}

func TestCollectFiltersSeenMajorAndDuplicates(t *testing.T) {
	cfg := testConfig(t)
	cfg.MajorOnly = true
	cfg.MajorKeywords = []string{"earthquake"}
	msg := &fakeMessenger{}

	entries := []feed.Entry{
		{ID: "seen-1", Title: "Earthquake rattles old town", Link: "https://src.example/a"},
		{ID: "minor-1", Title: "Celebrity gossip roundup", Link: "https://src.example/b"},
		{ID: "new-1", Title: "Major earthquake aftermath", Link: "https://src.example/c"},
		{ID: "new-1", Title: "Major earthquake aftermath", Link: "https://src.example/c"},
	}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: entries}})

	st := initializedState()
	st.MarkSeen("seen-1", middayTest.Unix())

	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 1 {
		t.Fatalf("expected only the new major item, got %d photos", len(msg.photos))
	}
	if !strings.Contains(msg.photos[0].caption, "Major earthquake aftermath") {
		t.Errorf("wrong item delivered:\n%s", msg.photos[0].caption)
	}
	if st.LastRun.SkippedSeen != 1 || st.LastRun.SkippedMajor != 1 {
		t.Errorf("telemetry = seen:%d major:%d, want 1/1",
			st.LastRun.SkippedSeen, st.LastRun.SkippedMajor)
	}
}

func TestPerSourceCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxItemsPerSource = 2
	msg := &fakeMessenger{}
	a, _ := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(5)}})

	if err := a.runCycle(context.Background(), initializedState()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if len(msg.photos) != 2 {
		t.Errorf("per-source cap should limit the batch, got %d photos", len(msg.photos))
	}
}

func TestSourceFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	fetcher := &fakeFetcher{errs: map[string]error{testFeedURL: errors.New("dns failure")}}
	a, _ := newTestApp(cfg, msg, fetcher)

	st := initializedState()
	if err := a.runCycle(context.Background(), st); err != nil {
		t.Fatalf("a failed source must not fail the cycle: %v", err)
	}
	if st.LastRun.SourcesFail != 1 || st.LastRun.SourcesOK != 0 {
		t.Errorf("telemetry = ok:%d fail:%d", st.LastRun.SourcesOK, st.LastRun.SourcesFail)
	}
}

func TestRunLoopOnce(t *testing.T) {
	cfg := testConfig(t)
	msg := &fakeMessenger{}
	a, store := newTestApp(cfg, msg, &fakeFetcher{entries: map[string][]feed.Entry{testFeedURL: wireEntries(2)}})

	a.RunLoop(context.Background(), true)

	st := store.Load()
	if !st.Initialized {
		t.Error("a single run must still bootstrap and persist state")
	}
}

func TestIsQuietHour(t *testing.T) {
	cases := []struct {
		hour, start, end int
		want             bool
	}{
		// wrapping window 23-9
		{23, 23, 9, true},
		{0, 23, 9, true},
		{3, 23, 9, true},
		{8, 23, 9, true},
		{9, 23, 9, false},
		{12, 23, 9, false},
		{22, 23, 9, false},
		// plain window 9-17
		{9, 9, 17, true},
		{12, 9, 17, true},
		{16, 9, 17, true},
		{17, 9, 17, false},
		{8, 9, 17, false},
	}
	for _, tc := range cases {
		if got := isQuietHour(tc.hour, tc.start, tc.end); got != tc.want {
			t.Errorf("isQuietHour(%d, %d, %d) = %v, want %v",
				tc.hour, tc.start, tc.end, got, tc.want)
		}
	}
}

func TestGitHubRunInfo(t *testing.T) {
	t.Setenv("GITHUB_SERVER_URL", "https://github.com")
	t.Setenv("GITHUB_REPOSITORY", "mkravets/newsdrop")
	t.Setenv("GITHUB_RUN_ID", "12345")
	t.Setenv("GITHUB_WORKFLOW", "poll")
	t.Setenv("GITHUB_RUN_NUMBER", "7")
	t.Setenv("GITHUB_SHA", "abc123")
	t.Setenv("GITHUB_REF", "refs/heads/main")

	info := githubRunInfo()
	if info.RunURL != "https://github.com/mkravets/newsdrop/actions/runs/12345" {
		t.Errorf("RunURL = %q", info.RunURL)
	}
	if info.Workflow != "poll" || info.RunNumber != "7" {
		t.Errorf("unexpected run info %+v", info)
	}
}

func TestGitHubRunInfoOutsideCI(t *testing.T) {
	for _, key := range []string{
		"GITHUB_SERVER_URL", "GITHUB_REPOSITORY", "GITHUB_RUN_ID",
		"GITHUB_WORKFLOW", "GITHUB_RUN_NUMBER", "GITHUB_SHA", "GITHUB_REF",
	} {
		t.Setenv(key, "")
	}

	info := githubRunInfo()
	if info.RunURL != "" || info.Repo != "" {
		t.Errorf("expected empty provenance outside CI, got %+v", info)
	}
}

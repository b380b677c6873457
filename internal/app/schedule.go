package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mkravets/newsdrop/internal/state"
)

// isQuietHour reports whether the hour falls in the quiet window. The window
// may wrap past midnight: start=23 end=9 covers 23:00-08:59.
func isQuietHour(hour, start, end int) bool {
	if start < end {
		return start <= hour && hour < end
	}
	return hour >= start || hour < end
}

func (a *App) buildLastRun(nowLocal time.Time, quiet bool, tally cycleTally,
	newCount, bufferedTotal, seenSize int) *state.LastRun {
	return &state.LastRun{
		UTC:           a.now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Local:         nowLocal.Truncate(time.Second).Format(time.RFC3339),
		TZ:            a.cfg.TZName,
		LocalHour:     nowLocal.Hour(),
		Quiet:         quiet,
		SourcesOK:     tally.sourcesOK,
		SourcesFail:   tally.sourcesFail,
		EntriesTotal:  tally.entriesTotal,
		New:           newCount,
		PushedOK:      tally.pushedOK,
		PushedFail:    tally.pushedFail,
		SkippedSeen:   tally.skippedSeen,
		SkippedMajor:  tally.skippedMajor,
		BufferedTotal: bufferedTotal,
		BufferedAdded: tally.bufferedAdded,
		SeenSize:      seenSize,
		GitHub:        githubRunInfo(),
	}
}

// githubRunInfo records Actions provenance when the notifier runs in CI, so
// the state file tells which workflow run produced the last cycle.
func githubRunInfo() state.GitHubRun {
	info := state.GitHubRun{
		Repo:      strings.TrimSpace(os.Getenv("GITHUB_REPOSITORY")),
		Workflow:  strings.TrimSpace(os.Getenv("GITHUB_WORKFLOW")),
		RunID:     strings.TrimSpace(os.Getenv("GITHUB_RUN_ID")),
		RunNumber: strings.TrimSpace(os.Getenv("GITHUB_RUN_NUMBER")),
		SHA:       strings.TrimSpace(os.Getenv("GITHUB_SHA")),
		Ref:       strings.TrimSpace(os.Getenv("GITHUB_REF")),
	}
	server := strings.TrimSpace(os.Getenv("GITHUB_SERVER_URL"))
	if server != "" && info.Repo != "" && info.RunID != "" {
		info.RunURL = fmt.Sprintf("%s/%s/actions/runs/%s", server, info.Repo, info.RunID)
	}
	return info
}

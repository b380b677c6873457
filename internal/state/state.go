// Package state persists the notifier's durable state: the seen-set, the
// night buffer, the last digest date and the last-run telemetry. The whole
// document lives in a single JSON file written atomically.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mkravets/newsdrop/internal/feed"
	"github.com/mkravets/newsdrop/internal/logger"
)

// BufferedItem is one entry withheld during quiet hours.
type BufferedItem struct {
	Source string     `json:"source"`
	Entry  feed.Entry `json:"entry"`
}

// GitHubRun records CI provenance for the cycle, when running under Actions.
type GitHubRun struct {
	Repo      string `json:"repo"`
	Workflow  string `json:"workflow"`
	RunID     string `json:"run_id"`
	RunNumber string `json:"run_number"`
	SHA       string `json:"sha"`
	Ref       string `json:"ref"`
	RunURL    string `json:"run_url"`
}

// LastRun is per-cycle telemetry, overwritten every cycle.
type LastRun struct {
	UTC           string    `json:"utc"`
	Local         string    `json:"local"`
	TZ            string    `json:"tz"`
	LocalHour     int       `json:"local_hour"`
	Quiet         bool      `json:"quiet"`
	SourcesOK     int       `json:"sources_ok"`
	SourcesFail   int       `json:"sources_fail"`
	EntriesTotal  int       `json:"entries_total"`
	New           int       `json:"new"`
	PushedOK      int       `json:"pushed_ok"`
	PushedFail    int       `json:"pushed_fail"`
	SkippedSeen   int       `json:"skipped_seen"`
	SkippedMajor  int       `json:"skipped_major"`
	BufferedTotal int       `json:"buffered_total"`
	BufferedAdded int       `json:"buffered_added"`
	SeenSize      int       `json:"seen_size"`
	GitHub        GitHubRun `json:"github"`
}

// State is the persisted document. It is created empty on first run and
// survives restarts; it is never deleted.
type State struct {
	Initialized    bool             `json:"initialized"`
	Seen           map[string]int64 `json:"seen"`
	NightBuffer    []BufferedItem   `json:"night_buffer"`
	LastDigestDate string           `json:"last_digest_date"`
	LastRun        *LastRun         `json:"last_run,omitempty"`
}

func newDefault() *State {
	return &State{
		Seen:        make(map[string]int64),
		NightBuffer: []BufferedItem{},
	}
}

func (s *State) IsSeen(id string) bool {
	_, ok := s.Seen[id]
	return ok
}

func (s *State) MarkSeen(id string, ts int64) {
	s.Seen[id] = ts
}

// PruneSeen retains only ids observed within the TTL window. Pure function:
// the input map is not mutated. Negative timestamps are dropped.
func PruneSeen(seen map[string]int64, ttlHours int, now time.Time) map[string]int64 {
	cutoff := now.Unix() - int64(ttlHours)*3600
	out := make(map[string]int64, len(seen))
	for id, ts := range seen {
		if ts >= 0 && ts >= cutoff {
			out[id] = ts
		}
	}
	return out
}

// Store reads and writes the state document at a fixed path.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted document. A missing or unreadable file yields a
// fresh default state rather than an error; absent fields are default-filled.
func (st *Store) Load() *State {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("state file unreadable, starting fresh", "path", st.path, "error", err)
		}
		return newDefault()
	}

	s := newDefault()
	if err := json.Unmarshal(data, s); err != nil {
		logger.Warn("state file corrupt, starting fresh", "path", st.path, "error", err)
		return newDefault()
	}
	if s.Seen == nil {
		s.Seen = make(map[string]int64)
	}
	if s.NightBuffer == nil {
		s.NightBuffer = []BufferedItem{}
	}
	return s
}

// Save serializes the document to a temp file in the same directory and
// renames it over the canonical path, so a crash mid-write leaves the prior
// document intact and no reader ever sees a partial write.
func (st *Store) Save(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp state: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

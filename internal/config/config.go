package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/mkravets/newsdrop/internal/logger"
)

type Config struct {
	// Telegram settings
	TelegramToken  string
	TelegramChatID string

	// Polling
	PollInterval      time.Duration
	MaxItemsPerSource int

	// State
	StateFile    string
	SeenTTLHours int

	// Relevance filtering
	MajorOnly     bool
	MajorKeywords []string

	// Quiet hours / night digest
	QuietHourStart  int // 0-23, window may wrap past midnight
	QuietHourEnd    int
	NightDigestMax  int
	BootstrapSilent bool

	// Delivery
	FetchArticleImage bool

	// AI summary
	AISummaryThreshold   int
	AISummaryModel       string
	AISummaryMaxItems    int
	GeminiAPIKey         string
	MaxAISummariesPerDay int

	// Sources
	SourcesFile string // optional YAML override of the built-in registry

	// Timezone for quiet hours and digest dates
	TZName   string
	Location *time.Location

	Debug bool
}

// Load reads configuration from the environment, filling defaults.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken:        strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:       strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		PollInterval:         time.Duration(getEnvIntOrDefault("POLL_SECONDS", 120)) * time.Second,
		MaxItemsPerSource:    getEnvIntOrDefault("MAX_ITEMS_PER_SOURCE", 3),
		StateFile:            getEnvOrDefault("STATE_FILE", defaultStatePath()),
		SeenTTLHours:         getEnvIntOrDefault("SEEN_TTL_HOURS", 72),
		MajorOnly:            getEnvBoolOrDefault("MAJOR_ONLY", true),
		QuietHourStart:       getEnvIntOrDefault("QUIET_HOUR_START", 23),
		QuietHourEnd:         getEnvIntOrDefault("QUIET_HOUR_END", 9),
		NightDigestMax:       getEnvIntOrDefault("NIGHT_DIGEST_MAX", 40),
		BootstrapSilent:      getEnvBoolOrDefault("BOOTSTRAP_SILENT", true),
		FetchArticleImage:    getEnvBoolOrDefault("FETCH_ARTICLE_IMAGE", true),
		AISummaryThreshold:   getEnvIntOrDefault("AI_SUMMARY_THRESHOLD", 10),
		AISummaryModel:       getEnvOrDefault("AI_SUMMARY_MODEL", "gemini-1.5-flash"),
		AISummaryMaxItems:    getEnvIntOrDefault("AI_SUMMARY_MAX_ITEMS", 30),
		GeminiAPIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		MaxAISummariesPerDay: getEnvIntOrDefault("MAX_AI_SUMMARIES_PER_DAY", 24),
		SourcesFile:          strings.TrimSpace(os.Getenv("SOURCES_FILE")),
		Debug:                os.Getenv("DEBUG") == "true",
	}

	if raw := os.Getenv("MAJOR_KEYWORDS"); strings.TrimSpace(raw) != "" {
		cfg.MajorKeywords = ParseKeywords(raw)
	} else {
		cfg.MajorKeywords = DefaultMajorKeywords()
	}

	cfg.TZName, cfg.Location = resolveTimezone()

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.TelegramChatID == "" {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}
	if c.QuietHourStart < 0 || c.QuietHourStart > 23 {
		return fmt.Errorf("QUIET_HOUR_START must be 0-23, got %d", c.QuietHourStart)
	}
	if c.QuietHourEnd < 0 || c.QuietHourEnd > 23 {
		return fmt.Errorf("QUIET_HOUR_END must be 0-23, got %d", c.QuietHourEnd)
	}
	return nil
}

// ParseKeywords splits a comma-separated keyword list, lower-casing and
// dropping empties.
func ParseKeywords(raw string) []string {
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// resolveTimezone picks the local timezone for quiet hours: NEWS_TZ, then TZ,
// then UTC. Unknown names fall back to UTC with a warning.
func resolveTimezone() (string, *time.Location) {
	name := strings.TrimSpace(os.Getenv("NEWS_TZ"))
	if name == "" {
		name = strings.TrimSpace(os.Getenv("TZ"))
	}
	if name != "" {
		loc, err := time.LoadLocation(name)
		if err == nil {
			return name, loc
		}
		logger.Warn("unknown timezone, falling back to UTC", "tz", name, "error", err)
	}
	return "UTC", time.UTC
}

func defaultStatePath() string {
	return filepath.Join(xdg.StateHome, "newsdrop", "state.json")
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

// Package digest builds compact summaries that replace per-item pushes when
// volume is high: an AI digest when configured, with a deterministic
// rule-based fallback.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mkravets/newsdrop/internal/feed"
	"github.com/mkravets/newsdrop/internal/logger"
	"github.com/mkravets/newsdrop/internal/ratelimit"
)

// Item is one entry attributed to its source, as routed through the digest.
type Item struct {
	Source string
	Entry  feed.Entry
}

const (
	MaxHeadlines = 16
	MaxLinks     = 16

	// messages are capped below Telegram's 4096-char text limit
	summaryMaxRunes = 3900

	linkIndexMarker = "链接索引"
	unknownSource   = "未知来源"
	untitled        = "(无标题)"
)

// Summarizer produces free text from a system instruction and a user prompt.
type Summarizer interface {
	Summarize(ctx context.Context, system, user string) (string, error)
}

// Composer picks between the AI and the rule-based digest.
type Composer struct {
	AI       Summarizer // nil when no API key is configured
	Limiter  *ratelimit.DailyLimiter
	TZName   string
	MaxItems int // cap on items fed into the AI prompt
}

// Compose returns the digest text for the batch. Any AI failure (no client,
// budget exhausted, transport error, empty response) degrades to the
// rule-based summary; a bare link list is appended when the chosen text
// lacks an explicit link section.
func (c *Composer) Compose(ctx context.Context, items []Item, now time.Time) string {
	var text string

	if c.AI != nil {
		if c.Limiter != nil && !c.Limiter.Allow() {
			logger.Warn("ai summary budget exhausted, using rule summary", "used", c.Limiter.Used())
		} else {
			system, user := Prompt(items, c.TZName, now, c.MaxItems)
			aiText, err := c.AI.Summarize(ctx, system, user)
			if err != nil {
				logger.Warn("ai summary failed, using rule summary", "error", err)
			} else {
				if c.Limiter != nil {
					c.Limiter.Record()
				}
				header := fmt.Sprintf("【AI新闻汇总】%s %s", now.Format("01-02 15:04"), c.TZName)
				text = truncateRunes(header+"\n"+aiText, summaryMaxRunes)
				logger.Info("ai summary generated", "items", len(items))
			}
		}
	}

	if text == "" {
		text = RuleSummary(items, c.TZName, now)
	}

	if links := topLinks(items, MaxLinks); len(links) > 0 && !strings.Contains(text, linkIndexMarker) {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n\n参考链接:\n")
		for _, link := range links {
			b.WriteString("- ")
			b.WriteString(link)
			b.WriteString("\n")
		}
		text = strings.TrimRight(b.String(), "\n")
	}

	return truncateRunes(text, summaryMaxRunes)
}

// RuleSummary is the deterministic digest: source-frequency header, numbered
// headline list and numbered link index, both capped.
func RuleSummary(items []Item, tzName string, now time.Time) string {
	counts := make(map[string]int)
	for _, it := range items {
		counts[sourceOrUnknown(it.Source)]++
	}

	type sourceCount struct {
		name  string
		count int
	}
	ranked := make([]sourceCount, 0, len(counts))
	for name, n := range counts {
		ranked = append(ranked, sourceCount{name, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	topSources := make([]string, 0, len(ranked))
	for _, sc := range ranked {
		topSources = append(topSources, fmt.Sprintf("%s:%d", sc.name, sc.count))
	}
	top := strings.Join(topSources, ", ")
	if top == "" {
		top = "未知"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "【新闻汇总】本轮共 %d 条（%s %s）\n", len(items), now.Format("2006-01-02 15:04"), tzName)
	fmt.Fprintf(&b, "主要来源：%s\n\n", top)
	b.WriteString("标题速览：\n")

	headlines := items
	if len(headlines) > MaxHeadlines {
		headlines = headlines[:MaxHeadlines]
	}
	for i, it := range headlines {
		title := headlineTitle(it.Entry)
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, sourceOrUnknown(it.Source), title)
	}

	links := topLinks(items, MaxLinks)
	if len(links) > 0 {
		b.WriteString("\n")
		b.WriteString(linkIndexMarker)
		b.WriteString("（点开看详情）：\n")
		for i, link := range links {
			fmt.Fprintf(&b, "%d) %s\n", i+1, link)
		}
	}

	return truncateRunes(strings.TrimRight(b.String(), "\n"), summaryMaxRunes)
}

// Prompt builds the AI request for the batch: a numbered headline/link list
// capped at maxItems.
func Prompt(items []Item, tzName string, now time.Time, maxItems int) (system, user string) {
	if maxItems < 1 {
		maxItems = 1
	}
	focus := items
	if len(focus) > maxItems {
		focus = focus[:maxItems]
	}

	events := make([]string, 0, len(focus))
	for i, it := range focus {
		title := headlineTitle(it.Entry)
		events = append(events, fmt.Sprintf("%d. [%s] %s\n链接: %s",
			i+1, sourceOrUnknown(it.Source), title, strings.TrimSpace(it.Entry.Link)))
	}

	system = "你是新闻编辑。请输出高信息密度摘要，目标是在一条消息里看到尽量多标题并能点链接。" +
		"输出格式：" +
		"1) 先给1行总体概览；" +
		"2) 给“标题速览”清单（至少10条，格式：序号.[来源] 标题）；" +
		"3) 给“链接索引”（序号对应URL）；" +
		"4) 不要编造。"

	user = fmt.Sprintf("时间: %s %s\n新闻共 %d 条，以下是前 %d 条:\n\n%s",
		now.Format("2006-01-02 15:04"), tzName, len(items), len(focus), strings.Join(events, "\n\n"))
	return system, user
}

func topLinks(items []Item, max int) []string {
	var links []string
	for _, it := range items {
		if len(links) >= max {
			break
		}
		if link := strings.TrimSpace(it.Entry.Link); link != "" {
			links = append(links, link)
		}
	}
	return links
}

func headlineTitle(e feed.Entry) string {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		title = untitled
	}
	title = strings.ReplaceAll(title, "\n", " ")
	return truncateRunes(title, 92)
}

func sourceOrUnknown(source string) string {
	if strings.TrimSpace(source) == "" {
		return unknownSource
	}
	return source
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

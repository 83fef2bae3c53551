package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/finmarket/internal/feed"
	"github.com/seenimoa/finmarket/pkg/models"
	"github.com/seenimoa/finmarket/pkg/utils"
)

func (a *App) renderNews() string {
	var b strings.Builder

	b.WriteString(a.renderCategories())
	b.WriteString("\n")

	switch a.state.Phase {
	case feed.PhaseIdle:
		b.WriteString(itemMetaStyle.Render("  Waiting for the first retrieval..."))
		return b.String()
	case feed.PhaseLoading:
		b.WriteString("  " + a.spinner.View() + " Loading " + string(a.state.Category) + " news...")
		return b.String()
	case feed.PhaseDegraded:
		b.WriteString(degradedStyle.Render("  Showing curated highlights: live news is unavailable."))
		b.WriteString("\n")
	}

	if a.state.Insight != nil {
		b.WriteString(renderInsight(*a.state.Insight, a.width-2))
		b.WriteString("\n")
	}

	if a.search.Focused() || a.search.Value() != "" {
		b.WriteString(" " + a.search.View() + "\n")
	}

	items := a.visibleItems()
	if len(items) == 0 {
		b.WriteString(itemMetaStyle.Render("  No news found"))
		return b.String()
	}

	// Each item takes two lines plus a blank one.
	visible := max(1, (a.height-12)/3)
	start := 0
	if a.cursor >= visible {
		start = a.cursor - visible + 1
	}
	end := min(len(items), start+visible)
	now := time.Now()
	for i := start; i < end; i++ {
		b.WriteString(a.renderNewsItem(items[i], i == a.cursor, now))
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) renderCategories() string {
	parts := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		label := strings.ToUpper(string(c[:1])) + string(c[1:])
		if c == a.state.Category {
			parts[i] = tabActiveStyle.Render(label)
		} else {
			parts[i] = tabInactiveStyle.Render(label)
		}
	}
	return " " + strings.Join(parts, " ")
}

func renderInsight(ins models.InsightSummary, width int) string {
	lines := []string{
		itemTitleStyle.Render("Market insight") + "  " +
			itemMetaStyle.Render("confidence "+utils.FormatConfidence(ins.Confidence)),
		truncateStr(ins.Summary, max(20, width-4)),
	}
	for _, r := range ins.Recommendations {
		lines = append(lines, itemMetaStyle.Render("• "+truncateStr(r, max(20, width-6))))
	}
	return insightStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderNewsItem(it models.NewsItem, selected bool, now time.Time) string {
	width := max(30, a.width-4)

	star := "  "
	for _, s := range it.Symbols {
		if a.favs.Contains(s) {
			star = starStyle.Render("★ ")
			break
		}
	}

	var title string
	if selected {
		title = itemSelectedStyle.Render("> " + truncateStr(it.Title, width-4))
	} else {
		title = itemTitleStyle.Render("  " + truncateStr(it.Title, width-4))
	}

	meta := []string{
		sentimentStyle(it.Sentiment).Render(string(it.Sentiment)),
		string(it.Category),
		utils.FormatAge(it.Timestamp, now),
	}
	if it.Source != "" {
		meta = append(meta, it.Source)
	}
	if len(it.Symbols) > 0 {
		meta = append(meta, strings.Join(it.Symbols, " "))
	}
	return title + "\n" + star + itemMetaStyle.Render(strings.Join(meta, " · "))
}

func (a *App) renderChart() string {
	var b strings.Builder
	if a.symbolInput.Focused() {
		b.WriteString(" " + a.symbolInput.View() + "\n\n")
	}
	if a.chartSymbol == "" {
		b.WriteString(itemMetaStyle.Render("  Press e to choose a symbol."))
		return b.String()
	}

	star := "☆"
	if a.favs.Contains(a.chartSymbol) {
		star = starStyle.Render("★")
	}
	fmt.Fprintf(&b, "  %s %s\n\n", itemTitleStyle.Render(a.chart.Qualified(a.chartSymbol)), star)
	fmt.Fprintf(&b, "  %s\n", itemMetaStyle.Render("Open in a browser:"))
	fmt.Fprintf(&b, "  %s\n", a.chart.URL(a.chartSymbol))
	return b.String()
}

func (a *App) renderFavorites() string {
	var b strings.Builder
	if a.favFilter.Focused() || a.favFilter.Value() != "" {
		b.WriteString(" " + a.favFilter.View() + "\n\n")
	}

	i := 0
	for sym := range a.favs.Filter(a.favFilter.Value()) {
		line := "  ☆ " + sym
		if i == a.favCursor {
			line = itemSelectedStyle.Render("> ★ " + sym)
		}
		b.WriteString(line + "\n")
		i++
	}
	if i == 0 {
		if a.favs.Len() == 0 {
			b.WriteString(itemMetaStyle.Render("  No favorites yet. Star a symbol from the news or charts screen."))
		} else {
			b.WriteString(itemMetaStyle.Render("  No favorites match."))
		}
	}
	return b.String()
}

func truncateStr(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

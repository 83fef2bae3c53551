package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/seenimoa/finmarket/internal/feed"
	"github.com/seenimoa/finmarket/pkg/models"
	"github.com/seenimoa/finmarket/pkg/utils"
)

var (
	bold    = color.New(color.Bold)
	dim     = color.New(color.Faint)
	cyan    = color.New(color.FgCyan)
	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed)
	heading = color.New(color.FgWhite, color.Bold)
)

func printHeader(w io.Writer, title string) {
	heading.Fprintf(w, "\n%s\n", title)
	dim.Fprintf(w, "%s\n", strings.Repeat("─", len([]rune(title))))
}

func sentimentColor(s models.Sentiment) *color.Color {
	switch s {
	case models.SentimentPositive:
		return green
	case models.SentimentNegative:
		return red
	default:
		return dim
	}
}

func printState(w io.Writer, st feed.State) {
	printHeader(w, fmt.Sprintf("%s news", strings.ToUpper(string(st.Category))))
	if st.Phase == feed.PhaseDegraded {
		yellow.Fprintf(w, "⚠ live data unavailable (%s), showing curated highlights\n", st.Source)
		dim.Fprintf(w, "  %v\n", st.Err)
	}
	if st.Insight != nil {
		printInsight(w, *st.Insight)
	}
	fmt.Fprintln(w)
	printItems(w, st.Items)
}

func printInsight(w io.Writer, ins models.InsightSummary) {
	cyan.Fprintf(w, "Insight (%s confidence", utils.FormatConfidence(ins.Confidence))
	if ins.Sentiment != "" {
		cyan.Fprintf(w, ", %s", ins.Sentiment)
	}
	cyan.Fprintln(w, ")")
	fmt.Fprintf(w, "  %s\n", ins.Summary)
	for _, r := range ins.Recommendations {
		dim.Fprintf(w, "  • %s\n", r)
	}
}

func printItems(w io.Writer, items []models.NewsItem) {
	if len(items) == 0 {
		dim.Fprintln(w, "No news found.")
		return
	}
	now := time.Now()
	for _, it := range items {
		bold.Fprintf(w, "%4d  %s\n", it.ID, it.Title)
		fmt.Fprint(w, "      ")
		sentimentColor(it.Sentiment).Fprintf(w, "%-8s", it.Sentiment)
		dim.Fprintf(w, " %s · %s", it.Category, utils.FormatAge(it.Timestamp, now))
		if it.Source != "" {
			dim.Fprintf(w, " · %s", it.Source)
		}
		if len(it.Symbols) > 0 {
			dim.Fprintf(w, " · %s", strings.Join(it.Symbols, " "))
		}
		fmt.Fprintln(w)
	}
}

func printDetail(w io.Writer, d *models.NewsDetail) {
	printHeader(w, d.Title)
	fmt.Fprintln(w, d.Content)
	if a := d.Analysis; a != nil {
		fmt.Fprintln(w)
		cyan.Fprintf(w, "Analysis (%s, %s confidence)\n", a.Sentiment, utils.FormatConfidence(a.Confidence))
		fmt.Fprintf(w, "  %s\n", a.Summary)
		for _, p := range a.KeyPoints {
			dim.Fprintf(w, "  • %s\n", p)
		}
	}
}

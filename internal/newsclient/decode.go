package newsclient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/finmarket/pkg/models"
)

// --- Wire types ---

type newsResponse struct {
	News     *[]wireNewsItem `json:"news"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type wireNewsItem struct {
	ID         *int64   `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Sentiment  string   `json:"sentiment"`
	Category   string   `json:"category"`
	Timestamp  string   `json:"timestamp"`
	Source     *string  `json:"source"`
	Confidence *float64 `json:"confidence"`
	Symbols    []string `json:"symbols"`
}

type insightRequest struct {
	Symbols []string `json:"symbols"`
}

type insightResponse struct {
	Summary         *string  `json:"summary"`
	Confidence      *float64 `json:"confidence"`
	Recommendations []string `json:"recommendations"`
	Sentiment       string   `json:"sentiment"`
	Timestamp       string   `json:"timestamp"`
}

type newsDetailResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Analysis *struct {
		Summary    string   `json:"summary"`
		Sentiment  string   `json:"sentiment"`
		Confidence float64  `json:"confidence"`
		KeyPoints  []string `json:"key_points"`
	} `json:"analysis"`
}

// --- Conversion ---

// items validates the response and converts it to model items. Later items
// repeating an earlier ID are dropped so IDs stay unique per retrieval.
func (r newsResponse) items() ([]models.NewsItem, error) {
	if r.News == nil {
		return nil, errors.New("missing news array")
	}

	out := make([]models.NewsItem, 0, len(*r.News))
	seen := make(map[int64]bool, len(*r.News))
	for i, w := range *r.News {
		item, err := w.toModel()
		if err != nil {
			return nil, fmt.Errorf("news[%d]: %w", i, err)
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out, nil
}

func (w wireNewsItem) toModel() (models.NewsItem, error) {
	if w.ID == nil {
		return models.NewsItem{}, errors.New("missing id")
	}
	sentiment, err := parseSentiment(w.Sentiment)
	if err != nil {
		return models.NewsItem{}, err
	}
	category, err := models.ParseCategory(w.Category)
	if err != nil || w.Category == "" {
		return models.NewsItem{}, fmt.Errorf("invalid category %q", w.Category)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return models.NewsItem{}, err
	}

	item := models.NewsItem{
		ID:         *w.ID,
		Title:      cleanHTML(w.Title),
		Summary:    cleanHTML(w.Summary),
		Sentiment:  sentiment,
		Category:   category,
		Timestamp:  ts,
		Confidence: w.Confidence,
		Symbols:    w.Symbols,
	}
	if w.Source != nil {
		item.Source = *w.Source
	}
	return item, nil
}

func (r insightResponse) insight() (models.InsightSummary, error) {
	if r.Summary == nil {
		return models.InsightSummary{}, errors.New("missing summary")
	}
	out := models.InsightSummary{
		Summary:         cleanHTML(*r.Summary),
		Recommendations: r.Recommendations,
	}
	if r.Confidence != nil {
		out.Confidence = *r.Confidence
	}
	if r.Sentiment != "" {
		s, err := parseSentiment(r.Sentiment)
		if err != nil {
			return models.InsightSummary{}, err
		}
		out.Sentiment = s
	}
	if r.Timestamp != "" {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return models.InsightSummary{}, err
		}
		out.Timestamp = ts
	}
	return out, nil
}

func (r newsDetailResponse) detail() (*models.NewsDetail, error) {
	d := &models.NewsDetail{
		ID:      r.ID,
		Title:   cleanHTML(r.Title),
		Content: cleanHTML(r.Content),
	}
	if a := r.Analysis; a != nil {
		s := models.SentimentNeutral
		if a.Sentiment != "" {
			var err error
			if s, err = parseSentiment(a.Sentiment); err != nil {
				return nil, err
			}
		}
		d.Analysis = &models.NewsAnalysis{
			Summary:    cleanHTML(a.Summary),
			Sentiment:  s,
			Confidence: a.Confidence,
			KeyPoints:  a.KeyPoints,
		}
	}
	return d, nil
}

// --- Field parsers ---

func parseSentiment(s string) (models.Sentiment, error) {
	v := models.Sentiment(s)
	if !v.Valid() {
		return "", fmt.Errorf("invalid sentiment %q", s)
	}
	return v, nil
}

// timestampLayouts lists the accepted timestamp forms. The service emits
// RFC 3339, but naive ISO datetimes (no zone) are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// cleanHTML strips HTML tags from a string using goquery. Plain text is
// returned unchanged.
func cleanHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

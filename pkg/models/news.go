// Package models defines the shared data types exchanged between the remote
// news service, the feed and favorites controllers, and the screens that
// render them.
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Sentiment is the market sentiment attached to a news item or insight.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment converts a case-insensitive name to a Sentiment.
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive, nil
	case SentimentNeutral:
		return SentimentNeutral, nil
	case SentimentNegative:
		return SentimentNegative, nil
	}
	return "", fmt.Errorf("unknown sentiment %q", s)
}

// Valid reports whether s is one of the known sentiments.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Category selects a subset of the news feed.
type Category string

const (
	CategoryAll    Category = "all"
	CategoryMarket Category = "market"
	CategoryTech   Category = "tech"
	CategoryCrypto Category = "crypto"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryAll, CategoryMarket, CategoryTech, CategoryCrypto}

// ErrUnknownCategory is returned for a category outside Categories.
var ErrUnknownCategory = errors.New("unknown category")

// Known reports whether c is one of Categories.
func (c Category) Known() bool { return slices.Contains(Categories, c) }

// ParseCategory converts a case-insensitive name to a Category.
// The empty string maps to CategoryAll.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryAll, nil
	}
	if c.Known() {
		return c, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownCategory, s)
}

// Matches reports whether an item belongs to the category.
// CategoryAll (and the zero value) match every item.
func (c Category) Matches(item NewsItem) bool {
	if c == "" || c == CategoryAll {
		return true
	}
	return item.Category == c
}

// Filter returns the items belonging to the category, preserving order.
func (c Category) Filter(items []NewsItem) []NewsItem {
	out := make([]NewsItem, 0, len(items))
	for _, it := range items {
		if c.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}

// NewsItem is a single categorized headline with its AI-generated summary.
type NewsItem struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Sentiment  Sentiment `json:"sentiment"`
	Category   Category  `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Symbols    []string  `json:"symbols,omitempty"`
}

// InsightSummary is the narrative generated for a basket of symbols.
type InsightSummary struct {
	Summary         string    `json:"summary"`
	Confidence      float64   `json:"confidence"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Sentiment       Sentiment `json:"sentiment,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

// NewsDetail is the extended view of one news item.
type NewsDetail struct {
	ID       int64         `json:"id"`
	Title    string        `json:"title"`
	Content  string        `json:"content"`
	Analysis *NewsAnalysis `json:"analysis,omitempty"`
}

// NewsAnalysis is the per-item AI analysis returned with a NewsDetail.
type NewsAnalysis struct {
	Summary    string    `json:"summary"`
	Sentiment  Sentiment `json:"sentiment"`
	Confidence float64   `json:"confidence"`
	KeyPoints  []string  `json:"key_points,omitempty"`
}

// Health is the remote service's health report.
type Health struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

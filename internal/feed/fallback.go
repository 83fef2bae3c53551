package feed

import (
	"fmt"
	"slices"
	"time"

	"github.com/seenimoa/finmarket/pkg/models"
)

// Corpus is the locally bundled content shown when the service cannot be
// reached. Items must cover every concrete category.
type Corpus struct {
	Items   []models.NewsItem
	Insight models.InsightSummary
}

// FallbackInsight is the insight shown whenever FetchInsights fails.
var FallbackInsight = models.InsightSummary{
	Summary:         "Live market analysis is temporarily unavailable. Showing curated highlights instead.",
	Confidence:      0.5,
	Sentiment:       models.SentimentNeutral,
	Recommendations: []string{"Wait for the detailed analysis before acting"},
}

var corpusDate = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func conf(v float64) *float64 { return &v }

var defaultItems = []models.NewsItem{
	{
		ID:         1,
		Title:      "Global markets rally on upbeat economic data",
		Summary:    "Global markets posted solid gains after better-than-expected data. The S&P 500 rose 1.2% and the Nasdaq advanced 1.5%.",
		Sentiment:  models.SentimentPositive,
		Category:   models.CategoryMarket,
		Timestamp:  corpusDate,
		Source:     "Financial Times",
		Confidence: conf(0.8),
		Symbols:    []string{"SPY", "QQQ"},
	},
	{
		ID:         2,
		Title:      "Big Tech leads gains on AI announcements",
		Summary:    "Technology companies led the market after new AI product launches. Apple, Microsoft and Google showed significant progress.",
		Sentiment:  models.SentimentPositive,
		Category:   models.CategoryTech,
		Timestamp:  corpusDate.Add(-1 * time.Hour),
		Source:     "Bloomberg",
		Confidence: conf(0.75),
		Symbols:    []string{"AAPL", "MSFT", "GOOGL"},
	},
	{
		ID:         3,
		Title:      "Bitcoin tops $50k on institutional optimism",
		Summary:    "Bitcoin passed $50,000 for the first time in months, driven by institutional interest and ETF approvals.",
		Sentiment:  models.SentimentPositive,
		Category:   models.CategoryCrypto,
		Timestamp:  corpusDate.Add(-2 * time.Hour),
		Source:     "CoinDesk",
		Confidence: conf(0.7),
		Symbols:    []string{"BTC"},
	},
	{
		ID:         4,
		Title:      "Fed holds interest rates steady",
		Summary:    "The Federal Reserve left rates unchanged, signalling a cautious stance on inflation and growth.",
		Sentiment:  models.SentimentNeutral,
		Category:   models.CategoryMarket,
		Timestamp:  corpusDate.Add(-3 * time.Hour),
		Source:     "Reuters",
		Confidence: conf(0.85),
		Symbols:    []string{"SPY", "TLT"},
	},
	{
		ID:         5,
		Title:      "Chipmakers slip as export rules tighten",
		Summary:    "Semiconductor stocks fell after new export restrictions raised concerns about revenue from overseas customers.",
		Sentiment:  models.SentimentNegative,
		Category:   models.CategoryTech,
		Timestamp:  corpusDate.Add(-4 * time.Hour),
		Source:     "Wall Street Journal",
		Confidence: conf(0.65),
		Symbols:    []string{"NVDA", "AMD"},
	},
	{
		ID:         6,
		Title:      "Ether steadies after network upgrade",
		Summary:    "Ether traded flat following a scheduled protocol upgrade that lowered transaction fees.",
		Sentiment:  models.SentimentNeutral,
		Category:   models.CategoryCrypto,
		Timestamp:  corpusDate.Add(-5 * time.Hour),
		Source:     "The Block",
		Confidence: conf(0.6),
		Symbols:    []string{"ETH"},
	},
}

// DefaultCorpus returns a copy of the bundled fallback corpus.
func DefaultCorpus() Corpus {
	return Corpus{
		Items:   slices.Clone(defaultItems),
		Insight: FallbackInsight,
	}
}

// Validate checks that every concrete category has at least one item and
// that the insight has a summary.
func (c Corpus) Validate() error {
	for _, cat := range models.Categories {
		if cat == models.CategoryAll {
			continue
		}
		if !slices.ContainsFunc(c.Items, cat.Matches) {
			return fmt.Errorf("fallback corpus has no %s items", cat)
		}
	}
	if c.Insight.Summary == "" {
		return fmt.Errorf("fallback corpus has no insight summary")
	}
	return nil
}

// Filter returns the corpus items for a category.
func (c Corpus) Filter(cat models.Category) []models.NewsItem {
	return cat.Filter(c.Items)
}

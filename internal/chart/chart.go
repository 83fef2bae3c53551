// Package chart renders the embeddable TradingView mini chart for a ticker
// symbol. The widget is an external display sink: the symbol is passed
// through unmodified apart from the configured exchange prefix.
package chart

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/seenimoa/finmarket/internal/config"
	"github.com/seenimoa/finmarket/pkg/utils"
)

const (
	embedScript = "https://s3.tradingview.com/external-embedding/embed-widget-mini-symbol-overview.js"
	symbolsURL  = "https://www.tradingview.com/symbols/"

	trendLineColor = "#37a6ef"
	underLineColor = "rgba(55, 166, 239, 0.3)"
)

// Widget holds the display settings shared by every rendered chart.
type Widget struct {
	Exchange  string
	Locale    string
	DateRange string
	Theme     string
}

// FromConfig builds a Widget from the chart config section.
func FromConfig(cfg config.ChartConfig) Widget {
	return Widget{
		Exchange:  cfg.Exchange,
		Locale:    cfg.Locale,
		DateRange: cfg.DateRange,
		Theme:     cfg.Theme,
	}
}

// widgetConfig is the JSON the embed script reads from its own body.
type widgetConfig struct {
	Symbol         string `json:"symbol"`
	Width          string `json:"width"`
	Height         string `json:"height"`
	Locale         string `json:"locale"`
	DateRange      string `json:"dateRange"`
	ColorTheme     string `json:"colorTheme"`
	TrendLineColor string `json:"trendLineColor"`
	UnderLineColor string `json:"underLineColor"`
	IsTransparent  bool   `json:"isTransparent"`
}

var page = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
</head>
<body style="margin:0;padding:0">
<div class="tradingview-widget-container">
<div class="tradingview-widget-container__widget"></div>
<script type="text/javascript" src="{{.Script}}" async>
{{.Config}}
</script>
</div>
</body>
</html>
`))

// Qualified returns the exchange-qualified symbol, e.g. "NASDAQ:AAPL".
func (w Widget) Qualified(symbol string) string {
	return utils.QualifySymbol(w.Exchange, symbol)
}

// HTML renders a standalone document embedding the chart for symbol.
func (w Widget) HTML(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", fmt.Errorf("chart: empty symbol")
	}

	data := struct {
		Title  string
		Script string
		Config widgetConfig
	}{
		Title:  symbol,
		Script: embedScript,
		Config: widgetConfig{
			Symbol:         w.Qualified(symbol),
			Width:          "100%",
			Height:         "100%",
			Locale:         w.Locale,
			DateRange:      w.DateRange,
			ColorTheme:     w.Theme,
			TrendLineColor: trendLineColor,
			UnderLineColor: underLineColor,
		},
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("chart: render %s: %w", symbol, err)
	}
	return buf.String(), nil
}

// URL returns the public TradingView page for symbol.
func (w Widget) URL(symbol string) string {
	q := strings.ReplaceAll(w.Qualified(strings.TrimSpace(symbol)), ":", "-")
	return symbolsURL + url.PathEscape(q) + "/"
}

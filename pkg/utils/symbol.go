package utils

import (
	"strings"
	"unicode"
)

// CleanSymbol trims whitespace and a leading "$" from user input.
// Case is preserved: symbols are stored exactly as entered.
func CleanSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	return strings.TrimPrefix(symbol, "$")
}

// ValidSymbol reports whether s is usable as a ticker symbol: non-empty and
// free of whitespace and control characters.
func ValidSymbol(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// QualifySymbol prefixes a symbol with its exchange, e.g. "NASDAQ:AAPL".
// Symbols that already carry an exchange prefix are returned unchanged.
func QualifySymbol(exchange, symbol string) string {
	if exchange == "" || strings.Contains(symbol, ":") {
		return symbol
	}
	return exchange + ":" + symbol
}

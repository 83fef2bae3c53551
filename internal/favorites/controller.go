// Package favorites keeps the user's favorite ticker symbols. Store persists
// the set through a key-value backend; Controller holds the in-memory
// projection screens read from and writes every change straight through.
package favorites

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/seenimoa/finmarket/internal/infra"
	"github.com/seenimoa/finmarket/pkg/utils"
)

// ErrInvalidSymbol is returned by Toggle for an empty or malformed symbol.
var ErrInvalidSymbol = errors.New("favorites: invalid symbol")

// Event describes one applied change. Symbol is empty when the event
// reports a Load.
type Event struct {
	Symbol  string   `json:"symbol"`
	Added   bool     `json:"added"`
	Symbols []string `json:"symbols"`
}

// Controller is the queryable, mutable view of the favorite set. The
// projection is a cache of the store: Load refreshes it, Toggle writes
// through it.
type Controller struct {
	store    *Store
	logger   *slog.Logger
	onChange func(Event)

	mu      sync.RWMutex
	symbols []string
	removed *removal
}

// removal remembers where the last removed symbol sat, so toggling it back
// restores the previous order.
type removal struct {
	symbol string
	index  int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOnChange registers fn to be called after every successful toggle and
// every successful Load.
func WithOnChange(fn func(Event)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// NewController creates a controller with an empty projection. Call Load
// before first use.
func NewController(store *Store, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		logger:  infra.Discard(),
		symbols: []string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the projection with the persisted set. On a storage error
// the projection becomes empty and the error is returned for display only.
func (c *Controller) Load(ctx context.Context) error {
	symbols, err := c.store.Read(ctx)
	if err != nil {
		symbols = []string{}
		c.logger.Warn("favorites unavailable, showing empty list", "err", err)
	}

	c.mu.Lock()
	c.symbols = symbols
	c.removed = nil
	c.mu.Unlock()

	if err == nil && c.onChange != nil {
		c.onChange(Event{Symbols: slices.Clone(symbols)})
	}
	return err
}

// Toggle adds symbol when absent and removes it when present, then writes
// the whole set to the store before returning. New symbols are appended; a
// symbol toggled back right after its removal returns to its old position.
// If the write fails the projection is restored to its previous value and
// the StorageError is returned.
func (c *Controller) Toggle(ctx context.Context, symbol string) (Event, error) {
	symbol = utils.CleanSymbol(symbol)
	if !utils.ValidSymbol(symbol) {
		return Event{}, ErrInvalidSymbol
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, prevRemoved := c.symbols, c.removed
	next := slices.Clone(prev)
	ev := Event{Symbol: symbol}
	if i := slices.Index(next, symbol); i >= 0 {
		next = slices.Delete(next, i, i+1)
		c.removed = &removal{symbol: symbol, index: i}
	} else {
		if r := c.removed; r != nil && r.symbol == symbol && r.index <= len(next) {
			next = slices.Insert(next, r.index, symbol)
		} else {
			next = append(next, symbol)
		}
		c.removed = nil
		ev.Added = true
	}
	c.symbols = next

	if err := c.store.Write(ctx, next); err != nil {
		c.symbols, c.removed = prev, prevRemoved
		c.logger.Error("favorites write failed, change rolled back", "symbol", symbol, "err", err)
		return Event{}, err
	}

	ev.Symbols = slices.Clone(next)
	if c.onChange != nil {
		c.onChange(ev)
	}
	return ev, nil
}

// Filter returns a lazy view of the symbols containing query,
// case-insensitively. Each iteration reads the projection as it is at that
// moment, so the same sequence can be ranged over again after a Toggle.
func (c *Controller) Filter(query string) iter.Seq[string] {
	q := strings.ToLower(strings.TrimSpace(query))
	return func(yield func(string) bool) {
		c.mu.RLock()
		symbols := c.symbols
		c.mu.RUnlock()

		for _, s := range symbols {
			if q != "" && !strings.Contains(strings.ToLower(s), q) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Symbols returns a copy of the projection in insertion order.
func (c *Controller) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.symbols)
}

// Contains reports whether symbol is a favorite.
func (c *Controller) Contains(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.symbols, utils.CleanSymbol(symbol))
}

// Len returns the number of favorites.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols)
}

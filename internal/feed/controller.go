// Package feed owns the news working set and insight summary. It drives one
// retrieval at a time through the remote client, falls back to a bundled
// corpus when either fetch fails, and publishes every transition as a State.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/finmarket/internal/infra"
	"github.com/seenimoa/finmarket/internal/newsclient"
	"github.com/seenimoa/finmarket/pkg/models"
)

// Fetcher is the subset of the remote client the controller needs.
// *newsclient.Client satisfies it.
type Fetcher interface {
	FetchNews(ctx context.Context, f newsclient.Filters) ([]models.NewsItem, error)
	FetchInsights(ctx context.Context, symbols []string) (models.InsightSummary, error)
}

// DefaultBasket is used for insights when no basket has been set.
var DefaultBasket = []string{"AAPL", "TSLA"}

// retrieval is one in-flight fetch of news and insights.
type retrieval struct {
	gen      uint64
	category models.Category
	done     chan struct{}
}

// Controller is the news feed state machine. It is safe for concurrent use.
type Controller struct {
	fetcher       Fetcher
	corpus        Corpus
	logger        *slog.Logger
	observer      func(State)
	defaultBasket []string
	limit         int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	basket   []string
	gen      uint64
	inflight *retrieval
	subs     map[chan State]struct{}
	closed   bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithFallback replaces the bundled corpus. New rejects a corpus that fails
// Validate.
func WithFallback(c Corpus) Option {
	return func(ctl *Controller) { ctl.corpus = c }
}

// WithObserver registers fn to be called after every Ready or Degraded
// transition. fn runs on the retrieval goroutine and must not block.
func WithObserver(fn func(State)) Option {
	return func(ctl *Controller) { ctl.observer = fn }
}

// WithLogger sets the logger used to record degraded retrievals.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithCategory sets the category selected before the first retrieval. New
// rejects a category outside models.Categories.
func WithCategory(c models.Category) Option {
	return func(ctl *Controller) { ctl.state.Category = c }
}

// WithDefaultBasket sets the symbols used when the basket is empty. An empty
// list keeps DefaultBasket.
func WithDefaultBasket(symbols []string) Option {
	return func(ctl *Controller) {
		if len(symbols) > 0 {
			ctl.defaultBasket = slices.Clone(symbols)
		}
	}
}

// WithLimit caps the number of items requested from the service.
func WithLimit(n int) Option {
	return func(ctl *Controller) { ctl.limit = n }
}

// New creates an idle controller. No retrieval starts until SelectCategory
// or Refresh is called.
func New(f Fetcher, opts ...Option) (*Controller, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		fetcher:       f,
		corpus:        DefaultCorpus(),
		logger:        infra.Discard(),
		defaultBasket: slices.Clone(DefaultBasket),
		ctx:           ctx,
		cancel:        cancel,
		state:         State{Phase: PhaseIdle, Category: models.CategoryAll},
		subs:          make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.corpus.Validate(); err != nil {
		cancel()
		return nil, err
	}
	if c.state.Category == "" {
		c.state.Category = models.CategoryAll
	}
	if !c.state.Category.Known() {
		cancel()
		return nil, fmt.Errorf("feed: %w %q", models.ErrUnknownCategory, c.state.Category)
	}
	return c, nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Category returns the current selection.
func (c *Controller) Category() models.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Category
}

// SetBasket sets the symbols sent for insights on the next retrieval. An
// empty basket restores the default basket.
func (c *Controller) SetBasket(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.basket = slices.Clone(symbols)
}

// Basket returns the symbols the next retrieval will send.
func (c *Controller) Basket() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.basketLocked())
}

func (c *Controller) basketLocked() []string {
	if len(c.basket) == 0 {
		return c.defaultBasket
	}
	return c.basket
}

// SelectCategory switches the feed to cat and waits for the retrieval that
// serves it. A retrieval already in flight for cat is joined rather than
// repeated. Fetch failures are reported through a Degraded state; the
// returned error is ctx.Err(), ErrClosed, or models.ErrUnknownCategory for a
// category the fallback corpus cannot serve.
func (c *Controller) SelectCategory(ctx context.Context, cat models.Category) (State, error) {
	if cat == "" {
		cat = models.CategoryAll
	}
	if !cat.Known() {
		return State{}, fmt.Errorf("feed: %w %q", models.ErrUnknownCategory, cat)
	}
	c.mu.Lock()
	r, err := c.retrievalLocked(cat)
	c.mu.Unlock()
	if err != nil {
		return State{}, err
	}
	return c.wait(ctx, r)
}

// Refresh retrieves the current category again, joining the in-flight
// retrieval when there is one.
func (c *Controller) Refresh(ctx context.Context) (State, error) {
	c.mu.Lock()
	r, err := c.retrievalLocked(c.state.Category)
	c.mu.Unlock()
	if err != nil {
		return State{}, err
	}
	return c.wait(ctx, r)
}

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("feed: controller closed")

func (c *Controller) retrievalLocked(cat models.Category) (*retrieval, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.inflight != nil && c.inflight.category == cat {
		return c.inflight, nil
	}

	c.gen++
	r := &retrieval{gen: c.gen, category: cat, done: make(chan struct{})}
	c.inflight = r

	session := uuid.NewString()
	c.state = State{
		Phase:     PhaseLoading,
		Category:  cat,
		Session:   session,
		UpdatedAt: time.Now(),
	}
	c.notifyLocked()

	basket := slices.Clone(c.basketLocked())
	go c.run(r, session, basket)
	return r, nil
}

// wait blocks until r settles. If r was superseded it follows the newer
// retrieval, so the caller always sees the state of the latest request.
func (c *Controller) wait(ctx context.Context, r *retrieval) (State, error) {
	for {
		select {
		case <-r.done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}

		c.mu.Lock()
		next, st := c.inflight, c.state
		c.mu.Unlock()
		if next == nil || next == r {
			return st, nil
		}
		r = next
	}
}

// run performs both fetches concurrently and commits the result unless a
// newer retrieval has started in the meantime.
func (c *Controller) run(r *retrieval, session string, basket []string) {
	defer close(r.done)

	var (
		news       []models.NewsItem
		insight    models.InsightSummary
		newsErr    error
		insightErr error
	)

	g, gctx := errgroup.WithContext(c.ctx)

	g.Go(func() error {
		items, err := c.fetcher.FetchNews(gctx, newsclient.Filters{Category: r.category, Limit: c.limit})
		if err != nil {
			newsErr = fmt.Errorf("fetch news: %w", err)
			return nil // non-fatal
		}
		news = items
		return nil
	})

	g.Go(func() error {
		ins, err := c.fetcher.FetchInsights(gctx, basket)
		if err != nil {
			insightErr = fmt.Errorf("fetch insights: %w", err)
			return nil // non-fatal
		}
		insight = ins
		return nil
	})

	_ = g.Wait()

	st := c.compose(r.category, session, news, insight, newsErr, insightErr)

	c.mu.Lock()
	if r.gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded retrieval",
			"session", session, "category", r.category)
		return
	}
	c.state = st
	c.inflight = nil
	closed := c.closed
	c.notifyLocked()
	c.mu.Unlock()

	if st.Phase == PhaseDegraded && !closed {
		c.logger.Warn("news feed degraded, using fallback content",
			"session", session, "category", r.category, "source", st.Source, "err", st.Err)
	}
	if c.observer != nil && !closed {
		c.observer(st)
	}
}

// compose builds the terminal state of a retrieval. A failed half is filled
// from the corpus; a successful half is kept.
func (c *Controller) compose(cat models.Category, session string, news []models.NewsItem,
	insight models.InsightSummary, newsErr, insightErr error) State {

	st := State{
		Phase:     PhaseReady,
		Category:  cat,
		Session:   session,
		Source:    SourceRemote,
		UpdatedAt: time.Now(),
	}

	if newsErr != nil {
		st.Items = c.corpus.Filter(cat)
	} else {
		// Remote filtering is trusted, but off-category items are still
		// dropped so the working set never mixes categories.
		st.Items = cat.Filter(news)
	}

	if insightErr != nil {
		fb := c.corpus.Insight
		st.Insight = &fb
	} else {
		st.Insight = &insight
	}

	switch {
	case newsErr != nil && insightErr != nil:
		st.Phase, st.Source = PhaseDegraded, SourceFallback
	case newsErr != nil || insightErr != nil:
		st.Phase, st.Source = PhaseDegraded, SourceMixed
	}
	st.Err = errors.Join(newsErr, insightErr)
	return st
}

// Search returns the items of the current working set whose title or
// summary contains query, case-insensitively. An empty query returns every
// item.
func (c *Controller) Search(query string) []models.NewsItem {
	items := c.Snapshot().Items
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.NewsItem, 0, len(items))
	for _, it := range items {
		if q == "" ||
			strings.Contains(strings.ToLower(it.Title), q) ||
			strings.Contains(strings.ToLower(it.Summary), q) {
			out = append(out, it)
		}
	}
	return out
}

// Subscribe returns a channel that receives the latest state after every
// transition, starting with the current one. Unread states are replaced by
// newer ones. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	ch <- c.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

func (c *Controller) notifyLocked() {
	if c.closed {
		return
	}
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

// Close abandons in-flight retrievals and closes every subscriber channel.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	for ch := range c.subs {
		close(ch)
	}
	clear(c.subs)
}

// Package tui is the terminal front end: a news screen, a charts screen and a
// favorites screen over the feed and favorites controllers.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seenimoa/finmarket/internal/chart"
	"github.com/seenimoa/finmarket/internal/favorites"
	"github.com/seenimoa/finmarket/internal/feed"
	"github.com/seenimoa/finmarket/internal/infra"
	"github.com/seenimoa/finmarket/pkg/models"
	"github.com/seenimoa/finmarket/pkg/utils"
)

type screen int

const (
	screenNews screen = iota
	screenCharts
	screenFavorites
)

var screenNames = []string{"News", "Charts", "Favorites"}

// Options holds the collaborators the TUI is built from.
type Options struct {
	Feed      *feed.Controller
	Favorites *favorites.Controller
	Chart     chart.Widget
	Logger    *slog.Logger
}

type App struct {
	ctx    context.Context
	feed   *feed.Controller
	favs   *favorites.Controller
	chart  chart.Widget
	logger *slog.Logger

	states      <-chan feed.State
	unsubscribe func()

	screen screen
	width  int
	height int

	// News
	state   feed.State
	cursor  int
	search  textinput.Model
	spinner spinner.Model

	// Charts
	symbolInput textinput.Model
	chartSymbol string

	// Favorites
	favFilter textinput.Model
	favCursor int

	status string
	err    error
}

// NewApp subscribes to the feed and returns the root model. The caller must
// call Close when the program exits.
func NewApp(ctx context.Context, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = infra.Discard()
	}

	search := textinput.New()
	search.Placeholder = "Search headlines..."
	search.Prompt = promptStyle.Render("/ ")
	search.CharLimit = 100

	symbol := textinput.New()
	symbol.Placeholder = "Symbol, e.g. AAPL"
	symbol.Prompt = promptStyle.Render("$ ")
	symbol.CharLimit = 16

	filter := textinput.New()
	filter.Placeholder = "Filter favorites..."
	filter.Prompt = promptStyle.Render("/ ")
	filter.CharLimit = 16

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	states, unsubscribe := opts.Feed.Subscribe()

	return &App{
		ctx:         ctx,
		feed:        opts.Feed,
		favs:        opts.Favorites,
		chart:       opts.Chart,
		logger:      opts.Logger,
		states:      states,
		unsubscribe: unsubscribe,
		state:       opts.Feed.Snapshot(),
		search:      search,
		symbolInput: symbol,
		favFilter:   filter,
		spinner:     sp,
	}
}

// Run starts the program and blocks until the user quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	app := NewApp(ctx, opts)
	defer app.Close()

	_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the feed subscription.
func (a *App) Close() {
	a.unsubscribe()
}

func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForState(a.states), a.loadFavoritesCmd()}
	if a.state.Phase == feed.PhaseIdle {
		cmds = append(cmds, a.refreshCmd())
	}
	return tea.Batch(cmds...)
}

// ── Commands ──

func waitForState(ch <-chan feed.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return statesClosedMsg{}
		}
		return stateMsg{state: st}
	}
}

// feedCmd runs a feed operation. Its result arrives through the
// subscription, so only errors are reported back.
func (a *App) feedCmd(op func(context.Context) (feed.State, error)) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		if _, err := op(ctx); err != nil && ctx.Err() == nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (a *App) refreshCmd() tea.Cmd {
	return a.feedCmd(a.feed.Refresh)
}

func (a *App) selectCategoryCmd(cat models.Category) tea.Cmd {
	return a.feedCmd(func(ctx context.Context) (feed.State, error) {
		return a.feed.SelectCategory(ctx, cat)
	})
}

func (a *App) loadFavoritesCmd() tea.Cmd {
	ctx, favs := a.ctx, a.favs
	return func() tea.Msg {
		return favoritesLoadedMsg{err: favs.Load(ctx)}
	}
}

func (a *App) toggleCmd(symbol string) tea.Cmd {
	ctx, favs := a.ctx, a.favs
	return func() tea.Msg {
		ev, err := favs.Toggle(ctx, symbol)
		return toggledMsg{symbol: symbol, added: ev.Added, err: err}
	}
}

// ── Update ──

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		a.err = nil
		return a.handleKey(msg)

	case stateMsg:
		wasLoading := a.state.Phase == feed.PhaseLoading
		a.state = msg.state
		if a.cursor >= len(a.visibleItems()) {
			a.cursor = max(0, len(a.visibleItems())-1)
		}
		cmds := []tea.Cmd{waitForState(a.states)}
		if a.state.Phase == feed.PhaseLoading && !wasLoading {
			cmds = append(cmds, a.spinner.Tick)
		}
		return a, tea.Batch(cmds...)

	case statesClosedMsg:
		return a, tea.Quit

	case favoritesLoadedMsg:
		if msg.err != nil {
			a.err = fmt.Errorf("load favorites: %w", msg.err)
		}
		a.clampFavCursor()
		return a, nil

	case toggledMsg:
		if msg.err != nil {
			a.err = fmt.Errorf("toggle %s: %w", msg.symbol, msg.err)
			return a, nil
		}
		if msg.added {
			a.status = "★ " + msg.symbol + " added to favorites"
		} else {
			a.status = "☆ " + msg.symbol + " removed from favorites"
		}
		a.clampFavCursor()
		return a, nil

	case errMsg:
		a.err = msg.err
		return a, nil

	case spinner.TickMsg:
		if a.state.Phase == feed.PhaseLoading {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	return a, nil
}

func (a *App) editing() bool {
	return a.search.Focused() || a.symbolInput.Focused() || a.favFilter.Focused()
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}
	if a.editing() {
		return a.handleInputKey(msg)
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "1":
		return a.activate(screenNews)
	case "2":
		return a.activate(screenCharts)
	case "3":
		return a.activate(screenFavorites)
	case "tab":
		return a.activate((a.screen + 1) % screen(len(screenNames)))
	}

	switch a.screen {
	case screenNews:
		return a.handleNewsKey(msg)
	case screenCharts:
		return a.handleChartsKey(msg)
	case screenFavorites:
		return a.handleFavoritesKey(msg)
	}
	return a, nil
}

// activate switches screens. The favorites projection is reloaded on every
// activation so writes made elsewhere show up.
func (a *App) activate(s screen) (tea.Model, tea.Cmd) {
	a.screen = s
	a.status = ""
	if s == screenFavorites {
		return a, a.loadFavoritesCmd()
	}
	return a, nil
}

func (a *App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var input *textinput.Model
	switch {
	case a.search.Focused():
		input = &a.search
	case a.symbolInput.Focused():
		input = &a.symbolInput
	default:
		input = &a.favFilter
	}

	switch msg.String() {
	case "esc":
		input.SetValue("")
		input.Blur()
		return a, nil
	case "enter":
		input.Blur()
		if input == &a.symbolInput {
			a.openChart(input.Value())
		}
		return a, nil
	}

	var cmd tea.Cmd
	*input, cmd = input.Update(msg)
	a.cursor = 0
	a.clampFavCursor()
	return a, cmd
}

func (a *App) handleNewsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := a.visibleItems()
	switch msg.String() {
	case "j", "down":
		if a.cursor < len(items)-1 {
			a.cursor++
		}
	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
	case "l", "right":
		return a, a.shiftCategory(1)
	case "h", "left":
		return a, a.shiftCategory(-1)
	case "r":
		return a, a.refreshCmd()
	case "/":
		return a, a.search.Focus()
	case "esc":
		a.search.SetValue("")
	case "s":
		if sym := a.selectedSymbol(items); sym != "" {
			return a, a.toggleCmd(sym)
		}
	case "enter":
		if sym := a.selectedSymbol(items); sym != "" {
			a.openChart(sym)
			a.screen = screenCharts
		}
	}
	return a, nil
}

func (a *App) shiftCategory(delta int) tea.Cmd {
	i := slices.Index(models.Categories, a.state.Category)
	n := len(models.Categories)
	next := models.Categories[((i+delta)%n+n)%n]
	a.cursor = 0
	return a.selectCategoryCmd(next)
}

func (a *App) selectedSymbol(items []models.NewsItem) string {
	if a.cursor >= len(items) || len(items[a.cursor].Symbols) == 0 {
		return ""
	}
	return items[a.cursor].Symbols[0]
}

func (a *App) handleChartsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "e", "/":
		a.symbolInput.SetValue(a.chartSymbol)
		return a, a.symbolInput.Focus()
	case "f", "s":
		if a.chartSymbol != "" {
			return a, a.toggleCmd(a.chartSymbol)
		}
	}
	return a, nil
}

func (a *App) openChart(symbol string) {
	symbol = strings.ToUpper(utils.CleanSymbol(symbol))
	if !utils.ValidSymbol(symbol) {
		a.err = fmt.Errorf("invalid symbol %q", symbol)
		return
	}
	a.chartSymbol = symbol
	a.status = ""
}

func (a *App) handleFavoritesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	symbols := slices.Collect(a.favs.Filter(a.favFilter.Value()))
	switch msg.String() {
	case "j", "down":
		if a.favCursor < len(symbols)-1 {
			a.favCursor++
		}
	case "k", "up":
		if a.favCursor > 0 {
			a.favCursor--
		}
	case "/":
		return a, a.favFilter.Focus()
	case "esc":
		a.favFilter.SetValue("")
	case "x", "d", "s":
		if a.favCursor < len(symbols) {
			return a, a.toggleCmd(symbols[a.favCursor])
		}
	case "enter":
		if a.favCursor < len(symbols) {
			a.openChart(symbols[a.favCursor])
			a.screen = screenCharts
		}
	}
	return a, nil
}

func (a *App) clampFavCursor() {
	n := 0
	for range a.favs.Filter(a.favFilter.Value()) {
		n++
	}
	if a.favCursor >= n {
		a.favCursor = max(0, n-1)
	}
}

// visibleItems is the working set narrowed by the search box.
func (a *App) visibleItems() []models.NewsItem {
	if q := a.search.Value(); q != "" {
		return a.feed.Search(q)
	}
	return a.state.Items
}

// ── View ──

func (a *App) View() string {
	if a.width == 0 {
		return headerStyle.Render("finmarket")
	}

	var body, hints string
	switch a.screen {
	case screenNews:
		body = a.renderNews()
		hints = "←/→ category  / search  r refresh  s star  enter chart  q quit"
	case screenCharts:
		body = a.renderChart()
		hints = "e symbol  f star  tab next  q quit"
	case screenFavorites:
		body = a.renderFavorites()
		hints = "/ filter  x remove  enter chart  q quit"
	}
	if a.editing() {
		hints = "enter done  esc clear"
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top, headerStyle.Render("finmarket")+"  ", a.renderTabs())
	return a.withStatusBar(header+"\n\n"+body, hints)
}

func (a *App) renderTabs() string {
	parts := make([]string, len(screenNames))
	for i, name := range screenNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if screen(i) == a.screen {
			parts[i] = tabActiveStyle.Render(label)
		} else {
			parts[i] = tabInactiveStyle.Render(label)
		}
	}
	return strings.Join(parts, " ")
}

func (a *App) withStatusBar(content, hints string) string {
	left := a.status
	if a.err != nil {
		left = errorStyle.Render(a.err.Error())
	}
	right := hints
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	bar := statusBarStyle.Width(a.width).Render(left + strings.Repeat(" ", gap) + right)

	lines := strings.Split(content, "\n")
	for len(lines) < a.height-1 {
		lines = append(lines, "")
	}
	if a.height > 1 && len(lines) >= a.height {
		lines = lines[:a.height-1]
	}
	return strings.Join(append(lines, bar), "\n")
}

package tui

import "github.com/seenimoa/finmarket/internal/feed"

type stateMsg struct {
	state feed.State
}

// statesClosedMsg is sent when the feed controller closes its subscription.
type statesClosedMsg struct{}

type favoritesLoadedMsg struct {
	err error
}

type toggledMsg struct {
	symbol string
	added  bool
	err    error
}

type errMsg struct {
	err error
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seenimoa/finmarket/internal/chart"
	"github.com/seenimoa/finmarket/internal/config"
	"github.com/seenimoa/finmarket/internal/favorites"
	"github.com/seenimoa/finmarket/internal/feed"
	"github.com/seenimoa/finmarket/internal/kv"
	"github.com/seenimoa/finmarket/internal/newsclient"
	"github.com/seenimoa/finmarket/pkg/models"
)

// services holds the components a command works with.
type services struct {
	store  kv.Store
	client *newsclient.Client
	feed   *feed.Controller
	favs   *favorites.Controller
	chart  chart.Widget
}

// wire builds the client, storage and controllers from cfg. Favorites are
// loaded and become the insight basket; later toggles keep it in sync.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, feedOpts ...feed.Option) (*services, error) {
	client, err := newsclient.New(newsclient.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.Remote.Timeout,
		UserAgent: cfg.Remote.UserAgent,
		APIToken:  cfg.Remote.APIToken,
	}, newsclient.WithLogger(logger.With("component", "newsclient")))
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	cat, err := models.ParseCategory(cfg.Feed.DefaultCategory)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("feed.default_category: %w", err)
	}

	opts := []feed.Option{
		feed.WithLogger(logger.With("component", "feed")),
		feed.WithCategory(cat),
		feed.WithDefaultBasket(cfg.Feed.Basket),
		feed.WithLimit(cfg.Feed.Limit),
	}
	fc, err := feed.New(client, append(opts, feedOpts...)...)
	if err != nil {
		store.Close()
		return nil, err
	}

	favs := favorites.NewController(favorites.NewStore(store),
		favorites.WithLogger(logger.With("component", "favorites")),
		favorites.WithOnChange(func(ev favorites.Event) { fc.SetBasket(ev.Symbols) }),
	)
	if err := favs.Load(ctx); err != nil {
		logger.Warn("favorites unavailable, starting empty", "err", err)
	}
	fc.SetBasket(favs.Symbols())

	return &services{
		store:  store,
		client: client,
		feed:   fc,
		favs:   favs,
		chart:  chart.FromConfig(cfg.Chart),
	}, nil
}

func (s *services) Close() {
	s.feed.Close()
	s.store.Close()
}

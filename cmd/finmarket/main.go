// Command finmarket shows finance news, market insights and favorites from the terminal.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seenimoa/finmarket/api"
	"github.com/seenimoa/finmarket/internal/chart"
	"github.com/seenimoa/finmarket/internal/config"
	"github.com/seenimoa/finmarket/internal/feed"
	"github.com/seenimoa/finmarket/internal/infra"
	"github.com/seenimoa/finmarket/internal/tui"
	"github.com/seenimoa/finmarket/pkg/models"
	"github.com/seenimoa/finmarket/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root PersistentPreRunE.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		red.Fprintln(os.Stderr, "✗", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "finmarket",
	Short: "Finance news, market insights and favorite symbols",
	Long: `finmarket reads categorized finance news and an AI market insight from
a remote news service, falls back to curated highlights when the service is
unreachable, and keeps a local list of favorite ticker symbols.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
			cfg.Storage.Driver = "memory"
		}
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			color.NoColor = true
		}
		logger = infra.NewLogger(os.Stderr, cfg.Logging)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().Bool("ephemeral", false, "keep favorites in memory only")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// withServices wires the components for the duration of fn.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error, feedOpts ...feed.Option) error {
	ctx := cmd.Context()
	s, err := wire(ctx, cfg, logger, feedOpts...)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("finmarket %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- News Command ---

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Show the news feed for a category",
	Long: `Show the news feed with the market insight for your favorites.

Examples:
  finmarket news
  finmarket news --category crypto
  finmarket news --search bitcoin
  finmarket news --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catFlag, _ := cmd.Flags().GetString("category")
		query, _ := cmd.Flags().GetString("search")
		asJSON, _ := cmd.Flags().GetBool("json")

		return withServices(cmd, func(ctx context.Context, s *services) error {
			var (
				st  feed.State
				err error
			)
			if catFlag != "" {
				cat, perr := models.ParseCategory(catFlag)
				if perr != nil {
					return perr
				}
				st, err = s.feed.SelectCategory(ctx, cat)
			} else {
				st, err = s.feed.Refresh(ctx)
			}
			if err != nil {
				return err
			}
			if query != "" {
				st.Items = s.feed.Search(query)
			}

			if asJSON {
				return printJSON(st)
			}
			printState(os.Stdout, st)
			return nil
		})
	},
}

func init() {
	newsCmd.Flags().StringP("category", "c", "", "category: all, market, tech, crypto")
	newsCmd.Flags().StringP("search", "s", "", "only show items whose title or summary contains this text")
	newsCmd.Flags().Bool("json", false, "print the feed state as JSON")
}

// --- Summary Command ---

var summaryCmd = &cobra.Command{
	Use:   "summary [news-id]",
	Short: "Show the full story and analysis for one news item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("news id must be an integer: %q", args[0])
		}
		return withServices(cmd, func(ctx context.Context, s *services) error {
			d, err := s.client.FetchNewsSummary(ctx, id)
			if err != nil {
				return err
			}
			printDetail(os.Stdout, d)
			return nil
		})
	},
}

// --- Insights Command ---

var insightsCmd = &cobra.Command{
	Use:   "insights [symbols...]",
	Short: "Request a market insight for a basket of symbols",
	Long: `Request a market insight for the given symbols. Without arguments the
basket is your favorites, or the configured default basket when you have none.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			basket := args
			if len(basket) == 0 {
				basket = s.feed.Basket()
			}
			for i, sym := range basket {
				basket[i] = strings.ToUpper(utils.CleanSymbol(sym))
			}

			ins, err := s.client.FetchInsights(ctx, basket)
			if err != nil {
				return err
			}
			printHeader(os.Stdout, strings.Join(basket, ", "))
			printInsight(os.Stdout, ins)
			return nil
		})
	},
}

// --- Favorites Commands ---

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "List or change favorite symbols",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites, optionally filtered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		return withServices(cmd, func(ctx context.Context, s *services) error {
			if err := s.favs.Load(ctx); err != nil {
				return err
			}
			symbols := slices.Collect(s.favs.Filter(filter))
			if len(symbols) == 0 {
				if s.favs.Len() == 0 {
					dim.Println("No favorites yet. Add one with: finmarket favorites toggle AAPL")
				} else {
					dim.Printf("No favorites match %q.\n", filter)
				}
				return nil
			}
			for _, sym := range symbols {
				yellow.Print("★ ")
				fmt.Println(sym)
			}
			return nil
		})
	},
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle [symbol...]",
	Short: "Add or remove favorites",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			for _, arg := range args {
				sym := strings.ToUpper(utils.CleanSymbol(arg))
				ev, err := s.favs.Toggle(ctx, sym)
				if err != nil {
					return fmt.Errorf("toggle %s: %w", arg, err)
				}
				if ev.Added {
					green.Printf("★ %s added\n", sym)
				} else {
					dim.Printf("☆ %s removed\n", sym)
				}
			}
			return nil
		})
	},
}

func init() {
	favoritesListCmd.Flags().StringP("filter", "f", "", "case-insensitive substring filter")
	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesToggleCmd)
}

// --- Chart Command ---

var chartCmd = &cobra.Command{
	Use:   "chart [symbol]",
	Short: "Print the chart link, or the embeddable widget with --html",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		html, _ := cmd.Flags().GetBool("html")
		w := chart.FromConfig(cfg.Chart)
		if html {
			doc, err := w.HTML(args[0])
			if err != nil {
				return err
			}
			fmt.Print(doc)
			return nil
		}
		bold.Println(w.Qualified(args[0]))
		fmt.Println(w.URL(args[0]))
		return nil
	},
}

func init() {
	chartCmd.Flags().Bool("html", false, "print a standalone HTML document embedding the chart")
}

// --- TUI Command ---

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Log lines would corrupt the alternate screen.
		logger = infra.Discard()

		return withServices(cmd, func(ctx context.Context, s *services) error {
			return tui.Run(ctx, tui.Options{
				Feed:      s.feed,
				Favorites: s.favs,
				Chart:     s.chart,
				Logger:    logger,
			})
		})
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.API.Port = port
		}

		metrics := api.NewMetrics()
		return withServices(cmd, func(ctx context.Context, s *services) error {
			srv := api.NewServer(api.Deps{
				Config:    cfg,
				Feed:      s.feed,
				Favorites: s.favs,
				Remote:    s.client,
				Chart:     s.chart,
				Metrics:   metrics,
				Logger:    logger.With("component", "api"),
				Version:   version,
			})
			cyan.Printf("🌐 finmarket API listening on http://%s\n", cfg.Addr())
			return srv.ListenAndServe(ctx, cfg.Addr())
		}, feed.WithObserver(metrics.ObserveRetrieval))
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "port override")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and remote service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  finmarket — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		if f := cfg.File(); f != "" {
			fmt.Printf("  Config file:   %s\n", f)
		}
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Remote:        %s (timeout %s)\n", cfg.Remote.BaseURL, cfg.Remote.Timeout)
		fmt.Printf("    Storage:       %s\n", storageLabel(cfg.Storage))
		fmt.Printf("    Feed:          %s, basket %s\n", cfg.Feed.DefaultCategory, strings.Join(cfg.Feed.Basket, " "))
		fmt.Printf("    API Server:    %s\n", cfg.Addr())
		fmt.Println()

		fmt.Println("  Secrets:")
		for _, k := range config.CheckSecrets(cfg) {
			status := red.Sprint("✗ not set")
			if k.IsSet {
				status = green.Sprintf("✓ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-20s %s\n", k.Name+":", status)
		}
		fmt.Println()

		return withServices(cmd, func(ctx context.Context, s *services) error {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			fmt.Print("  Remote service: ")
			if h, err := s.client.Health(ctx); err != nil {
				red.Printf("✗ %v\n", err)
			} else {
				green.Printf("✓ %s (version %s)\n", h.Status, h.Version)
			}
			fmt.Printf("  Favorites:      %d\n", s.favs.Len())
			fmt.Println("═══════════════════════════════════════")
			return nil
		})
	},
}

func storageLabel(sc config.StorageConfig) string {
	switch sc.Driver {
	case "redis":
		return fmt.Sprintf("redis %s/%d", sc.RedisAddr, sc.RedisDB)
	case "memory":
		return "memory (not persisted)"
	default:
		if sc.Path != "" {
			return "sqlite " + sc.Path
		}
		return "sqlite (XDG data dir)"
	}
}

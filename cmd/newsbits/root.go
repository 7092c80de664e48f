package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsbits/internal/domain"
	"newsbits/internal/scheduler"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "newsbits",
		Short:        "Headline aggregator for a fixed set of RSS feeds",
		Long:         "newsbits fetches a fixed list of news feeds, keeps a bounded deduplicated cache of headlines and tracks which ones you have already seen.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newFetchCmd(opts),
		newListCmd(opts),
		newUnseenCmd(opts),
		newLimitCmd(opts),
		newShowCmd(opts),
		newRemoveCmd(opts),
		newResetSeenCmd(opts),
		newSourcesCmd(opts),
	)

	return rootCmd
}

// withApp wires the application for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Refresh all feeds on the configured interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				a.logger.Info("starting newsbits",
					"sources", len(a.cfg.Sources),
					"interval", a.cfg.Schedule.Interval,
					"storage", a.cfg.Storage.Driver,
				)

				sched := scheduler.NewScheduler(a.coordinator, a.cfg.Schedule.Interval, a.cfg.Schedule.RefreshTimeout, a.logger)
				if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("scheduler: %w", err)
				}
				return nil
			})
		},
	}
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var sourceName string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch all feeds once and report what was added",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()

				ctx, cancel := context.WithTimeout(ctx, a.cfg.Schedule.RefreshTimeout)
				defer cancel()

				if sourceName != "" {
					src, ok := findSource(a.cfg.Sources, sourceName)
					if !ok {
						return fmt.Errorf("unknown source %q", sourceName)
					}
					res := a.coordinator.FetchSource(ctx, src)
					printSourceResult(out, res)
					return res.Err
				}

				batch, err := a.coordinator.FetchAllProgressive(ctx, func(res domain.SourceResult) {
					printSourceResult(out, res)
				})
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "\n%d of %d sources ok, %d new, %d cached (%s)\n",
					batch.Succeeded, len(a.cfg.Sources), batch.Added, len(batch.Articles), batch.Origin)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "fetch only the named source")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		category string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached articles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.Category
			if category != "" {
				c, ok := domain.ParseCategory(category)
				if !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				filter = c
			}

			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				var articles []domain.Article
				for _, art := range a.store.Articles() {
					if filter == "" || art.Category == filter {
						articles = append(articles, art)
					}
				}
				printArticles(cmd.OutOrStdout(), articles, limit, time.Now())
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of articles to print (0 for all)")
	cmd.Flags().StringVar(&category, "category", "", "only show one category")
	return cmd
}

func newUnseenCmd(opts *rootOptions) *cobra.Command {
	var (
		limit int
		mark  bool
	)

	cmd := &cobra.Command{
		Use:   "unseen",
		Short: "List cached articles you have not seen yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				unseen := a.store.UnseenArticles()
				if limit > 0 && len(unseen) > limit {
					unseen = unseen[:limit]
				}
				printArticles(cmd.OutOrStdout(), unseen, 0, time.Now())

				if mark {
					for _, art := range unseen {
						a.store.MarkSeen(ctx, art)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "\nMarked %d article(s) as seen.\n", len(unseen))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of articles to print (0 for all)")
	cmd.Flags().BoolVar(&mark, "mark", false, "mark the printed articles as seen")
	return cmd
}

func newLimitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "limit [n]",
		Short: "Show or set the maximum number of cached articles",
		Long: `Without an argument, print the current cache limit.

With an argument, set it. Values are clamped to the supported range. Raising
the limit makes the next fetch backfill every source.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var requested int
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid limit %q: %w", args[0], err)
				}
				requested = n
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					fmt.Fprintf(out, "Cache limit: %d (%d cached)\n", a.store.CacheLimit(), a.store.Len())
					return nil
				}

				effective := a.store.SetCacheLimit(ctx, requested)
				fmt.Fprintf(out, "Cache limit set to %d (%d cached)\n", effective, a.store.Len())
				return nil
			})
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one article and mark it as seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				art, err := findArticle(a.store.Articles(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", art.Headline)
				fmt.Fprintf(out, "%s · %s · %s\n", art.Category, art.Source, art.PublishedAt.Local().Format(time.RFC1123))
				if art.Summary != "" {
					fmt.Fprintf(out, "\n%s\n", art.Summary)
				}
				switch {
				case art.AISummary != nil:
					fmt.Fprintf(out, "\nBrief: %s\n", *art.AISummary)
				case a.summarizer.Available() && art.Summary != "":
					fmt.Fprintf(out, "\nBrief: %s\n", a.summarizer.Shorten(ctx, art.Summary))
				}
				if art.ArticleURL != "" {
					fmt.Fprintf(out, "\n%s\n", art.ArticleURL)
				}

				a.store.MarkSeen(ctx, art)
				return nil
			})
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Drop an article from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				art, err := findArticle(a.store.Articles(), args[0])
				if err != nil {
					return err
				}
				if !a.store.Remove(ctx, art) {
					return fmt.Errorf("article %s is no longer cached", shortID(art.ID))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %q.\n", art.Headline)
				return nil
			})
		},
	}
}

func newResetSeenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-seen",
		Short: "Forget which articles have been seen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				n := a.store.SeenCount()
				a.store.ResetSeen(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d seen article(s).\n", n)
				return nil
			})
		},
	}
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured feeds and when each was last fetched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				out := cmd.OutOrStdout()
				now := time.Now()
				for _, src := range a.cfg.Sources {
					last := "never"
					if t, ok := a.store.LastFetchTime(src.Name); ok {
						last = ago(t, now)
					}
					fmt.Fprintf(out, "%-20s %-14s %-10s %s\n", src.Name, src.Category, last, src.URL)
				}
				return nil
			})
		},
	}
}

func findSource(sources []domain.FeedSource, name string) (domain.FeedSource, bool) {
	for _, s := range sources {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return domain.FeedSource{}, false
}

// findArticle matches a full article ID or an unambiguous prefix of one.
func findArticle(articles []domain.Article, id string) (domain.Article, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return domain.Article{}, errors.New("article id is empty")
	}

	var matches []domain.Article
	for _, a := range articles {
		if a.ID == id {
			return a, nil
		}
		if strings.HasPrefix(a.ID, id) {
			matches = append(matches, a)
		}
	}

	switch len(matches) {
	case 0:
		return domain.Article{}, fmt.Errorf("no cached article with id %q", id)
	case 1:
		return matches[0], nil
	default:
		return domain.Article{}, fmt.Errorf("id %q matches %d articles", id, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printSourceResult(w io.Writer, res domain.SourceResult) {
	if res.Err != nil {
		fmt.Fprintf(w, "✗ %s: %v\n", res.Source, res.Err)
		return
	}
	note := ""
	if res.FirstFetch {
		note = " (first fetch)"
	}
	fmt.Fprintf(w, "✓ %s: %d new of %d items%s\n", res.Source, res.Added, res.Fetched, note)
}

func printArticles(w io.Writer, articles []domain.Article, limit int, now time.Time) {
	if len(articles) == 0 {
		fmt.Fprintln(w, "No articles.")
		return
	}
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	for _, a := range articles {
		fmt.Fprintf(w, "[%s] %s\n", a.Category, a.Headline)
		fmt.Fprintf(w, "    %s · %s · %s\n", a.Source, ago(a.PublishedAt, now), shortID(a.ID))
		if a.Summary != "" {
			fmt.Fprintf(w, "    %s\n", a.Summary)
		}
		if a.ArticleURL != "" {
			fmt.Fprintf(w, "    %s\n", a.ArticleURL)
		}
	}
}

func ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

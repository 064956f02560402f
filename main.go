package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/tickerscope/cache"
	"github.com/briangreenhill/tickerscope/internal/apierr"
	"github.com/briangreenhill/tickerscope/internal/config"
	"github.com/briangreenhill/tickerscope/internal/logging"
	"github.com/briangreenhill/tickerscope/internal/stocks"
	"github.com/briangreenhill/tickerscope/polygon"
)

var version = "v0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tickerscope",
		Short:        "Browse Polygon ticker reference data",
		SilenceUsage: true,
	}
	root.AddCommand(newSearchCmd(), newClassifyCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tickerscope %s\n", version)
		},
	}
}

type searchOptions struct {
	market string
	sort   string
	order  string
	limit  int
	pages  int
	json   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Search tickers, following next_url for --pages pages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), term, opts)
		},
	}
	cmd.Flags().StringVar(&opts.market, "market", "", "market filter (stocks, crypto, fx, otc, indices)")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "sort field")
	cmd.Flags().StringVar(&opts.order, "order", "", "sort order (asc, desc)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "page size (defaults to PAGE_SIZE)")
	cmd.Flags().IntVar(&opts.pages, "pages", 1, "number of pages to load")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the list state as JSON")
	return cmd
}

func runSearch(ctx context.Context, out io.Writer, term string, opts searchOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		FilePath: cfg.Log.File,
		Service:  "tickerscope-cli",
		Version:  version,
	})
	if err != nil {
		return err
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	filters := stocks.Filters{Market: opts.market, Sort: opts.sort, Order: opts.order}
	if err := filters.Validate(); err != nil {
		return err
	}
	filters = stocks.DefaultFilters().Merge(filters)

	storeOpts := []stocks.Option{stocks.WithLogger(logging.Component(logger, "stocks"))}
	if opts.limit > 0 {
		storeOpts = append(storeOpts, stocks.WithPageSize(opts.limit))
	}
	store := stocks.NewStore(client, storeOpts...)
	if err := store.Search(ctx, term, &filters); err != nil {
		return reportFailure(store)
	}
	for i := 1; i < opts.pages; i++ {
		err := store.LoadMore(ctx, "")
		if errors.Is(err, stocks.ErrNoCursor) {
			break
		}
		if err != nil {
			return reportFailure(store)
		}
	}

	view := store.View()
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printTickers(out, view)
	return nil
}

func newClient(cfg *config.Config, logger zerolog.Logger) (*polygon.Client, error) {
	var fc *cache.FileCache
	var err error
	if cfg.Cache.Dir != "" {
		fc, err = cache.NewFileCacheAt(cfg.Cache.Dir)
	} else {
		fc, err = cache.NewFileCache("")
	}
	if err != nil {
		return nil, fmt.Errorf("open file cache: %w", err)
	}

	return polygon.New(cfg.Polygon.APIKey,
		polygon.WithBaseURL(cfg.Polygon.BaseURL),
		polygon.WithTimeout(cfg.Polygon.Timeout),
		polygon.WithPersister(fc),
		polygon.WithTTL(cfg.Cache.ReferenceTTL, cfg.Cache.EndpointTTL),
		polygon.WithOfflineFallback(cfg.Cache.OfflineFallback),
		polygon.WithPageSize(cfg.PageSize),
		polygon.WithLogger(logger),
	)
}

func reportFailure(store *stocks.Store) error {
	st := store.State()
	if st.ErrorDetail != nil {
		hint := ""
		if st.ErrorDetail.Retryable {
			hint = " (retryable)"
		}
		return fmt.Errorf("%s [%s]%s", st.Error, st.ErrorDetail.Type, hint)
	}
	return errors.New(st.Error)
}

func printTickers(out io.Writer, view stocks.View) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tNAME\tMARKET\tEXCHANGE\tTYPE")
	for _, t := range view.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Ticker, t.Name, t.Market, t.PrimaryExchange, t.Type)
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "\n%d tickers", len(view.Items))
	if view.HasMoreItems {
		fmt.Fprint(out, ", more available")
	}
	fmt.Fprintln(out)
}

type classifyOptions struct {
	status  int
	body    string
	message string
}

func newClassifyCmd() *cobra.Command {
	var opts classifyOptions
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show how an upstream failure is classified",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.status == 0 && opts.message == "" {
				return errors.New("one of --status or --message is required")
			}
			var err error
			if opts.status != 0 {
				err = apierr.NewResponseError(opts.status, []byte(opts.body))
			} else {
				err = errors.New(opts.message)
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(apierr.Classify(err)); err != nil {
				return err
			}
			fmt.Fprintln(out, apierr.FormatForLogging(err, "classify"))
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.status, "status", 0, "HTTP status code")
	cmd.Flags().StringVar(&opts.body, "body", "", "response body (JSON)")
	cmd.Flags().StringVar(&opts.message, "message", "", "error message, used when --status is not set")
	cmd.MarkFlagsMutuallyExclusive("status", "message")
	return cmd
}

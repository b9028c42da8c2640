package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gphotofetch/internal/downloader"
	"gphotofetch/pkg/auth"
	"gphotofetch/pkg/cache"
	"gphotofetch/pkg/config"
	"gphotofetch/pkg/daterange"
	errs "gphotofetch/pkg/errors"
	"gphotofetch/pkg/journal"
	"gphotofetch/pkg/logger"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/photos"
	"gphotofetch/pkg/ratelimit"
	"gphotofetch/pkg/retry"
	"gphotofetch/pkg/runner"
	"gphotofetch/pkg/storage"
	"gphotofetch/pkg/ui"
)

var (
	// Fetch command flags
	outputDir   string
	concurrency int
	cacheURL    string
	mediaType   string
	monthNames  bool
	rateLimit   int
	maxRetries  int
	noJournal   bool
	notify      bool
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <start_year> <start_month> <end_year> <end_month>",
	Short: "Download every item created within a month range",
	Long: `Download every photo and video created between the start month and the
end month, both inclusive.

Each month is listed once and cached; later runs read the cache instead of
the API. Files already present at their destination are skipped, so an
interrupted run can simply be started again.

A month whose listing fails is reported and skipped; the run carries on with
the next month. A corrupt cache file is never overwritten: delete it with
'gphotofetch cache rm YYYY-MM' and run again.`,
	Example: `  # Download November 2022 through February 2023
  gphotofetch fetch 2022 11 2023 2

  # Download one year into ./photos with 16 parallel downloads
  gphotofetch fetch 2021 1 2021 12 --output ./photos --concurrency 16

  # Only videos, with Jan..Dec month directories
  gphotofetch fetch 2023 1 2023 6 --media-type video --month-names`,
	Args: cobra.ExactArgs(4),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&outputDir, "output", "o", "", "destination root directory (default ./downloaded)")
	fetchCmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "number of parallel downloads (default 8)")
	fetchCmd.Flags().StringVar(&cacheURL, "cache-url", "", "cache location as a blob URL, e.g. file:///var/cache/gphotofetch")
	fetchCmd.Flags().StringVar(&mediaType, "media-type", "", "media to list: all, photo or video")
	fetchCmd.Flags().BoolVar(&monthNames, "month-names", false, "use Jan..Dec instead of 01..12 for month directories")
	fetchCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "listing requests per minute (0 for unlimited)")
	fetchCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "attempts per listing page and per download")
	fetchCmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record this run in the history journal")
	fetchCmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
}

// parseRange reads the four positional arguments
func parseRange(args []string) (models.Range, error) {
	var n [4]int
	names := [4]string{"start_year", "start_month", "end_year", "end_month"}
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return models.Range{}, errs.NewConfigError(errs.ErrInvalidRange, "%s %q is not a number", names[i], a)
		}
		n[i] = v
	}

	if _, err := daterange.Expand(n[0], n[1], n[2], n[3]); err != nil {
		return models.Range{}, err
	}
	return models.Range{
		Start: models.MonthBucket{Year: n[0], Month: n[1]},
		End:   models.MonthBucket{Year: n[2], Month: n[3]},
	}, nil
}

// fetchFlags collects the flags the user actually set
func fetchFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	f := cmd.Flags()
	if f.Changed("output") {
		flags["output"] = outputDir
	}
	if f.Changed("concurrency") {
		flags["concurrency"] = concurrency
	}
	if f.Changed("cache-url") {
		flags["cache-url"] = cacheURL
	}
	if f.Changed("media-type") {
		v := mediaType
		if v == "all" {
			v = photos.MediaTypeAll
		}
		flags["media-type"] = v
	}
	if f.Changed("month-names") {
		flags["month-names"] = monthNames
	}
	if f.Changed("rate-limit") {
		flags["rate-limit"] = rateLimit
	}
	if f.Changed("max-retries") {
		flags["max-retries"] = maxRetries
	}
	if noJournal {
		flags["journal"] = false
	}
	return flags
}

func runFetch(cmd *cobra.Command, args []string) error {
	rng, err := parseRange(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(fetchFlags(cmd))
	if err != nil {
		return err
	}
	log, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	log.WithField("version", version).Debug("gphotofetch starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !quiet {
		ui.PrintBanner()
		ui.PrintInfo("Range", rng.String())
		ui.PrintInfo("Destination", cfg.Output.RootDirectory)
	}

	session, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("failed to persist refreshed token")
		}
	}()

	lister, err := photos.NewGoogleLister(session.HTTPClient(), cfg.Fetch.PageSize, cfg.Fetch.MediaType)
	if err != nil {
		return err
	}
	fetcher := photos.NewFetcher(lister, &retry.Config{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		Backoff:     retry.NewErrorTypeBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Logger:      log,
	}, ratelimit.PerMinute(cfg.Fetch.RequestsPerMinute), log)

	bkt, err := cache.OpenBucket(ctx, cfg.Cache.URL, cfg.Cache.Directory)
	if err != nil {
		return errs.NewConfigError(errs.ErrInvalidConfig, "%v", err)
	}
	metadata := cache.New(bkt, fetcher, log)
	defer metadata.Close()

	resolver := storage.NewResolver(cfg.Output.RootDirectory, cfg.Output.MonthNames)

	var reporter *ui.Reporter
	opts := runner.Options{
		Concurrency: cfg.EffectiveConcurrency(),
		Logger:      log,
	}
	dispatchOpts := downloader.Options{
		MaxConcurrency: cfg.Download.MaxConcurrency,
		RetryAttempts:  cfg.Download.RetryAttempts,
		RateLimiter:    downloadLimiter(cfg),
		Logger:         log,
	}
	if !quiet {
		reporter = ui.NewReporter(ui.ReporterOptions{
			Interactive: ui.IsTerminal(os.Stderr) && !verbose,
			Verbose:     verbose,
		})
		opts.Observer = reporter
		dispatchOpts.Progress = reporter
	}

	if cfg.Journal.Enabled {
		j, err := openJournal(cfg)
		if err != nil {
			log.WithError(err).Warn("run journal unavailable, continuing without history")
		} else {
			defer j.Close()
			opts.Journal = j
		}
	}

	dispatcher := downloader.NewDispatcher(photos.NewClient(session.HTTPClient(), log), resolver, dispatchOpts)
	r := runner.New(metadata, resolver, dispatcher, opts)

	if reporter != nil {
		reporter.Start()
	}
	report, runErr := r.Run(ctx, rng)
	if reporter != nil {
		reporter.Stop()
	}

	if report != nil {
		if !quiet {
			ui.PrintSummary(os.Stdout, report.Summary())
		}
		if notify {
			ui.NewNotifier().Notify("gphotofetch", fmt.Sprintf("%s: %d downloaded (%s), %d failed",
				rng, report.Totals.Downloaded, humanize.Bytes(uint64(report.Totals.Bytes)), report.Totals.Failed))
		}
	}

	return runErr
}

// openSession builds the token store chain and the authenticated client
func openSession(ctx context.Context, cfg *config.Config, log logger.Logger) (*auth.Session, error) {
	m, err := tokenManager(cfg)
	if err != nil {
		return nil, err
	}
	return auth.Open(ctx, cfg.Auth.ClientSecretFile, m, cfg.Download.Timeout, log)
}

func tokenManager(cfg *config.Config) (*auth.Manager, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, errs.NewConfigError(errs.ErrInvalidConfig, "data directory: %v", err)
	}
	m, err := auth.NewManager(cfg.Auth.TokenStore, cfg.Auth.TokenFile, dataDir)
	if err != nil {
		return nil, errs.NewConfigError(errs.ErrInvalidConfig, "token store: %v", err)
	}
	return m, nil
}

// downloadLimiter picks the download rate limiter for the configured quota
func downloadLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.Download.Burst {
		return ratelimit.BurstPerMinute(cfg.Download.RequestsPerMinute)
	}
	return ratelimit.PerMinute(cfg.Download.RequestsPerMinute)
}

func openJournal(cfg *config.Config) (*journal.Journal, error) {
	path, err := cfg.JournalPath()
	if err != nil {
		return nil, err
	}
	return journal.Open(path)
}

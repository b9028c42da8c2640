package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gphotofetch/pkg/cache"
	"gphotofetch/pkg/daterange"
	"gphotofetch/pkg/models"
	"gphotofetch/pkg/ui"
)

var errCorruptCache = errors.New("corrupt cache files found")

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean the per-month metadata cache",
	Long: `The cache holds one CSV file per month with the listing of that month.
A complete file ends with a '#complete,N' line. A file without it, or whose
rows do not match, is reported as corrupt and must be removed with
'gphotofetch cache rm' before that month can be fetched again.`,
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached months",
	Args:  cobra.NoArgs,
	RunE:  runCacheLs,
}

var cacheCheckCmd = &cobra.Command{
	Use:   "check [YYYY-MM...]",
	Short: "Verify cache files, all of them when no month is given",
	RunE:  runCacheCheck,
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm YYYY-MM...",
	Short: "Delete the cache of one or more months",
	Example: `  # Recover from a corrupt cache for January 2023
  gphotofetch cache rm 2023-01`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCacheRm,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheCheckCmd)
	cacheCmd.AddCommand(cacheRmCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheURL, "cache-url", "", "cache location as a blob URL")
}

// openCache opens the cache without a remote source
func openCache(ctx context.Context) (*cache.Cache, error) {
	flags := make(map[string]interface{})
	if cacheURL != "" {
		flags["cache-url"] = cacheURL
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	log, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}

	bkt, err := cache.OpenBucket(ctx, cfg.Cache.URL, cfg.Cache.Directory)
	if err != nil {
		return nil, err
	}
	return cache.New(bkt, nil, log), nil
}

func parseMonths(args []string) ([]models.MonthBucket, error) {
	buckets := make([]models.MonthBucket, 0, len(args))
	for _, a := range args {
		b, err := daterange.Parse(a)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

func statusText(st cache.Status) string {
	switch {
	case !st.Present:
		return "missing"
	case st.Complete:
		return ui.Green("complete")
	default:
		return ui.Red("corrupt: " + st.Reason)
	}
}

func runCacheLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openCache(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	statuses, err := c.List(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		ui.PrintInfo("Cache", "empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tITEMS\tSIZE\tWRITTEN\tSTATE")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			st.Bucket, st.Count, humanize.Bytes(uint64(st.Size)), humanize.Time(st.ModTime), statusText(st))
	}
	return w.Flush()
}

func runCacheCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openCache(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var statuses []cache.Status
	if len(args) == 0 {
		statuses, err = c.List(ctx)
		if err != nil {
			return err
		}
	} else {
		buckets, err := parseMonths(args)
		if err != nil {
			return err
		}
		for _, b := range buckets {
			st, err := c.Inspect(ctx, b)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}
	}

	corrupt := 0
	for _, st := range statuses {
		fmt.Printf("%s  %s\n", st.Bucket, statusText(st))
		if st.Present && !st.Complete {
			corrupt++
		}
	}

	if corrupt > 0 {
		ui.PrintWarning(fmt.Sprintf("%d corrupt file(s); remove them with 'gphotofetch cache rm YYYY-MM'", corrupt))
		return errCorruptCache
	}
	ui.PrintSuccess(fmt.Sprintf("%d month(s) checked, all usable", len(statuses)))
	return nil
}

func runCacheRm(cmd *cobra.Command, args []string) error {
	buckets, err := parseMonths(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := openCache(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var errs []error
	for _, b := range buckets {
		if err := c.Delete(ctx, b); err != nil {
			errs = append(errs, err)
			continue
		}
		ui.PrintSuccess("Removed cache for " + b.String())
	}
	return errors.Join(errs...)
}

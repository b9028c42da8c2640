package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"gphotofetch/pkg/models"
)

// Summary is what gets printed at the end of a run
type Summary struct {
	Range         models.Range
	Totals        models.TotalsSnapshot
	FailedBuckets []string
	FailedItems   int
	Elapsed       time.Duration
}

// PrintSummary writes the end-of-run report
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\n%s %s\n", Green("✓"), fmt.Sprintf("Finished %s", s.Range))
	fmt.Fprintf(w, "  %s %d items seen\n", Dim("•"), s.Totals.Seen)
	fmt.Fprintf(w, "  %s %d downloaded (%s) in %s\n",
		Dim("•"),
		s.Totals.Downloaded,
		humanize.Bytes(uint64(s.Totals.Bytes)),
		FormatDuration(s.Elapsed),
	)
	fmt.Fprintf(w, "  %s %d already present\n", Dim("•"), s.Totals.Skipped)

	if s.Totals.Failed > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d downloads failed", s.Totals.Failed)))
	}
	if len(s.FailedBuckets) > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d months failed:", len(s.FailedBuckets))))
		for _, b := range s.FailedBuckets {
			fmt.Fprintf(w, "      %s\n", b)
		}
	}
}

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sternrassler/listing-harvester/pkg/export"
	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"github.com/fatih/color"
)

// maxListedPages caps the failed page list printed in the summary.
const maxListedPages = 20

func printSummary(out io.Writer, res *pagination.Result) {
	if res == nil {
		return
	}

	fmt.Fprintln(out)
	switch res.Status {
	case pagination.StatusComplete:
		fmt.Fprintln(out, color.New(color.FgGreen, color.Bold).Sprint("Harvest complete"))
	case pagination.StatusPartial:
		fmt.Fprintln(out, color.New(color.FgYellow, color.Bold).Sprint("Harvest interrupted - partial result"))
	default:
		fmt.Fprintln(out, color.New(color.FgRed, color.Bold).Sprint("Harvest aborted - discovery failed"))
	}

	fmt.Fprintf(out, "  Run ID:        %s\n", res.RunID)
	fmt.Fprintf(out, "  Records:       %d\n", res.RecordCount())
	fmt.Fprintf(out, "  Total (API):   %d\n", res.TotalItems)
	fmt.Fprintf(out, "  Pages:         %d/%d succeeded\n", res.PagesSucceeded, res.LastPage)
	if res.FirstPassFailed > 0 {
		fmt.Fprintf(out, "  Retried:       %d\n", res.RetryDispatched)
	}

	if n := len(res.FailedPages); n > 0 {
		fmt.Fprintf(out, "  Failed pages:  %s %s\n",
			color.New(color.FgRed).Sprint(n), formatPages(res.FailedPages))
	} else {
		fmt.Fprintf(out, "  Failed pages:  %s\n", color.New(color.FgGreen).Sprint(0))
	}

	fmt.Fprintf(out, "  Duration:      %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Throughput:    %.1f items/second\n", itemsPerSecond(res.RecordCount(), res.Duration))
}

func printExports(out io.Writer, sinks export.Multi, b export.Batch) {
	fmt.Fprintln(out, "Exported to:")
	for _, sink := range sinks {
		var target string
		switch s := sink.(type) {
		case *export.JSONLSink:
			target = s.Path(b)
		case *export.RedisSink:
			target = s.Key(b).Records()
		default:
			target = b.RunID
		}
		fmt.Fprintf(out, "  - %-7s %s\n", sink.Name(), target)
	}
}

func formatPages(pages []int) string {
	shown := pages
	if len(shown) > maxListedPages {
		shown = shown[:maxListedPages]
	}
	parts := make([]string, len(shown))
	for i, p := range shown {
		parts[i] = fmt.Sprint(p)
	}
	list := "[" + strings.Join(parts, " ") + "]"
	if len(pages) > maxListedPages {
		list += fmt.Sprintf(" (+%d more)", len(pages)-maxListedPages)
	}
	return list
}

func itemsPerSecond(items int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(items) / d.Seconds()
}

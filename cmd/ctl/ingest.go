package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stavrou/budgetd/internal/modules/ingest"
)

// cmdIngest runs one ingest pass in the chosen mode. Delta and backfill
// need the upstream client; CSV import only needs the store.
func cmdIngest(args []string) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "Error: ingest needs a source, e.g. ctl ingest upstream --delta")
		return exitUsage
	}
	source := args[0]

	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	delta := fs.Bool("delta", false, "pull records newer than the stored cursor")
	backfill := fs.Bool("backfill", false, "re-pull a window of history")
	months := fs.Int("months", 0, "backfill window in months")
	fromCSV := fs.String("from-csv", "", "import a CSV export instead of calling upstream")
	account := fs.String("account", "", "account name override for CSV rows")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}

	modes := 0
	for _, on := range []bool{*delta, *backfill, *fromCSV != ""} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "Error: choose exactly one of --delta, --backfill, --from-csv")
		return exitUsage
	}
	if *backfill && *months < 1 {
		fmt.Fprintln(os.Stderr, "Error: --backfill requires --months")
		return exitUsage
	}

	container, err := openContainer(cliLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}
	defer container.Close()

	if *fromCSV == "" && container.UpstreamClient == nil {
		fmt.Fprintln(os.Stderr, "Upstream API not configured (set UPSTREAM_API_URL and UPSTREAM_API_TOKEN).")
		return exitOp
	}

	ctx := context.Background()
	var result *ingest.RunResult
	switch {
	case *fromCSV != "":
		result, err = container.IngestService.ImportCSV(ctx, source, *fromCSV, *account)
	case *delta:
		result, err = container.IngestService.RunDelta(ctx, source)
	default:
		result, err = container.IngestService.RunBackfill(ctx, source, *months)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}

	fmt.Printf("[ingest:%s:%s] %s: %d rows upserted (run %s)\n",
		source, result.Mode, result.Status, result.RowsUpserted, result.RunID)
	if skipped, ok := result.Notes["rows_skipped"]; ok {
		fmt.Printf("  rows skipped: %v\n", skipped)
	}
	return exitOK
}

// cmdCategories snapshots the upstream category tree and refreshes the
// external-to-internal map.
func cmdCategories(args []string) int {
	if len(args) == 0 || !strings.HasPrefix(args[0], "sync-") || args[0] == "sync-" {
		fmt.Fprintln(os.Stderr, "Error: usage: ctl categories sync-<source>")
		return exitUsage
	}
	source := strings.TrimPrefix(args[0], "sync-")

	container, err := openContainer(cliLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}
	defer container.Close()

	if container.UpstreamClient == nil {
		fmt.Fprintln(os.Stderr, "Upstream API not configured (set UPSTREAM_API_URL and UPSTREAM_API_TOKEN).")
		return exitOp
	}

	result, err := container.CategoryMapper.Sync(context.Background(), source, container.UpstreamClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}

	fmt.Printf("[categories:%s] %d groups, %d categories seen; %d upserted, %d newly mapped\n",
		source, result.GroupsSeen, result.CategoriesSeen, result.CategoriesUpserted, result.MapsCreated)
	return exitOK
}

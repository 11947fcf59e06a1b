package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/di"
	"github.com/stavrou/budgetd/internal/modules/ingest"
)

// cmdReconcile prints the anchor-resolved balance next to the plain cleared
// sum for every active account. Nonzero drift means rows are missing from
// the cleared history the anchor was declared against.
func cmdReconcile(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "Error: reconcile takes no arguments")
		return exitUsage
	}

	container, err := openContainer(cliLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}
	defer container.Close()

	now := time.Now()
	rows, err := container.Resolver.Reconcile(now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}

	if len(rows) == 0 {
		fmt.Println("[reconcile] no active accounts")
		return exitOK
	}

	drifting := 0
	fmt.Printf("[reconcile] %d active account(s) at %s\n", len(rows), now.Format("2006-01-02"))
	for _, row := range rows {
		line := fmt.Sprintf("  %-24s resolved %12s  cleared %12s",
			row.AccountName, money(row.ResolvedCents), money(row.ClearedCents))
		if row.HasAnchor {
			line += fmt.Sprintf("  drift %10s  (anchor %s)", money(row.DriftCents), row.AnchorDate)
			if row.DriftCents != 0 {
				drifting++
			}
		} else {
			line += "  (no anchor)"
		}
		fmt.Println(line)
	}

	if drifting > 0 {
		fmt.Printf("WARNING: %d account(s) drifting; cleared history does not match the anchor.\n", drifting)
	} else {
		fmt.Println("OK: anchors and cleared sums agree.")
	}
	return exitOK
}

// money renders cents as a plain decimal string.
func money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func cmdDB(args []string, stdin io.Reader) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: usage: ctl db <migrate|reset> [options]")
		return exitUsage
	}

	switch args[0] {
	case "migrate":
		return cmdDBMigrate(args[1:])
	case "reset":
		return cmdDBReset(args[1:], stdin)
	default:
		fmt.Fprintf(os.Stderr, "Unknown db command: %s\n", args[0])
		return exitUsage
	}
}

// cmdDBMigrate brings the schema current. Wiring the container already runs
// pending migrations, so this only reports what is applied afterward.
func cmdDBMigrate(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "Error: db migrate takes no arguments")
		return exitUsage
	}

	container, err := openContainer(cliLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}
	defer container.Close()

	applied, err := container.DB.AppliedMigrations()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}

	fmt.Printf("[db] schema current, %d migration(s) applied\n", len(applied))
	for _, name := range applied {
		fmt.Printf("  %s\n", name)
	}
	return exitOK
}

// cmdDBReset deletes the store file, recreates the schema, seeds the
// internal categories and questionnaire aliases, and optionally re-pulls
// data from upstream.
func cmdDBReset(args []string, stdin io.Reader) int {
	fs := flag.NewFlagSet("db reset", flag.ContinueOnError)
	force := fs.Bool("force", false, "skip the confirmation prompt")
	noPopulate := fs.Bool("no-populate", false, "schema only: skip seeding and the data pull")
	delta := fs.Bool("delta", false, "after reset, pull with a delta sync")
	backfill := fs.Bool("backfill", false, "after reset, pull with a backfill (default)")
	months := fs.Int("months", 1, "backfill window in months")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *delta && *backfill {
		fmt.Fprintln(os.Stderr, "Error: --delta and --backfill are mutually exclusive")
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}

	if !*force {
		fmt.Printf("This deletes %s and recreates the schema. Type 'yes' to continue: ", cfg.DBPath)
		line, _ := bufio.NewReader(stdin).ReadString('\n')
		if strings.TrimSpace(line) != "yes" {
			fmt.Println("Aborted.")
			return exitUsage
		}
	}

	for _, path := range []string{cfg.DBPath, cfg.DBPath + "-wal", cfg.DBPath + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: failed to remove %s: %v\n", path, err)
			return exitOp
		}
	}

	container, err := di.Wire(cfg, cliLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}
	defer container.Close()
	fmt.Printf("[db] store recreated at %s\n", cfg.DBPath)

	if *noPopulate {
		return exitOK
	}

	if err := seedStore(container); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}
	fmt.Println("[db] seeded internal categories and questionnaire aliases")

	if container.UpstreamClient == nil {
		if *delta || *backfill {
			fmt.Fprintln(os.Stderr, "Upstream API not configured (set UPSTREAM_API_URL and UPSTREAM_API_TOKEN).")
			return exitOp
		}
		fmt.Println("[db] upstream not configured; skipping data pull")
		return exitOK
	}

	var result *ingest.RunResult
	if *delta {
		result, err = container.IngestService.RunDelta(context.Background(), cfg.IngestSource)
	} else {
		result, err = container.IngestService.RunBackfill(context.Background(), cfg.IngestSource, *months)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitOp
	}

	fmt.Printf("[ingest:%s:%s] %s: %d rows upserted\n",
		cfg.IngestSource, result.Mode, result.Status, result.RowsUpserted)
	return exitOK
}

// Internal categories a fresh store starts with. The questionnaire resolves
// vocabulary case-insensitively against these names, so the list covers the
// pack aliases; the synonym rows map the names people actually type.
var seedCategories = []string{
	"Income", "Housing", "Utilities", "Groceries", "Childcare",
	"Transport", "Subscriptions", "Discretionary",
}

var seedAliases = []struct {
	Alias    string
	Category string
}{
	{"rent", "Housing"},
	{"mortgage", "Housing"},
	{"daycare", "Childcare"},
	{"fuel", "Transport"},
	{"supermarket", "Groceries"},
	{"streaming", "Subscriptions"},
}

func seedStore(container *di.Container) error {
	if _, err := container.CategoryRepo.EnsureHolding(); err != nil {
		return err
	}

	ids := make(map[string]int64, len(seedCategories))
	for _, name := range seedCategories {
		existing, err := container.CategoryRepo.FindInternalByName(name)
		if err != nil {
			return err
		}
		if existing != nil {
			ids[name] = *existing
			continue
		}
		id, err := container.CategoryRepo.CreateInternal(name, nil)
		if err != nil {
			return err
		}
		ids[name] = id
	}

	for _, s := range seedAliases {
		if err := container.AliasRepo.Upsert(s.Alias, ids[s.Category]); err != nil {
			return err
		}
	}
	return nil
}

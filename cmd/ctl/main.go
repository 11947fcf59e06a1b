// Command ctl is the budgetd operator CLI.
//
// Commands:
//
//	ingest <source>            Run an ingest pass (--delta, --backfill
//	                           --months N, or --from-csv PATH [--account NAME])
//	categories sync-<source>   Snapshot the upstream category tree
//	reconcile                  Compare anchor-resolved balances per account
//	                           against plain cleared sums
//	db migrate                 Apply pending schema migrations
//	db reset                   Drop the store file, migrate, seed, and
//	                           optionally re-pull data
//
// Configuration comes from the same environment variables as the server
// (.env file supported). Exit codes: 0 success, 1 usage error, 2
// operational failure.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/di"
	"github.com/stavrou/budgetd/pkg/logger"
)

const (
	exitOK    = 0
	exitUsage = 1
	exitOp    = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin))
}

func run(args []string, stdin io.Reader) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "ingest":
		return cmdIngest(args[1:])
	case "categories":
		return cmdCategories(args[1:])
	case "reconcile":
		return cmdReconcile(args[1:])
	case "db":
		return cmdDB(args[1:], stdin)
	case "help", "-h", "--help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		return exitUsage
	}
}

func printUsage() {
	fmt.Println("budgetd operator CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  ingest <source>           Run an ingest pass against the local store")
	fmt.Println("  categories sync-<source>  Snapshot the upstream category tree")
	fmt.Println("  reconcile                 Report drift between anchors and cleared sums")
	fmt.Println("  db migrate                Apply pending schema migrations")
	fmt.Println("  db reset                  Drop the store, migrate, seed, optionally re-pull")
	fmt.Println("  help                      Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ctl ingest upstream --delta")
	fmt.Println("  ctl ingest upstream --backfill --months 6")
	fmt.Println("  ctl ingest upstream --from-csv export.csv --account Checking")
	fmt.Println("  ctl categories sync-upstream")
	fmt.Println("  ctl db reset --force --backfill --months 3")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  DB_PATH                                Store file (default data/budget.db)")
	fmt.Println("  UPSTREAM_API_URL, UPSTREAM_API_TOKEN   Upstream credentials for delta/backfill")
	fmt.Println("  LOG_LEVEL                              Raise service log verbosity (default warn)")
}

func cliLogger() zerolog.Logger {
	return logger.NewCLI(os.Getenv("LOG_LEVEL"))
}

// openContainer loads configuration and wires the full container. Every
// command needs the same setup, so failures funnel through one place.
func openContainer(log zerolog.Logger) (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return di.Wire(cfg, log)
}

// Command harvester fetches every page of a paginated listing API and
// exports the records.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/listing-harvester/pkg/pagination"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitDiscovery   = 3
	ExitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return ExitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, pagination.ErrInterrupted):
		return ExitInterrupted
	case errors.Is(err, pagination.ErrDiscovery):
		return ExitDiscovery
	default:
		return ExitFailure
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "harvester",
		Short:   "Harvest every page of a paginated listing API",
		Version: version,
		Long: `harvester discovers the page count of a listing endpoint from page 1,
fetches the remaining pages concurrently, retries failed pages once and
exports the collected records to JSONL files, Redis or SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "harvester %s\n", version)
		},
	}
}

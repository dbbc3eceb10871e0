// Command microerp runs the automation engine: one pass (run), the HTTP API
// with on-access and scheduled passes (serve), or schema setup (migrate).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "microerp:", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	envFile    string
	storage    string
	sqlitePath string
	trace      bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "microerp",
		Short:         "Recurring invoices, overdue sweeps and the notification feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "optional dotenv file loaded before reading MICROERP_* variables")
	pf.StringVar(&flags.storage, "storage", "", "record store driver (memory|sqlite|postgres); overrides MICROERP_STORAGE_DRIVER")
	pf.StringVar(&flags.sqlitePath, "sqlite-path", "", "sqlite database file; overrides MICROERP_SQLITE_PATH")
	pf.BoolVar(&flags.trace, "trace", false, "write JSON trace spans to stderr")

	root.AddCommand(newRunCommand(flags), newServeCommand(flags), newMigrateCommand(flags))
	return root
}

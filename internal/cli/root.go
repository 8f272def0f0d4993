package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-risk/internal/utils"
)

const name = "riskctl"

var (
	// overridden during build with ldflags
	version = "dev"
	commit  = "unknown"
)

type rootOptions struct {
	logLevel string
	logJSON  bool
	logger   *slog.Logger
}

// NewRootCmd assembles the riskctl command tree writing results to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           name,
		Short:         "riskctl - offline and remote risk assessment for API metrics snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = utils.NewLogger(opts.logLevel, opts.logJSON)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit logs as JSON")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newValidateConfigCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the riskctl version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", name, version, commit)
			},
		},
	)
	return root
}

// Execute runs riskctl with process arguments and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func (o *rootOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

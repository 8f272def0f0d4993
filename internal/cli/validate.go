package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-risk/internal/engine"
)

func newValidateConfigCmd(root *rootOptions) *cobra.Command {
	var engineConfig, rules string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Check an engine configuration and rule pack without serving traffic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := engine.NewFromFiles(engineConfig, rules, root.log())
			if err != nil {
				var cfgErr *engine.ConfigError
				if errors.As(err, &cfgErr) {
					for _, problem := range cfgErr.Problems {
						fmt.Fprintf(cmd.OutOrStdout(), "problem: %s\n", problem)
					}
				}
				return err
			}
			for _, warning := range eng.Warnings() {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", warning)
			}
			t := eng.Thresholds()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: thresholds low=%g medium=%g high=%g critical=%g\n", t.Low, t.Medium, t.High, t.Critical)
			return nil
		},
	}
	cmd.Flags().StringVar(&engineConfig, "engine-config", "", "engine configuration YAML (defaults when empty)")
	cmd.Flags().StringVar(&rules, "rules", "", "recommendation rule pack YAML")
	return cmd
}

func contextWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

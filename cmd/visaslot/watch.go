package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/visaslot"
	"github.com/jpalmerr/visaslot/config"
)

// watchCmd runs the poll loop.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll for earlier appointments",
	Long: `Sign in and poll the configured facilities until the cycle budget is
spent or the process is interrupted (Ctrl+C or SIGTERM).

Configuration comes from --config when given, otherwise from environment
variables (optionally loaded from --env-file first).

Exit codes:
  0 - Budget exhausted or interrupted
  1 - Invalid configuration or sign-in failed

Example:
  visaslot watch -c visaslot.yaml
  visaslot watch --env-file .env --dry-run`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addConfigFlags(watchCmd)
	watchCmd.Flags().Bool("dry-run", false, "log alerts instead of sending them")
	watchCmd.Flags().Int("max-cycles", 0, "override the configured number of poll cycles")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, logFormat)
	if err != nil {
		return err
	}

	cfg, source, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	logger.Info("config loaded",
		"source", source,
		"facilities", fmt.Sprintf("%d-%d", cfg.Facilities.First, cfg.Facilities.Last),
		"notify_before", cfg.NotifyBefore.String(),
		"dry_run", dryRun,
	)

	var extra []visaslot.Option
	if cmd.Flags().Changed("max-cycles") {
		n, _ := cmd.Flags().GetInt("max-cycles")
		extra = append(extra, visaslot.WithMaxCycles(n))
	}

	w, err := config.BuildWatcher(cfg, logger, dryRun, extra...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		logger.Info("interrupted, shutdown complete")
	}
	return nil
}

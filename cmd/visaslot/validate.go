package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates configuration without signing in.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate visaslot configuration without contacting the booking site.

This command parses the file (or environment), expands environment
variables, applies defaults and validates all fields. It's useful for
CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  visaslot validate -c visaslot.yaml
  visaslot validate --env-file .env`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	addConfigFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, source, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var channels []string
	if cfg.Notify.Mailgun != nil {
		channels = append(channels, fmt.Sprintf("mailgun (%d recipients)", len(cfg.Notify.Mailgun.To)))
	}
	if cfg.Notify.Discord != nil {
		channels = append(channels, "discord")
	}
	if len(channels) == 0 {
		channels = append(channels, "log only")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid! (%s)\n", source)
	fmt.Fprintf(out, "  Site:          %s/%s schedule %s\n", cfg.Site.BaseURL, cfg.Site.CountryCode, cfg.Site.ScheduleID)
	fmt.Fprintf(out, "  Facilities:    %d-%d (%d total)\n", cfg.Facilities.First, cfg.Facilities.Last, cfg.Facilities.Last-cfg.Facilities.First+1)
	fmt.Fprintf(out, "  Notify before: %s\n", cfg.NotifyBefore)
	fmt.Fprintf(out, "  Max cycles:    %d\n", cfg.MaxCycles)
	fmt.Fprintf(out, "  Delays:        idle %s, active %s\n", cfg.Delays.Idle.Duration(), cfg.Delays.Active.Duration())
	fmt.Fprintf(out, "  Notifiers:     %v\n", channels)

	return nil
}

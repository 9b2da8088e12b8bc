// Package main is the entry point for the visaslot CLI.
//
// visaslot can be embedded as a library or run as a standalone binary
// configured by a YAML/TOML file or by environment variables. This CLI
// provides the standalone binary approach.
//
// Usage:
//
//	visaslot watch -c visaslot.yaml     # Poll for earlier appointments
//	visaslot watch --env-file .env      # Same, configured by environment
//	visaslot validate -c visaslot.yaml  # Validate configuration
//	visaslot version                    # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	logLevel  string
	logFormat string
)

// rootCmd is the base command when called without subcommands.
// It just displays help; actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "visaslot",
	Short: "Watch a visa booking site for earlier appointments",
	Long: `visaslot signs in to a visa appointment booking site, scans a range of
consular facilities for available dates, and alerts you when a date earlier
than your threshold appears.

Quick start:
  1. Create a config file (visaslot.yaml) or an .env file
  2. Run: visaslot validate -c visaslot.yaml
  3. Run: visaslot watch -c visaslot.yaml

Example config:
  site:
    country_code: en-ca
    schedule_id: "12345678"
  credentials:
    email: ${VISA_EMAIL}
    password: ${VISA_PASSWORD}
  facilities:
    first: 94
    last: 95
  notify_before: 2024-06-01`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this visaslot binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "visaslot %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json or text")

	rootCmd.AddCommand(versionCmd)
}

// newLogger creates the CLI logger on stderr.
func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

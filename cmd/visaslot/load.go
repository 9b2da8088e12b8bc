package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/visaslot/config"
)

// addConfigFlags registers the flags shared by commands that load config.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to a YAML or TOML config file")
	cmd.Flags().String("env-file", "", "path to a KEY=value file loaded before reading the environment")
}

// loadConfig reads the config file named by --config, falling back to the
// environment when it is not given.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			return nil, "", err
		}
	}

	if configFile != "" {
		cfg, err := config.Load(configFile)
		return cfg, configFile, err
	}

	cfg, err := config.FromEnv(config.NewEnv())
	if errors.Is(err, config.ErrNoConfig) {
		return nil, "", fmt.Errorf("%w: pass --config or set EMAIL, PASSWORD and SCHEDULE_ID", err)
	}
	if err != nil {
		return nil, "", err
	}
	return cfg, "environment", nil
}

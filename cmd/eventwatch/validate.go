package main

import (
	"fmt"

	"github.com/jpalmerr/eventwatch"
	"github.com/jpalmerr/eventwatch/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without polling.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an eventwatch configuration file without polling.

This command parses the YAML, expands environment variables, resolves the
token, and validates all fields. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  eventwatch validate -c eventwatch.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// the resource rules are stricter than the config's own checks
	if _, err := eventwatch.NewResource(cfg.Owner, cfg.Repo); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	interval := eventwatch.DefaultInterval
	if cfg.DefaultInterval != 0 {
		interval = cfg.DefaultInterval.Duration()
	}
	server := "disabled"
	if cfg.Port != 0 {
		server = fmt.Sprintf("port %d", cfg.Port)
	}
	token := "none"
	if cfg.Token != "" {
		token = "set"
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Resource:         %s\n", cfg.Resource())
	fmt.Printf("  Kind:             %s\n", cfg.Kind)
	fmt.Printf("  Token:            %s\n", token)
	fmt.Printf("  Default interval: %s\n", interval)
	fmt.Printf("  Event API:        %s\n", server)

	return nil
}

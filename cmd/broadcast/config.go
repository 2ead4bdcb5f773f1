package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration is valid\n")
	fmt.Fprintf(out, "  Listen: %s (tls: %v)\n", cfg.Server.ListenAddr, cfg.Server.TLS.Enabled)
	fmt.Fprintf(out, "  Webhook: %s\n", cfg.Webhook.URL)
	if cfg.Webhook.Timeout > 0 {
		fmt.Fprintf(out, "  Webhook timeout: %s\n", cfg.Webhook.Timeout)
	}
	fmt.Fprintf(out, "  Groups: %d\n", len(cfg.Groups))
	fmt.Fprintf(out, "  Auth: %v\n", cfg.Auth.Enabled())
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}
	if cfg.History.Enabled() {
		fmt.Fprintf(out, "  History: %s\n", cfg.History.Path)
	}

	return nil
}

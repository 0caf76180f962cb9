package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/foxzi/castmail/internal/web/config"
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
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "  TLS: %v\n", cfg.Server.TLS.Enabled)
	fmt.Fprintf(out, "  Backend: %s (timeout %s)\n", cfg.Backend.BaseURL, cfg.Backend.Timeout)
	fmt.Fprintf(out, "  Sessions: up to %d, TTL %s\n", cfg.Session.MaxSessions, cfg.Session.TTL)
	fmt.Fprintf(out, "  Panel login: %v\n", cfg.Auth.Enabled())
	fmt.Fprintf(out, "  Attachments: up to %d files, %s each\n",
		cfg.Compose.MaxAttachments, humanize.IBytes(uint64(cfg.Compose.MaxAttachmentBytes)))
	fmt.Fprintf(out, "  History: %s\n", cfg.History.Path)

	return nil
}

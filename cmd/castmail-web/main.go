package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const defaultConfigFile = "/etc/castmail/web.yaml"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "castmail-web",
	Short: "castMail Web - mail-merge panel for the castMail API",
	Long: `castMail Web lets you edit a contact list, pick recipients and send an HTML
mailing with PDF/PPTX attachments through a castMail backend.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "castmail-web %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(passwordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

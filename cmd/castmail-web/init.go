package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	initBackendURL string
	initListenAddr string
	initDataDir    string
	initOutput     string
	initForce      bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a castmail-web configuration file",
	Long: `Interactive wizard to create a castmail-web configuration file.

A random session secret is generated. Missing values are prompted for.

Examples:
  # Interactive mode
  castmail-web init

  # Non-interactive
  castmail-web init --backend-url https://castmail.example.com/api -o web.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initBackendURL, "backend-url", "", "castMail API base URL (e.g., https://castmail.example.com/api)")
	initCmd.Flags().StringVar(&initListenAddr, "listen", ":8090", "Panel listen address")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/castmail-web", "Directory for the send history database")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "web.yaml", "Output configuration file path")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	fmt.Fprintln(out, "castMail Web Configuration Wizard")
	fmt.Fprintln(out, "=================================")
	fmt.Fprintln(out)

	if initBackendURL == "" {
		initBackendURL = prompt(out, reader, "castMail API URL", "http://127.0.0.1:8000/api")
	}
	if initBackendURL == "" {
		return fmt.Errorf("backend URL is required")
	}

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	if err := os.MkdirAll(initDataDir, 0755); err != nil {
		fmt.Fprintf(out, "  Warning: Could not create data directory: %v\n", err)
	}

	config := generateConfig(generateRandomString(48))
	if err := os.WriteFile(initOutput, []byte(config), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(out, "  Configuration saved to: %s\n", initOutput)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next Steps")
	fmt.Fprintln(out, "==========")
	fmt.Fprintln(out, "1. Optionally protect the panel with a password:")
	fmt.Fprintln(out, "   castmail-web password hash   # paste into auth.password_hash")
	fmt.Fprintln(out, "2. Start the panel:")
	fmt.Fprintf(out, "   castmail-web serve -c %s\n", initOutput)

	return nil
}

func prompt(out io.Writer, reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultValue)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig(secret string) string {
	return fmt.Sprintf(`server:
  listen_addr: "%s"
  # tls:
  #   enabled: true
  #   cert_file: "/etc/castmail/tls.crt"
  #   key_file: "/etc/castmail/tls.key"

backend:
  base_url: "%s"
  timeout: 30s

session:
  secret: "%s"
  ttl: 24h
  max_sessions: 1000
  cookie_secure: false

auth:
  # bcrypt hash from "castmail-web password hash"; empty disables the login
  password_hash: ""

compose:
  max_attachment_bytes: 20971520
  max_attachments: 10
  default_subject: ""
  default_body: ""

history:
  path: "%s/history.db"
  limit: 10

logging:
  level: "info"
  format: "json"
`, initListenAddr, initBackendURL, secret, strings.TrimRight(initDataDir, "/"))
}

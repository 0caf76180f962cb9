package main

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/config"
	"github.com/foxzi/castmail/internal/web/contacts"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Inspect backend contacts",
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contacts with last-sent recency",
	RunE:  runContactsList,
}

var contactsStaleOnly bool

func init() {
	contactsListCmd.Flags().BoolVar(&contactsStaleOnly, "stale", false, "Only show contacts last sent to 30+ days ago (never-sent contacts are hidden)")
	contactsCmd.AddCommand(contactsListCmd)
}

func runContactsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	client, err := castmail.NewClient(cfg.Backend.BaseURL,
		castmail.WithTimeout(cfg.Backend.Timeout),
		castmail.WithJar(jar),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Backend.Timeout)
	defer cancel()

	list, err := client.ListContacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}

	printContacts(cmd, list, time.Now())
	return nil
}

func printContacts(cmd *cobra.Command, list []castmail.Contact, now time.Time) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%-6s  %-24s  %-32s  %-20s  %-8s  %s\n", "ID", "Name", "Email", "Company", "Recency", "Last sent")
	fmt.Fprintln(out, strings.Repeat("-", 110))

	for _, c := range list {
		recency := contacts.Classify(c.LastSentAt, now)
		if contactsStaleOnly && !recency.NotSentFor30Days() {
			continue
		}

		lastSent := "never"
		if days, ok := contacts.DaysSince(c.LastSentAt, now); ok {
			lastSent = fmt.Sprintf("%d days ago", days)
		}
		fmt.Fprintf(out, "%-6d  %-24s  %-32s  %-20s  %-8s  %s\n", c.ID, c.Name, c.Email, c.Company, recency, lastSent)
	}

	summary := contacts.Summarize(list, now)
	fmt.Fprintf(out, "\nTotal: %d, not sent for 30+ days: %d, never sent: %d\n", summary.Total, summary.NotSentFor30Days(), summary.Never)
}

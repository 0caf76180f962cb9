package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/foxzi/castmail/internal/web/config"
	"github.com/foxzi/castmail/internal/web/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sends",
	RunE:  runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete send history older than --days",
	RunE:  runHistoryPrune,
}

var (
	historyLimit int
	pruneDays    int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show (0 for all)")
	historyPruneCmd.Flags().IntVar(&pruneDays, "days", 365, "Delete entries older than N days")
	historyCmd.AddCommand(historyPruneCmd)
}

func openHistory() (*history.Storage, func() error, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	db, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, nil, err
	}
	storage, err := history.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return storage, db.Close, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	storage, closeDB, err := openHistory()
	if err != nil {
		return err
	}
	defer closeDB()

	entries, err := storage.List(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No mailings sent yet")
		return nil
	}

	fmt.Fprintf(out, "%-10s  %-40s  %-10s  %-6s  %-6s  %s\n", "Mailing", "Subject", "Recipients", "Sent", "Failed", "When")
	fmt.Fprintln(out, strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Fprintf(out, "%-10d  %-40s  %-10d  %-6d  %-6d  %s\n",
			e.MailingID, truncate(e.Subject, 40), e.Recipients, e.Sent, e.Failed, humanize.Time(e.SentAt))
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	storage, closeDB, err := openHistory()
	if err != nil {
		return err
	}
	defer closeDB()

	removed, err := storage.Prune(cmd.Context(), time.Duration(pruneDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries older than %d days\n", removed, pruneDays)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

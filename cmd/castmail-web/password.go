package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Panel password commands",
}

var passwordHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print a bcrypt hash for auth.password_hash",
	RunE:  runPasswordHash,
}

func init() {
	passwordCmd.AddCommand(passwordHashCmd)
}

func runPasswordHash(cmd *cobra.Command, args []string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("password hash must be run from a terminal")
	}

	fmt.Fprint(os.Stderr, "Enter password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	hash, err := hashPassword(pw, confirm)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func hashPassword(pw, confirm []byte) (string, error) {
	if string(pw) != string(confirm) {
		return "", errors.New("passwords do not match")
	}
	if len(pw) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const minPasswordLength = 10

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for auth.password_hash",
	Long: `Read a password and print its bcrypt hash.

On a terminal the password is prompted for twice without echo. Otherwise the
first line of standard input is used.`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		pwBytes, err := term.ReadPassword(fd)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		password = string(pwBytes)

		fmt.Fprint(os.Stderr, "Confirm password: ")
		pwBytes2, err := term.ReadPassword(fd)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if password != string(pwBytes2) {
			return fmt.Errorf("passwords do not match")
		}
	} else {
		var err error
		password, err = readLine(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

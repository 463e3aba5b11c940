package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/AkaakuHub/twix-saver/pkg/accounts"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the scraping account pool",
}

var accountEmail string

var accountsAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add an account to the pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		password, err := promptPassword("password: ")
		if err != nil {
			return err
		}

		account, err := a.pool.AddAccount(cmd.Context(), args[0], accountEmail, password)
		if err != nil {
			return err
		}
		fmt.Printf("account @%s added (%s)\n", account.Username, account.AccountID)
		return nil
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pool accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		list, err := a.accounts.List(cmd.Context(), true)
		if err != nil {
			return err
		}

		for _, acct := range list {
			available := "available"
			if !acct.IsAvailable() {
				available = "unavailable"
			}
			fmt.Printf("@%-20s %-12s %-12s jobs=%d/%d login_attempts=%d\n",
				acct.Username, acct.Status, available,
				acct.SuccessfulJobs, acct.TotalJobsRun, acct.LoginAttempts)
		}
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove an account from the pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		account, err := a.accounts.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := a.accounts.Delete(cmd.Context(), account.AccountID); err != nil {
			return err
		}
		fmt.Printf("account @%s removed\n", account.Username)
		return nil
	},
}

var accountsReactivateCmd = &cobra.Command{
	Use:   "reactivate <username>",
	Short: "Clear an account's lockout and turn it back on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}

		account, err := a.accounts.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := a.pool.Reactivate(cmd.Context(), account.AccountID); err != nil {
			return err
		}
		fmt.Printf("account @%s reactivated\n", account.Username)
		return nil
	},
}

var accountsSecretCmd = &cobra.Command{
	Use:   "set-secret",
	Short: "Store the credential master secret in the OS keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := promptPassword("master secret: ")
		if err != nil {
			return err
		}
		if err := accounts.StoreMasterSecret(secret); err != nil {
			return err
		}
		fmt.Println("master secret stored")
		return nil
	},
}

// promptPassword reads a secret from the terminal without echo
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	return secret, nil
}

func init() {
	accountsAddCmd.Flags().StringVar(&accountEmail, "email", "", "account email, used for identity challenges")
	_ = accountsAddCmd.MarkFlagRequired("email")
	accountsCmd.AddCommand(accountsAddCmd, accountsListCmd, accountsRemoveCmd, accountsReactivateCmd, accountsSecretCmd)
}

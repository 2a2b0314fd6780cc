package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"referrals-engine/internal/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the SMTP app password in the OS keychain",
}

var secretSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the SMTP app password (read from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Fprint(os.Stderr, "SMTP app password: ")
		reader := bufio.NewReader(os.Stdin)
		pw, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		pw = strings.TrimRight(pw, "\r\n")

		account := secrets.SMTPKeyringAccount(cfg)
		if err := secrets.SetSMTPPassword(account, pw); err != nil {
			return err
		}
		fmt.Printf("stored password for %s\n", account)
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored SMTP app password",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		account := secrets.SMTPKeyringAccount(cfg)
		if err := secrets.DeleteSMTPPassword(account); err != nil {
			return err
		}
		fmt.Printf("deleted password for %s\n", account)
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd)
}

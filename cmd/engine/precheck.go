package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"referrals-engine/internal/dedup"
	"referrals-engine/internal/secrets"
)

// precheck validates everything a run needs without touching any row: config,
// source reachability and header contract, dedup store, SMTP credentials.
var precheckCmd = &cobra.Command{
	Use:   "precheck",
	Short: "Validate config, source headers and credentials without sending",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("config OK (%s)\n", path)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		src := buildSource(cfg)
		rows, err := src.Load(ctx)
		if err != nil {
			return fmt.Errorf("source precheck: %w", err)
		}
		fmt.Printf("source OK (%d data rows, status column present)\n", len(rows))

		if cfg.Dedup.Enabled {
			store, err := dedup.Open(filepath.Join(cfg.App.DataDir, "sent_log.db"))
			if err != nil {
				return fmt.Errorf("sent log precheck: %w", err)
			}
			n, err := store.Count(ctx)
			_ = store.Close()
			if err != nil {
				return fmt.Errorf("sent log precheck: %w", err)
			}
			fmt.Printf("sent log OK (%d entries)\n", n)
		}

		if _, err := secrets.GetSMTPPassword(secrets.SMTPKeyringAccount(cfg)); err != nil {
			if !cfg.DryRun {
				return fmt.Errorf("smtp precheck: %w", err)
			}
			fmt.Println("smtp credentials missing (OK for dry run)")
		} else {
			fmt.Println("smtp credentials OK")
		}

		fmt.Println("precheck passed")
		return nil
	},
}

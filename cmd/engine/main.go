package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger  *zap.Logger
	verbose bool
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Referral outreach engine",
	Long: `Reads a contact sheet or CSV, decides which rows are eligible, sends one
referral email per eligible row and writes the outcome back to the source so
repeated runs never double-send.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
		}
		var err error
		logger, err = zcfg.Build()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default <data-dir>/config.yml)")

	rootCmd.AddCommand(runCmd, precheckCmd, secretCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

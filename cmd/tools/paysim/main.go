package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/xrp-pay/backend/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "paysim",
		Short: "Drive a local payment backend without a wallet or ledger",
	}
	rootCmd.PersistentFlags().String("log-level", "info", "log level")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		zl, err := logger.New(level, "console")
		if err != nil {
			return err
		}
		logger.Init(zl)
		return nil
	}

	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(callbackCmd())
	rootCmd.AddCommand(settlementCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "settlement",
	Short: "Payment settlement and vendor payout service",
	Long:  "A settlement microservice for enrollment payments, gateway webhook reconciliation, and vendor payouts.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "galoy-api",
	Short: "Intraledger payments API",
	Long: `Runs the intraledger payments HTTP API. Payments between wallets of the
ledger are serialized per sender wallet by a quorum lock over independent
Redis nodes.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, lockCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

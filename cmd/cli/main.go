package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	configPath  string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "fetch-install",
		Short: "fetch-install - download files and hand them to an installer",
		Long: `A command-line interface that downloads a file once per version,
reports progress and opens the result with the configured installer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL for remote commands")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(configCmd)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/fetch-install-go/internal/app"
	"github.com/yourusername/fetch-install-go/internal/infrastructure"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage remembered downloads",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloaded versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tFILE\tSIZE\tUPDATED")
		for _, r := range records {
			size := "missing"
			if info, err := os.Stat(r.FilePath); err == nil {
				size = humanize.Bytes(uint64(info.Size()))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				truncate(r.VersionKey, 40),
				r.FilePath,
				size,
				humanize.Time(r.UpdatedAt))
		}
		return w.Flush()
	},
}

var recordsForgetCmd = &cobra.Command{
	Use:   "forget [version]",
	Short: "Forget a version so the next get downloads it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
		return nil
	},
}

func init() {
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsForgetCmd)
}

func openStore() (*infrastructure.SQLiteRecordStore, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return infrastructure.NewSQLiteRecordStore(config.Store.DatabasePath, config.Store.Namespace)
}

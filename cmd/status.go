package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/courseops/subaudit/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		last, err := st.LastCompletedPage(ctx)
		if err != nil {
			return eris.Wrap(err, "last completed page")
		}
		records, err := st.LoadAll(ctx)
		if err != nil {
			return eris.Wrap(err, "load submissions")
		}
		entries, err := st.RunLog(ctx)
		if err != nil {
			return eris.Wrap(err, "read run log")
		}
		skipped := store.SkippedPages(entries)

		fmt.Printf("last completed page: %d\n", last)
		fmt.Printf("records collected:   %d\n", len(records))
		fmt.Printf("skipped pages:       %d %v\n", len(skipped), skipped)
		fmt.Printf("run log entries:     %d\n", len(entries))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

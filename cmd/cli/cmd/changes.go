package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var changesLimit int

func init() {
	changesCmd.Flags().IntVarP(&changesLimit, "limit", "n", 20, "number of changes")
	rootCmd.AddCommand(changesCmd)
}

var changesCmd = &cobra.Command{
	Use:   "status-changes",
	Short: "Show recent public status changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := client.StatusChanges(changesLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch status changes: %w", err)
		}
		if len(changes) == 0 {
			fmt.Println("no status changes")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tMONITOR\tCHANGE")
		for _, c := range changes {
			fmt.Fprintf(w, "%s\t%s\t%s -> %s\n", c.ChangedAt.Local().Format(time.DateTime), c.MonitorName, c.OldStatus, c.NewStatus)
		}
		return w.Flush()
	},
}

package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimecore/cmd/cli/api"
)

var (
	addInterval int
	addPublic   bool
	addCert     bool
	addName     string
)

func init() {
	addCmd.Flags().IntVar(&addInterval, "interval", 0, "check interval in minutes")
	addCmd.Flags().BoolVar(&addPublic, "public", false, "broadcast status changes")
	addCmd.Flags().BoolVar(&addCert, "cert", false, "check the TLS certificate")
	addCmd.Flags().StringVar(&addName, "name", "", "display name")
	rootCmd.AddCommand(monitorsCmd, addCmd, incidentsCmd)
}

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List monitors and their live state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := client.Monitors()
		if err != nil {
			return fmt.Errorf("failed to fetch monitors: %w", err)
		}
		if len(ms) == 0 {
			fmt.Println("no monitors")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTATE\tSTREAK\tURL")
		for _, m := range ms {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", m.ID, m.Name, m.Live.Status, m.Live.State, m.Live.FailureStreak, m.URL)
		}
		return w.Flush()
	},
}

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add or update a monitor (admin key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := strings.TrimSpace(args[0])
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid url %q", raw)
		}
		m, err := client.AddMonitor(api.NewMonitor{
			Name:            addName,
			URL:             raw,
			IntervalMinutes: addInterval,
			Public:          addPublic,
			Certificate:     addCert,
		})
		if err != nil {
			return err
		}
		fmt.Printf("monitor %d: %s every %dm\n", m.ID, m.URL, m.IntervalMinutes)
		return nil
	},
}

var incidentsCmd = &cobra.Command{
	Use:   "incidents <monitor-id>",
	Short: "List incidents of a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid monitor id %q", args[0])
		}
		incs, err := client.Incidents(id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tENDED\tMINUTES\tREASON")
		for _, inc := range incs {
			ended, mins := "open", "-"
			if inc.EndedAt != nil {
				ended = inc.EndedAt.Format("2006-01-02 15:04")
			}
			if inc.DurationMinutes != nil {
				mins = strconv.Itoa(*inc.DurationMinutes)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", inc.ID, inc.StartedAt.Format("2006-01-02 15:04"), ended, mins, inc.Reason)
		}
		return w.Flush()
	},
}

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(uptimeCmd, aggregateCmd)
}

func yesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
}

var uptimeCmd = &cobra.Command{
	Use:   "uptime <monitor-id> [date]",
	Short: "Show the daily uptime row of a monitor (default: yesterday, UTC)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid monitor id %q", args[0])
		}
		date := yesterday()
		if len(args) == 2 {
			date = args[1]
		}
		d, err := client.DailyUptime(id, date)
		if err != nil {
			return err
		}
		fmt.Printf("monitor %d on %s\n", d.MonitorID, d.Date)
		fmt.Printf("  uptime  %.1f%%  (%d/%d checks)\n", d.UptimePercentage, d.SuccessCount, d.TotalChecks)
		if d.AvgResponseMS != nil {
			fmt.Printf("  latency avg %.0fms  min %dms  max %dms\n", *d.AvgResponseMS, deref(d.MinResponseMS), deref(d.MaxResponseMS))
		}
		return nil
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [date] [monitor-id...]",
	Short: "Run daily aggregation for a date (admin key)",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := yesterday()
		if len(args) > 0 {
			date = args[0]
		}
		var ids []int64
		for _, a := range args[min(1, len(args)):] {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid monitor id %q", a)
			}
			ids = append(ids, id)
		}
		rep, err := client.AggregateDaily(date, ids)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d aggregated, %d failed\n", rep.Date, rep.Succeeded, rep.Failed)
		for _, e := range rep.Errors {
			fmt.Println("  ", e)
		}
		if rep.Failed > 0 {
			return fmt.Errorf("%d monitors failed", rep.Failed)
		}
		return nil
	},
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

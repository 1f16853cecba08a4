package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimecore/cmd/cli/api"
)

var (
	apiURL string
	apiKey string
	client *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "uptimectl",
	Short: "Operator CLI for the uptime monitor",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = api.New(apiURL, apiKey)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("API_BASE")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "key", os.Getenv("API_KEY"), "API key (public or admin)")
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiserve/inference-gateway/pkg/gatewayclient"
)

var (
	baseURL string
	apiKey  string
	client  *gatewayclient.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Operator CLI for the inference gateway",
		Long:  "gatewayctl drives the inference gateway's admin API: inspect resident models, evict, prewarm, and manage the version-resolution cache.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = gatewayclient.NewClient(&gatewayclient.Config{BaseURL: baseURL, APIKey: apiKey})
		},
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", gatewayclient.DefaultBaseURL, "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("GATEWAY_API_KEY"), "admin API key (defaults to $GATEWAY_API_KEY)")

	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(unloadCmd())
	rootCmd.AddCommand(invalidateCmd())
	rootCmd.AddCommand(clearVersionCacheCmd())
	rootCmd.AddCommand(versionCacheStatsCmd())
	rootCmd.AddCommand(prewarmCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

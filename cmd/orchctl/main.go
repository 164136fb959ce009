// Command orchctl is the operator CLI for the multi-model merge
// orchestrator: it can run the HTTP service, submit one-shot queries,
// submit and poll deep-research jobs, inspect configuration, and watch
// running jobs from a terminal dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	apiURL     string

	rootCmd = &cobra.Command{
		Use:   "orchctl",
		Short: "Multi-model LLM merge orchestrator",
		Long: `orchctl runs and operates the multi-model merge orchestrator: fan a
prompt out to several language models, merge their answers with a judge
model, and optionally ground the answer in web search.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML config file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "base URL of a running orchctl serve instance")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

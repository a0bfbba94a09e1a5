// taskctl submits jobs and inspects job records through the task API.
//
// Usage:
//
//	taskctl [--api-url URL] [--json] <command> [subcommand] [flags]
package main

import (
	"fmt"
	"os"

	"github.com/cuongbtq/task-manage/internal/cli"
	"github.com/spf13/cobra"
)

// version is set with -ldflags at build time
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	defaultURL := os.Getenv("TASK_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "taskctl",
		Short:         "Command line client for the task manage API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewWorkersCmd(clientFn, outputFn),
		cli.NewTopologyCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// TaskBridge CLI — инструмент командной строки для работы с очередью
// tasks, artifacts и циклом redeem-sync через HTTP API.
//
// Использование:
//
//	taskbridge [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task      Управление tasks
//	artifact  Загрузка и скачивание artifacts
//	sync      Управление циклом redeem-sync
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskbridge/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "taskbridge",
		Short:         "TaskBridge CLI — task queue for external workers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("TASKBRIDGE_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewArtifactCmd(clientFn, outputFn),
		cli.NewSyncCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Command agentcore runs a single agentic-loop run against a configured
// model provider, vector-backed library, and tool registry.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentcore",
		Short:        "Run an agentic loop over a vector-backed library and a tool registry",
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd(), buildMetricsCmd())
	return root
}

func buildMetricsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve this process's default Prometheus registry over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveMetrics(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "address to listen on")
	return cmd
}

func buildRunCmd() *cobra.Command {
	var configPath, task string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agentic loop once (up to the configured turn limit) and print the final answer",
		Example: `  agentcore run --config agentcore.yaml --task "summarize the open tasks"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := runOnce(cmd.Context(), configPath, task)
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "path to YAML configuration file")
	cmd.Flags().StringVarP(&task, "task", "t", "", "task for the loop to complete")
	cmd.MarkFlagRequired("task")
	return cmd
}

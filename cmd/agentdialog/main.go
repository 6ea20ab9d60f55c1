// Package main provides the CLI entry point for agentdialog.
//
// agentdialog runs scripted conversations between two language models and
// interactive sessions between a human and one model.
//
// # Basic Usage
//
// Run an experiment defined in YAML:
//
//	agentdialog run --config agentdialog.yaml --experiment negotiation.yaml
//
// Chat with a single model:
//
//	agentdialog chat --model gpt-4o-mini --system "You are a travel agent."
//
// List the models offered by the configured backend:
//
//	agentdialog models
//
// # Environment Variables
//
// A .env file in the working directory is loaded before configuration is
// read, so the YAML file can reference credentials as ${OPENAI_API_KEY}.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load()

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentdialog",
		Short: "Orchestrate conversations between language models",
		Long: `agentdialog seeds two models with prompts and lets them talk to each other
for a fixed number of turns, separating each reply into a visible answer and
its reasoning trace.

Supported providers: openai, anthropic, compat (OpenAI-compatible servers), mock`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().String("listen", "", "Serve /metrics and /ws on this address (overrides config)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildChatCmd(),
		buildModelsCmd(),
	)
	return rootCmd
}

// Package commands implements the cadenza CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cadenza-ai/cadenza/internal/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	logLevel  string
	prettyLog bool
)

var rootCmd = &cobra.Command{
	Use:   "cadenza",
	Short: "Cadenza - AI coding agent",
	Long: `Cadenza runs an AI coding agent against your project.

Run 'cadenza run "..."' to execute a prompt from the terminal, or
'cadenza serve' to expose the agent over an HTTP API.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: prettyLog,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty-logs", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("cadenza %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// workDirOr resolves the working directory from a flag value, falling
// back to the current directory.
func workDirOr(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

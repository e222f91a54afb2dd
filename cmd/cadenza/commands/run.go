package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/headless"
)

var (
	runModel       string
	runAgent       string
	runContinue    bool
	runSession     string
	runFormat      string
	runFiles       []string
	runTitle       string
	runDir         string
	runAutoApprove bool
	runTimeout     time.Duration
	runQuiet       bool
	runVerbose     bool
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run a prompt from the terminal",
	Long: `Run a single prompt through the agent and print the streamed
response.

Examples:
  cadenza run "Fix the bug in main.go"
  cadenza run --model anthropic/claude-sonnet-4-20250514 "Explain this code"
  cadenza run --continue "Now add tests"
  cadenza run --file main.go "Review this file"`,
	RunE: runPrompt,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Agent profile to run under")
	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "Continue the last session")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringVar(&runFormat, "format", "text", "Output format (text|json|jsonl)")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "File(s) to attach to the message")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Session title")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve all tool permissions")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "Maximum run duration")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the streamed response")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print tool and permission events")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	workDir, err := workDirOr(runDir)
	if err != nil {
		return err
	}

	format := headless.OutputFormat(runFormat)
	switch format {
	case headless.OutputText, headless.OutputJSON, headless.OutputJSONL:
	default:
		return fmt.Errorf("unknown format %q", runFormat)
	}

	prompt := strings.Join(args, " ")
	if prompt == "" {
		return fmt.Errorf("message required, e.g.: cadenza run \"your message\"")
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	cfg := headless.DefaultConfig()
	cfg.Prompt = prompt
	cfg.WorkDir = workDir
	cfg.AutoApprove = runAutoApprove
	cfg.OutputFormat = format
	cfg.Timeout = runTimeout
	cfg.SessionID = runSession
	cfg.ContinueLast = runContinue
	cfg.Files = runFiles
	cfg.Model = runModel
	cfg.Agent = runAgent
	cfg.Title = runTitle
	cfg.Quiet = runQuiet
	cfg.Verbose = runVerbose

	result, err := headless.NewRunner(cfg, appConfig).Run(cmd.Context(), os.Stdout)
	if err != nil && result != nil {
		os.Exit(int(result.ExitCode))
	}
	return err
}

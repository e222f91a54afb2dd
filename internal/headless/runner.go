package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/message"
	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/internal/provider"
	"github.com/cadenza-ai/cadenza/internal/session"
	"github.com/cadenza-ai/cadenza/internal/storage"
	"github.com/cadenza-ai/cadenza/internal/tool"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// Runner executes a single prompt through the session loop without the
// HTTP server.
type Runner struct {
	cfg       *Config
	appConfig *config.Config
	stdin     io.Reader
}

// NewRunner creates a headless Runner. appConfig is the loaded
// application config for cfg.WorkDir.
func NewRunner(cfg *Config, appConfig *config.Config) *Runner {
	return &Runner{cfg: cfg, appConfig: appConfig, stdin: os.Stdin}
}

// Run executes the prompt and returns the result. The returned error is
// the run failure, if any; the Result always carries the exit code.
func (r *Runner) Run(ctx context.Context, out io.Writer) (*Result, error) {
	printer := NewPrinter(out, r.cfg.OutputFormat, r.cfg.Quiet, r.cfg.Verbose)
	defer printer.Close()

	fail := func(code ExitCode, err error) (*Result, error) {
		result := printer.Finish("error", code, err)
		printer.PrintResult(result)
		return result, err
	}

	prompt, err := r.buildPrompt()
	if err != nil {
		return fail(ExitInvalidInput, err)
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	if r.cfg.Model != "" {
		r.appConfig.Model = r.cfg.Model
	}

	paths := config.Paths()
	if err := paths.Ensure(); err != nil {
		return fail(ExitError, err)
	}

	store := storage.New(paths.StoragePath())
	messages := message.NewStore(store)
	sessions := session.NewService(store, messages)

	providers, err := provider.InitializeProviders(ctx, r.appConfig)
	if err != nil {
		return fail(ExitProviderError, err)
	}

	tools := tool.NewRegistry(r.cfg.WorkDir)
	tools.RegisterDefaults()

	promptFunc := TerminalPrompt(r.stdin, out)
	if r.cfg.AutoApprove {
		promptFunc = AutoApprovePrompt()
	}
	evaluator := permission.NewEvaluator(permission.NewApprovalStore(), promptFunc)

	runner := session.NewRunner(providers, tools, messages, sessions, evaluator, r.appConfig, nil)

	sess, err := r.resolveSession(ctx, sessions)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fail(ExitSessionNotFound, err)
		}
		return fail(ExitError, err)
	}
	printer.Watch(sess.ID)

	input := session.PromptInput{SessionID: sess.ID, Text: prompt, Agent: r.cfg.Agent}
	if r.cfg.Model != "" {
		providerID, modelID := provider.ParseModelString(r.cfg.Model)
		input.Model = &types.ModelRef{ProviderID: providerID, ModelID: modelID}
	}

	msg, err := runner.Prompt(ctx, input)
	if err != nil {
		return fail(r.classify(ctx, msg, err), err)
	}

	result := printer.Finish("success", ExitSuccess, nil)
	printer.PrintResult(result)
	return result, nil
}

// buildPrompt assembles the user text from the prompt and attached files.
func (r *Runner) buildPrompt() (string, error) {
	text := strings.TrimSpace(r.cfg.Prompt)
	if text == "" {
		return "", fmt.Errorf("prompt is required")
	}

	var b strings.Builder
	b.WriteString(text)
	for _, file := range r.cfg.Files {
		content, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read attachment %s: %w", file, err)
		}
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", file, content)
	}
	return b.String(), nil
}

// resolveSession finds or creates the session the prompt runs in.
func (r *Runner) resolveSession(ctx context.Context, sessions *session.Service) (*types.Session, error) {
	if r.cfg.SessionID != "" {
		return sessions.Get(ctx, r.cfg.SessionID)
	}

	if r.cfg.ContinueLast {
		list, err := sessions.List(ctx, r.cfg.WorkDir)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("no session to continue: %w", storage.ErrNotFound)
		}
		return list[0], nil
	}

	return sessions.Create(ctx, r.cfg.WorkDir, r.cfg.Title)
}

// classify maps a failed run to an exit code, preferring the error class
// the loop recorded on the message.
func (r *Runner) classify(ctx context.Context, msg *types.Message, err error) ExitCode {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ExitTimeout
	}
	if permission.IsRejected(err) {
		return ExitPermissionDenied
	}

	if msg != nil && msg.Error != nil {
		switch msg.Error.Name {
		case types.ErrNamePermission:
			return ExitPermissionDenied
		case types.ErrNameAuth, types.ErrNameAPI:
			return ExitProviderError
		}
	}
	return ExitError
}

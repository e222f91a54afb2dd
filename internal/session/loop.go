package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/internal/logging"
	"github.com/cadenza-ai/cadenza/internal/message"
	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/internal/provider"
	"github.com/cadenza-ai/cadenza/internal/token"
	"github.com/cadenza-ai/cadenza/internal/tool"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// DefaultMaxSteps bounds loop iterations for one run.
const DefaultMaxSteps = 50

// signal is the stream processor's verdict on how the loop proceeds.
type signal int

const (
	// signalContinue loops again; the exit condition decides whether the
	// turn is actually finished.
	signalContinue signal = iota

	// signalStop ends the run now: a tool call was blocked or the turn
	// was aborted.
	signalStop

	// signalCompact runs a compaction pass before the next iteration.
	signalCompact
)

// Runner owns the agentic loop. One Runner serves every session; runs are
// single-flight per session (see control.go).
type Runner struct {
	providers *provider.Registry
	tools     *tool.Registry
	messages  *message.Store
	sessions  *Service
	evaluator *permission.Evaluator
	doomLoop  *permission.DoomLoopDetector
	compactor *Compactor
	estimator *token.Estimator
	agents    map[string]*Agent
	cfg       *config.Config
	log       zerolog.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// NewRunner wires a Runner. summarize may be nil, in which case the
// default model-backed summarizer is installed.
func NewRunner(
	providers *provider.Registry,
	tools *tool.Registry,
	messages *message.Store,
	sessions *Service,
	evaluator *permission.Evaluator,
	cfg *config.Config,
	summarize SummarizeFunc,
) *Runner {
	estimator := token.NewEstimator()

	r := &Runner{
		providers: providers,
		tools:     tools,
		messages:  messages,
		sessions:  sessions,
		evaluator: evaluator,
		estimator: estimator,
		agents:    Agents(cfg),
		cfg:       cfg,
		log:       logging.Component("session"),
		flights:   make(map[string]*flight),
	}

	threshold := 0
	if cfg != nil {
		threshold = cfg.DoomLoopThreshold
	}
	r.doomLoop = permission.NewDoomLoopDetector(threshold)

	if summarize == nil {
		summarize = r.modelSummarizer()
	}
	var compactionCfg *config.CompactionConfig
	if cfg != nil {
		compactionCfg = cfg.Compaction
	}
	r.compactor = NewCompactor(messages, estimator, summarize, compactionCfg)

	return r
}

// Compactor exposes the runner's compactor, mainly for explicit
// user-initiated compaction.
func (r *Runner) Compactor() *Compactor { return r.compactor }

// run is one loop execution. Each iteration re-reads the log, decides via
// the exit condition whether the turn is already complete, and otherwise
// performs one model step.
func (r *Runner) run(ctx context.Context, sessionID string) (*types.Message, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	var assistant *types.Message
	for step := 0; ; step++ {
		msgs, err := r.messages.List(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		latestUser, latestAssistant := latest(msgs)
		if latestUser == nil {
			return nil, fmt.Errorf("session %s has no user message", sessionID)
		}

		// Exit condition: the newest assistant message answers the
		// newest user message and carries a terminal finish.
		if latestAssistant != nil &&
			latestAssistant.ID > latestUser.ID &&
			latestAssistant.Finished() &&
			types.TerminalFinish(*latestAssistant.Finish) {
			event.Publish(event.Event{
				Type: event.SessionIdle,
				Data: event.SessionIdleData{SessionID: sessionID},
			})
			return latestAssistant, nil
		}

		agent := r.resolveAgent(latestUser.Agent)

		maxSteps := agent.MaxSteps
		if maxSteps <= 0 {
			maxSteps = DefaultMaxSteps
		}
		if step >= maxSteps {
			return r.failRun(ctx, assistant, sessionID,
				&types.MessageError{Name: types.ErrNameMaxSteps, Data: types.MessageErrorData{Message: "maximum steps reached"}})
		}

		prov, model, err := r.resolveModel(latestUser)
		if err != nil {
			return r.failRun(ctx, assistant, sessionID, types.NewAPIError(err.Error()))
		}

		// Compact before calling the model when the last completion
		// already filled the window.
		if latestAssistant != nil && latestAssistant.Tokens != nil &&
			r.compactor.IsOverflowing(*latestAssistant.Tokens, model.ContextWindow) {
			if _, _, err := r.compactor.Compact(ctx, sessionID); err != nil {
				r.log.Warn().Err(err).Str("session", sessionID).Msg("compaction failed")
			}
			continue
		}

		assistant = &types.Message{
			SessionID:  sessionID,
			Role:       types.RoleAssistant,
			ParentID:   latestUser.ID,
			ProviderID: model.ProviderID,
			ModelID:    model.ID,
			Time:       types.MessageTime{Created: time.Now().UnixMilli()},
		}
		if err := r.messages.Create(ctx, assistant); err != nil {
			return nil, err
		}

		sig, err := r.step(ctx, sess, agent, prov, model, msgs, assistant)
		if err != nil {
			return r.failRun(ctx, assistant, sessionID, classifyError(err))
		}

		switch sig {
		case signalStop:
			return assistant, nil
		case signalCompact:
			if _, _, err := r.compactor.Compact(ctx, sessionID); err != nil {
				r.log.Warn().Err(err).Str("session", sessionID).Msg("compaction failed")
			}
		}
	}
}

// latest scans backwards for the newest user and assistant messages.
// Message ids are monotonic, so the slice is in causal order.
func latest(msgs []*types.Message) (user, assistant *types.Message) {
	for i := len(msgs) - 1; i >= 0; i-- {
		switch msgs[i].Role {
		case types.RoleUser:
			if user == nil {
				user = msgs[i]
			}
		case types.RoleAssistant:
			if assistant == nil && !msgs[i].Summary {
				assistant = msgs[i]
			}
		}
		if user != nil && assistant != nil {
			break
		}
	}
	return user, assistant
}

// resolveAgent maps a user message's agent name to a profile.
func (r *Runner) resolveAgent(name string) *Agent {
	if a, ok := r.agents[name]; ok {
		return a
	}
	return r.agents["default"]
}

// resolveModel picks the provider and model the user message asked for,
// falling back to the configured default.
func (r *Runner) resolveModel(user *types.Message) (provider.Provider, *types.Model, error) {
	if user.Model != nil {
		prov, err := r.providers.Get(user.Model.ProviderID)
		if err != nil {
			return nil, nil, err
		}
		model, err := r.providers.GetModel(user.Model.ProviderID, user.Model.ModelID)
		if err != nil {
			return nil, nil, err
		}
		return prov, model, nil
	}

	model, err := r.providers.DefaultModel()
	if err != nil {
		return nil, nil, err
	}
	prov, err := r.providers.Get(model.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return prov, model, nil
}

// failRun records a loop-terminating error on the current assistant
// message (creating one if the failure happened before the first step)
// and publishes session.error.
func (r *Runner) failRun(ctx context.Context, assistant *types.Message, sessionID string, msgErr *types.MessageError) (*types.Message, error) {
	if assistant == nil {
		assistant = &types.Message{
			SessionID: sessionID,
			Role:      types.RoleAssistant,
			Time:      types.MessageTime{Created: time.Now().UnixMilli()},
		}
		if err := r.messages.Create(ctx, assistant); err != nil {
			return nil, fmt.Errorf("%s: %s", msgErr.Name, msgErr.Data.Message)
		}
	}

	assistant.Error = msgErr
	assistant.Finish = ptr(types.FinishError)
	if err := r.messages.Update(ctx, assistant); err != nil {
		r.log.Error().Err(err).Str("session", sessionID).Msg("failed to persist error message")
	}

	event.Publish(event.Event{
		Type: event.SessionError,
		Data: event.SessionErrorData{SessionID: sessionID, Error: msgErr},
	})

	return assistant, fmt.Errorf("%s: %s", msgErr.Name, msgErr.Data.Message)
}

// classifyError maps a step failure to the message error vocabulary.
func classifyError(err error) *types.MessageError {
	switch {
	case isAuthError(err):
		return &types.MessageError{Name: types.ErrNameAuth, Data: types.MessageErrorData{Message: err.Error()}}
	default:
		return types.NewAPIError(err.Error())
	}
}

// modelSummarizer builds the default SummarizeFunc: a one-shot completion
// against the configured small model (or the default).
func (r *Runner) modelSummarizer() SummarizeFunc {
	return func(ctx context.Context, transcript string) (string, error) {
		model, prov, err := r.summaryModel()
		if err != nil {
			return "", err
		}
		return summarizeWithModel(ctx, prov, model, transcript)
	}
}

func (r *Runner) summaryModel() (*types.Model, provider.Provider, error) {
	if r.cfg != nil && r.cfg.SmallModel != "" {
		providerID, modelID := provider.ParseModelString(r.cfg.SmallModel)
		if prov, err := r.providers.Get(providerID); err == nil {
			if model, err := r.providers.GetModel(providerID, modelID); err == nil {
				return model, prov, nil
			}
		}
	}

	model, err := r.providers.DefaultModel()
	if err != nil {
		return nil, nil, err
	}
	prov, err := r.providers.Get(model.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return model, prov, nil
}

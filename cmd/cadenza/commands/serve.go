package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/logging"
	"github.com/cadenza-ai/cadenza/internal/message"
	"github.com/cadenza-ai/cadenza/internal/permission"
	"github.com/cadenza-ai/cadenza/internal/provider"
	"github.com/cadenza-ai/cadenza/internal/server"
	"github.com/cadenza-ai/cadenza/internal/session"
	"github.com/cadenza-ai/cadenza/internal/storage"
	"github.com/cadenza-ai/cadenza/internal/tool"
)

var (
	servePort int
	serveDir  string
	serveCORS bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cadenza HTTP server",
	Long: `Start cadenza as a server exposing the agent over an HTTP API,
with an SSE event stream on /event.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 4096, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", true, "Enable CORS")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := workDirOr(serveDir)
	if err != nil {
		return err
	}
	log := logging.Component("cli")

	paths := config.Paths()
	if err := paths.Ensure(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	ctx := context.Background()

	store := storage.New(paths.StoragePath())
	messages := message.NewStore(store)
	sessions := session.NewService(store, messages)

	providers, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		log.Warn().Err(err).Msg("some providers failed to initialize")
	}

	tools := tool.NewRegistry(workDir)
	tools.RegisterDefaults()

	responder := permission.NewResponder()
	evaluator := permission.NewEvaluator(permission.NewApprovalStore(), responder.Prompt)

	runner := session.NewRunner(providers, tools, messages, sessions, evaluator, appConfig, nil)

	srv := server.New(
		&server.Config{Port: servePort, Directory: workDir, EnableCORS: serveCORS},
		appConfig, sessions, runner, messages, providers, tools, responder,
	)

	stopWatch, err := config.Watch(ctx, workDir)
	if err != nil {
		log.Warn().Err(err).Msg("config watch unavailable")
	} else {
		defer stopWatch()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", servePort).Str("dir", workDir).Msg("server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/provider"
)

var modelsDir string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().StringVar(&modelsDir, "directory", "", "Working directory")
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := workDirOr(modelsDir)
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	providers, err := provider.InitializeProviders(context.Background(), appConfig)
	if err != nil {
		return err
	}

	var defaultID string
	if model, err := providers.DefaultModel(); err == nil {
		defaultID = model.ProviderID + "/" + model.ID
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCONTEXT\tTOOLS\t")
	for _, m := range providers.AllModels() {
		id := m.ProviderID + "/" + m.ID
		marker := ""
		if id == defaultID {
			marker = "(default)"
		}
		tools := "no"
		if m.SupportsTools {
			tools = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", id, m.ContextWindow, tools, marker)
	}
	return w.Flush()
}

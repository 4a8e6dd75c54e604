// Package cli implements the medqa command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medqa-sponsor-engine/internal/app"
)

// Builder assembles the application for a command invocation.
type Builder func(ctx context.Context, opts app.Options) (*app.App, error)

// NewRootCommand returns the medqa root command. build is called lazily by the
// subcommands that need services.
func NewRootCommand(build Builder) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "medqa",
		Short: "Sponsored-content decision engine for medical Q&A",
		Long: `medqa classifies medical questions, matches them against the sponsor catalog
and decides which interactive experience to show while an answer is generated.

Set MEDQA_LLM_API_KEY (or put it in .env) to enable the Gemini-backed services.
Without it, classification degrades to unknown and no sponsor is shown.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default searches ./config.yaml, ./config/, /etc/medqa/)")

	load := func(cmd *cobra.Command) (*app.App, error) {
		return build(cmd.Context(), app.Options{ConfigFile: configFile, LogOutput: "stderr"})
	}

	root.AddCommand(
		newAnalyzeCommand(load),
		newEstimateCommand(load),
		newAskCommand(load),
		newCatalogCommand(load),
	)
	return root
}

// Execute runs the CLI with the default application builder.
func Execute(ctx context.Context) error {
	return NewRootCommand(app.New).ExecuteContext(ctx)
}

type loader func(cmd *cobra.Command) (*app.App, error)

func questionArg(args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return "", fmt.Errorf("question must not be empty")
	}
	return question, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

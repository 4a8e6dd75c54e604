package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/internal/service"
)

func newEstimateCommand(load loader) *cobra.Command {
	var (
		offline bool
		model   string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "estimate [question]",
		Short: "Estimate how long an answer takes to generate",
		Long: `Estimate the response time of a question in seconds.

With --offline the estimate is computed from the question text alone and no
external service is called.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := questionArg(args)
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			estimator := a.Services.Estimator
			if model != "" {
				estimator = service.NewTimeEstimator(model, a.Logger)
			}

			var (
				classification *domain.Classification
				contextual     *domain.ContextualRelevanceResult
			)
			if !offline {
				classification = a.Services.Classifier.Classify(cmd.Context(), question, nil)
				contextual, err = a.Services.Contextual.AnalyzeContextualRelevance(cmd.Context(), question, classification)
				if err != nil {
					a.Logger.WithError(err).Debug("Contextual analysis unavailable, computing estimate")
					contextual = nil
				}
			}

			estimate := estimator.EstimateTime(question, classification, contextual)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), estimate)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.0fs (min %.1fs, max %.1fs, confidence %.2f, source %v)\n",
				estimate.InitialEstimate, estimate.MinEstimate, estimate.MaxEstimate,
				estimate.ConfidenceLevel, estimate.DetailedFactors["source"])
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip classification and contextual analysis")
	cmd.Flags().StringVar(&model, "model", "", "answer model whose speed scales the estimate (default: configured)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the estimate as JSON")
	return cmd
}

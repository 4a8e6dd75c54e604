package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/internal/service"
)

func newAnalyzeCommand(load loader) *cobra.Command {
	var (
		asJSON    bool
		userAgent string
		mobile    bool
		highPerf  bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [question]",
		Short: "Decide sponsorship, experience and timing for a question",
		Long: `Run every decision for a question without generating the answer.

Examples:
  medqa analyze "What are the latest treatment options for HER2+ metastatic breast cancer?"
  medqa analyze --json --mobile "How does metformin work?"`,
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

			req := service.AskRequest{Question: question, UserAgent: userAgent}
			if cmd.Flags().Changed("mobile") || cmd.Flags().Changed("high-performance") {
				req.Device = &domain.DeviceCapabilities{IsMobile: mobile, IsHighPerformance: highPerf}
			}

			analysis, err := a.Services.Pipeline.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), analysis)
			}
			printAnalysis(cmd, analysis)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full analysis as JSON")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "User-Agent used for device detection")
	cmd.Flags().BoolVar(&mobile, "mobile", false, "treat the client as a mobile device")
	cmd.Flags().BoolVar(&highPerf, "high-performance", false, "treat the client as a high-performance device")
	return cmd
}

func printAnalysis(cmd *cobra.Command, a *service.Analysis) {
	out := cmd.OutOrStdout()
	c := a.Classification

	fmt.Fprintf(out, "Classification:  %s / %s (%.2f)\n", c.PrimaryCategory.ID, c.Subcategory.ID, c.PrimaryCategory.Confidence)
	if len(c.Keywords) > 0 {
		fmt.Fprintf(out, "Keywords:        %s\n", strings.Join(c.Keywords, ", "))
	}

	switch {
	case a.MappingError != "":
		fmt.Fprintf(out, "Sponsor:         error: %s\n", a.MappingError)
	case a.Mapping == nil || a.Mapping.TopMatch == nil:
		fmt.Fprintln(out, "Sponsor:         none")
	default:
		top := a.Mapping.TopMatch
		fmt.Fprintf(out, "Sponsor:         %s / %s (score %d, confidence %.3f)\n",
			top.Company.Name, top.TreatmentArea.ID, top.Score, top.ConfidenceScore)
	}
	fmt.Fprintf(out, "Show sponsored:  %t\n", a.ShowSponsored)

	if a.ContextualError != "" {
		fmt.Fprintf(out, "Context:         unavailable (%s)\n", a.ContextualError)
	} else {
		fmt.Fprintf(out, "Context:         %s, %s, %s\n",
			a.Contextual.QuestionIntent, a.Contextual.ClinicalContext, a.Contextual.ComplexityLevel)
	}
	fmt.Fprintf(out, "Content length:  %s\n", a.ContentLength)
	if len(a.Formats) > 0 {
		fmt.Fprintf(out, "Best format:     %s (%.1f)\n", a.Formats[0].Format, a.Formats[0].Score)
	}

	t := a.TimeEstimate
	fmt.Fprintf(out, "Time estimate:   %.0fs (%.1f-%.1fs, confidence %.2f)\n", t.InitialEstimate, t.MinEstimate, t.MaxEstimate, t.ConfidenceLevel)

	e := a.Experience
	fmt.Fprintf(out, "Experience:      %s (score %d)\n", e.Selected.Type, e.Selected.Priority)
	for _, line := range e.Reasoning {
		fmt.Fprintf(out, "  - %s\n", line)
	}
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medqa-sponsor-engine/internal/domain"
	"github.com/medqa-sponsor-engine/internal/service"
)

func newAskCommand(load loader) *cobra.Command {
	var events bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Stream the answer to a question",
		Long: `Stream the answer to a question. By default only the answer text is printed;
--events prints every event of the stream as newline-delimited JSON.`,
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

			out := cmd.OutOrStdout()
			encoder := json.NewEncoder(out)
			return a.Services.Pipeline.Ask(cmd.Context(), service.AskRequest{Question: question}, func(ev domain.StreamEvent) error {
				if events {
					return encoder.Encode(ev)
				}
				switch ev.Type {
				case domain.EventChunk:
					if chunk, ok := ev.Data.(map[string]string); ok {
						_, err := fmt.Fprint(out, chunk["text"])
						return err
					}
				case domain.EventSponsored:
					if sponsored, ok := ev.Data.(service.SponsoredContent); ok {
						fmt.Fprintf(cmd.ErrOrStderr(), "[sponsored by %s]\n", sponsored.Company.Name)
					}
				case domain.EventComplete:
					_, err := fmt.Fprintln(out)
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&events, "events", false, "print every stream event as JSON")
	return cmd
}

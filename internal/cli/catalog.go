package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medqa-sponsor-engine/internal/domain"
)

func newCatalogCommand(load loader) *cobra.Command {
	var (
		company string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List sponsors and their treatment areas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			companies := a.Services.Catalog.Companies()
			if company != "" {
				c, ok := a.Services.Catalog.Company(company)
				if !ok {
					return fmt.Errorf("unknown company %q", company)
				}
				companies = []domain.Company{c}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), companies)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COMPANY\tAREA\tCATEGORY\tSUBCATEGORIES\tMEDICATIONS")
			for _, c := range companies {
				for _, area := range c.TreatmentAreas {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, area.ID, area.Category,
						strings.Join(area.Subcategories, ","), strings.Join(area.FlagshipMedications, ","))
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "show a single company by id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"prospect/internal/core"
	"prospect/internal/docstore"
)

var companyCmd = &cobra.Command{
	Use:   "company <id or name>",
	Short: "Show a stored company profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		company, err := lookupProfile(app, args[0])
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		return printCompany(company, asJSON)
	},
}

// lookupProfile resolves an argument as a company ID first, then as a
// canonical name.
func lookupProfile(app *app, arg string) (*core.Company, error) {
	if c, err := app.store.GetCompany(arg); err == nil && c != nil {
		return c, nil
	}
	c, err := app.store.GetCompanyByKey(docstore.CanonicalKey(arg, ""))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("no stored profile for %q", arg)
	}
	return c, nil
}

func init() {
	rootCmd.AddCommand(companyCmd)
	companyCmd.Flags().Bool("json", false, "Print the full profile as JSON")
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"prospect/internal/core"
	"prospect/internal/tui"
)

var researchCmd = &cobra.Command{
	Use:   "research <name> [website]",
	Short: "Research a company and store its profile",
	Long: `Run the full research pipeline for a company. With only a name, the
website is resolved through the configured search providers.

Example:
  prospect research "Acme Robotics" https://acme-robotics.com
  prospect research "Acme Robotics" --watch`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		name := args[0]
		website := ""
		if len(args) == 2 {
			website = args[1]
		}

		jobID, err := app.engine.Research(ctx, name, website)
		if err != nil {
			return err
		}

		watch, _ := cmd.Flags().GetBool("watch")
		if watch {
			// The watcher detaches on q but the job keeps running in
			// this process until Await returns.
			if err := tui.Watch(ctx, jobID, name, app.engine.Subscribe(ctx, jobID)); err != nil {
				return err
			}
		}

		company, err := app.engine.Await(ctx, jobID)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		return printCompany(company, asJSON)
	},
}

func printCompany(c *core.Company, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	fmt.Printf("%s  (%s)\n", c.Name, c.Website)
	fmt.Printf("  industry:        %s\n", c.Industry)
	fmt.Printf("  business model:  %s\n", c.BusinessModel)
	if c.Stage != "" {
		fmt.Printf("  stage:           %s\n", c.Stage)
	}
	if c.Location != "" {
		fmt.Printf("  location:        %s\n", c.Location)
	}
	if c.TargetMarket != "" {
		fmt.Printf("  target market:   %s\n", c.TargetMarket)
	}
	if len(c.KeyServices) > 0 {
		fmt.Printf("  key services:    %s\n", strings.Join(c.KeyServices, ", "))
	}
	if len(c.TechStack) > 0 {
		fmt.Printf("  tech stack:      %s\n", strings.Join(c.TechStack, ", "))
	}
	for _, l := range c.Leadership {
		fmt.Printf("  leadership:      %s, %s\n", l.Name, l.Title)
	}
	if c.Description != "" {
		fmt.Printf("\n%s\n", c.Description)
	}
	if c.LowQuality {
		fmt.Println("\nwarning: extraction is marked low quality, consider re-running")
	}
	fmt.Printf("\nid: %s  cost: $%.4f (%d in / %d out tokens)\n",
		c.ID, c.EstimatedCost, c.InputTokens, c.OutputTokens)
	return nil
}

func init() {
	rootCmd.AddCommand(researchCmd)
	researchCmd.Flags().Bool("watch", false, "Attach the live progress watcher")
	researchCmd.Flags().Bool("json", false, "Print the full profile as JSON")
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var similarCmd = &cobra.Command{
	Use:   "similar <name> [website]",
	Short: "Discover and validate companies similar to a target",
	Long: `Find companies related to the target through vector neighbors, LLM
suggestions, and web search, then validate each candidate with structured,
embedding, and judge scoring. Validated edges are persisted.

Example:
  prospect similar "Acme Robotics"
  prospect similar "Acme Robotics" https://acme-robotics.com`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		website := ""
		if len(args) == 2 {
			website = args[1]
		}

		result, err := app.similar.Discover(ctx, args[0], website)
		if err != nil {
			return err
		}

		fmt.Printf("similar to %s (%d candidates considered)\n\n", result.Target.Name, result.Considered)
		if len(result.Edges) == 0 {
			fmt.Println("no validated matches")
			return nil
		}

		for _, edge := range result.Edges {
			name := edge.TargetID
			if c, err := app.store.GetCompany(edge.TargetID); err == nil {
				name = fmt.Sprintf("%s (%s)", c.Name, c.Website)
			}
			fmt.Printf("  %.2f  %s\n", edge.Score, name)
			fmt.Printf("        structured %.2f / embedding %.2f / judge %.2f via %s\n",
				edge.Methods.Structured, edge.Methods.Embedding, edge.Methods.LLMJudge, edge.Discovery)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(similarCmd)
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Group stored companies into market segments",
	Long: `Cluster every stored company embedding with automatic cluster-count
selection and print the labeled segments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := app.segmenter.Segment(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%d segments across %d companies (silhouette %.2f)\n",
			result.K, result.Companies, result.Silhouette)
		if result.Weak {
			fmt.Println("warning: weak separation, segments may not be meaningful")
		}
		fmt.Println()

		for _, seg := range result.Segments {
			fmt.Printf("%s: %s (%d companies)\n", seg.ID, seg.Label, len(seg.CompanyIDs))
			if len(seg.Industries) > 0 {
				fmt.Printf("  industries: %s\n", strings.Join(seg.Industries, ", "))
			}
			if len(seg.Services) > 0 {
				fmt.Printf("  services:   %s\n", strings.Join(seg.Services, ", "))
			}
			for _, id := range seg.CompanyIDs {
				name := id
				if c, err := app.store.GetCompany(id); err == nil {
					name = c.Name
				}
				fmt.Printf("  - %s\n", name)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(segmentsCmd)
}

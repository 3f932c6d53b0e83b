// Package cmd wires the research engine, similarity discoverer, segmenter
// and HTTP facade into the prospect command line tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "prospect",
	Short: "Prospect researches companies from their public web presence",
	Long: `Prospect turns a company name and website into a structured profile by
crawling the site, selecting the most informative pages with an LLM, and
aggregating the fetched content into a single extraction.

Profiles are embedded and stored so related companies can be discovered,
validated, and grouped into market segments.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.prospect.yaml or $HOME/.prospect.yaml)")
}

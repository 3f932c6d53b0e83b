package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"prospect/internal/config"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running research job on the facade",
	Long: `Ask a running prospect server to cancel a research job. The server
address comes from the configuration unless --server overrides it.

Example:
  prospect cancel 3f1c9a60-7c2e-4f1a-9a2b-1b2c3d4e5f6a
  prospect cancel 3f1c9a60 --server http://localhost:8173`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		base, _ := cmd.Flags().GetString("server")
		if base == "" {
			base = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		base = strings.TrimRight(base, "/")

		url := fmt.Sprintf("%s/api/jobs/%s/cancel", base, args[0])
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Post(url, "application/json", nil)
		if err != nil {
			return fmt.Errorf("reaching server at %s: %w", base, err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cancel failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if strings.Contains(string(body), "already_terminal") {
			fmt.Println("job already finished")
		} else {
			fmt.Println("cancellation requested")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	cancelCmd.Flags().String("server", "", "Facade base URL (default from config)")
}

package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List camera backends",
	Long: `List the camera capture backends compiled into this binary.

The opencv backend is only available in binaries built with -tags opencv.`,
	Example: `  # List backends in table format (default)
  focuspet backends

  # List backends in JSON format
  focuspet backends --format json`,
	Args: cobra.NoArgs,
	RunE: runBackends,
}

var backendsFormat string

func init() {
	rootCmd.AddCommand(backendsCmd)
	backendsCmd.Flags().StringVarP(&backendsFormat, "format", "f", "table", "output format (table or json)")
}

type backendInfo struct {
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

func runBackends(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	selected := configMgr.Get().Camera.Backend

	var backends []backendInfo
	for _, name := range capture.Backends() {
		backends = append(backends, backendInfo{Name: name, Selected: name == selected})
	}

	out := cmd.OutOrStdout()
	switch backendsFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(backends)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BACKEND\tSELECTED")
		for _, b := range backends {
			mark := ""
			if b.Selected {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\n", b.Name, mark)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", backendsFormat)
	}
}

package cli

import (
	"fmt"
	"io"

	"github.com/searcher/internal/config"
	"github.com/spf13/cobra"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List configured endpoints",
	Long: `List the endpoints from the config file with the URL each one
resolves to. Endpoints that cannot build a request are marked.`,
	Args: cobra.NoArgs,
	RunE: runEndpoints,
}

func init() {
	rootCmd.AddCommand(endpointsCmd)
}

func runEndpoints(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	printEndpoints(cmd.OutOrStdout(), themeFor(cmd.OutOrStdout()), cfg)
	return nil
}

func printEndpoints(w io.Writer, t theme, cfg *config.Config) {
	if len(cfg.Endpoints) == 0 {
		fmt.Fprintln(w, t.Warning.Render("No endpoints configured"))
		fmt.Fprintln(w, t.Dim.Render("Add an endpoints section to "+configPath))
		return
	}

	width := 0
	for _, ep := range cfg.Endpoints {
		if len(ep.Name) > width {
			width = len(ep.Name)
		}
	}

	svcCfg := cfg.Network.ServiceConfig()
	for _, ep := range cfg.Endpoints {
		req, err := ep.Descriptor().Request(svcCfg)
		if err != nil {
			fmt.Fprintln(w, t.row(ep.Name, width, t.Error.Render("✗ "+err.Error())))
			continue
		}
		fmt.Fprintln(w, t.row(ep.Name, width, t.Value.Render(padRight(req.Method, 6))+" "+req.URL))
	}
}

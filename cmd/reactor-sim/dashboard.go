package main

import (
	"github.com/spf13/cobra"

	"reactor-sim/internal/dashboard"
	"reactor-sim/internal/logging"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	Long:  "dashboard writes Grafana dashboard JSON for the reactor tables. GREPTIMEDB_DATASOURCE_UID selects the datasource.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dashboard.Render(dashboardOut, dashboard.DefaultTables()); err != nil {
			return err
		}
		logging.New(nil, logLevel).Info("dashboards rendered", "dir", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory for rendered dashboards")
}

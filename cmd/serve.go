package cmd

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/control"
	"github.com/adversarial-coverage/adsim/sim/driver"
)

// version is reported to MCP clients.
var version = "dev"

// serveCmd exposes the simulation as MCP tools over stdio
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the simulation as an MCP server over stdio",
	Long: `Serve the simulation as an MCP (Model Context Protocol) server.

Stdout carries the protocol, so command output and logs go to stderr and no
grid display is drawn. Tools: sim_step, sim_run, sim_pause, sim_new_run,
sim_restart, sim_state, sim_dump_grid, sim_stats, sim_command.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(configPath, settingOverrides)
		if err != nil {
			logrus.Fatalf("Invalid settings: %v", err)
		}
		s, err := sim.NewSimulation(settings)
		if err != nil {
			logrus.Fatalf("Creating simulation: %v", err)
		}
		st, err := openStore()
		if err != nil {
			logrus.Fatalf("Opening store: %v", err)
		}
		defer closeStore(st)

		logrus.SetOutput(os.Stderr)
		opts := []driver.Option{driver.WithOutput(os.Stderr)}
		if st != nil {
			opts = append(opts, driver.WithStore(st))
		}
		ctx := context.Background()
		d := driver.New(s, opts...)
		d.Start(ctx)

		server := control.NewServer(&control.Config{Name: "adsim", Version: version}, d, st)
		if err := server.Run(ctx); err != nil {
			logrus.Errorf("MCP server stopped: %v", err)
		}
	},
}

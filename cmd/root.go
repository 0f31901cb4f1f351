package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/driver"
	_ "github.com/adversarial-coverage/adsim/sim/policy"
	"github.com/adversarial-coverage/adsim/sim/store"
)

var (
	logLevel         string   // Log verbosity level
	configPath       string   // YAML settings file
	settingOverrides []string // Repeated key=value setting overrides
	storeKind        string   // Run history backend ("", memory, sqlite)
	storePath        string   // SQLite database path
	displayMode      string   // Grid display after ticks (none, text)
	runCount         int      // Runs to execute headless; 0 means one batch
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "adsim",
	Short: "Adversarial multi-agent coverage simulator",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd executes runs headless until the run limit is reached
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation headless and print statistics",
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(configPath, settingOverrides)
		if err != nil {
			logrus.Fatalf("Invalid settings: %v", err)
		}
		st, err := openStore()
		if err != nil {
			logrus.Fatalf("Opening store: %v", err)
		}
		defer closeStore(st)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		if err := runHeadless(ctx, settings, runCount, st, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s", time.Since(startTime))
	},
}

// configCmd prints the effective settings
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective settings as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(configPath, settingOverrides)
		if err != nil {
			logrus.Fatalf("Invalid settings: %v", err)
		}
		if err := dumpSettings(os.Stdout, settings); err != nil {
			logrus.Fatalf("Writing settings: %v", err)
		}
	},
}

// runHeadless drives the simulation with auto-restart until runs runs have
// finished, then prints the statistics report to out. A failed run stops it.
func runHeadless(ctx context.Context, settings *sim.Settings, runs int, st store.Store, out io.Writer) error {
	if err := settings.Set(sim.KeyAutoRestart, "true"); err != nil {
		return err
	}
	if runs <= 0 {
		batch, err := settings.Int(sim.KeyBatchSize)
		if err != nil {
			return err
		}
		runs = batch
	}
	s, err := sim.NewSimulation(settings, sim.WithHookOutput(out))
	if err != nil {
		return err
	}

	failed := make(chan error, 1)
	opts := []driver.Option{
		driver.WithRunLimit(runs),
		driver.WithOutput(out),
		driver.WithFailureObserver(func(err error) {
			select {
			case failed <- err:
			default:
			}
		}),
	}
	if st != nil {
		opts = append(opts, driver.WithStore(st))
	}
	if displayMode == "text" {
		opts = append(opts, driver.WithDisplay(driver.NewTextDisplay(out)))
	}
	d := driver.New(s, opts...)
	d.Start(ctx)
	defer func() { _ = d.Kill(context.Background()) }()

	logrus.Infof("Starting %d runs (policy %s, scenario %s)", runs, s.Config().Policy, s.Scenario().Name())
	if err := d.Run(ctx); err != nil {
		return err
	}
	select {
	case <-d.LimitReached():
	case err := <-failed:
		return err
	case <-d.Done():
		return ctx.Err()
	}
	return d.Exec(ctx, out, ":stats", nil)
}

// openStore returns nil when no --store was given.
func openStore() (store.Store, error) {
	if storeKind == "" {
		return nil, nil
	}
	st, err := store.New(storeKind, storePath)
	if err != nil {
		return nil, err
	}
	if err := st.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("initializing %s store: %w", storeKind, err)
	}
	return st, nil
}

func closeStore(st store.Store) {
	if st == nil {
		return
	}
	if err := store.CloseIfSupported(st); err != nil {
		logrus.Warnf("Closing store: %v", err)
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML settings file")
	rootCmd.PersistentFlags().StringArrayVar(&settingOverrides, "set", nil, "Setting override as key=value (repeatable)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Run history store (memory, sqlite); empty disables history")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "adsim.db", "SQLite database path for --store sqlite")

	runCmd.Flags().IntVar(&runCount, "runs", 0, "Number of runs to execute (0 = one statistics batch)")
	runCmd.Flags().StringVar(&displayMode, "display", "none", "Grid display after each tick (none, text)")
	consoleCmd.Flags().StringVar(&displayMode, "display", "none", "Grid display after each tick (none, text)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

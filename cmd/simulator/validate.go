package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/debris-avoidance-sim/core"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that a scenario loads and seeds a world",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return validateScenario(cfg.Scenario, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateScenario loads path and builds an engine from it so TLE seeding
// errors surface too.
func validateScenario(path string, w io.Writer) error {
	scenario, err := core.LoadScenarioFile(path)
	if err != nil {
		fmt.Fprintf(w, "✗ %s: %v\n", path, err)
		return err
	}
	engine, err := core.NewEngine(scenario)
	if err != nil {
		fmt.Fprintf(w, "✗ %s: %v\n", path, err)
		return err
	}
	snap := engine.Snapshot()
	fmt.Fprintf(w, "✓ %s: %d satellites, %d debris, %d scripted commands, tick %s, detector %s\n",
		path, len(snap.Satellites), len(snap.Debris), len(scenario.Commands), scenario.Tick, detectorName(scenario))
	return nil
}

func detectorName(cfg core.Config) string {
	if cfg.Detector == "" {
		return string(core.DetectorPairwise)
	}
	return string(cfg.Detector)
}

// Command vna drives the one-port vector network analyser.
//
// Usage:
//
//	vna [--config file.json] [-v] <command> [flags]
//
// Commands:
//
//	sweep   calibrate, then take one corrected sweep and print it
//	run     calibrate, then sweep continuously until interrupted
//	level   report ADC drive level on both receiver paths
//	plot    render a saved sweep as PNG
//	ports   list serial ports
//	config  write or show the configuration
//
// Without --config the simulated backend and reference settings are used.
//
// Examples:
//
//	vna sweep --dut-ohms 100 --png s11.png
//	vna --config bench.json run
//	vna config init bench.json
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/snorklerjoe/breadboard-vna/internal/config"
)

var (
	configPath string
	verbose    bool

	infoc = color.New(color.FgBlue, color.Bold)
	errc  = color.New(color.FgRed, color.Bold)
	goodc = color.New(color.FgGreen)
	warnc = color.New(color.FgYellow)
)

var rootCmd = &cobra.Command{
	Use:   "vna",
	Short: "One-port vector network analyser",
	Long: `vna measures the complex reflection coefficient S11 of a device under test
over a logarithmic frequency sweep, corrected by a short/open/load calibration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(sweepCmd, runCmd, levelCmd, plotCmd, portsCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errc.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig returns the configuration named by --config, or the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}

	f, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	c := f.ToConfig()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	return c, nil
}

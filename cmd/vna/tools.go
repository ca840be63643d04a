package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/snorklerjoe/breadboard-vna/hw/serialfe"
	"github.com/snorklerjoe/breadboard-vna/internal/config"
	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
	"github.com/snorklerjoe/breadboard-vna/measure/live"
)

var levelFreq float64

var levelCmd = &cobra.Command{
	Use:   "level",
	Short: "Report ADC drive level on both receiver paths",
	Long: `level tunes to one frequency and reports the peak-to-peak level of a burst
on the incident and reflected paths as a fraction of ADC full scale.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		inst, err := openInstrument(cfg, newLogger(), newConsole(cmd.InOrStdin(), out), simOpt)
		if err != nil {
			return err
		}
		defer inst.Close()

		actual, err := inst.tuner.Tune(levelFreq)
		if err != nil {
			return err
		}

		infoc.Fprintf(out, "%.1f kHz\n", actual)

		for _, p := range []gamma.Path{gamma.Incident, gamma.Reflected} {
			lvl, err := inst.measurer.LevelCheck(p)
			if err != nil {
				return err
			}

			c := goodc
			switch {
			case lvl > 0.95:
				c = errc
			case lvl < 0.05:
				c = warnc
			}

			c.Fprintf(out, "%-10s %5.1f %%\n", p, 100*lvl)
		}

		return nil
	},
}

func init() {
	addSimFlags(levelCmd)
	levelCmd.Flags().Float64Var(&levelFreq, "freq", 1000, "frequency in kHz")
}

var plotCmd = &cobra.Command{
	Use:   "plot <sweep.json> <out.png>",
	Short: "Render a saved sweep as PNG",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		var snap live.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		n := snap.Len()
		if len(snap.ReturnLossDB) != n || len(snap.PhaseDeg) != n || len(snap.Valid) != n {
			return fmt.Errorf("%s: inconsistent point counts", args[0])
		}

		if err := renderPNG(&snap, args[1]); err != nil {
			return err
		}

		infoc.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[1])

		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := serialfe.Ports()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			warnc.Fprintln(out, "No serial ports found")
			return nil
		}

		for _, p := range ports {
			fmt.Fprintln(out, p)
		}

		return nil
	},
}

var (
	configName  string
	configForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or show the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init <file.json>",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s exists (use --force)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		name := configName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		if err := config.Save(config.FromConfig(config.Default(), name), path); err != nil {
			return err
		}

		infoc.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "sweep\t%g to %g kHz, %d points\n", c.Sweep.Start, c.Sweep.End, c.Sweep.Points)
		fmt.Fprintf(tw, "averages\t%d (calibration %d)\n", c.Averages, c.CalAverages)
		fmt.Fprintf(tw, "IF\t%g kHz at %g kHz pair rate\n", c.IF, c.PairRate)
		fmt.Fprintf(tw, "extractor\t%s\n", c.Extractor)
		fmt.Fprintf(tw, "burst\t%d pairs, %d discarded, %d retries\n", c.Acquire.Samples, c.Acquire.Discard, c.Acquire.Retries)
		fmt.Fprintf(tw, "settle\t%v path, %v frequency\n", c.Settle, c.FreqSettle)
		fmt.Fprintf(tw, "load\t%g Ω in %g Ω\n", c.LoadOhms, c.Z0)
		fmt.Fprintf(tw, "backend\t%s %s\n", c.Hardware.Backend, c.Hardware.SerialPort)

		return tw.Flush()
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configName, "name", "", "configuration name (default: file name)")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
}

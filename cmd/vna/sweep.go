package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/snorklerjoe/breadboard-vna/internal/plot"
	"github.com/snorklerjoe/breadboard-vna/measure/live"
	"github.com/snorklerjoe/breadboard-vna/measure/s11"
	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

var (
	pngPath  string
	jsonPath string
	simOpt   simOptions
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Calibrate and take one corrected sweep",
	Long: `sweep measures the short, open and load standards, then sweeps the device
under test once and prints the corrected S11 per point.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runSweep(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	addSimFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&pngPath, "png", "", "also render the sweep to this PNG file")
	sweepCmd.Flags().StringVar(&jsonPath, "json", "", "also save the sweep to this JSON file")
}

func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&simOpt.dutOhms, "dut-ohms", 100, "simulated backend: resistance of the device under test")
	cmd.Flags().Uint64Var(&simOpt.seed, "seed", 1, "simulated backend: noise seed")
}

func runSweep(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger()

	inst, err := openInstrument(cfg, log, newConsole(in, out), simOpt)
	if err != nil {
		return err
	}
	defer inst.Close()

	c, err := inst.calibrate(ctx)
	if err != nil {
		return err
	}

	infoc.Fprintf(out, "Calibrated %d points (%s)\n", len(c.Frequencies), c.ID)

	res := inst.sweeper.NewResult()
	if err := inst.sweeper.SweepInto(res, cfg.Averages, inst.measurer.Measure); err != nil {
		return err
	}

	if err := c.Apply(res); err != nil {
		return err
	}

	var snap live.Snapshot
	snap.Sequence = 1
	snap.Fill(res, c.ID.String())

	printTable(out, res)

	if jsonPath != "" {
		if err := saveSnapshot(&snap, jsonPath); err != nil {
			return err
		}
	}

	if pngPath != "" {
		if err := renderPNG(&snap, pngPath); err != nil {
			return err
		}

		infoc.Fprintf(out, "Wrote %s\n", pngPath)
	}

	return nil
}

// printTable writes one row per point. Matches better than 20 dB print
// green; faulted points print red with their fault.
func printTable(out io.Writer, res *sweep.Result) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FREQ (kHz)\tS11 (dB)\tPHASE (°)\tVSWR\t|Z| (Ω)")

	for k := range res.Len() {
		f := res.Frequencies[k]
		if !res.Valid(k) {
			fmt.Fprintf(tw, "%.1f\t%s\n", f, errc.Sprint(res.Faults[k]))
			continue
		}

		g := res.Corrected[k]
		rl := s11.ReturnLossDB(g)

		db := fmt.Sprintf("%.2f", rl)
		switch {
		case rl <= -20:
			db = goodc.Sprint(db)
		case rl > -6:
			db = warnc.Sprint(db)
		}

		z := "open"
		if zz, err := s11.ToImpedance(g, s11.Z0); err == nil {
			z = fmt.Sprintf("%.1f", zz.Abs())
		}

		fmt.Fprintf(tw, "%.1f\t%s\t%.1f\t%.2f\t%s\n", f, db, s11.PhaseDeg(g), s11.VSWR(g), z)
	}

	tw.Flush()
}

func saveSnapshot(snap *live.Snapshot, path string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sweep: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sweep: %w", err)
	}

	return nil
}

func renderPNG(snap *live.Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	opts := plot.DefaultOptions()
	opts.Title = "S11 " + snap.CalibrationID

	if err := plot.Render(f, snap, opts); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

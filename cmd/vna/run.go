package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/snorklerjoe/breadboard-vna/measure/live"
)

var refresh time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep continuously",
	Long: `run calibrates, then sweeps without pause and prints a summary line each
time a new sweep completes. Type "c" and Enter to recalibrate, "q" to quit.
With --png the chart is re-rendered after every sweep.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		err := runLive(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) || errors.Is(err, errQuit) {
			return nil
		}

		return err
	},
}

var errQuit = errors.New("quit")

func init() {
	addSimFlags(runCmd)
	runCmd.Flags().DurationVar(&refresh, "refresh", 200*time.Millisecond, "display poll interval")
	runCmd.Flags().StringVar(&pngPath, "png", "", "re-render each sweep to this PNG file")
}

func runLive(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger()
	con := newConsole(in, out)

	inst, err := openInstrument(cfg, log, con, simOpt)
	if err != nil {
		return err
	}
	defer inst.Close()

	loop, err := live.New(inst.sweeper, inst.measurer.Measure, cfg.Live(log))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(ctx) })
	g.Go(func() error { return present(ctx, loop, inst, con, out) })

	return g.Wait()
}

// present owns the console: it requests calibrations and prints each newly
// published sweep.
func present(ctx context.Context, loop *live.Loop, inst *instrument, con *console, out io.Writer) error {
	recal := func() error {
		c, err := loop.BeginCalibration(ctx, inst.prompt, inst.attach)
		if err != nil {
			return err
		}

		infoc.Fprintf(out, "Calibrated (%s)\n", c.ID)

		return nil
	}

	if err := recal(); err != nil {
		return err
	}

	tick := time.NewTicker(refresh)
	defer tick.Stop()

	var snap live.Snapshot

	lines := con.lines

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// Input closed; keep sweeping until interrupted.
				lines = nil
				continue
			}

			switch line {
			case "c":
				if err := recal(); err != nil && !errors.Is(err, context.Canceled) {
					errc.Fprintf(out, "calibration failed: %v\n", err)
				}
			case "q":
				return errQuit
			}
		case <-tick.C:
			if !loop.Buffer().Read(&snap) {
				continue
			}

			printSummary(out, &snap)

			if pngPath != "" {
				if err := renderPNG(&snap, pngPath); err != nil {
					warnc.Fprintf(out, "plot: %v\n", err)
				}
			}
		}
	}
}

// printSummary prints the best match and the number of faulted points.
func printSummary(out io.Writer, s *live.Snapshot) {
	best, faults := -1, 0

	for k := range s.Len() {
		if !s.Valid[k] {
			faults++
			continue
		}

		if best < 0 || s.ReturnLossDB[k] < s.ReturnLossDB[best] {
			best = k
		}
	}

	if best < 0 {
		errc.Fprintf(out, "#%d all %d points faulted\n", s.Sequence, s.Len())
		return
	}

	line := fmt.Sprintf("#%d best %.2f dB at %.1f kHz (%.1f°)",
		s.Sequence, s.ReturnLossDB[best], s.FrequencyKHz[best], s.PhaseDeg[best])
	if faults > 0 {
		line += warnc.Sprintf(", %d faulted", faults)
	}

	fmt.Fprintln(out, line)
}

// Package plot renders a sweep as a PNG chart: |Γ| in dB on the left axis and
// the phase of Γ on the right, against a logarithmic frequency axis.
package plot

import (
	"errors"
	"fmt"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/snorklerjoe/breadboard-vna/measure/live"
)

// ErrTooFewPoints is returned when fewer than two points are valid.
var ErrTooFewPoints = errors.New("plot: need at least two valid points")

// Size of the rendered image in pixels.
const (
	DefaultWidth  = 1024
	DefaultHeight = 480
)

// Options controls rendering.
type Options struct {
	Title  string
	Width  int
	Height int
	Phase  bool // draw the phase trace
}

// DefaultOptions returns a titled 1024×480 chart with both traces.
func DefaultOptions() Options {
	return Options{Title: "S11", Width: DefaultWidth, Height: DefaultHeight, Phase: true}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotColor:    col,
		DotWidth:    3,
	}
}

// Render draws snap to w as PNG. Invalid points are left out of both traces.
func Render(w io.Writer, snap *live.Snapshot, opts Options) error {
	var xs, rl, ph []float64

	for k := range snap.Len() {
		if !snap.Valid[k] || snap.FrequencyKHz[k] <= 0 {
			continue
		}

		xs = append(xs, math.Log10(snap.FrequencyKHz[k]))
		rl = append(rl, snap.ReturnLossDB[k])
		ph = append(ph, snap.PhaseDeg[k])
	}

	if len(xs) < 2 {
		return ErrTooFewPoints
	}

	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}

	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "|S11| (dB)",
			XValues: xs,
			YValues: rl,
			Style:   lineStyle(chart.ColorBlue),
		},
	}

	if opts.Phase {
		series = append(series, chart.ContinuousSeries{
			Name:    "phase (°)",
			XValues: xs,
			YValues: ph,
			YAxis:   chart.YAxisSecondary,
			Style:   lineStyle(chart.ColorOrange),
		})
	}

	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "frequency",
			ValueFormatter: frequencyLabel,
			Ticks:          decadeTicks(xs[0], xs[len(xs)-1]),
		},
		YAxis: chart.YAxis{
			Name:  "dB",
			Range: &chart.ContinuousRange{Min: math.Min(-40, floor10(minOf(rl))), Max: 0},
		},
		Series: series,
	}

	if opts.Phase {
		ch.YAxisSecondary = chart.YAxis{
			Name:  "degrees",
			Range: &chart.ContinuousRange{Min: -180, Max: 180},
		}
	}

	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("plot: render: %w", err)
	}

	return nil
}

// frequencyLabel formats a log10(kHz) axis value.
func frequencyLabel(v any) string {
	x, ok := v.(float64)
	if !ok {
		return ""
	}

	khz := math.Round(math.Pow(10, x))
	if khz >= 1000 {
		return fmt.Sprintf("%g MHz", math.Round(khz/10)/100)
	}

	return fmt.Sprintf("%g kHz", khz)
}

// decadeTicks places ticks at 1, 2 and 5 times each power of ten within
// [lo, hi], both in log10(kHz).
func decadeTicks(lo, hi float64) []chart.Tick {
	var ticks []chart.Tick

	for d := math.Floor(lo); d <= math.Ceil(hi); d++ {
		for _, m := range []float64{1, 2, 5} {
			x := d + math.Log10(m)
			if x < lo-1e-9 || x > hi+1e-9 {
				continue
			}

			ticks = append(ticks, chart.Tick{Value: x, Label: frequencyLabel(x)})
		}
	}

	return ticks
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = math.Min(m, x)
	}

	return m
}

func floor10(v float64) float64 {
	return 10 * math.Floor(v/10)
}

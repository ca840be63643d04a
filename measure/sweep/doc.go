// Package sweep steps the stimulus across a logarithmic frequency grid,
// measures Γ at every point and manages per-frequency calibration.
//
// A sweep is described by a Setup. Target frequencies are spaced evenly in
// log10(f) from Start to End:
//
//	step     = (log10(End) - log10(Start)) / (Points - 1)
//	target_i = 10^(log10(Start) + i·step)
//
// The frequency actually reached at each point is what the source reports
// after quantization, so adjacent points near the low end may coincide.
// Duplicates are kept.
//
// # Usage
//
// Build a Sweeper around a Tuner, calibrate once, then sweep repeatedly:
//
//	sw, _ := sweep.New(sweep.Setup{Start: 100, End: 12000, Points: 20}, tuner, nil)
//	c, _ := sw.Calibrate(ctx, m.Measure, 8, cal.Ideal(), prompt)
//	res := sw.NewResult()
//	_ = sw.SweepInto(res, 4, m.Measure)
//	_ = c.Apply(res)
//
// Points whose measurement faulted carry the fault in Result.Faults and are
// excluded from calibration and correction; the rest of the sweep is still
// valid.
package sweep

package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for the phases of a sampling run
type TimingStats struct {
	TotalTime           time.Duration
	AugmentationTime    time.Duration
	NoiseTime           time.Duration
	ScoreModelTime      time.Duration
	AccumulatorTime     time.Duration
	GuidanceTime        time.Duration
	AlignmentTime       time.Duration
	UpdateTime          time.Duration
	LossComputationTime time.Duration
}

// Add accumulates other into s.
func (s *TimingStats) Add(other *TimingStats) {
	s.TotalTime += other.TotalTime
	s.AugmentationTime += other.AugmentationTime
	s.NoiseTime += other.NoiseTime
	s.ScoreModelTime += other.ScoreModelTime
	s.AccumulatorTime += other.AccumulatorTime
	s.GuidanceTime += other.GuidanceTime
	s.AlignmentTime += other.AlignmentTime
	s.UpdateTime += other.UpdateTime
	s.LossComputationTime += other.LossComputationTime
}

func percent(part, whole time.Duration) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats, steps int) {
	if !Verbose {
		return
	}
	if steps < 1 {
		steps = 1
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total sampling time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Average time per step: %v\n", stats.TotalTime/time.Duration(steps))
	fmt.Fprintf(Output, "Steps completed: %d\n", steps)
	fmt.Fprintln(Output, "\nBreakdown by operation:")
	fmt.Fprintf(Output, "  Augmentation: %v (%.1f%%)\n", stats.AugmentationTime, percent(stats.AugmentationTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Noise injection: %v (%.1f%%)\n", stats.NoiseTime, percent(stats.NoiseTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Score model: %v (%.1f%%)\n", stats.ScoreModelTime, percent(stats.ScoreModelTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Token accumulator: %v (%.1f%%)\n", stats.AccumulatorTime, percent(stats.AccumulatorTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Guidance: %v (%.1f%%)\n", stats.GuidanceTime, percent(stats.GuidanceTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Alignment: %v (%.1f%%)\n", stats.AlignmentTime, percent(stats.AlignmentTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Heun update: %v (%.1f%%)\n", stats.UpdateTime, percent(stats.UpdateTime, stats.TotalTime))
	if stats.LossComputationTime > 0 {
		fmt.Fprintf(Output, "  Loss computation: %v (%.1f%%)\n", stats.LossComputationTime, percent(stats.LossComputationTime, stats.TotalTime))
	}
	fmt.Fprintln(Output, "\nPerformance metrics:")
	fmt.Fprintf(Output, "  Average score model time: %v\n", stats.ScoreModelTime/time.Duration(steps))
	fmt.Fprintf(Output, "  Average alignment time: %v\n", stats.AlignmentTime/time.Duration(steps))
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}

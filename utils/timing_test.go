package utils

import (
	"bytes"
	"math"
	"testing"
	"time"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	got := DurationUS(d)
	if math.Abs(got-1234.567) > 0.001 {
		t.Fatalf("want 1234.567µs, got %.3f", got)
	}
}

func TestTimingStatsAdd(t *testing.T) {
	a := &TimingStats{TotalTime: time.Second, ScoreModelTime: 300 * time.Millisecond}
	a.Add(&TimingStats{TotalTime: time.Second, ScoreModelTime: 200 * time.Millisecond, GuidanceTime: time.Millisecond})
	if a.TotalTime != 2*time.Second || a.ScoreModelTime != 500*time.Millisecond || a.GuidanceTime != time.Millisecond {
		t.Fatalf("unexpected sum %+v", a)
	}
}

func TestPrintTimingStatsRespectsVerbose(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevVerbose := Output, Verbose
	defer func() { Output, Verbose = prevOut, prevVerbose }()
	Output = &buf

	Verbose = false
	PrintTimingStats(&TimingStats{TotalTime: time.Second}, 5)
	if buf.Len() != 0 {
		t.Fatalf("expected no output when not verbose, got %q", buf.String())
	}

	Verbose = true
	PrintTimingStats(&TimingStats{TotalTime: time.Second, ScoreModelTime: 500 * time.Millisecond}, 5)
	if !bytes.Contains(buf.Bytes(), []byte("Score model: 500ms (50.0%)")) {
		t.Fatalf("missing score model line in %q", buf.String())
	}
	// a zero total must not print NaN
	buf.Reset()
	PrintTimingStats(&TimingStats{}, 0)
	if bytes.Contains(buf.Bytes(), []byte("NaN")) {
		t.Fatalf("unexpected NaN in %q", buf.String())
	}
}

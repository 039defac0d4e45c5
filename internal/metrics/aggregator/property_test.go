package aggregator

import (
	"slices"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestPercentile_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		samples := rapid.SliceOfN(rapid.Int64Range(0, int64(time.Minute)), 1, 300).Draw(t, "samples")
		p := rapid.Float64Range(0.01, 1.0).Draw(t, "p")

		a := New(Config{LatencyPoolSize: len(samples)})
		sorted := make([]time.Duration, len(samples))
		for i, s := range samples {
			a.Record("Q", time.Duration(s), true)
			sorted[i] = time.Duration(s)
		}
		slices.Sort(sorted)

		got := a.Percentile(p)
		if got < sorted[0] || got > sorted[len(sorted)-1] {
			t.Fatalf("percentile %v outside [%v, %v]", got, sorted[0], sorted[len(sorted)-1])
		}
		if !slices.Contains(sorted, got) {
			t.Fatalf("percentile %v is not a recorded sample", got)
		}

		// At least a p fraction of the samples are at or below the result.
		atOrBelow := 0
		for _, s := range sorted {
			if s <= got {
				atOrBelow++
			}
		}
		if float64(atOrBelow) < p*float64(len(sorted))-1e-9 {
			t.Fatalf("only %d of %d samples at or below p%.2f=%v", atOrBelow, len(sorted), p, got)
		}

		// Percentiles are monotonic in p.
		q := rapid.Float64Range(p, 1.0).Draw(t, "q")
		if a.Percentile(q) < got {
			t.Fatalf("p%.3f < p%.3f", q, p)
		}
	})
}

func TestRing_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 50).Draw(t, "capacity")
		pushes := rapid.SliceOf(rapid.Int()).Draw(t, "pushes")

		r := newRing[int](capacity)
		for _, v := range pushes {
			r.push(v)
		}

		items := r.items()
		if len(items) > capacity {
			t.Fatalf("ring holds %d items, capacity %d", len(items), capacity)
		}

		// The ring keeps exactly the most recent pushes in order.
		start := len(pushes) - capacity
		if start < 0 {
			start = 0
		}
		want := pushes[start:]
		if !slices.Equal(items, want) {
			t.Fatalf("got %v, want %v", items, want)
		}
	})
}

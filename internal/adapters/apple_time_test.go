package adapters

import (
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"
)

func TestAppleTime(t *testing.T) {
	cases := []struct {
		name  string
		raw   float64
		want  time.Time
		known bool
	}{
		{"seconds", 86400, time.Date(2001, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"fractional seconds", 1.5, time.Date(2001, 1, 1, 0, 0, 1, 500_000_000, time.UTC), true},
		{"nanoseconds", 700_000_000 * 1e9, appleEpoch.Add(700_000_000 * time.Second), true},
		{"zero", 0, time.Unix(0, 0).UTC(), false},
		{"nan", math.NaN(), time.Unix(0, 0).UTC(), false},
		{"inf", math.Inf(1), time.Unix(0, 0).UTC(), false},
		{"past duration range", 1e10, appleEpoch.AddDate(0, 0, 115740).Add(64000 * time.Second), true},
		{"out of range", -1e300, time.Unix(0, 0).UTC(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, known := AppleTime(tc.raw)
			if known != tc.known {
				t.Fatalf("known=%v want %v", known, tc.known)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("AppleTime(%v)=%v want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestAppleTime_SecondAndNanosecondScalesAgree(t *testing.T) {
	secs, _ := AppleTime(700_000_000)
	nanos, _ := AppleTime(700_000_000 * 1e9)
	if !secs.Equal(nanos) {
		t.Fatalf("scales disagree: %v vs %v", secs, nanos)
	}
}

func TestAppleTime_Monotonic(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	cases := []struct {
		lo, span float64
	}{
		{1000, 800_000_000},
		{1000 * 1e9, 800_000_000 * 1e9},
		// second-scale values too large for a time.Duration
		{9e9, 9.9e11 - 9e9},
	}
	for _, tc := range cases {
		raws := make([]float64, 200)
		for i := range raws {
			raws[i] = tc.lo + r.Float64()*tc.span
		}
		sort.Float64s(raws)
		prev, _ := AppleTime(raws[0])
		for _, raw := range raws[1:] {
			cur, known := AppleTime(raw)
			if !known {
				t.Fatalf("AppleTime(%v) reported unknown", raw)
			}
			if cur.Before(prev) {
				t.Fatalf("not monotonic from %v: %v before %v", tc.lo, cur, prev)
			}
			prev = cur
		}
	}
}

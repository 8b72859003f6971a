// Package buckets flags 15-minute buckets whose statistics were carried forward
// rather than computed from fresh ticks.
package buckets

import (
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
)

// Width is the fixed bucket width.
const Width = models.BucketWidth

// Start floors t to the 15-minute UTC grid.
func Start(t time.Time) time.Time {
	return t.UTC().Truncate(Width)
}

// IsCarryForward reports whether a bucket shows median odds without having
// seen a single tick in its window. This is a provenance flag; the values may
// still be a legitimate baseline from an earlier bucket.
func IsCarryForward(b models.BucketSummary) bool {
	return b.TickCount == 0 && b.MedianBackOdds.AnySet()
}

// Diagnostic summarises the provenance of one bucket.
type Diagnostic struct {
	BucketStart   time.Time      `json:"bucket_start"`
	CarryForward  bool           `json:"carry_forward"`
	ReportedTicks int            `json:"reported_ticks"`
	RawTicks      int            `json:"raw_ticks"`
	CountMismatch bool           `json:"count_mismatch"`
	Coverage      models.Triplet `json:"coverage"`
}

// Diagnose checks a bucket against the raw tick count observed for the same
// window. A negative rawTickCount means raw ticks were not fetched and no
// mismatch is reported.
func Diagnose(b models.BucketSummary, rawTickCount int) Diagnostic {
	d := Diagnostic{
		BucketStart:   b.BucketStart,
		CarryForward:  IsCarryForward(b),
		ReportedTicks: b.TickCount,
		RawTicks:      rawTickCount,
		Coverage:      coverage(b.SecondsCovered),
	}
	if rawTickCount >= 0 {
		d.CountMismatch = rawTickCount != b.TickCount
	}
	return d
}

// Annotate diagnoses every bucket without raw tick counts.
func Annotate(bs []models.BucketSummary) []Diagnostic {
	out := make([]Diagnostic, len(bs))
	for i, b := range bs {
		out[i] = Diagnose(b, -1)
	}
	return out
}

// CountCarryForward returns how many buckets were carried forward.
func CountCarryForward(bs []models.BucketSummary) int {
	n := 0
	for _, b := range bs {
		if IsCarryForward(b) {
			n++
		}
	}
	return n
}

func coverage(seconds models.Triplet) models.Triplet {
	frac := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		f := *v / Width.Seconds()
		switch {
		case f < 0:
			f = 0
		case f > 1:
			f = 1
		}
		return &f
	}
	return models.Triplet{Home: frac(seconds.Home), Away: frac(seconds.Away), Draw: frac(seconds.Draw)}
}

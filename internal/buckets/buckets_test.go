package buckets

import (
	"testing"
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
)

func bucket(ticks int, home, away, draw *float64) models.BucketSummary {
	start := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	return models.BucketSummary{
		BucketStart:    start,
		BucketEnd:      start.Add(Width),
		TickCount:      ticks,
		MedianBackOdds: models.Triplet{Home: home, Away: away, Draw: draw},
	}
}

func TestIsCarryForward(t *testing.T) {
	tests := []struct {
		name string
		b    models.BucketSummary
		want bool
	}{
		{"no ticks with a median", bucket(0, models.Float(2.1), nil, nil), true},
		{"no ticks, only draw median", bucket(0, nil, nil, models.Float(3.3)), true},
		{"fresh ticks", bucket(5, models.Float(2.1), nil, nil), false},
		{"no ticks and no medians", bucket(0, nil, nil, nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCarryForward(tt.b); got != tt.want {
				t.Errorf("IsCarryForward() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiagnose(t *testing.T) {
	b := bucket(3, models.Float(2.1), models.Float(3.6), models.Float(3.2))
	b.SecondsCovered = models.Triplet{Home: models.Float(450), Away: models.Float(1200)}

	d := Diagnose(b, 4)
	if d.CarryForward {
		t.Error("bucket with ticks flagged as carry-forward")
	}
	if !d.CountMismatch {
		t.Error("expected count mismatch for 3 reported vs 4 raw")
	}
	if d.Coverage.Home == nil || *d.Coverage.Home != 0.5 {
		t.Errorf("home coverage = %v, want 0.5", d.Coverage.Home)
	}
	if d.Coverage.Away == nil || *d.Coverage.Away != 1 {
		t.Errorf("away coverage = %v, want clamped to 1", d.Coverage.Away)
	}
	if d.Coverage.Draw != nil {
		t.Errorf("draw coverage = %v, want nil", *d.Coverage.Draw)
	}

	if Diagnose(b, -1).CountMismatch {
		t.Error("unknown raw count must not report a mismatch")
	}
}

func TestAnnotateAndCount(t *testing.T) {
	bs := []models.BucketSummary{
		bucket(0, models.Float(2), nil, nil),
		bucket(2, models.Float(2), nil, nil),
		bucket(0, nil, nil, nil),
	}

	ds := Annotate(bs)
	if len(ds) != 3 || !ds[0].CarryForward || ds[1].CarryForward || ds[2].CarryForward {
		t.Errorf("Annotate() = %+v", ds)
	}
	if n := CountCarryForward(bs); n != 1 {
		t.Errorf("CountCarryForward() = %d, want 1", n)
	}
}

func TestStart(t *testing.T) {
	in := time.Date(2026, 3, 1, 12, 29, 59, 0, time.UTC)
	want := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	if got := Start(in); !got.Equal(want) {
		t.Errorf("Start(%v) = %v, want %v", in, got, want)
	}
}

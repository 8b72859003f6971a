package models

import (
	"testing"
	"time"
)

func TestEventRankRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   EventRankRecord
		wantErr bool
	}{
		{
			name: "valid event",
			event: EventRankRecord{
				MarketID:    "1.234",
				EventName:   "Arsenal v Chelsea",
				TotalVolume: Float(1500),
			},
			wantErr: false,
		},
		{
			name:    "missing volume is fine",
			event:   EventRankRecord{MarketID: "1.234"},
			wantErr: false,
		},
		{
			name:    "empty market ID",
			event:   EventRankRecord{EventName: "Arsenal v Chelsea"},
			wantErr: true,
		},
		{
			name:    "negative volume",
			event:   EventRankRecord{MarketID: "1.234", TotalVolume: Float(-1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("EventRankRecord.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBucketSummaryValidate(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		bucket  BucketSummary
		wantErr bool
	}{
		{
			name:    "valid bucket",
			bucket:  BucketSummary{BucketStart: start, BucketEnd: start.Add(BucketWidth), TickCount: 4},
			wantErr: false,
		},
		{
			name:    "zero start",
			bucket:  BucketSummary{BucketEnd: start},
			wantErr: true,
		},
		{
			name:    "wrong width",
			bucket:  BucketSummary{BucketStart: start, BucketEnd: start.Add(10 * time.Minute)},
			wantErr: true,
		},
		{
			name:    "negative ticks",
			bucket:  BucketSummary{BucketStart: start, BucketEnd: start.Add(BucketWidth), TickCount: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bucket.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("BucketSummary.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSortField(t *testing.T) {
	tests := []struct {
		in     string
		want   SortField
		wantOK bool
	}{
		{"bookRiskHome", SortBookRiskHome, true},
		{"book_risk_away", SortBookRiskAway, true},
		{" BOOK_RISK_DRAW ", SortBookRiskDraw, true},
		{"volume", SortVolume, true},
		{"risk", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSortField(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseSortField(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDefaultSortState(t *testing.T) {
	s := DefaultSortState()
	if s.Field != SortBookRiskHome || !s.Descending || !s.Signed {
		t.Errorf("DefaultSortState() = %+v", s)
	}
}

func TestQuoteSpread(t *testing.T) {
	q := MarketOutcomeQuote{BackOdds: Float(2.0), LayOdds: Float(2.06)}
	got := q.Spread()
	if got == nil || *got < 0.0599 || *got > 0.0601 {
		t.Errorf("Spread() = %v, want 0.06", got)
	}

	q.LayOdds = Float(1.0)
	if q.Spread() != nil {
		t.Error("Spread() with lay odds 1.0 should be nil")
	}
}

func TestEventMetaOutcomeForSelection(t *testing.T) {
	home, away := int64(47999), int64(48044)
	meta := EventMeta{HomeSelectionID: &home, AwaySelectionID: &away}

	if o, ok := meta.OutcomeForSelection(48044); !ok || o != Away {
		t.Errorf("OutcomeForSelection(48044) = (%q, %v), want (away, true)", o, ok)
	}
	if _, ok := meta.OutcomeForSelection(58805); ok {
		t.Error("OutcomeForSelection for unknown selection should be false")
	}
}

func TestTickRowOutcomeAndMergedAt(t *testing.T) {
	r := TickRow{Away: OutcomeTick{BackOdds: Float(3.1)}}
	var m MergedTick
	for _, o := range Outcomes {
		*m.At(o) = r.Outcome(o)
	}
	if m.Away.BackOdds == nil || *m.Away.BackOdds != 3.1 {
		t.Errorf("Away back odds = %v, want 3.1", m.Away.BackOdds)
	}
	if m.Home.BackOdds != nil || m.Draw.BackOdds != nil {
		t.Errorf("unexpected home/draw values: %+v", m)
	}
}

func TestSortFieldList(t *testing.T) {
	want := "bookRiskHome, bookRiskAway, bookRiskDraw, volume"
	if got := SortFieldList(); got != want {
		t.Errorf("SortFieldList() = %q, want %q", got, want)
	}
	for _, f := range SortFields {
		if parsed, ok := ParseSortField(string(f)); !ok || parsed != f {
			t.Errorf("ParseSortField(%q) = (%q, %v)", f, parsed, ok)
		}
	}
}

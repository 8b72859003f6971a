package ticks

import (
	"testing"
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
)

var t0 = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func valueOf(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func TestMergeByTimestamp_OverlayWithinTimestamp(t *testing.T) {
	rows := []models.TickRow{
		{PublishTime: at(1), Home: models.OutcomeTick{BackOdds: models.Float(2)}},
		{PublishTime: at(1), Away: models.OutcomeTick{BackOdds: models.Float(3)}},
		{PublishTime: at(2), Home: models.OutcomeTick{BackOdds: models.Float(5)}},
	}

	got := MergeByTimestamp(rows)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}

	if !got[0].PublishTime.Equal(at(1)) || valueOf(got[0].Home.BackOdds) != 2.0 || valueOf(got[0].Away.BackOdds) != 3.0 {
		t.Errorf("row 0 = %+v, want home 2 away 3", got[0])
	}
	if !got[1].PublishTime.Equal(at(2)) || valueOf(got[1].Home.BackOdds) != 5.0 {
		t.Errorf("row 1 home = %v, want 5", valueOf(got[1].Home.BackOdds))
	}
	if got[1].Away.BackOdds != nil {
		t.Errorf("row 1 away = %v, want nil (no forward fill across timestamps)", valueOf(got[1].Away.BackOdds))
	}
}

func TestMergeByTimestamp_LaterValueWins(t *testing.T) {
	rows := []models.TickRow{
		{PublishTime: at(1), Draw: models.OutcomeTick{BackOdds: models.Float(3.4), BackSize: models.Float(120)}},
		{PublishTime: at(1), Draw: models.OutcomeTick{BackOdds: models.Float(3.45)}},
	}

	got := MergeByTimestamp(rows)
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if valueOf(got[0].Draw.BackOdds) != 3.45 {
		t.Errorf("draw odds = %v, want 3.45", valueOf(got[0].Draw.BackOdds))
	}
	if valueOf(got[0].Draw.BackSize) != 120.0 {
		t.Errorf("draw size = %v, want 120 (nil must not clear it)", valueOf(got[0].Draw.BackSize))
	}
}

func TestMergeByTimestamp_EdgeCases(t *testing.T) {
	if got := MergeByTimestamp(nil); got == nil || len(got) != 0 {
		t.Errorf("MergeByTimestamp(nil) = %v, want empty slice", got)
	}

	single := []models.TickRow{{PublishTime: at(7)}}
	got := MergeByTimestamp(single)
	if len(got) != 1 || got[0].Home.BackOdds != nil {
		t.Errorf("single empty row = %+v", got)
	}
}

func TestMergeByTimestamp_DoesNotMutateInput(t *testing.T) {
	rows := []models.TickRow{
		{PublishTime: at(1), Home: models.OutcomeTick{BackOdds: models.Float(2)}},
		{PublishTime: at(1), Home: models.OutcomeTick{BackOdds: models.Float(2.2)}},
	}

	got := MergeByTimestamp(rows)
	*got[0].Home.BackOdds = 99

	if *rows[0].Home.BackOdds != 2 || *rows[1].Home.BackOdds != 2.2 {
		t.Errorf("input was modified: %v, %v", *rows[0].Home.BackOdds, *rows[1].Home.BackOdds)
	}
}

func TestMergeByTimestamp_OrderAndCount(t *testing.T) {
	var rows []models.TickRow
	for i := 0; i < 10; i++ {
		rows = append(rows, models.TickRow{PublishTime: at(i / 3), Away: models.OutcomeTick{BackSize: models.Float(float64(i))}})
	}

	got := MergeByTimestamp(rows)
	if len(got) != 4 {
		t.Fatalf("got %d rows, want 4 distinct timestamps", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].PublishTime.Before(got[i].PublishTime) {
			t.Errorf("rows out of order at %d", i)
		}
	}
	if valueOf(got[0].Away.BackSize) != 2.0 {
		t.Errorf("first row size = %v, want 2", valueOf(got[0].Away.BackSize))
	}

	again := MergeByTimestamp(rows)
	if len(again) != len(got) {
		t.Error("repeated merge produced a different row count")
	}
}

func TestWindowAndCount(t *testing.T) {
	rows := []models.TickRow{
		{PublishTime: at(-1)},
		{PublishTime: at(0)},
		{PublishTime: at(899)},
		{PublishTime: at(900)},
	}
	from, to := at(0), at(900)

	if n := Count(rows, from, to); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
	if w := Window(rows, from, to); len(w) != 2 || !w[0].PublishTime.Equal(from) {
		t.Errorf("Window = %+v", w)
	}
}

package server

import (
	"strconv"
	"time"

	"github.com/rewired-gh/bookrisk/internal/buckets"
	"github.com/rewired-gh/bookrisk/internal/format"
	"github.com/rewired-gh/bookrisk/internal/impedance"
	"github.com/rewired-gh/bookrisk/internal/models"
)

type rankedRow struct {
	Rank            int                   `json:"rank"`
	MarketID        string                `json:"market_id"`
	EventName       string                `json:"event_name"`
	CompetitionName string                `json:"competition_name"`
	EventOpenDate   string                `json:"event_open_date"`
	BookRisk        models.Triplet        `json:"book_risk"`
	BookRiskText    [3]string             `json:"book_risk_text"`
	TotalVolume     *float64              `json:"total_volume"`
	VolumeText      string                `json:"volume_text"`
	BestBack        [3]format.OddsDisplay `json:"best_back"`
	BestLay         [3]format.OddsDisplay `json:"best_lay"`
	LastUpdate      string                `json:"last_update"`
	IsStale         bool                  `json:"is_stale"`
}

func newRankedRow(rank int, e models.EventRankRecord, extremeOdds float64) rankedRow {
	return rankedRow{
		Rank:            rank,
		MarketID:        e.MarketID,
		EventName:       e.DisplayName(),
		CompetitionName: e.CompetitionName,
		EventOpenDate:   e.EventOpenDate,
		BookRisk:        e.BookRisk,
		BookRiskText:    format.Triplet(e.BookRisk),
		TotalVolume:     e.TotalVolume,
		VolumeText:      format.Volume(e.TotalVolume),
		BestBack:        format.OddsTriplet(e.BestBack, extremeOdds),
		BestLay:         format.OddsTriplet(e.BestLay, extremeOdds),
		LastUpdate:      format.Time(e.LastStreamUpdateAt),
		IsStale:         e.IsStale,
	}
}

type bucketRow struct {
	BucketStart    time.Time             `json:"bucket_start"`
	BucketEnd      time.Time             `json:"bucket_end"`
	TickCount      int                   `json:"tick_count"`
	Diagnostic     buckets.Diagnostic    `json:"diagnostic"`
	MedianOdds     [3]format.OddsDisplay `json:"median_odds"`
	MedianSizeText [3]string             `json:"median_size_text"`
	BookRisk       models.Triplet        `json:"book_risk"`
	BookRiskText   [3]string             `json:"book_risk_text"`
	Impedance      impedance.Resolved    `json:"impedance"`
	ImpedanceText  [3]string             `json:"impedance_text"`
}

func newBucketRow(b models.BucketSummary, d buckets.Diagnostic, imp impedance.Resolved, extremeOdds float64) bucketRow {
	return bucketRow{
		BucketStart:    b.BucketStart,
		BucketEnd:      b.BucketEnd,
		TickCount:      b.TickCount,
		Diagnostic:     d,
		MedianOdds:     format.OddsTriplet(b.MedianBackOdds, extremeOdds),
		MedianSizeText: format.Triplet(b.MedianBackSize),
		BookRisk:       b.BookRisk,
		BookRiskText:   format.Triplet(b.BookRisk),
		Impedance:      imp,
		ImpedanceText:  format.Triplet(imp.Value),
	}
}

type timeseriesRow struct {
	SnapshotAt    time.Time             `json:"snapshot_at"`
	BestBack      [3]format.OddsDisplay `json:"best_back"`
	BookRisk      models.Triplet        `json:"book_risk"`
	BookRiskText  [3]string             `json:"book_risk_text"`
	TotalVolume   *float64              `json:"total_volume"`
	VolumeText    string                `json:"volume_text"`
	Impedance     impedance.Resolved    `json:"impedance"`
	ImpedanceText [3]string             `json:"impedance_text"`
}

// newTimeseriesRow resolves impedance for a sample the same way as for a
// bucket: backend values first, then the L1 stand-in.
func newTimeseriesRow(p models.TimeseriesPoint, extremeOdds float64) timeseriesRow {
	imp := impedance.Resolve(models.BucketSummary{
		BucketStart:       p.SnapshotAt,
		MedianBackOdds:    p.MedianBackOdds,
		MedianBackSize:    p.MedianBackSize,
		BestBack:          p.BestBack,
		BestLay:           p.BestLay,
		BestBackSizeL1:    p.BestBackSizeL1,
		ImpedanceIndex15m: p.ImpedanceIndex15m,
		ImpedanceAbsDiff:  p.ImpedanceAbsDiff,
	})
	return timeseriesRow{
		SnapshotAt:    p.SnapshotAt,
		BestBack:      format.OddsTriplet(p.BestBack, extremeOdds),
		BookRisk:      p.BookRisk,
		BookRiskText:  format.Triplet(p.BookRisk),
		TotalVolume:   p.TotalVolume,
		VolumeText:    format.Volume(p.TotalVolume),
		Impedance:     imp,
		ImpedanceText: format.Triplet(imp.Value),
	}
}

type replayRow struct {
	SelectionID string                    `json:"selection_id"`
	Outcome     models.Outcome            `json:"outcome,omitempty"`
	Best        models.MarketOutcomeQuote `json:"best"`
	BackText    format.OddsDisplay        `json:"back_text"`
	LayText     format.OddsDisplay        `json:"lay_text"`
	Spread      *float64                  `json:"spread"`
	SpreadText  string                    `json:"spread_text"`
}

func newReplayRow(sel models.ReplaySelection, meta *models.EventMeta, extremeOdds float64) replayRow {
	row := replayRow{
		SelectionID: sel.SelectionID,
		Best:        sel.Best,
		BackText:    format.Odds(sel.Best.BackOdds, extremeOdds),
		LayText:     format.Odds(sel.Best.LayOdds, extremeOdds),
		Spread:      sel.Best.Spread(),
	}
	row.SpreadText = format.Number(row.Spread)
	if id, err := strconv.ParseInt(sel.SelectionID, 10, 64); err == nil {
		if o, ok := meta.OutcomeForSelection(id); ok {
			row.Outcome = o
		}
	}
	return row
}

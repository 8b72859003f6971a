package models

import (
	"errors"
	"time"
)

// BucketWidth is the fixed aggregation window used by the backend.
const BucketWidth = 15 * time.Minute

// BucketSummary is one backend-computed 15-minute bucket.
// TickCount == 0 with median odds present means the values were carried
// forward from an earlier bucket, not derived from fresh ticks.
type BucketSummary struct {
	BucketStart time.Time `json:"bucket_start"`
	BucketEnd   time.Time `json:"bucket_end"`
	TickCount   int       `json:"tick_count"`

	MedianBackOdds Triplet `json:"median_back_odds"`
	MedianBackSize Triplet `json:"median_back_size"`

	// Legacy best-level fields, used by the Size-Impedance-L1 fallback.
	BestBack       Triplet `json:"best_back"`
	BestLay        Triplet `json:"best_lay"`
	BestBackSizeL1 Triplet `json:"best_back_size_l1"`

	SecondsCovered Triplet `json:"seconds_covered"`
	UpdateCount    Triplet `json:"update_count"`

	BookRisk          Triplet  `json:"book_risk"`
	ImpedanceIndex15m *float64 `json:"impedance_index_15m"`
	ImpedanceAbsDiff  Triplet  `json:"impedance_abs_diff"`
	TotalVolume       *float64 `json:"total_volume"`
}

// Validate checks bucket field constraints.
func (b *BucketSummary) Validate() error {
	if b.BucketStart.IsZero() {
		return errors.New("bucket start must be set")
	}
	if !b.BucketEnd.Equal(b.BucketStart.Add(BucketWidth)) {
		return errors.New("bucket end must be bucket start + 15m")
	}
	if b.TickCount < 0 {
		return errors.New("tick count must not be negative")
	}
	return nil
}

// TimeseriesPoint is one sample of an event's windowed timeseries.
type TimeseriesPoint struct {
	SnapshotAt time.Time `json:"snapshot_at"`

	BestBack       Triplet `json:"best_back"`
	BestLay        Triplet `json:"best_lay"`
	BestBackSizeL1 Triplet `json:"best_back_size_l1"`
	MedianBackOdds Triplet `json:"median_back_odds"`
	MedianBackSize Triplet `json:"median_back_size"`

	BookRisk          Triplet  `json:"book_risk"`
	ImpedanceIndex15m *float64 `json:"impedance_index_15m"`
	ImpedanceAbsDiff  Triplet  `json:"impedance_abs_diff"`
	TotalVolume       *float64 `json:"total_volume"`
}

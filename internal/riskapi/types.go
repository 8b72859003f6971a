package riskapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
)

// eventItem is the wire shape of an event row in focus, league, and
// by-date listings.
type eventItem struct {
	MarketID           string   `json:"market_id"`
	EventName          *string  `json:"event_name"`
	EventOpenDate      *string  `json:"event_open_date"`
	CompetitionName    *string  `json:"competition_name"`
	LatestSnapshotAt   *string  `json:"latest_snapshot_at"`
	HomeBestBack       *float64 `json:"home_best_back"`
	AwayBestBack       *float64 `json:"away_best_back"`
	DrawBestBack       *float64 `json:"draw_best_back"`
	HomeBestLay        *float64 `json:"home_best_lay"`
	AwayBestLay        *float64 `json:"away_best_lay"`
	DrawBestLay        *float64 `json:"draw_best_lay"`
	TotalVolume        *float64 `json:"total_volume"`
	HomeBookRiskL3     *float64 `json:"home_book_risk_l3"`
	AwayBookRiskL3     *float64 `json:"away_book_risk_l3"`
	DrawBookRiskL3     *float64 `json:"draw_book_risk_l3"`
	LastStreamUpdateAt *string  `json:"last_stream_update_at"`
	IsStale            *bool    `json:"is_stale"`
}

func (e eventItem) toModel(now time.Time, staleAfter time.Duration) models.EventRankRecord {
	rec := models.EventRankRecord{
		MarketID:           e.MarketID,
		EventName:          str(e.EventName),
		CompetitionName:    str(e.CompetitionName),
		EventOpenDate:      str(e.EventOpenDate),
		BookRisk:           models.Triplet{Home: e.HomeBookRiskL3, Away: e.AwayBookRiskL3, Draw: e.DrawBookRiskL3},
		TotalVolume:        e.TotalVolume,
		BestBack:           models.Triplet{Home: e.HomeBestBack, Away: e.AwayBestBack, Draw: e.DrawBestBack},
		BestLay:            models.Triplet{Home: e.HomeBestLay, Away: e.AwayBestLay, Draw: e.DrawBestLay},
		LatestSnapshotAt:   parseTime(e.LatestSnapshotAt),
		LastStreamUpdateAt: parseTime(e.LastStreamUpdateAt),
	}
	switch {
	case e.IsStale != nil:
		rec.IsStale = *e.IsStale
	case rec.LastStreamUpdateAt != nil && staleAfter > 0:
		rec.IsStale = now.Sub(*rec.LastStreamUpdateAt) > staleAfter
	}
	return rec
}

// metricFields are shared by timeseries points and buckets.
type metricFields struct {
	HomeBestBack *float64 `json:"home_best_back"`
	AwayBestBack *float64 `json:"away_best_back"`
	DrawBestBack *float64 `json:"draw_best_back"`
	HomeBestLay  *float64 `json:"home_best_lay"`
	AwayBestLay  *float64 `json:"away_best_lay"`
	DrawBestLay  *float64 `json:"draw_best_lay"`
	TotalVolume  *float64 `json:"total_volume"`

	HomeBackOddsMedian *float64 `json:"home_back_odds_median"`
	HomeBackSizeMedian *float64 `json:"home_back_size_median"`
	AwayBackOddsMedian *float64 `json:"away_back_odds_median"`
	AwayBackSizeMedian *float64 `json:"away_back_size_median"`
	DrawBackOddsMedian *float64 `json:"draw_back_odds_median"`
	DrawBackSizeMedian *float64 `json:"draw_back_size_median"`

	HomeBestBackSizeL1 *float64 `json:"home_best_back_size_l1"`
	AwayBestBackSizeL1 *float64 `json:"away_best_back_size_l1"`
	DrawBestBackSizeL1 *float64 `json:"draw_best_back_size_l1"`

	HomeBookRiskL3 *float64 `json:"home_book_risk_l3"`
	AwayBookRiskL3 *float64 `json:"away_book_risk_l3"`
	DrawBookRiskL3 *float64 `json:"draw_book_risk_l3"`

	ImpedanceIndex15m    *float64 `json:"impedance_index_15m"`
	ImpedanceAbsDiffHome *float64 `json:"impedance_abs_diff_home"`
	ImpedanceAbsDiffAway *float64 `json:"impedance_abs_diff_away"`
	ImpedanceAbsDiffDraw *float64 `json:"impedance_abs_diff_draw"`

	HomeSecondsCovered *float64 `json:"home_seconds_covered"`
	HomeUpdateCount    *float64 `json:"home_update_count"`
	AwaySecondsCovered *float64 `json:"away_seconds_covered"`
	AwayUpdateCount    *float64 `json:"away_update_count"`
	DrawSecondsCovered *float64 `json:"draw_seconds_covered"`
	DrawUpdateCount    *float64 `json:"draw_update_count"`
}

type timeseriesItem struct {
	SnapshotAt *string `json:"snapshot_at"`
	metricFields
}

func (p timeseriesItem) toModel() (models.TimeseriesPoint, bool) {
	at := parseTime(p.SnapshotAt)
	if at == nil {
		return models.TimeseriesPoint{}, false
	}
	f := p.metricFields
	return models.TimeseriesPoint{
		SnapshotAt:        *at,
		BestBack:          models.Triplet{Home: f.HomeBestBack, Away: f.AwayBestBack, Draw: f.DrawBestBack},
		BestLay:           models.Triplet{Home: f.HomeBestLay, Away: f.AwayBestLay, Draw: f.DrawBestLay},
		BestBackSizeL1:    models.Triplet{Home: f.HomeBestBackSizeL1, Away: f.AwayBestBackSizeL1, Draw: f.DrawBestBackSizeL1},
		MedianBackOdds:    models.Triplet{Home: f.HomeBackOddsMedian, Away: f.AwayBackOddsMedian, Draw: f.DrawBackOddsMedian},
		MedianBackSize:    models.Triplet{Home: f.HomeBackSizeMedian, Away: f.AwayBackSizeMedian, Draw: f.DrawBackSizeMedian},
		BookRisk:          models.Triplet{Home: f.HomeBookRiskL3, Away: f.AwayBookRiskL3, Draw: f.DrawBookRiskL3},
		ImpedanceIndex15m: f.ImpedanceIndex15m,
		ImpedanceAbsDiff:  models.Triplet{Home: f.ImpedanceAbsDiffHome, Away: f.ImpedanceAbsDiffAway, Draw: f.ImpedanceAbsDiffDraw},
		TotalVolume:       f.TotalVolume,
	}, true
}

type bucketItem struct {
	BucketStart *string `json:"bucket_start"`
	BucketEnd   *string `json:"bucket_end"`
	TickCount   int     `json:"tick_count"`
	metricFields
}

func (b bucketItem) toModel() models.BucketSummary {
	f := b.metricFields
	out := models.BucketSummary{
		TickCount:         b.TickCount,
		MedianBackOdds:    models.Triplet{Home: f.HomeBackOddsMedian, Away: f.AwayBackOddsMedian, Draw: f.DrawBackOddsMedian},
		MedianBackSize:    models.Triplet{Home: f.HomeBackSizeMedian, Away: f.AwayBackSizeMedian, Draw: f.DrawBackSizeMedian},
		BestBack:          models.Triplet{Home: f.HomeBestBack, Away: f.AwayBestBack, Draw: f.DrawBestBack},
		BestLay:           models.Triplet{Home: f.HomeBestLay, Away: f.AwayBestLay, Draw: f.DrawBestLay},
		BestBackSizeL1:    models.Triplet{Home: f.HomeBestBackSizeL1, Away: f.AwayBestBackSizeL1, Draw: f.DrawBestBackSizeL1},
		SecondsCovered:    models.Triplet{Home: f.HomeSecondsCovered, Away: f.AwaySecondsCovered, Draw: f.DrawSecondsCovered},
		UpdateCount:       models.Triplet{Home: f.HomeUpdateCount, Away: f.AwayUpdateCount, Draw: f.DrawUpdateCount},
		BookRisk:          models.Triplet{Home: f.HomeBookRiskL3, Away: f.AwayBookRiskL3, Draw: f.DrawBookRiskL3},
		ImpedanceIndex15m: f.ImpedanceIndex15m,
		ImpedanceAbsDiff:  models.Triplet{Home: f.ImpedanceAbsDiffHome, Away: f.ImpedanceAbsDiffAway, Draw: f.ImpedanceAbsDiffDraw},
		TotalVolume:       f.TotalVolume,
	}
	if start := parseTime(b.BucketStart); start != nil {
		out.BucketStart = *start
		out.BucketEnd = start.Add(models.BucketWidth)
	}
	if end := parseTime(b.BucketEnd); end != nil {
		out.BucketEnd = *end
	}
	return out
}

type tickItem struct {
	PublishTime  *string  `json:"publish_time"`
	SelectionID  *int64   `json:"selection_id"`
	HomeBackOdds *float64 `json:"home_back_odds"`
	HomeBackSize *float64 `json:"home_back_size"`
	AwayBackOdds *float64 `json:"away_back_odds"`
	AwayBackSize *float64 `json:"away_back_size"`
	DrawBackOdds *float64 `json:"draw_back_odds"`
	DrawBackSize *float64 `json:"draw_back_size"`
}

func (t tickItem) toModel() (models.TickRow, bool) {
	at := parseTime(t.PublishTime)
	if at == nil {
		return models.TickRow{}, false
	}
	return models.TickRow{
		PublishTime: *at,
		SelectionID: t.SelectionID,
		Home:        models.OutcomeTick{BackOdds: t.HomeBackOdds, BackSize: t.HomeBackSize},
		Away:        models.OutcomeTick{BackOdds: t.AwayBackOdds, BackSize: t.AwayBackSize},
		Draw:        models.OutcomeTick{BackOdds: t.DrawBackOdds, BackSize: t.DrawBackSize},
	}, true
}

type eventMetaItem struct {
	MarketID               string  `json:"market_id"`
	EventName              *string `json:"event_name"`
	EventOpenDate          *string `json:"event_open_date"`
	CompetitionName        *string `json:"competition_name"`
	HomeRunnerName         *string `json:"home_runner_name"`
	AwayRunnerName         *string `json:"away_runner_name"`
	DrawRunnerName         *string `json:"draw_runner_name"`
	HomeSelectionID        *int64  `json:"home_selection_id"`
	AwaySelectionID        *int64  `json:"away_selection_id"`
	DrawSelectionID        *int64  `json:"draw_selection_id"`
	HasRawStream           bool    `json:"has_raw_stream"`
	SupportsReplaySnapshot bool    `json:"supports_replay_snapshot"`
	LastTickTime           *string `json:"last_tick_time"`
	RetentionPolicy        *string `json:"retention_policy"`
	BucketIntervalMinutes  int     `json:"bucket_interval_minutes"`
	EarliestBucketStart    *string `json:"earliest_bucket_start"`
	LatestBucketStart      *string `json:"latest_bucket_start"`
}

func (m eventMetaItem) toModel() models.EventMeta {
	interval := m.BucketIntervalMinutes
	if interval == 0 {
		interval = int(models.BucketWidth / time.Minute)
	}
	return models.EventMeta{
		MarketID:               m.MarketID,
		EventName:              str(m.EventName),
		EventOpenDate:          str(m.EventOpenDate),
		CompetitionName:        str(m.CompetitionName),
		HomeRunnerName:         str(m.HomeRunnerName),
		AwayRunnerName:         str(m.AwayRunnerName),
		DrawRunnerName:         str(m.DrawRunnerName),
		HomeSelectionID:        m.HomeSelectionID,
		AwaySelectionID:        m.AwaySelectionID,
		DrawSelectionID:        m.DrawSelectionID,
		HasRawStream:           m.HasRawStream,
		SupportsReplaySnapshot: m.SupportsReplaySnapshot,
		LastTickTime:           parseTime(m.LastTickTime),
		RetentionPolicy:        str(m.RetentionPolicy),
		BucketIntervalMinutes:  interval,
		EarliestBucketStart:    parseTime(m.EarliestBucketStart),
		LatestBucketStart:      parseTime(m.LatestBucketStart),
	}
}

type availableBucketsItem struct {
	MarketID              string   `json:"market_id"`
	BucketIntervalMinutes int      `json:"bucket_interval_minutes"`
	AvailableBuckets      []string `json:"available_buckets"`
	EarliestBucket        *string  `json:"earliest_bucket"`
	LatestBucket          *string  `json:"latest_bucket"`
}

func (a availableBucketsItem) toModel() models.AvailableBuckets {
	out := models.AvailableBuckets{
		MarketID:              a.MarketID,
		BucketIntervalMinutes: a.BucketIntervalMinutes,
		Buckets:               make([]time.Time, 0, len(a.AvailableBuckets)),
		Earliest:              parseTime(a.EarliestBucket),
		Latest:                parseTime(a.LatestBucket),
	}
	for _, s := range a.AvailableBuckets {
		if t := parseTime(&s); t != nil {
			out.Buckets = append(out.Buckets, *t)
		}
	}
	return out
}

type dataHorizonItem struct {
	OldestTick *string             `json:"oldest_tick"`
	NewestTick *string             `json:"newest_tick"`
	TotalRows  int64               `json:"total_rows"`
	Days       []models.HorizonDay `json:"days"`
}

func (d dataHorizonItem) toModel() models.DataHorizon {
	return models.DataHorizon{
		OldestTick: parseTime(d.OldestTick),
		NewestTick: parseTime(d.NewestTick),
		TotalRows:  d.TotalRows,
		Days:       d.Days,
	}
}

type replaySelectionItem struct {
	SelectionID   flexibleID `json:"selection_id"`
	BestBackPrice *float64   `json:"best_back_price"`
	BestBackSize  *float64   `json:"best_back_size"`
	BestLayPrice  *float64   `json:"best_lay_price"`
	BestLaySize   *float64   `json:"best_lay_size"`
}

type replaySnapshotItem struct {
	MarketID        string                `json:"market_id"`
	SnapshotTime    *string               `json:"snapshot_time"`
	IsReconstructed bool                  `json:"is_reconstructed"`
	Source          string                `json:"source"`
	Selections      []replaySelectionItem `json:"selections"`
	Liquidity       struct {
		TotalMatched    *float64 `json:"total_matched"`
		AvailableToBack *float64 `json:"available_to_back"`
		AvailableToLay  *float64 `json:"available_to_lay"`
	} `json:"liquidity"`
}

func (r replaySnapshotItem) toModel() models.ReplaySnapshot {
	out := models.ReplaySnapshot{
		MarketID:        r.MarketID,
		IsReconstructed: r.IsReconstructed,
		Source:          r.Source,
		Selections:      make([]models.ReplaySelection, 0, len(r.Selections)),
		TotalMatched:    r.Liquidity.TotalMatched,
		AvailableToBack: r.Liquidity.AvailableToBack,
		AvailableToLay:  r.Liquidity.AvailableToLay,
	}
	if t := parseTime(r.SnapshotTime); t != nil {
		out.SnapshotTime = *t
	}
	for _, s := range r.Selections {
		out.Selections = append(out.Selections, models.ReplaySelection{
			SelectionID: string(s.SelectionID),
			Best: models.MarketOutcomeQuote{
				BackOdds: s.BestBackPrice,
				BackSize: s.BestBackSize,
				LayOdds:  s.BestLayPrice,
				LaySize:  s.BestLaySize,
			},
		})
	}
	return out
}

type latestRawItem struct {
	MarketID   string          `json:"market_id"`
	SnapshotAt *string         `json:"snapshot_at"`
	RawPayload json.RawMessage `json:"raw_payload"`
	Truncated  bool            `json:"truncated"`
	SizeBytes  int             `json:"raw_payload_size_bytes"`
}

// rawMarketBook is the subset of an exchange marketBook payload that holds
// the back ladders.
type rawMarketBook struct {
	Runners []struct {
		SelectionID int64 `json:"selectionId"`
		Ex          struct {
			AvailableToBack []models.PriceSize `json:"availableToBack"`
		} `json:"ex"`
	} `json:"runners"`
}

func (r latestRawItem) toModel() (models.RawBook, error) {
	out := models.RawBook{
		MarketID:   r.MarketID,
		SnapshotAt: parseTime(r.SnapshotAt),
		Truncated:  r.Truncated,
		SizeBytes:  r.SizeBytes,
		Runners:    []models.RawRunner{},
	}
	if r.Truncated || len(r.RawPayload) == 0 || string(r.RawPayload) == "null" {
		return out, nil
	}
	payload := []byte(r.RawPayload)
	// Some rows hold the book as a JSON-encoded string.
	var encoded string
	if err := json.Unmarshal(payload, &encoded); err == nil {
		payload = []byte(encoded)
	}
	var book rawMarketBook
	if err := json.Unmarshal(payload, &book); err != nil {
		return out, err
	}
	for _, rn := range book.Runners {
		out.Runners = append(out.Runners, models.RawRunner{
			SelectionID: rn.SelectionID,
			Back:        rn.Ex.AvailableToBack,
		})
	}
	return out, nil
}

// flexibleID accepts a selection id sent either as a string or a number.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = flexibleID(n.String())
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTime reads backend timestamps. Values without a zone are UTC.
func parseTime(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(*s)); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

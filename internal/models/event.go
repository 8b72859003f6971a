package models

import (
	"errors"
	"time"
)

// EventRankRecord is one match-odds market as returned by the focus and
// league endpoints. It is only used for ranking and is immutable per fetch.
type EventRankRecord struct {
	MarketID        string   `json:"market_id"`
	EventName       string   `json:"event_name"`
	CompetitionName string   `json:"competition_name"`
	EventOpenDate   string   `json:"event_open_date"` // ISO-8601, "" when unknown
	BookRisk        Triplet  `json:"book_risk"`
	TotalVolume     *float64 `json:"total_volume"`

	BestBack           Triplet    `json:"best_back"`
	BestLay            Triplet    `json:"best_lay"`
	LatestSnapshotAt   *time.Time `json:"latest_snapshot_at,omitempty"`
	LastStreamUpdateAt *time.Time `json:"last_stream_update_at,omitempty"`
	IsStale            bool       `json:"is_stale"`
}

// Validate checks event field constraints.
func (e *EventRankRecord) Validate() error {
	if e.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if e.TotalVolume != nil && *e.TotalVolume < 0 {
		return errors.New("total volume must not be negative")
	}
	return nil
}

// DisplayName falls back to the market ID when the event has no name.
func (e *EventRankRecord) DisplayName() string {
	if e.EventName != "" {
		return e.EventName
	}
	return e.MarketID
}

// LeagueItem is one competition with its event count in a time window.
type LeagueItem struct {
	League     string `json:"league"`
	EventCount int    `json:"event_count"`
}

// EventMeta describes a market's runners and bucket availability.
type EventMeta struct {
	MarketID        string `json:"market_id"`
	EventName       string `json:"event_name"`
	EventOpenDate   string `json:"event_open_date"`
	CompetitionName string `json:"competition_name"`

	HomeRunnerName string `json:"home_runner_name"`
	AwayRunnerName string `json:"away_runner_name"`
	DrawRunnerName string `json:"draw_runner_name"`

	HomeSelectionID *int64 `json:"home_selection_id,omitempty"`
	AwaySelectionID *int64 `json:"away_selection_id,omitempty"`
	DrawSelectionID *int64 `json:"draw_selection_id,omitempty"`

	HasRawStream           bool       `json:"has_raw_stream"`
	SupportsReplaySnapshot bool       `json:"supports_replay_snapshot"`
	LastTickTime           *time.Time `json:"last_tick_time,omitempty"`
	RetentionPolicy        string     `json:"retention_policy,omitempty"`

	BucketIntervalMinutes int        `json:"bucket_interval_minutes"`
	EarliestBucketStart   *time.Time `json:"earliest_bucket_start,omitempty"`
	LatestBucketStart     *time.Time `json:"latest_bucket_start,omitempty"`
}

// OutcomeForSelection maps a runner selection ID to its outcome.
func (m *EventMeta) OutcomeForSelection(id int64) (Outcome, bool) {
	switch {
	case m.HomeSelectionID != nil && *m.HomeSelectionID == id:
		return Home, true
	case m.AwaySelectionID != nil && *m.AwaySelectionID == id:
		return Away, true
	case m.DrawSelectionID != nil && *m.DrawSelectionID == id:
		return Draw, true
	}
	return "", false
}

// AvailableBuckets lists the bucket starts that have tick data for a market.
type AvailableBuckets struct {
	MarketID              string      `json:"market_id"`
	BucketIntervalMinutes int         `json:"bucket_interval_minutes"`
	Buckets               []time.Time `json:"available_buckets"`
	Earliest              *time.Time  `json:"earliest_bucket,omitempty"`
	Latest                *time.Time  `json:"latest_bucket,omitempty"`
}

// HorizonDay summarises one UTC day of stream data.
type HorizonDay struct {
	Day        string `json:"day"`
	LadderRows int    `json:"ladder_rows"`
	Markets    int    `json:"markets"`
}

// DataHorizon is the oldest/newest tick held by the backend.
type DataHorizon struct {
	OldestTick *time.Time   `json:"oldest_tick,omitempty"`
	NewestTick *time.Time   `json:"newest_tick,omitempty"`
	TotalRows  int64        `json:"total_rows"`
	Days       []HorizonDay `json:"days,omitempty"`
}

// ReplaySelection is one runner in a reconstructed snapshot.
type ReplaySelection struct {
	SelectionID string             `json:"selection_id"`
	Best        MarketOutcomeQuote `json:"best"`
}

// ReplaySnapshot is a market book rebuilt from ladder levels.
type ReplaySnapshot struct {
	MarketID        string            `json:"market_id"`
	SnapshotTime    time.Time         `json:"snapshot_time"`
	IsReconstructed bool              `json:"is_reconstructed"`
	Source          string            `json:"source"`
	Selections      []ReplaySelection `json:"selections"`
	TotalMatched    *float64          `json:"total_matched"`
	AvailableToBack *float64          `json:"available_to_back"`
	AvailableToLay  *float64          `json:"available_to_lay"`
}

// RawRunner is one runner's back ladder from a raw market book, best price first.
type RawRunner struct {
	SelectionID int64       `json:"selection_id"`
	Back        []PriceSize `json:"back"`
}

// RawBook is the latest stored market book for a market. A truncated book
// carries no runners.
type RawBook struct {
	MarketID   string      `json:"market_id"`
	SnapshotAt *time.Time  `json:"snapshot_at,omitempty"`
	Truncated  bool        `json:"truncated"`
	SizeBytes  int         `json:"size_bytes"`
	Runners    []RawRunner `json:"runners"`
}

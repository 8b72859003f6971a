package models

import "time"

// RiskAlert is one ranked event selected for the Book Risk digest.
type RiskAlert struct {
	ID              string
	MarketID        string
	EventName       string
	CompetitionName string
	EventOpenDate   string

	Rank     int
	Field    SortField
	Value    *float64
	BookRisk Triplet
	Volume   *float64

	DetectedAt time.Time
}

// NotifiedRecord remembers what was last sent for a market.
type NotifiedRecord struct {
	MarketID string
	Field    SortField
	Value    float64
	Rank     int
	SentAt   time.Time
}

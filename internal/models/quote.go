// Package models defines the core domain entities: quotes, ticks, buckets, and ranked events.
package models

import "math"

// Outcome identifies one leg of a three-way (match odds) market.
type Outcome string

const (
	Home Outcome = "home"
	Away Outcome = "away"
	Draw Outcome = "draw"
)

// Outcomes lists the three legs in display order.
var Outcomes = [3]Outcome{Home, Away, Draw}

// Float returns a pointer to v, for building nullable values.
func Float(v float64) *float64 {
	return &v
}

// Triplet holds one nullable value per outcome (home, away, draw).
type Triplet struct {
	Home *float64 `json:"home"`
	Away *float64 `json:"away"`
	Draw *float64 `json:"draw"`
}

// Get returns the value for outcome o.
func (t Triplet) Get(o Outcome) *float64 {
	switch o {
	case Home:
		return t.Home
	case Away:
		return t.Away
	case Draw:
		return t.Draw
	}
	return nil
}

// AllNil reports whether no outcome carries a value.
func (t Triplet) AllNil() bool {
	return t.Home == nil && t.Away == nil && t.Draw == nil
}

// AnySet reports whether at least one outcome carries a value.
func (t Triplet) AnySet() bool {
	return !t.AllNil()
}

// MarketOutcomeQuote is the best back/lay price and size for one outcome at one moment.
type MarketOutcomeQuote struct {
	BackOdds *float64 `json:"back_odds"`
	BackSize *float64 `json:"back_size"`
	LayOdds  *float64 `json:"lay_odds"`
	LaySize  *float64 `json:"lay_size"`
}

// ValidOdds reports whether v is usable as decimal odds.
// Odds at or below 1.0 pay nothing above the stake and are treated as absent.
func ValidOdds(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && *v > 1.0
}

// Spread returns lay minus back when both sides carry valid odds.
func (q MarketOutcomeQuote) Spread() *float64 {
	if !ValidOdds(q.BackOdds) || !ValidOdds(q.LayOdds) {
		return nil
	}
	return Float(*q.LayOdds - *q.BackOdds)
}

// PriceSize is one ladder level.
type PriceSize struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

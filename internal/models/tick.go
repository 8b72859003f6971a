package models

import "time"

// OutcomeTick carries the back side fields a tick may update for one outcome.
type OutcomeTick struct {
	BackOdds *float64 `json:"back_odds"`
	BackSize *float64 `json:"back_size"`
}

// TickRow is one raw stream update. A single row populates at most one
// outcome; the other two are left nil.
type TickRow struct {
	PublishTime time.Time   `json:"publish_time"`
	SelectionID *int64      `json:"selection_id"`
	Home        OutcomeTick `json:"home"`
	Away        OutcomeTick `json:"away"`
	Draw        OutcomeTick `json:"draw"`
}

// Outcome returns the fields for outcome o.
func (r TickRow) Outcome(o Outcome) OutcomeTick {
	switch o {
	case Home:
		return r.Home
	case Away:
		return r.Away
	default:
		return r.Draw
	}
}

// MergedTick is the reconciled view of every tick sharing one publish time.
type MergedTick struct {
	PublishTime time.Time   `json:"publish_time"`
	Home        OutcomeTick `json:"home"`
	Away        OutcomeTick `json:"away"`
	Draw        OutcomeTick `json:"draw"`
}

// At returns a pointer to the fields for outcome o.
func (m *MergedTick) At(o Outcome) *OutcomeTick {
	switch o {
	case Home:
		return &m.Home
	case Away:
		return &m.Away
	default:
		return &m.Draw
	}
}

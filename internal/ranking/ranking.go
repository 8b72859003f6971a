// Package ranking orders and filters the ranked event list.
package ranking

import (
	"math"
	"sort"
	"strings"

	"github.com/rewired-gh/bookrisk/internal/models"
)

// primary returns the sort value for e under state. ok is false when the
// value is missing and the event must sort last.
func primary(e models.EventRankRecord, state models.SortState) (float64, bool) {
	var v *float64
	if o, isRisk := state.Field.Outcome(); isRisk {
		v = e.BookRisk.Get(o)
	} else {
		v = e.TotalVolume
	}
	if v == nil || math.IsNaN(*v) {
		return 0, false
	}
	if state.Field.IsBookRisk() && !state.Signed {
		return math.Abs(*v), true
	}
	return *v, true
}

func volume(e models.EventRankRecord) float64 {
	if e.TotalVolume == nil || math.IsNaN(*e.TotalVolume) {
		return 0
	}
	return *e.TotalVolume
}

// less is a strict total order. Only the primary comparison follows the
// requested direction; tie-breaks always run the same way.
func less(a, b models.EventRankRecord, state models.SortState) bool {
	av, aok := primary(a, state)
	bv, bok := primary(b, state)
	switch {
	case aok && !bok:
		return true
	case !aok && bok:
		return false
	case aok && bok && av != bv:
		if state.Descending {
			return av > bv
		}
		return av < bv
	}

	if va, vb := volume(a), volume(b); va != vb {
		return va > vb
	}
	if a.EventOpenDate != b.EventOpenDate {
		return a.EventOpenDate < b.EventOpenDate
	}
	return a.MarketID < b.MarketID
}

// SortEvents returns a sorted copy of events. The input slice is not modified.
// An unknown field falls back to the default field.
func SortEvents(events []models.EventRankRecord, state models.SortState) []models.EventRankRecord {
	if f, ok := models.ParseSortField(string(state.Field)); ok {
		state.Field = f
	} else {
		state.Field = models.DefaultSortState().Field
	}
	out := make([]models.EventRankRecord, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j], state)
	})
	return out
}

// Filter narrows the event list before ranking.
type Filter struct {
	// RequireBookRisk drops events with no Book Risk on any leg.
	RequireBookRisk bool
	// ExcludeStale drops events whose stream has gone quiet.
	ExcludeStale bool
	// Query matches event or competition names, case-insensitively.
	Query string
}

// Apply returns the events matching f, preserving order.
func (f Filter) Apply(events []models.EventRankRecord) []models.EventRankRecord {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]models.EventRankRecord, 0, len(events))
	for _, e := range events {
		if f.RequireBookRisk && e.BookRisk.AllNil() {
			continue
		}
		if f.ExcludeStale && e.IsStale {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.EventName), q) &&
			!strings.Contains(strings.ToLower(e.CompetitionName), q) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Rank filters then sorts.
func Rank(events []models.EventRankRecord, f Filter, state models.SortState) []models.EventRankRecord {
	return SortEvents(f.Apply(events), state)
}

// Top returns at most k events from an already ranked list.
func Top(events []models.EventRankRecord, k int) []models.EventRankRecord {
	if k <= 0 || k >= len(events) {
		return events
	}
	return events[:k]
}

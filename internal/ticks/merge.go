// Package ticks reconciles sparse per-runner stream ticks into one row per publish time.
package ticks

import (
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
)

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// overlay copies every non-nil field of src onto dst.
func overlay(dst *models.OutcomeTick, src models.OutcomeTick) {
	if src.BackOdds != nil {
		dst.BackOdds = clone(src.BackOdds)
	}
	if src.BackSize != nil {
		dst.BackSize = clone(src.BackSize)
	}
}

func apply(m *models.MergedTick, r models.TickRow) {
	for _, o := range models.Outcomes {
		overlay(m.At(o), r.Outcome(o))
	}
}

func seed(r models.TickRow) models.MergedTick {
	m := models.MergedTick{PublishTime: r.PublishTime}
	apply(&m, r)
	return m
}

// MergeByTimestamp collapses consecutive rows that share a publish time into
// one row. Later non-nil fields overwrite earlier ones; nil fields never
// clear a value. Values are not carried across different publish times.
//
// Rows must be in ascending time order. The input is not modified.
func MergeByTimestamp(rows []models.TickRow) []models.MergedTick {
	if len(rows) == 0 {
		return []models.MergedTick{}
	}

	out := make([]models.MergedTick, 0, len(rows))
	cur := seed(rows[0])
	for _, r := range rows[1:] {
		if !r.PublishTime.Equal(cur.PublishTime) {
			out = append(out, cur)
			cur = seed(r)
			continue
		}
		apply(&cur, r)
	}
	return append(out, cur)
}

// Window returns the rows with from <= PublishTime < to.
func Window(rows []models.TickRow, from, to time.Time) []models.TickRow {
	out := make([]models.TickRow, 0)
	for _, r := range rows {
		if r.PublishTime.Before(from) || !r.PublishTime.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Count is the number of rows with from <= PublishTime < to.
func Count(rows []models.TickRow, from, to time.Time) int {
	n := 0
	for _, r := range rows {
		if !r.PublishTime.Before(from) && r.PublishTime.Before(to) {
			n++
		}
	}
	return n
}

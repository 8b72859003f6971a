// Package format turns nullable numbers into display-safe strings.
package format

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/bookrisk/internal/models"
)

// Absent is shown wherever a value is missing or unusable.
const Absent = "—"

// DefaultExtremeOdds is the price at which odds are flagged as extreme.
const DefaultExtremeOdds = 1000.0

// OddsDisplay is the rendered odds plus a flag callers can style on.
type OddsDisplay struct {
	Text    string `json:"text"`
	Extreme bool   `json:"extreme"`
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func render(v float64) string {
	if v == 0 {
		return "0"
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	out := strconv.FormatFloat(v, 'f', 2, 64)
	if out == "-0.00" {
		return "0.00"
	}
	return out
}

// rounded is v at the precision render shows.
func rounded(v float64) float64 {
	r, _ := strconv.ParseFloat(render(v), 64)
	return r
}

// Number renders integers without decimals and everything else with two.
// Zero is a real value and renders as "0".
func Number(v *float64) string {
	if !usable(v) {
		return Absent
	}
	return render(*v)
}

// Odds renders decimal odds. Prices at or below 1.0 are absent; prices that
// reach extremeThreshold once rounded render as "≥threshold" with Extreme set.
func Odds(v *float64, extremeThreshold float64) OddsDisplay {
	if extremeThreshold <= 0 {
		extremeThreshold = DefaultExtremeOdds
	}
	if !usable(v) || *v <= 1.0 {
		return OddsDisplay{Text: Absent}
	}
	if rounded(*v) >= extremeThreshold {
		return OddsDisplay{Text: "≥" + render(extremeThreshold), Extreme: true}
	}
	return OddsDisplay{Text: render(*v)}
}

// Volume renders matched volume with thousands separators.
func Volume(v *float64) string {
	if !usable(v) {
		return Absent
	}
	if *v == math.Trunc(*v) {
		return humanize.Commaf(*v)
	}
	// humanize strips trailing zeros, so the fraction is kept separately.
	whole, frac, _ := strings.Cut(strconv.FormatFloat(math.Abs(*v), 'f', 2, 64), ".")
	w, _ := strconv.ParseFloat(whole, 64)
	out := humanize.Commaf(w) + "." + frac
	if *v < 0 && out != "0.00" {
		out = "-" + out
	}
	return out
}

// Time renders a timestamp in short UTC form.
func Time(t *time.Time) string {
	if t == nil || t.IsZero() {
		return Absent
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// Triplet renders home, away, draw in that order.
func Triplet(t models.Triplet) [3]string {
	return [3]string{Number(t.Home), Number(t.Away), Number(t.Draw)}
}

// OddsTriplet renders three prices in home, away, draw order.
func OddsTriplet(t models.Triplet, extremeThreshold float64) [3]OddsDisplay {
	return [3]OddsDisplay{
		Odds(t.Home, extremeThreshold),
		Odds(t.Away, extremeThreshold),
		Odds(t.Draw, extremeThreshold),
	}
}

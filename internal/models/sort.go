package models

import "strings"

// SortField selects the primary key of the ranked event list.
type SortField string

const (
	SortBookRiskHome SortField = "bookRiskHome"
	SortBookRiskAway SortField = "bookRiskAway"
	SortBookRiskDraw SortField = "bookRiskDraw"
	SortVolume       SortField = "volume"
)

// SortFields lists every supported field.
var SortFields = []SortField{SortBookRiskHome, SortBookRiskAway, SortBookRiskDraw, SortVolume}

// SortFieldList renders SortFields for error messages.
func SortFieldList() string {
	names := make([]string, len(SortFields))
	for i, f := range SortFields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

var sortFieldAliases = map[string]SortField{
	"bookriskhome":   SortBookRiskHome,
	"book_risk_home": SortBookRiskHome,
	"bookriskaway":   SortBookRiskAway,
	"book_risk_away": SortBookRiskAway,
	"bookriskdraw":   SortBookRiskDraw,
	"book_risk_draw": SortBookRiskDraw,
	"volume":         SortVolume,
}

// ParseSortField accepts both camelCase and the dashboard's snake_case ids.
func ParseSortField(s string) (SortField, bool) {
	f, ok := sortFieldAliases[strings.ToLower(strings.TrimSpace(s))]
	return f, ok
}

// IsBookRisk reports whether the field ranks by a Book Risk leg.
func (f SortField) IsBookRisk() bool {
	return f == SortBookRiskHome || f == SortBookRiskAway || f == SortBookRiskDraw
}

// Outcome returns the Book Risk leg a field refers to.
func (f SortField) Outcome() (Outcome, bool) {
	switch f {
	case SortBookRiskHome:
		return Home, true
	case SortBookRiskAway:
		return Away, true
	case SortBookRiskDraw:
		return Draw, true
	}
	return "", false
}

// SortState is the user's ranking preference.
type SortState struct {
	Field      SortField `json:"field"`
	Descending bool      `json:"desc"`
	Signed     bool      `json:"signed"`
}

// DefaultSortState ranks by home Book Risk, largest signed value first.
func DefaultSortState() SortState {
	return SortState{Field: SortBookRiskHome, Descending: true, Signed: true}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rewired-gh/bookrisk/internal/buckets"
	"github.com/rewired-gh/bookrisk/internal/format"
	"github.com/rewired-gh/bookrisk/internal/impedance"
	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/models"
	"github.com/rewired-gh/bookrisk/internal/prefs"
	"github.com/rewired-gh/bookrisk/internal/ranking"
	"github.com/rewired-gh/bookrisk/internal/riskapi"
	"github.com/rewired-gh/bookrisk/internal/ticks"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().UTC(),
		"service":   "bookrisk",
	})
}

// handleRanked returns focus events filtered and sorted.
// Query params: from, to, field, desc, signed, require_book_risk, exclude_stale, q, limit
func (s *Server) handleRanked(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.window(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	state, err := s.sortState(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	filter := s.filter(r)

	events, err := s.api.BookRiskFocus(r.Context(), from, to, riskapi.FocusOptions{
		WindowOptions: riskapi.WindowOptions{
			IncludeInPlay: s.cfg.IncludeInPlay,
			Limit:         s.cfg.Limit,
		},
		RequireBookRisk: filter.RequireBookRisk,
	})
	if err != nil {
		respondUpstreamError(w, "failed to fetch focus events", err)
		return
	}

	rows := s.rank(r, events, filter, state)
	s.metrics.SetRankedEvents(len(rows))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": rows,
		"count":  len(rows),
		"sort":   state,
		"from":   from,
		"to":     to,
	})
}

// handleLeagueEvents ranks the events of one competition with the same
// sort and filter params as handleRanked.
func (s *Server) handleLeagueEvents(w http.ResponseWriter, r *http.Request) {
	league := chi.URLParam(r, "league")
	if v, err := url.PathUnescape(league); err == nil {
		league = v
	}
	from, to, err := s.window(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	state, err := s.sortState(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	events, err := s.api.LeagueEvents(r.Context(), league, from, to, riskapi.WindowOptions{
		IncludeInPlay: s.cfg.IncludeInPlay,
		Limit:         s.cfg.Limit,
	})
	if err != nil {
		respondUpstreamError(w, "failed to fetch league events", err)
		return
	}

	rows := s.rank(r, events, s.filter(r), state)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"league": league,
		"events": rows,
		"count":  len(rows),
		"sort":   state,
	})
}

// handleEventsByDate ranks every event with a snapshot on a UTC day.
// date is YYYY-MM-DD and defaults to today.
func (s *Server) handleEventsByDate(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = s.now().UTC().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", nil)
		return
	}
	state, err := s.sortState(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	events, err := s.stream.EventsByDate(r.Context(), date)
	if err != nil {
		respondUpstreamError(w, "failed to fetch events by date", err)
		return
	}

	rows := s.rank(r, events, s.filter(r), state)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":   date,
		"events": rows,
		"count":  len(rows),
		"sort":   state,
	})
}

// sortState loads the saved preference and applies field/desc/signed overrides.
func (s *Server) sortState(r *http.Request) (models.SortState, error) {
	state := s.prefs.Load(r.Context())
	if v := r.URL.Query().Get("field"); v != "" {
		field, ok := models.ParseSortField(v)
		if !ok {
			return state, fmt.Errorf("unknown sort field %q, want one of: %s", v, models.SortFieldList())
		}
		state.Field = field
	}
	state.Descending = parseBoolParam(r, "desc", state.Descending)
	state.Signed = parseBoolParam(r, "signed", state.Signed)
	return state, nil
}

func (s *Server) filter(r *http.Request) ranking.Filter {
	return ranking.Filter{
		RequireBookRisk: parseBoolParam(r, "require_book_risk", s.cfg.RequireBookRisk),
		ExcludeStale:    parseBoolParam(r, "exclude_stale", s.cfg.ExcludeStale),
		Query:           r.URL.Query().Get("q"),
	}
}

func (s *Server) rank(r *http.Request, events []models.EventRankRecord, filter ranking.Filter, state models.SortState) []rankedRow {
	ranked := ranking.Top(ranking.Rank(events, filter, state), parseIntParam(r, "limit", 0))
	rows := make([]rankedRow, len(ranked))
	for i, e := range ranked {
		rows[i] = newRankedRow(i+1, e, s.cfg.ExtremeOdds)
	}
	return rows
}

func (s *Server) handleGetSortState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.prefs.Load(r.Context()))
}

func (s *Server) handlePutSortState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Field  string `json:"field"`
		Desc   *bool  `json:"desc"`
		Signed *bool  `json:"signed"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid sort state body", err)
		return
	}

	state := models.DefaultSortState()
	state.Field = models.SortField(body.Field)
	if body.Desc != nil {
		state.Descending = *body.Desc
	}
	if body.Signed != nil {
		state.Signed = *body.Signed
	}

	if err := s.prefs.Save(r.Context(), state); err != nil {
		if errors.Is(err, prefs.ErrUnknownField) {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to save sort state", err)
		return
	}
	respondJSON(w, http.StatusOK, s.prefs.Load(r.Context()))
}

func (s *Server) handleLeagues(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.window(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	leagues, err := s.api.Leagues(r.Context(), from, to, r.URL.Query().Get("q"), riskapi.WindowOptions{
		IncludeInPlay: s.cfg.IncludeInPlay,
		Limit:         parseIntParam(r, "limit", 100),
		Offset:        parseIntParam(r, "offset", 0),
	})
	if err != nil {
		respondUpstreamError(w, "failed to fetch leagues", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"leagues": leagues,
		"count":   len(leagues),
	})
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := s.api.EventMeta(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		respondUpstreamError(w, "failed to fetch event meta", err)
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

// handleTimeseries returns interval samples with resolved impedance.
// Defaults to the last 180 minutes at the bucket width.
func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	from, to, err := s.recentWindow(r, 180*time.Minute)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	interval := parseIntParam(r, "interval", int(buckets.Width/time.Minute))
	if interval <= 0 {
		respondError(w, http.StatusBadRequest, "interval must be positive", nil)
		return
	}

	points, err := s.api.Timeseries(r.Context(), marketID, from, to, interval)
	if err != nil {
		respondUpstreamError(w, "failed to fetch timeseries", err)
		return
	}
	rows := make([]timeseriesRow, len(points))
	for i, p := range points {
		rows[i] = newTimeseriesRow(p, s.cfg.ExtremeOdds)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"market_id":        marketID,
		"interval_minutes": interval,
		"points":           rows,
		"count":            len(rows),
	})
}

// handleBuckets returns every bucket with its carry-forward flag and
// resolved impedance. from/to snap to the 15-minute grid. With
// verify_ticks=true the raw ticks in range are fetched from the stream
// backend and counted per bucket.
func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	from, err := parseTimeParam(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if from != nil {
		snapped := buckets.Start(*from)
		from = &snapped
	}
	if to != nil {
		snapped := buckets.Start(*to)
		to = &snapped
	}

	bs, err := s.api.Buckets(r.Context(), marketID, from, to, parseBoolParam(r, "event_aware", false))
	if err != nil {
		respondUpstreamError(w, "failed to fetch buckets", err)
		return
	}

	diags := buckets.Annotate(bs)
	resp := map[string]interface{}{
		"market_id": marketID,
	}
	if parseBoolParam(r, "verify_ticks", false) && len(bs) > 0 {
		limit := clampTickLimit(parseIntParam(r, "tick_limit", riskapi.MaxTickLimit))
		start, end := bucketRange(bs)
		raw, err := s.stream.MarketTicks(r.Context(), marketID, start, end, limit)
		if err != nil {
			logger.Warn("Failed to fetch ticks for %s, skipping count check: %v", marketID, err)
			resp["verify_error"] = err.Error()
		} else {
			for i, b := range bs {
				diags[i] = buckets.Diagnose(b, ticks.Count(raw, b.BucketStart, b.BucketEnd))
			}
			resp["verify_truncated"] = len(raw) >= limit
		}
	}

	rows := make([]bucketRow, len(bs))
	for i, b := range bs {
		rows[i] = newBucketRow(b, diags[i], impedance.Resolve(b), s.cfg.ExtremeOdds)
	}
	carried := buckets.CountCarryForward(bs)
	s.metrics.AddCarryForward(carried)

	resp["buckets"] = rows
	resp["count"] = len(rows)
	resp["carry_forward"] = carried
	respondJSON(w, http.StatusOK, resp)
}

// bucketRange spans every bucket in bs, which must not be empty.
func bucketRange(bs []models.BucketSummary) (time.Time, time.Time) {
	start, end := bs[0].BucketStart, bs[0].BucketEnd
	for _, b := range bs[1:] {
		if b.BucketStart.Before(start) {
			start = b.BucketStart
		}
		if b.BucketEnd.After(end) {
			end = b.BucketEnd
		}
	}
	return start, end
}

func (s *Server) handleAvailableBuckets(w http.ResponseWriter, r *http.Request) {
	ab, err := s.stream.AvailableBuckets(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		respondUpstreamError(w, "failed to fetch available buckets", err)
		return
	}
	respondJSON(w, http.StatusOK, ab)
}

func (s *Server) handleDataHorizon(w http.ResponseWriter, r *http.Request) {
	h, err := s.stream.DataHorizon(r.Context())
	if err != nil {
		respondUpstreamError(w, "failed to fetch data horizon", err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

// handleTicks returns ticks in [from, to) merged by publish time. Defaults to
// the last 180 minutes. truncated is set when the backend returned a full page.
func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	from, to, err := s.recentWindow(r, 180*time.Minute)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	limit := clampTickLimit(parseIntParam(r, "limit", 2000))
	raw, err := s.stream.MarketTicks(r.Context(), marketID, from, to, limit)
	if err != nil {
		respondUpstreamError(w, "failed to fetch ticks", err)
		return
	}
	truncated := len(raw) >= limit
	raw = ticks.Window(raw, from, to)
	merged := ticks.MergeByTimestamp(raw)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"market_id":    marketID,
		"ticks":        merged,
		"raw_count":    len(raw),
		"merged_count": len(merged),
		"limit":        limit,
		"truncated":    truncated,
	})
}

// handleReplay rebuilds the book at at (RFC 3339, default latest) and labels
// each runner with its outcome when the event meta knows the selection.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	at, err := parseTimeParam(r, "at")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	snap, err := s.stream.ReplaySnapshot(r.Context(), marketID, at)
	if err != nil {
		respondUpstreamError(w, "failed to fetch replay snapshot", err)
		return
	}
	meta, err := s.api.EventMeta(r.Context(), marketID)
	if err != nil {
		logger.Warn("No event meta for %s, replay runners left unlabelled: %v", marketID, err)
		meta = &models.EventMeta{MarketID: marketID}
	}

	rows := make([]replayRow, len(snap.Selections))
	for i, sel := range snap.Selections {
		rows[i] = newReplayRow(sel, meta, s.cfg.ExtremeOdds)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"market_id":        marketID,
		"snapshot_time":    snap.SnapshotTime,
		"is_reconstructed": snap.IsReconstructed,
		"source":           snap.Source,
		"selections":       rows,
		"total_matched":    snap.TotalMatched,
		"volume_text":      format.Volume(snap.TotalMatched),
	})
}

// handleDepth computes the depth imbalance over the first levels back
// levels (default 3) of the latest stored market book.
func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	levels := parseIntParam(r, "levels", impedance.DefaultDepthLimit)
	if levels <= 0 {
		respondError(w, http.StatusBadRequest, "levels must be positive", nil)
		return
	}

	book, err := s.api.LatestRaw(r.Context(), marketID)
	if err != nil {
		respondUpstreamError(w, "failed to fetch latest market book", err)
		return
	}
	meta, err := s.api.EventMeta(r.Context(), marketID)
	if err != nil {
		respondUpstreamError(w, "failed to fetch event meta", err)
		return
	}

	ladders, unmatched := ladderTriplet(book.Runners, meta)
	value := impedance.DepthImbalance(ladders, levels)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"market_id":         marketID,
		"snapshot_at":       book.SnapshotAt,
		"truncated":         book.Truncated,
		"levels":            levels,
		"imbalance":         value,
		"imbalance_text":    format.Triplet(value),
		"unmatched_runners": unmatched,
	})
}

// ladderTriplet arranges runner ladders as home, away, draw. Runners the
// meta cannot place are counted and skipped.
func ladderTriplet(runners []models.RawRunner, meta *models.EventMeta) ([3][]models.PriceSize, int) {
	var ladders [3][]models.PriceSize
	unmatched := 0
	for _, rn := range runners {
		o, ok := meta.OutcomeForSelection(rn.SelectionID)
		if !ok {
			unmatched++
			continue
		}
		for i, want := range models.Outcomes {
			if o == want {
				ladders[i] = rn.Back
			}
		}
	}
	return ladders, unmatched
}

func clampTickLimit(limit int) int {
	if limit <= 0 {
		return 2000
	}
	if limit > riskapi.MaxTickLimit {
		return riskapi.MaxTickLimit
	}
	return limit
}

// recentWindow reads from/to, defaulting to the span ending now.
func (s *Server) recentWindow(r *http.Request, span time.Duration) (time.Time, time.Time, error) {
	now := s.now().UTC()
	return resolveWindow(r, now.Add(-span), now)
}

// window reads from/to, defaulting to [now-lookback, now+window].
func (s *Server) window(r *http.Request) (time.Time, time.Time, error) {
	now := s.now().UTC()
	return resolveWindow(r, now.Add(-s.cfg.Lookback), now.Add(s.cfg.Window))
}

func resolveWindow(r *http.Request, from, to time.Time) (time.Time, time.Time, error) {
	f, err := parseTimeParam(r, "from")
	if err != nil {
		return from, to, err
	}
	t, err := parseTimeParam(r, "to")
	if err != nil {
		return from, to, err
	}
	if f != nil {
		from = *f
	}
	if t != nil {
		to = *t
	}
	if !to.After(from) {
		return from, to, errors.New("to must be after from")
	}
	return from, to, nil
}

func parseTimeParam(r *http.Request, param string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(param))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errors.New(param + " must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func parseBoolParam(r *http.Request, param string, defaultValue bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(param))
	if err != nil {
		return defaultValue
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("error encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		logger.Warn("%s: %v", message, err)
	}
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// respondUpstreamError maps backend failures: a backend 404 stays a 404,
// anything else is a bad gateway.
func respondUpstreamError(w http.ResponseWriter, message string, err error) {
	var se *riskapi.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		respondError(w, http.StatusNotFound, message, err)
		return
	}
	if errors.Is(err, riskapi.ErrNoTickData) {
		respondError(w, http.StatusNotFound, message, err)
		return
	}
	respondError(w, http.StatusBadGateway, message, err)
}

package riskapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/models"
)

// WindowOptions are the listing parameters shared by the league and focus endpoints.
type WindowOptions struct {
	IncludeInPlay       bool
	InPlayLookbackHours int
	Limit               int
	Offset              int
}

func (o WindowOptions) apply(params url.Values, defaultLimit int) {
	lookback := o.InPlayLookbackHours
	if lookback <= 0 {
		lookback = 2
	}
	limit := o.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	params.Set("include_in_play", strconv.FormatBool(o.IncludeInPlay))
	params.Set("in_play_lookback_hours", strconv.Itoa(lookback))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(o.Offset))
}

// FocusOptions configure the Book Risk focus listing.
type FocusOptions struct {
	WindowOptions
	RequireBookRisk bool
}

func windowParams(from, to time.Time) url.Values {
	return url.Values{
		"from_ts": {isoTime(from)},
		"to_ts":   {isoTime(to)},
	}
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Leagues lists competitions with events between from and to.
func (c *Client) Leagues(ctx context.Context, from, to time.Time, q string, opts WindowOptions) ([]models.LeagueItem, error) {
	params := windowParams(from, to)
	opts.apply(params, 100)
	if q = strings.TrimSpace(q); q != "" {
		params.Set("q", q)
	}
	items, err := getList[models.LeagueItem](ctx, c, "/leagues", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leagues: %w", err)
	}
	return items, nil
}

// LeagueEvents lists the events of one competition.
func (c *Client) LeagueEvents(ctx context.Context, league string, from, to time.Time, opts WindowOptions) ([]models.EventRankRecord, error) {
	params := windowParams(from, to)
	opts.apply(params, 100)
	return c.events(ctx, "/leagues/"+url.PathEscape(league)+"/events", params)
}

// BookRiskFocus lists every event in the window with its latest Book Risk.
func (c *Client) BookRiskFocus(ctx context.Context, from, to time.Time, opts FocusOptions) ([]models.EventRankRecord, error) {
	params := windowParams(from, to)
	opts.apply(params, 500)
	params.Set("require_book_risk", strconv.FormatBool(opts.RequireBookRisk))
	return c.events(ctx, "/events/book-risk-focus", params)
}

// EventsByDate lists all events with at least one snapshot on a UTC day (YYYY-MM-DD).
func (c *Client) EventsByDate(ctx context.Context, date string) ([]models.EventRankRecord, error) {
	params := url.Values{"date": {strings.TrimSpace(date)}}
	return c.events(ctx, "/events/by-date-snapshots", params)
}

func (c *Client) events(ctx context.Context, path string, params url.Values) ([]models.EventRankRecord, error) {
	items, err := getList[eventItem](ctx, c, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	now := c.now()
	out := make([]models.EventRankRecord, 0, len(items))
	for _, it := range items {
		rec := it.toModel(now, c.staleAfter)
		if err := rec.Validate(); err != nil {
			logger.Debug("Dropping event row from %s: %v", path, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// EventMeta returns runner names, selection ids, and bucket availability.
func (c *Client) EventMeta(ctx context.Context, marketID string) (*models.EventMeta, error) {
	var item eventMetaItem
	if err := c.get(ctx, "/events/"+url.PathEscape(marketID)+"/meta", nil, &item); err != nil {
		return nil, fmt.Errorf("failed to fetch event meta: %w", err)
	}
	meta := item.toModel()
	return &meta, nil
}

// Timeseries returns interval samples between from and to.
func (c *Client) Timeseries(ctx context.Context, marketID string, from, to time.Time, intervalMinutes int) ([]models.TimeseriesPoint, error) {
	if intervalMinutes <= 0 {
		intervalMinutes = int(models.BucketWidth / time.Minute)
	}
	params := windowParams(from, to)
	params.Set("interval_minutes", strconv.Itoa(intervalMinutes))
	path := "/events/" + url.PathEscape(marketID) + "/timeseries"

	items, err := getList[timeseriesItem](ctx, c, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeseries: %w", err)
	}
	out := make([]models.TimeseriesPoint, 0, len(items))
	for _, it := range items {
		p, ok := it.toModel()
		if !ok {
			logger.Debug("Dropping timeseries point without snapshot_at for %s", marketID)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Buckets returns 15-minute buckets for a market. Nil bounds use the
// backend default range; eventAware restricts to buckets that have ticks.
func (c *Client) Buckets(ctx context.Context, marketID string, from, to *time.Time, eventAware bool) ([]models.BucketSummary, error) {
	params := url.Values{}
	if from != nil {
		params.Set("from_ts", isoTime(*from))
	}
	if to != nil {
		params.Set("to_ts", isoTime(*to))
	}
	if eventAware {
		params.Set("event_aware", "true")
	}
	path := "/events/" + url.PathEscape(marketID) + "/buckets"

	items, err := getList[bucketItem](ctx, c, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch buckets: %w", err)
	}
	out := make([]models.BucketSummary, 0, len(items))
	for _, it := range items {
		b := it.toModel()
		if err := b.Validate(); err != nil {
			logger.Debug("Dropping bucket for %s: %v", marketID, err)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// AvailableBuckets lists bucket starts that have tick data.
func (c *Client) AvailableBuckets(ctx context.Context, marketID string) (*models.AvailableBuckets, error) {
	var item availableBucketsItem
	if err := c.get(ctx, "/events/"+url.PathEscape(marketID)+"/available-buckets", nil, &item); err != nil {
		return nil, fmt.Errorf("failed to fetch available buckets: %w", err)
	}
	ab := item.toModel()
	return &ab, nil
}

// DataHorizon returns the oldest and newest tick the backend holds.
func (c *Client) DataHorizon(ctx context.Context) (*models.DataHorizon, error) {
	var item dataHorizonItem
	if err := c.get(ctx, "/data-horizon", nil, &item); err != nil {
		return nil, fmt.Errorf("failed to fetch data horizon: %w", err)
	}
	h := item.toModel()
	return &h, nil
}

// MaxTickLimit is the largest tick page the stream backend serves.
const MaxTickLimit = 5000

// MarketTicks returns raw ticks in [from, to]. Rows without publish_time are
// dropped. limit defaults to 2000 and is capped at MaxTickLimit.
func (c *Client) MarketTicks(ctx context.Context, marketID string, from, to time.Time, limit int) ([]models.TickRow, error) {
	if limit <= 0 {
		limit = 2000
	}
	if limit > MaxTickLimit {
		limit = MaxTickLimit
	}
	params := windowParams(from, to)
	params.Set("limit", strconv.Itoa(limit))
	path := "/markets/" + url.PathEscape(marketID) + "/ticks"

	items, err := getList[tickItem](ctx, c, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticks: %w", err)
	}
	out := make([]models.TickRow, 0, len(items))
	for _, it := range items {
		row, ok := it.toModel()
		if !ok {
			continue
		}
		out = append(out, row)
	}
	if dropped := len(items) - len(out); dropped > 0 {
		logger.Debug("Dropped %d ticks without publish_time for %s", dropped, marketID)
	}
	return out, nil
}

// ReplaySnapshot rebuilds the market book at a point in time, or the latest
// tick when at is nil. A 404 means there is nothing to replay.
func (c *Client) ReplaySnapshot(ctx context.Context, marketID string, at *time.Time) (*models.ReplaySnapshot, error) {
	var params url.Values
	if at != nil {
		params = url.Values{"at_ts": {isoTime(*at)}}
	}
	var item replaySnapshotItem
	err := c.get(ctx, "/events/"+url.PathEscape(marketID)+"/replay_snapshot", params, &item)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, ErrNoTickData
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch replay snapshot: %w", err)
	}
	snap := item.toModel()
	return &snap, nil
}

// LatestRaw returns the most recent stored market book with its back ladders.
// A truncated payload comes back with no runners.
func (c *Client) LatestRaw(ctx context.Context, marketID string) (*models.RawBook, error) {
	var item latestRawItem
	if err := c.get(ctx, "/events/"+url.PathEscape(marketID)+"/latest_raw", nil, &item); err != nil {
		return nil, fmt.Errorf("failed to fetch latest raw book: %w", err)
	}
	book, err := item.toModel()
	if err != nil {
		return nil, fmt.Errorf("%w: latest_raw payload: %v", ErrInvalidJSON, err)
	}
	return &book, nil
}

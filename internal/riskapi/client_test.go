package riskapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() ClientConfig {
	return ClientConfig{
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		StaleAfter: 120 * time.Minute,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL, testConfig())
}

var (
	from = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

func TestBookRiskFocus(t *testing.T) {
	var gotRequestID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/book-risk-focus" {
			t.Errorf("Expected path /events/book-risk-focus, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("from_ts") != "2026-03-01T00:00:00.000Z" {
			t.Errorf("from_ts = %s", q.Get("from_ts"))
		}
		if q.Get("require_book_risk") != "true" || q.Get("limit") != "500" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"market_id":"1.1","event_name":"Arsenal v Chelsea","competition_name":null,
			 "home_book_risk_l3":-1200.5,"away_book_risk_l3":null,"draw_book_risk_l3":300,
			 "total_volume":15000,"is_stale":true},
			{"market_id":"","event_name":"broken"},
			{"market_id":"1.2","total_volume":-5},
			{"market_id":"1.3","last_stream_update_at":"2026-03-01T09:00:00"}
		]`))
	})
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	events, err := c.BookRiskFocus(context.Background(), from, to, FocusOptions{RequireBookRisk: true})
	if err != nil {
		t.Fatalf("BookRiskFocus failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 valid events, got %d", len(events))
	}
	e := events[0]
	if e.BookRisk.Home == nil || *e.BookRisk.Home != -1200.5 || e.BookRisk.Away != nil {
		t.Errorf("Wrong book risk: %+v", e.BookRisk)
	}
	if e.CompetitionName != "" || !e.IsStale {
		t.Errorf("Wrong normalisation: %+v", e)
	}
	if !events[1].IsStale {
		t.Error("event with 3h old stream update should be derived stale")
	}
	if gotRequestID == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestListNormalisation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"league":"EPL","event_count":3}]`, 1},
		{"items wrapper", `{"items":[{"league":"EPL","event_count":3},{"league":"La Liga","event_count":1}]}`, 2},
		{"object without items", `{"detail":"nothing here"}`, 0},
		{"scalar", `42`, 0},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			got, err := c.Leagues(context.Background(), from, to, "", WindowOptions{})
			if err != nil {
				t.Fatalf("Leagues failed: %v", err)
			}
			if got == nil || len(got) != tt.want {
				t.Errorf("Leagues() = %v, want %d items", got, tt.want)
			}
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})
	_, err := c.Leagues(context.Background(), from, to, "", WindowOptions{})
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
	_, err = c.EventMeta(context.Background(), "1.1")
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Expected ErrInvalidJSON from EventMeta, got %v", err)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"oldest_tick":"2026-02-01T00:00:00Z","newest_tick":null,"total_rows":10}`))
	})

	h, err := c.DataHorizon(context.Background())
	if err != nil {
		t.Fatalf("DataHorizon failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if h.TotalRows != 10 || h.OldestTick == nil || h.NewestTick != nil {
		t.Errorf("Unexpected horizon %+v", h)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.DataHorizon(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 StatusError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 1 call + 2 retries, got %d", calls)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad market", http.StatusBadRequest)
	})

	_, err := c.EventMeta(context.Background(), "x")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single call, got %d", calls)
	}
}

func TestReplaySnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/events/missing/replay_snapshot" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("at_ts") == "" {
			t.Error("expected at_ts")
		}
		w.Write([]byte(`{"market_id":"1.1","snapshot_time":"2026-03-01T12:00:00Z","is_reconstructed":true,
			"source":"ladder_levels","selections":[
				{"selection_id":47972,"best_back_price":2.1,"best_back_size":120,"best_lay_price":2.12,"best_lay_size":80},
				{"selection_id":"58805","best_back_price":null}
			],"liquidity":{"total_matched":50000,"available_to_back":null,"available_to_lay":900}}`))
	})

	if _, err := c.ReplaySnapshot(context.Background(), "missing", nil); !errors.Is(err, ErrNoTickData) {
		t.Errorf("Expected ErrNoTickData, got %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap, err := c.ReplaySnapshot(context.Background(), "1.1", &at)
	if err != nil {
		t.Fatalf("ReplaySnapshot failed: %v", err)
	}
	if len(snap.Selections) != 2 || snap.Selections[0].SelectionID != "47972" || snap.Selections[1].SelectionID != "58805" {
		t.Errorf("Unexpected selections %+v", snap.Selections)
	}
	if s := snap.Selections[0].Best.Spread(); s == nil || *s < 0.019 || *s > 0.021 {
		t.Errorf("Unexpected spread %v", s)
	}
	if snap.TotalMatched == nil || *snap.TotalMatched != 50000 || snap.AvailableToBack != nil {
		t.Errorf("Unexpected liquidity %+v", snap)
	}
}

func TestBuckets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("event_aware") != "true" {
			t.Error("expected event_aware=true")
		}
		w.Write([]byte(`[
			{"bucket_start":"2026-03-01T12:00:00Z","bucket_end":"2026-03-01T12:15:00Z","tick_count":0,
			 "home_back_odds_median":2.1,"home_best_back_size_l1":10,"impedance_abs_diff_home":4.5},
			{"bucket_start":"2026-03-01T12:15:00","tick_count":4,"home_seconds_covered":450},
			{"bucket_start":null,"tick_count":1},
			{"bucket_start":"2026-03-01T12:30:00Z","bucket_end":"2026-03-01T13:00:00Z","tick_count":1}
		]`))
	})

	bs, err := c.Buckets(context.Background(), "1.1", nil, nil, true)
	if err != nil {
		t.Fatalf("Buckets failed: %v", err)
	}
	if len(bs) != 2 {
		t.Fatalf("Expected 2 valid buckets, got %d", len(bs))
	}
	if bs[0].MedianBackOdds.Home == nil || *bs[0].MedianBackOdds.Home != 2.1 || bs[0].TickCount != 0 {
		t.Errorf("Unexpected first bucket %+v", bs[0])
	}
	if !bs[1].BucketEnd.Equal(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("Missing bucket_end not derived: %v", bs[1].BucketEnd)
	}
}

func TestMarketTicks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/1.1/ticks" || r.URL.Query().Get("limit") != "2000" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"items":[
			{"publish_time":"2026-03-01T12:00:00.123Z","selection_id":1,"home_back_odds":2.0},
			{"publish_time":null,"home_back_odds":9.9},
			{"publish_time":"2026-03-01T12:00:01Z","away_back_odds":3.0,"away_back_size":25}
		]}`))
	})

	rows, err := c.MarketTicks(context.Background(), "1.1", from, to, 0)
	if err != nil {
		t.Fatalf("MarketTicks failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 ticks, got %d", len(rows))
	}
	if rows[0].SelectionID == nil || *rows[0].SelectionID != 1 || rows[0].PublishTime.Nanosecond() != 123000000 {
		t.Errorf("Unexpected first tick %+v", rows[0])
	}
}

func TestEventMeta(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/events/1.234%2Fx/meta" {
			t.Errorf("market id not escaped: %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`{"market_id":"1.234/x","home_runner_name":"Arsenal","home_selection_id":1,
			"away_selection_id":2,"draw_selection_id":58805,"supports_replay_snapshot":true}`))
	})

	meta, err := c.EventMeta(context.Background(), "1.234/x")
	if err != nil {
		t.Fatalf("EventMeta failed: %v", err)
	}
	if meta.HomeRunnerName != "Arsenal" || meta.BucketIntervalMinutes != 15 || !meta.SupportsReplaySnapshot {
		t.Errorf("Unexpected meta %+v", meta)
	}
	if o, ok := meta.OutcomeForSelection(58805); !ok || o != "draw" {
		t.Errorf("OutcomeForSelection = %v, %v", o, ok)
	}
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if _, err := c.DataHorizon(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/events/1.234/buckets":   "/events/{id}/buckets",
		"/events/book-risk-focus": "/events/book-risk-focus",
		"/leagues/EPL/events":     "/leagues/{league}/events",
		"/leagues":                "/leagues",
		"/markets/1.2/ticks":      "/markets/{id}/ticks",
		"/data-horizon":           "/data-horizon",
	}
	for in, want := range tests {
		if got := endpointLabel(in); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarketTicksCapsLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5000" {
			t.Errorf("limit = %s, want 5000", got)
		}
		w.Write([]byte(`[]`))
	})

	if _, err := c.MarketTicks(context.Background(), "1.1", from, to, 20000); err != nil {
		t.Fatalf("MarketTicks failed: %v", err)
	}
}

func TestTimeseries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/1.1/timeseries" || r.URL.Query().Get("interval_minutes") != "15" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`[
			{"snapshot_at":"2026-03-01T12:00:00Z","home_best_back":2.5,"home_book_risk_l3":-40,
			 "impedance_abs_diff_home":12.5,"total_volume":900},
			{"snapshot_at":null,"home_best_back":9}
		]`))
	})

	points, err := c.Timeseries(context.Background(), "1.1", from, to, 0)
	if err != nil {
		t.Fatalf("Timeseries failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}
	p := points[0]
	if *p.BestBack.Home != 2.5 || *p.BookRisk.Home != -40 || *p.ImpedanceAbsDiff.Home != 12.5 {
		t.Errorf("Unexpected point %+v", p)
	}
}

func TestLeagueEvents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/leagues/Serie A/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "100" {
			t.Errorf("limit = %s, want 100", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"items":[{"market_id":"1.7","event_name":"Inter v Milan"},{"market_id":""}]}`))
	})

	events, err := c.LeagueEvents(context.Background(), "Serie A", from, to, WindowOptions{})
	if err != nil {
		t.Fatalf("LeagueEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].MarketID != "1.7" {
		t.Errorf("Unexpected events %+v", events)
	}
}

func TestEventsByDate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/by-date-snapshots" || r.URL.Query().Get("date") != "2026-03-01" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`[{"market_id":"1.8","home_book_risk_l3":10}]`))
	})

	events, err := c.EventsByDate(context.Background(), " 2026-03-01 ")
	if err != nil {
		t.Fatalf("EventsByDate failed: %v", err)
	}
	if len(events) != 1 || *events[0].BookRisk.Home != 10 {
		t.Errorf("Unexpected events %+v", events)
	}
}

func TestAvailableBuckets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/1.1/available-buckets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"market_id":"1.1","bucket_interval_minutes":15,
			"available_buckets":["2026-03-01T12:00:00Z","garbage","2026-03-01T12:15:00Z"],
			"earliest_bucket":"2026-03-01T12:00:00Z","latest_bucket":"2026-03-01T12:15:00Z"}`))
	})

	ab, err := c.AvailableBuckets(context.Background(), "1.1")
	if err != nil {
		t.Fatalf("AvailableBuckets failed: %v", err)
	}
	if len(ab.Buckets) != 2 || ab.Latest == nil || ab.Latest.Minute() != 15 {
		t.Errorf("Unexpected available buckets %+v", ab)
	}
}

func TestDataHorizon(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"oldest_tick":"2026-02-01T00:00:00Z","newest_tick":null,"total_rows":42,
			"days":[{"day":"2026-02-01","ladder_rows":42,"markets":3}]}`))
	})

	h, err := c.DataHorizon(context.Background())
	if err != nil {
		t.Fatalf("DataHorizon failed: %v", err)
	}
	if h.OldestTick == nil || h.NewestTick != nil || h.TotalRows != 42 || len(h.Days) != 1 {
		t.Errorf("Unexpected horizon %+v", h)
	}
}

func TestLatestRaw(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		runners int
		wantErr bool
	}{
		{
			name: "object payload",
			body: `{"market_id":"1.1","snapshot_at":"2026-03-01T12:00:00Z","truncated":false,
				"raw_payload":{"marketId":"1.1","runners":[
					{"selectionId":11,"ex":{"availableToBack":[{"price":2.0,"size":10},{"price":1.98,"size":5}]}},
					{"selectionId":22,"ex":{"availableToBack":[]}}]}}`,
			runners: 2,
		},
		{
			name:    "string payload",
			body:    `{"market_id":"1.1","raw_payload":"{\"runners\":[{\"selectionId\":11,\"ex\":{\"availableToBack\":[{\"price\":3,\"size\":1}]}}]}"}`,
			runners: 1,
		},
		{
			name:    "truncated",
			body:    `{"market_id":"1.1","truncated":true,"raw_payload":"{\"runners\":[ ... [truncated"}`,
			runners: 0,
		},
		{
			name:    "unparseable payload",
			body:    `{"market_id":"1.1","raw_payload":"not a book"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/events/1.1/latest_raw" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.Write([]byte(tt.body))
			})
			book, err := c.LatestRaw(context.Background(), "1.1")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidJSON) {
					t.Errorf("err = %v, want ErrInvalidJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LatestRaw failed: %v", err)
			}
			if len(book.Runners) != tt.runners {
				t.Errorf("runners = %d, want %d", len(book.Runners), tt.runners)
			}
		})
	}
}

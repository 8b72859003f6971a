// Package monitor runs the Book Risk digest: each poll ranks the focus
// events and notifies the top ones that have not been sent recently.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/metrics"
	"github.com/rewired-gh/bookrisk/internal/models"
	"github.com/rewired-gh/bookrisk/internal/prefs"
	"github.com/rewired-gh/bookrisk/internal/ranking"
	"github.com/rewired-gh/bookrisk/internal/riskapi"
)

// Source fetches the focus events.
type Source interface {
	BookRiskFocus(ctx context.Context, from, to time.Time, opts riskapi.FocusOptions) ([]models.EventRankRecord, error)
}

// Store persists digests and the notification history.
type Store interface {
	AddAlerts(ctx context.Context, alerts []models.RiskAlert) error
	SaveNotification(ctx context.Context, rec models.NotifiedRecord) error
	LoadNotifications(ctx context.Context, since time.Time) (map[string]models.NotifiedRecord, error)
	PruneNotifications(ctx context.Context, cutoff time.Time) error
}

// Notifier delivers digests and cycle health messages.
type Notifier interface {
	SendDigest(alerts []models.RiskAlert) error
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

type Config struct {
	PollInterval       time.Duration
	TopK               int
	CooldownMultiplier int

	Lookback        time.Duration
	Window          time.Duration
	IncludeInPlay   bool
	Limit           int
	RequireBookRisk bool
	ExcludeStale    bool
}

func DefaultConfig() Config {
	return Config{
		PollInterval:       15 * time.Minute,
		TopK:               10,
		CooldownMultiplier: 4,
		Lookback:           2 * time.Hour,
		Window:             24 * time.Hour,
		IncludeInPlay:      true,
		Limit:              500,
		RequireBookRisk:    true,
	}
}

// Cooldown is how long a market stays quiet after being notified.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMultiplier) * c.PollInterval
}

type Monitor struct {
	source   Source
	store    Store
	prefs    *prefs.SortStates
	notifier Notifier
	metrics  *metrics.Metrics
	config   Config

	notified            map[string]models.NotifiedRecord
	consecutiveFailures int
	now                 func() time.Time
}

// New builds a monitor. notifier and m may be nil.
func New(source Source, store Store, sortStates *prefs.SortStates, notifier Notifier, m *metrics.Metrics, config Config) *Monitor {
	mon := &Monitor{
		source:   source,
		store:    store,
		prefs:    sortStates,
		notifier: notifier,
		metrics:  m,
		config:   config,
		notified: make(map[string]models.NotifiedRecord),
		now:      time.Now,
	}

	since := mon.now().Add(-config.Cooldown())
	persisted, err := store.LoadNotifications(context.Background(), since)
	if err != nil {
		logger.Warn("Failed to load notification history: %v", err)
	} else {
		mon.notified = persisted
		logger.Info("Loaded %d recent notifications", len(persisted))
	}

	return mon
}

// Select ranks events and turns the top K with a primary value into alerts.
func (m *Monitor) Select(events []models.EventRankRecord, state models.SortState) []models.RiskAlert {
	filter := ranking.Filter{
		RequireBookRisk: m.config.RequireBookRisk,
		ExcludeStale:    m.config.ExcludeStale,
	}
	ranked := ranking.Rank(events, filter, state)

	detectedAt := m.now().UTC()
	alerts := make([]models.RiskAlert, 0, m.config.TopK)
	for _, e := range ranked {
		if len(alerts) >= m.config.TopK {
			break
		}
		value := primaryValue(e, state.Field)
		if value == nil {
			continue
		}
		alerts = append(alerts, models.RiskAlert{
			ID:              uuid.NewString(),
			MarketID:        e.MarketID,
			EventName:       e.DisplayName(),
			CompetitionName: e.CompetitionName,
			EventOpenDate:   e.EventOpenDate,
			Rank:            len(alerts) + 1,
			Field:           state.Field,
			Value:           value,
			BookRisk:        e.BookRisk,
			Volume:          e.TotalVolume,
			DetectedAt:      detectedAt,
		})
	}
	return alerts
}

func primaryValue(e models.EventRankRecord, field models.SortField) *float64 {
	v := e.TotalVolume
	if o, ok := field.Outcome(); ok {
		v = e.BookRisk.Get(o)
	}
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func signFlipped(prev, cur float64) bool {
	return (prev > 0 && cur < 0) || (prev < 0 && cur > 0)
}

// FilterRecentlySent drops markets notified within the cooldown unless the
// sort field changed or the primary value flipped sign.
func (m *Monitor) FilterRecentlySent(alerts []models.RiskAlert, cooldown time.Duration) []models.RiskAlert {
	now := m.now()
	var result []models.RiskAlert

	for _, alert := range alerts {
		rec, exists := m.notified[alert.MarketID]
		if exists && now.Sub(rec.SentAt) < cooldown && rec.Field == alert.Field {
			if !signFlipped(rec.Value, *alert.Value) {
				continue
			}
		}
		result = append(result, alert)
	}

	return result
}

// RecordNotified remembers sent alerts and prunes history past the cooldown.
func (m *Monitor) RecordNotified(ctx context.Context, alerts []models.RiskAlert) {
	now := m.now()
	for _, alert := range alerts {
		rec := models.NotifiedRecord{
			MarketID: alert.MarketID,
			Field:    alert.Field,
			Value:    *alert.Value,
			Rank:     alert.Rank,
			SentAt:   now,
		}
		m.notified[alert.MarketID] = rec
		if err := m.store.SaveNotification(ctx, rec); err != nil {
			logger.Warn("Failed to save notification for %s: %v", alert.MarketID, err)
		}
	}

	cutoff := now.Add(-m.config.Cooldown())
	for id, rec := range m.notified {
		if rec.SentAt.Before(cutoff) {
			delete(m.notified, id)
		}
	}
	if err := m.store.PruneNotifications(ctx, cutoff); err != nil {
		logger.Warn("Failed to prune notifications: %v", err)
	}
}

// RunCycle performs one digest poll.
func (m *Monitor) RunCycle(ctx context.Context) error {
	startTime := m.now()
	logger.Info("Starting digest cycle")

	now := startTime.UTC()
	events, err := m.source.BookRiskFocus(ctx, now.Add(-m.config.Lookback), now.Add(m.config.Window), riskapi.FocusOptions{
		WindowOptions: riskapi.WindowOptions{
			IncludeInPlay: m.config.IncludeInPlay,
			Limit:         m.config.Limit,
		},
		RequireBookRisk: m.config.RequireBookRisk,
	})
	if err != nil {
		m.metrics.RecordDigest("error", 0)
		return fmt.Errorf("failed to fetch focus events: %w", err)
	}
	logger.Debug("Fetched %d focus events", len(events))

	state := m.prefs.Load(ctx)
	digest := m.Select(events, state)
	logger.Info("Selected %d events by %s", len(digest), state.Field)

	if len(digest) > 0 {
		if err := m.store.AddAlerts(ctx, digest); err != nil {
			logger.Warn("Failed to store digest: %v", err)
		}
	}

	fresh := m.FilterRecentlySent(digest, m.config.Cooldown())
	if len(fresh) == 0 {
		logger.Info("No new events to notify this cycle")
		m.metrics.RecordDigest("ok", 0)
		return nil
	}

	if m.notifier == nil {
		logger.Debug("%d events selected but notifications are disabled", len(fresh))
		m.metrics.RecordDigest("ok", 0)
		return nil
	}

	if err := m.notifier.SendDigest(fresh); err != nil {
		logger.Error("Failed to send digest: %v", err)
		m.metrics.RecordDigest("send_error", 0)
		return nil
	}
	m.RecordNotified(ctx, fresh)
	m.metrics.RecordDigest("ok", len(fresh))

	logger.Info("Digest cycle completed in %v, notified %d events", m.now().Sub(startTime), len(fresh))
	return nil
}

// HandleCycleResult sends an error message on the first failure of a run
// and a recovery message once a cycle succeeds again.
func (m *Monitor) HandleCycleResult(err error) {
	if err != nil {
		m.consecutiveFailures++
		logger.Error("Digest cycle failed: %v", err)
		if m.consecutiveFailures == 1 && m.notifier != nil {
			if sendErr := m.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification: %v", sendErr)
			}
		}
		return
	}

	if m.consecutiveFailures > 0 && m.notifier != nil {
		if sendErr := m.notifier.SendRecovery(m.consecutiveFailures); sendErr != nil {
			logger.Warn("Failed to send recovery notification: %v", sendErr)
		}
	}
	m.consecutiveFailures = 0
}

// Run polls until ctx is cancelled, starting with an immediate cycle.
func (m *Monitor) Run(ctx context.Context) {
	logger.Info("Starting digest monitor (interval: %v, top_k: %d, cooldown: %v)",
		m.config.PollInterval, m.config.TopK, m.config.Cooldown())

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	m.HandleCycleResult(m.RunCycle(ctx))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Digest monitor stopped")
			return
		case <-ticker.C:
			m.HandleCycleResult(m.RunCycle(ctx))
		}
	}
}

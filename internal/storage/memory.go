package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
)

// Memory is a process-local store used when no database is configured and
// as the fallback when a persistent write fails.
type Memory struct {
	mu            sync.RWMutex
	values        map[string]string
	digest        []models.RiskAlert
	notifications map[string]models.NotifiedRecord
}

func NewMemory() *Memory {
	return &Memory{
		values:        make(map[string]string),
		notifications: make(map[string]models.NotifiedRecord),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) AddAlerts(_ context.Context, alerts []models.RiskAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digest = append([]models.RiskAlert(nil), alerts...)
	return nil
}

func (m *Memory) LatestDigest(_ context.Context) ([]models.RiskAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RiskAlert{}, m.digest...), nil
}

func (m *Memory) SaveNotification(_ context.Context, rec models.NotifiedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[rec.MarketID] = rec
	return nil
}

func (m *Memory) LoadNotifications(_ context.Context, since time.Time) (map[string]models.NotifiedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.NotifiedRecord)
	for id, rec := range m.notifications {
		if !rec.SentAt.Before(since) {
			out[id] = rec
		}
	}
	return out, nil
}

func (m *Memory) PruneNotifications(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.notifications {
		if rec.SentAt.Before(cutoff) {
			delete(m.notifications, id)
		}
	}
	return nil
}

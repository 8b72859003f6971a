// Package storage provides persistence for user preferences, digest alerts,
// and notification cooldowns. SQLite is the primary backend; Redis and an
// in-memory map implement the key-value subset.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/bookrisk/internal/models"
	_ "modernc.org/sqlite"
)

// KV is a string key-value store.
type KV interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/bookrisk/data.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "bookrisk", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id               TEXT PRIMARY KEY,
			market_id        TEXT NOT NULL,
			event_name       TEXT,
			competition_name TEXT,
			event_open_date  TEXT,
			rank             INTEGER NOT NULL,
			field            TEXT NOT NULL,
			value            REAL,
			risk_home        REAL,
			risk_away        REAL,
			risk_draw        REAL,
			volume           REAL,
			detected_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at DESC)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			market_id TEXT PRIMARY KEY,
			field     TEXT NOT NULL,
			value     REAL NOT NULL,
			rank      INTEGER NOT NULL,
			sent_at   INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference: %w", err)
	}
	return value, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences (key, value, updated_at)
		VALUES (?,?,?)`, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

// AddAlerts stores one digest and trims the history to maxAlerts rows.
func (s *Storage) AddAlerts(ctx context.Context, alerts []models.RiskAlert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, a := range alerts {
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO alerts
				(id, market_id, event_name, competition_name, event_open_date, rank, field,
				 value, risk_home, risk_away, risk_draw, volume, detected_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			a.ID, a.MarketID, a.EventName, a.CompetitionName, a.EventOpenDate, a.Rank, string(a.Field),
			nullable(a.Value), nullable(a.BookRisk.Home), nullable(a.BookRisk.Away), nullable(a.BookRisk.Draw),
			nullable(a.Volume), a.DetectedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if s.maxAlerts > 0 {
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM alerts WHERE id NOT IN (
				SELECT id FROM alerts ORDER BY detected_at DESC, rank ASC LIMIT ?
			)`, s.maxAlerts); err != nil {
			return fmt.Errorf("failed to enforce alert cap: %w", err)
		}
	}

	return tx.Commit()
}

// LatestDigest returns the most recently stored digest ordered by rank.
func (s *Storage) LatestDigest(ctx context.Context) ([]models.RiskAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, event_name, competition_name, event_open_date, rank, field,
		       value, risk_home, risk_away, risk_draw, volume, detected_at
		FROM alerts
		WHERE detected_at = (SELECT MAX(detected_at) FROM alerts)
		ORDER BY rank ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.RiskAlert{}
	for rows.Next() {
		var a models.RiskAlert
		var field string
		var value, home, away, draw, volume sql.NullFloat64
		var detectedAtNano int64

		err := rows.Scan(
			&a.ID, &a.MarketID, &a.EventName, &a.CompetitionName, &a.EventOpenDate, &a.Rank, &field,
			&value, &home, &away, &draw, &volume, &detectedAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Field = models.SortField(field)
		a.Value = ptr(value)
		a.BookRisk = models.Triplet{Home: ptr(home), Away: ptr(away), Draw: ptr(draw)}
		a.Volume = ptr(volume)
		a.DetectedAt = time.Unix(0, detectedAtNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Storage) SaveNotification(ctx context.Context, rec models.NotifiedRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO notifications (market_id, field, value, rank, sent_at)
		VALUES (?,?,?,?,?)`,
		rec.MarketID, string(rec.Field), rec.Value, rec.Rank, rec.SentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// LoadNotifications returns notifications sent at or after since, keyed by market.
func (s *Storage) LoadNotifications(ctx context.Context, since time.Time) (map[string]models.NotifiedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, field, value, rank, sent_at
		FROM notifications WHERE sent_at >= ?`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.NotifiedRecord)
	for rows.Next() {
		var rec models.NotifiedRecord
		var field string
		var sentAtNano int64
		if err := rows.Scan(&rec.MarketID, &field, &rec.Value, &rec.Rank, &sentAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		rec.Field = models.SortField(field)
		rec.SentAt = time.Unix(0, sentAtNano)
		out[rec.MarketID] = rec
	}
	return out, rows.Err()
}

// PruneNotifications deletes notifications sent before cutoff.
func (s *Storage) PruneNotifications(ctx context.Context, cutoff time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE sent_at < ?`, cutoff.UnixNano()); err != nil {
		return fmt.Errorf("failed to prune notifications: %w", err)
	}
	return nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

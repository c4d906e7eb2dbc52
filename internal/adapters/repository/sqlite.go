package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/epiwatch/internal/domain/model"
)

// Production-safe pragma defaults. WAL keeps readers unblocked during the
// reconciliation write path; NORMAL synchronous is durable across process
// crashes under WAL.
const (
	defaultBusyTimeoutMS = 10_000

	schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	subscriber_id TEXT    NOT NULL,
	country       TEXT    NOT NULL,
	province      TEXT    NOT NULL DEFAULT '',
	confirmed     INTEGER,
	deaths        INTEGER,
	recovered     INTEGER,
	active        INTEGER,
	incident_rate REAL,
	as_of         INTEGER,
	notified_at   INTEGER,
	created_at    INTEGER NOT NULL,
	PRIMARY KEY (subscriber_id, country, province)
);`
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	busyTimeoutMS int

	// Single-writer discipline: SQLite serializes writers anyway, but the
	// mutex keeps our transactions from ever contending on busy_timeout.
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the store at path. ":memory:" is
// accepted for tests. An unreadable or failing database is reported as
// ErrStoreCorrupt so the caller refuses to start with silently-empty state.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		now:           time.Now,
		busyTimeoutMS: defaultBusyTimeoutMS,
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir: %v", ErrStoreCorrupt, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStoreCorrupt, err)
	}
	// One connection: every query sees the same database (required for
	// ":memory:") and writes serialize at the handle.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreCorrupt, p, err)
		}
	}

	var verdict string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&verdict); err != nil || verdict != "ok" {
		db.Close()
		return nil, fmt.Errorf("%w: quick_check: %q %v", ErrStoreCorrupt, verdict, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrStoreCorrupt, err)
	}

	s.db = db
	return s, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Subscribe records a watch, idempotently.
func (s *SQLiteStore) Subscribe(ctx context.Context, subscriberID string, r model.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO subscriptions (subscriber_id, country, province, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (subscriber_id, country, province) DO NOTHING`,
		subscriberID, r.Country, r.Province, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("subscribe %s/%s: %w", subscriberID, r, err)
	}
	return nil
}

// Unsubscribe removes a watch.
func (s *SQLiteStore) Unsubscribe(ctx context.Context, subscriberID string, r model.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
DELETE FROM subscriptions WHERE subscriber_id = ? AND country = ? AND province = ?`,
		subscriberID, r.Country, r.Province)
	if err != nil {
		return fmt.Errorf("unsubscribe %s/%s: %w", subscriberID, r, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotSubscribed, subscriberID, r)
	}
	return nil
}

// ListFor returns the regions a subscriber watches.
func (s *SQLiteStore) ListFor(ctx context.Context, subscriberID string) ([]model.Region, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT country, province FROM subscriptions
WHERE subscriber_id = ? ORDER BY country, province`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list for %s: %w", subscriberID, err)
	}
	defer rows.Close()

	var out []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.Country, &r.Province); err != nil {
			return nil, fmt.Errorf("list for %s: %w", subscriberID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllSubscriptions returns every subscription in stable order.
func (s *SQLiteStore) AllSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT subscriber_id, country, province,
       confirmed, deaths, recovered, active, incident_rate, as_of, notified_at
FROM subscriptions ORDER BY subscriber_id, country, province`)
	if err != nil {
		return nil, fmt.Errorf("all subscriptions: %w", err)
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var confirmed, deaths, recovered, active, asOf, notifiedAt sql.NullInt64
		var rate sql.NullFloat64
		if err := rows.Scan(&sub.SubscriberID, &sub.Region.Country, &sub.Region.Province,
			&confirmed, &deaths, &recovered, &active, &rate, &asOf, &notifiedAt); err != nil {
			return nil, fmt.Errorf("all subscriptions: %w", err)
		}
		if notifiedAt.Valid {
			m := model.MetricSet{
				Confirmed:    nullMetric(confirmed),
				Deaths:       nullMetric(deaths),
				Recovered:    nullMetric(recovered),
				Active:       nullMetric(active),
				IncidentRate: model.Rate{Value: rate.Float64, Known: rate.Valid},
			}
			if asOf.Valid {
				m.AsOf = time.UnixMilli(asOf.Int64).UTC()
			}
			sub.LastNotified = &m
			sub.NotifiedAt = time.UnixMilli(notifiedAt.Int64).UTC()
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// RecordNotified replaces a subscription's last-notified baseline.
func (s *SQLiteStore) RecordNotified(ctx context.Context, subscriberID string, r model.Region, m model.MetricSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
UPDATE subscriptions
SET confirmed = ?, deaths = ?, recovered = ?, active = ?,
    incident_rate = ?, as_of = ?, notified_at = ?
WHERE subscriber_id = ? AND country = ? AND province = ?`,
		metricNull(m.Confirmed), metricNull(m.Deaths), metricNull(m.Recovered), metricNull(m.Active),
		rateNull(m.IncidentRate), asOfNull(m.AsOf), s.now().UnixMilli(),
		subscriberID, r.Country, r.Province)
	if err != nil {
		return fmt.Errorf("record notified %s/%s: %w", subscriberID, r, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotSubscribed, subscriberID, r)
	}
	return nil
}

// CountFor returns the number of regions a subscriber watches.
func (s *SQLiteStore) CountFor(ctx context.Context, subscriberID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ?`, subscriberID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count for %s: %w", subscriberID, err)
	}
	return n, nil
}

func nullMetric(v sql.NullInt64) model.Metric {
	return model.Metric{Value: v.Int64, Known: v.Valid}
}

func metricNull(m model.Metric) sql.NullInt64 {
	return sql.NullInt64{Int64: m.Value, Valid: m.Known}
}

func rateNull(r model.Rate) sql.NullFloat64 {
	return sql.NullFloat64{Float64: r.Value, Valid: r.Known}
}

func asOfNull(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: !t.IsZero()}
}

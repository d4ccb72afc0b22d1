package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	// Pure-Go driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_outbox (
	delivery_id TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	trace_id    TEXT NOT NULL,
	type        TEXT NOT NULL,
	source      TEXT NOT NULL,
	subject     TEXT NOT NULL,
	event_time  INTEGER NOT NULL,
	status      TEXT NOT NULL,
	key_alias   TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_outbox_time ON usage_outbox(event_time);
CREATE INDEX IF NOT EXISTS idx_usage_outbox_trace ON usage_outbox(trace_id);
`

// SQLiteSink stores events in a local outbox table and prunes old rows on a
// cron schedule.
type SQLiteSink struct {
	name      string
	db        *sql.DB
	retention time.Duration
	cron      *cron.Cron

	closeOnce sync.Once
}

// NewSQLiteSink opens (or creates) the database at dsn. A non-empty schedule
// with a positive retention starts the pruner.
func NewSQLiteSink(name, dsn string, retention time.Duration, schedule string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open: %w", err)
	}
	// One writer connection; sqlite serialises writes anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{name: name, db: db, retention: retention}
	if err := s.initialize(dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	if schedule != "" && retention > 0 {
		if _, err := cron.ParseStandard(schedule); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite sink: invalid prune schedule %q: %w", schedule, err)
		}
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(schedule, s.runPrune); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite sink: schedule pruning: %w", err)
		}
		s.cron.Start()
		log.Info().Str("sink", name).Str("schedule", schedule).Dur("retention", retention).Msg("usage outbox pruner started")
	}
	return s, nil
}

func (s *SQLiteSink) initialize(dsn string) error {
	if !strings.Contains(dsn, ":memory:") {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("sqlite sink: enable wal: %w", err)
		}
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("sqlite sink: busy timeout: %w", err)
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("sqlite sink: create schema: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Name() string { return s.name }

// Publish inserts the event keyed by its delivery id. Redelivery of the same
// event is ignored; distinct requests sharing a trace each get a row.
func (s *SQLiteSink) Publish(ctx context.Context, ev CloudEvent) error {
	payload, err := ev.DataJSON()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO usage_outbox
		 (delivery_id, event_id, trace_id, type, source, subject, event_time, status, key_alias, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.DeliveryID(), ev.ID, ev.Data.TraceID, ev.Type, ev.Source, ev.Subject, ev.Time.UnixMilli(),
		string(ev.Data.Status), ev.Data.KeyAlias, string(payload),
	)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert: %w", err)
	}
	return nil
}

// Prune deletes events older than before and returns how many were removed.
func (s *SQLiteSink) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_outbox WHERE event_time < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite sink: prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteSink) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.Prune(ctx, time.Now().Add(-s.retention))
	if err != nil {
		log.Error().Err(err).Str("sink", s.name).Msg("usage outbox pruning failed")
		return
	}
	if deleted > 0 {
		log.Info().Str("sink", s.name).Int64("deleted", deleted).Msg("usage outbox pruned")
	}
}

// Count returns the number of stored events.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_outbox`).Scan(&n)
	return n, err
}

// Close stops the pruner, waiting for a running prune, then closes the database.
func (s *SQLiteSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		err = s.db.Close()
	})
	return err
}

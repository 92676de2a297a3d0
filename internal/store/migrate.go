package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// migrations is the forward-only, versioned migration list. The applied
// version lives in schema_meta; Migrate runs everything above it in order.
// Never edit an entry that has shipped — append.
var migrations = []string{
	// v1: base schema.
	`
	CREATE TABLE IF NOT EXISTS events (
		id             TEXT PRIMARY KEY,
		pvid           TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		short_title    TEXT NOT NULL DEFAULT '',
		synopsis       TEXT NOT NULL DEFAULT '',
		brief_synopsis TEXT NOT NULL DEFAULT '',
		channel_name   TEXT NOT NULL DEFAULT '',
		channel_id     TEXT NOT NULL DEFAULT '',
		start_utc      TEXT NOT NULL,
		end_utc        TEXT NOT NULL,
		start_ms       INTEGER NOT NULL,
		end_ms         INTEGER NOT NULL,
		runtime_secs   INTEGER NOT NULL DEFAULT 0,
		is_free        INTEGER NOT NULL DEFAULT 0,
		is_premium     INTEGER NOT NULL DEFAULT 0,
		hero_image_url TEXT NOT NULL DEFAULT '',
		genres         TEXT NOT NULL DEFAULT '[]',
		classification TEXT NOT NULL DEFAULT '[]',
		raw_payload    TEXT NOT NULL DEFAULT '',
		last_seen      TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_window ON events(start_ms, end_ms);
	CREATE INDEX IF NOT EXISTS idx_events_pvid ON events(pvid);

	CREATE TABLE IF NOT EXISTS playables (
		event_id          TEXT NOT NULL,
		playable_id       TEXT NOT NULL,
		provider          TEXT NOT NULL DEFAULT '',
		service_name      TEXT NOT NULL DEFAULT '',
		logical_service   TEXT NOT NULL DEFAULT '',
		deeplink_play     TEXT NOT NULL DEFAULT '',
		deeplink_open     TEXT NOT NULL DEFAULT '',
		http_deeplink_url TEXT,
		playable_url      TEXT NOT NULL DEFAULT '',
		variant           TEXT NOT NULL DEFAULT '',
		content_id        TEXT NOT NULL DEFAULT '',
		locale            TEXT,
		priority          INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (event_id, playable_id)
	);
	CREATE INDEX IF NOT EXISTS idx_playables_service ON playables(logical_service);

	CREATE TABLE IF NOT EXISTS event_images (
		event_id TEXT NOT NULL,
		img_type TEXT NOT NULL,
		url      TEXT NOT NULL,
		PRIMARY KEY (event_id, img_type, url)
	);

	CREATE TABLE IF NOT EXISTS user_prefs (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lanes (
		lane_id        INTEGER PRIMARY KEY,
		display_name   TEXT NOT NULL,
		logical_number INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lane_events (
		lane_id                INTEGER NOT NULL,
		event_id               TEXT NOT NULL DEFAULT '',
		start_utc              TEXT NOT NULL,
		end_utc                TEXT NOT NULL,
		start_ms               INTEGER NOT NULL,
		end_ms                 INTEGER NOT NULL,
		is_placeholder         INTEGER NOT NULL DEFAULT 0,
		chosen_playable_id     TEXT NOT NULL DEFAULT '',
		chosen_provider        TEXT NOT NULL DEFAULT '',
		chosen_logical_service TEXT NOT NULL DEFAULT '',
		chosen_deeplink        TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (lane_id, event_id, start_utc)
	);
	CREATE INDEX IF NOT EXISTS idx_lane_events_window ON lane_events(lane_id, start_ms, end_ms);
	`,
	// v2: per-provider (ADB) lanes and their admin config.
	`
	CREATE TABLE IF NOT EXISTS adb_lanes (
		provider_code TEXT NOT NULL,
		lane_number   INTEGER NOT NULL,
		channel_id    TEXT NOT NULL,
		event_id      TEXT NOT NULL,
		start_utc     TEXT NOT NULL,
		stop_utc      TEXT NOT NULL,
		start_ms      INTEGER NOT NULL,
		end_ms        INTEGER NOT NULL,
		PRIMARY KEY (provider_code, lane_number, start_utc)
	);
	CREATE INDEX IF NOT EXISTS idx_adb_lanes_window ON adb_lanes(provider_code, lane_number, start_ms, end_ms);

	CREATE TABLE IF NOT EXISTS provider_lanes (
		provider_code  TEXT PRIMARY KEY,
		adb_enabled    INTEGER NOT NULL DEFAULT 0,
		adb_lane_count INTEGER NOT NULL DEFAULT 0,
		updated_at     TEXT NOT NULL DEFAULT ''
	);
	`,
	// v3: Amazon GTI→channel map (filled by the channel crawler) and provider
	// auth blobs (singleton per upstream).
	`
	CREATE TABLE IF NOT EXISTS amazon_channels (
		gti             TEXT PRIMARY KEY,
		logical_service TEXT NOT NULL,
		channel_name    TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS auth_blobs (
		upstream    TEXT NOT NULL,
		id          INTEGER NOT NULL DEFAULT 1,
		device_id   TEXT NOT NULL DEFAULT '',
		user_id     TEXT NOT NULL DEFAULT '',
		session_key TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL DEFAULT '',
		updated_at  TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (upstream, id)
	);
	`,
	// v4: reair flag and ESPN graph enrichment arrived with the Apple ingester.
	`
	ALTER TABLE events ADD COLUMN is_reair INTEGER NOT NULL DEFAULT 0;
	ALTER TABLE playables ADD COLUMN espn_graph_id TEXT NOT NULL DEFAULT '';
	`,
}

// Migrate applies pending migrations. Idempotent: a second run is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_meta (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_meta: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary (max %d)", version, len(migrations))
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET version = ?`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("bump schema version to %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta LIMIT 1`).Scan(&v)
	return v, err
}

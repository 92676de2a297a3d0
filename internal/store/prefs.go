package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetPref unmarshals the JSON value stored under key into out. Returns
// ErrNotFound when the key has never been set.
func (s *Store) GetPref(ctx context.Context, key string, out any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM user_prefs WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// SetPref stores value under key as JSON.
func (s *Store) SetPref(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal pref %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_prefs (key, value) VALUES (?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, string(raw))
	return err
}

// AllPrefs returns every preference key with its raw JSON value.
func (s *Store) AllPrefs(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM user_prefs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]json.RawMessage{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

// AmazonChannel is one crawled GTI→channel mapping.
type AmazonChannel struct {
	GTI            string `json:"gti"`
	LogicalService string `json:"logical_service"`
	ChannelName    string `json:"channel_name"`
}

// UpsertAmazonChannels replaces-or-inserts crawled GTI rows.
func (s *Store) UpsertAmazonChannels(ctx context.Context, rows []AmazonChannel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO amazon_channels (gti, logical_service, channel_name, updated_at)
			VALUES (?,?,?,?)
			ON CONFLICT(gti) DO UPDATE SET
				logical_service=excluded.logical_service,
				channel_name=excluded.channel_name,
				updated_at=excluded.updated_at`,
			r.GTI, r.LogicalService, r.ChannelName, now); err != nil {
			return fmt.Errorf("upsert gti %s: %w", r.GTI, err)
		}
	}
	return tx.Commit()
}

// AmazonChannelLookup loads the whole GTI map once and returns a lookup
// closure for the service mapper. The map is small (hundreds of rows) and a
// refresh touches every playable, so one read beats per-row queries.
func (s *Store) AmazonChannelLookup(ctx context.Context) (func(gti string) (string, bool), error) {
	rows, err := s.db.QueryContext(ctx, `SELECT gti, logical_service FROM amazon_channels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := map[string]string{}
	for rows.Next() {
		var gti, svc string
		if err := rows.Scan(&gti, &svc); err != nil {
			return nil, err
		}
		m[gti] = svc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return func(gti string) (string, bool) {
		svc, ok := m[gti]
		return svc, ok
	}, nil
}

// AuthBlob holds one upstream's session material (Apple UTS tokens, Victory+
// guest session, …). Singleton per upstream: id is always 1.
type AuthBlob struct {
	Upstream   string    `json:"upstream"`
	DeviceID   string    `json:"device_id"`
	UserID     string    `json:"user_id"`
	SessionKey string    `json:"session_key"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuthBlobFor returns the upstream's auth blob, or ErrNotFound.
func (s *Store) AuthBlobFor(ctx context.Context, upstream string) (*AuthBlob, error) {
	var b AuthBlob
	var created, updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT upstream, device_id, user_id, session_key, created_at, updated_at
		FROM auth_blobs WHERE upstream = ? AND id = 1`, upstream).
		Scan(&b.Upstream, &b.DeviceID, &b.UserID, &b.SessionKey, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, created)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &b, nil
}

// SaveAuthBlob stores the singleton blob for an upstream. An empty DeviceID
// gets a fresh UUID so re-auth flows always present a stable device identity.
func (s *Store) SaveAuthBlob(ctx context.Context, b *AuthBlob) error {
	if b.DeviceID == "" {
		b.DeviceID = uuid.NewString()
	}
	now := time.Now().UTC()
	created := b.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_blobs (upstream, id, device_id, user_id, session_key, created_at, updated_at)
		VALUES (?,1,?,?,?,?,?)
		ON CONFLICT(upstream, id) DO UPDATE SET
			device_id=excluded.device_id, user_id=excluded.user_id,
			session_key=excluded.session_key, updated_at=excluded.updated_at`,
		b.Upstream, b.DeviceID, b.UserID, b.SessionKey,
		created.Format(time.RFC3339), now.Format(time.RFC3339))
	return err
}

// DeleteAuthBlob drops an upstream's blob (force re-auth).
func (s *Store) DeleteAuthBlob(ctx context.Context, upstream string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_blobs WHERE upstream = ?`, upstream)
	return err
}

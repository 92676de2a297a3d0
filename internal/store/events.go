package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldlane/fieldlane/internal/catalog"
)

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("not found")

// UpsertEvent writes an event with its playables and images in one
// transaction. Existing playables for the event are deleted and reinserted so
// feeds that disappeared upstream disappear here too; images are de-duplicated
// by their (event, type, url) key.
func (s *Store) UpsertEvent(ctx context.Context, e *catalog.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	genres, err := json.Marshal(e.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}
	class, err := json.Marshal(e.Class)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}
	lastSeen := e.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, pvid, title, short_title, synopsis, brief_synopsis,
			channel_name, channel_id, start_utc, end_utc, start_ms, end_ms,
			runtime_secs, is_free, is_premium, is_reair, hero_image_url,
			genres, classification, raw_payload, last_seen)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			pvid=excluded.pvid, title=excluded.title, short_title=excluded.short_title,
			synopsis=excluded.synopsis, brief_synopsis=excluded.brief_synopsis,
			channel_name=excluded.channel_name, channel_id=excluded.channel_id,
			start_utc=excluded.start_utc, end_utc=excluded.end_utc,
			start_ms=excluded.start_ms, end_ms=excluded.end_ms,
			runtime_secs=excluded.runtime_secs, is_free=excluded.is_free,
			is_premium=excluded.is_premium, is_reair=excluded.is_reair,
			hero_image_url=excluded.hero_image_url, genres=excluded.genres,
			classification=excluded.classification, raw_payload=excluded.raw_payload,
			last_seen=excluded.last_seen`,
		e.ID, e.PVID, e.Title, e.ShortTitle, e.Synopsis, e.BriefSynopsis,
		e.ChannelName, e.ChannelID, e.StartUTC, e.EndUTC, e.StartMS, e.EndMS,
		e.RuntimeSecs, boolInt(e.IsFree), boolInt(e.IsPremium), boolInt(e.IsReair),
		e.HeroImageURL, string(genres), string(class), e.RawPayload,
		lastSeen.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM playables WHERE event_id = ?`, e.ID); err != nil {
		return fmt.Errorf("clear playables for %s: %w", e.ID, err)
	}
	for _, p := range e.Playables {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = lastSeen
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO playables (event_id, playable_id, provider, service_name,
				logical_service, deeplink_play, deeplink_open, http_deeplink_url,
				playable_url, variant, content_id, locale, priority, espn_graph_id,
				created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.ID, p.PlayableID, p.Provider, p.ServiceName, p.LogicalService,
			p.DeeplinkPlay, p.DeeplinkOpen, nullStr(p.HTTPDeeplink), p.PlayableURL,
			p.Variant, p.ContentID, nullStr(p.Locale), p.Priority, p.ESPNGraphID,
			createdAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert playable %s/%s: %w", e.ID, p.PlayableID, err)
		}
	}

	for _, img := range e.Images {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_images (event_id, img_type, url) VALUES (?,?,?)
			ON CONFLICT(event_id, img_type, url) DO NOTHING`,
			e.ID, img.Type, img.URL)
		if err != nil {
			return fmt.Errorf("insert image for %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

const eventCols = `id, pvid, title, short_title, synopsis, brief_synopsis,
	channel_name, channel_id, start_utc, end_utc, start_ms, end_ms, runtime_secs,
	is_free, is_premium, is_reair, hero_image_url, genres, classification,
	raw_payload, last_seen`

func scanEvent(scan func(...any) error) (*catalog.Event, error) {
	var e catalog.Event
	var isFree, isPremium, isReair int
	var genres, class, lastSeen string
	err := scan(&e.ID, &e.PVID, &e.Title, &e.ShortTitle, &e.Synopsis,
		&e.BriefSynopsis, &e.ChannelName, &e.ChannelID, &e.StartUTC, &e.EndUTC,
		&e.StartMS, &e.EndMS, &e.RuntimeSecs, &isFree, &isPremium, &isReair,
		&e.HeroImageURL, &genres, &class, &e.RawPayload, &lastSeen)
	if err != nil {
		return nil, err
	}
	e.IsFree, e.IsPremium, e.IsReair = isFree != 0, isPremium != 0, isReair != 0
	if genres != "" {
		json.Unmarshal([]byte(genres), &e.Genres)
	}
	if class != "" {
		json.Unmarshal([]byte(class), &e.Class)
	}
	if t, err := time.Parse(time.RFC3339, lastSeen); err == nil {
		e.LastSeen = t
	}
	return &e, nil
}

// EventsInWindow returns events overlapping [now-daysBack, now+daysForward]:
// end >= window start and start <= window end, ordered by start, end, title,
// id so emission is deterministic.
func (s *Store) EventsInWindow(ctx context.Context, now time.Time, daysBack, daysForward int) ([]*catalog.Event, error) {
	lo := now.AddDate(0, 0, -daysBack).UnixMilli()
	hi := now.AddDate(0, 0, daysForward).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventCols+` FROM events
		WHERE end_ms >= ? AND start_ms <= ?
		ORDER BY start_ms, end_ms, title, id`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("window query: %w", err)
	}
	defer rows.Close()
	var out []*catalog.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachPlayables(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EventByID returns one event with its playables, or ErrNotFound.
func (s *Store) EventByID(ctx context.Context, id string) (*catalog.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	evs := []*catalog.Event{e}
	if err := s.attachPlayables(ctx, evs); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) attachPlayables(ctx context.Context, events []*catalog.Event) error {
	byID := make(map[string]*catalog.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	// One pass over playables beats N queries for a 7-day window.
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, playable_id, provider, service_name, logical_service,
			deeplink_play, deeplink_open, COALESCE(http_deeplink_url, ''),
			playable_url, variant, content_id, COALESCE(locale, ''), priority,
			espn_graph_id, created_at
		FROM playables ORDER BY event_id, priority DESC, playable_id`)
	if err != nil {
		return fmt.Errorf("load playables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p catalog.Playable
		var createdAt string
		if err := rows.Scan(&p.EventID, &p.PlayableID, &p.Provider, &p.ServiceName,
			&p.LogicalService, &p.DeeplinkPlay, &p.DeeplinkOpen, &p.HTTPDeeplink,
			&p.PlayableURL, &p.Variant, &p.ContentID, &p.Locale, &p.Priority,
			&p.ESPNGraphID, &createdAt); err != nil {
			return err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			p.CreatedAt = t
		}
		if e, ok := byID[p.EventID]; ok {
			e.Playables = append(e.Playables, p)
		}
	}
	return rows.Err()
}

// DedupeByPVID resolves duplicate external ids: the freshest row (greatest
// last_seen, then latest start, then latest end) wins; the rest are deleted.
// Returns how many rows were discarded.
func (s *Store) DedupeByPVID(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM events WHERE id NOT IN (
			SELECT id FROM events e1 WHERE NOT EXISTS (
				SELECT 1 FROM events e2 WHERE e2.pvid = e1.pvid AND e2.id != e1.id
				AND (e2.last_seen > e1.last_seen
					OR (e2.last_seen = e1.last_seen AND e2.start_ms > e1.start_ms)
					OR (e2.last_seen = e1.last_seen AND e2.start_ms = e1.start_ms AND e2.end_ms > e1.end_ms)
					OR (e2.last_seen = e1.last_seen AND e2.start_ms = e1.start_ms AND e2.end_ms = e1.end_ms AND e2.id > e1.id))
			)
		)`)
	if err != nil {
		return 0, fmt.Errorf("dedupe events: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		// Orphaned child rows from the losers.
		s.db.ExecContext(ctx, `DELETE FROM playables WHERE event_id NOT IN (SELECT id FROM events)`)
		s.db.ExecContext(ctx, `DELETE FROM event_images WHERE event_id NOT IN (SELECT id FROM events)`)
	}
	return int(n), nil
}

// PruneEventsBefore removes events that ended before cutoff. Returns rows
// removed.
func (s *Store) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE end_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.db.ExecContext(ctx, `DELETE FROM playables WHERE event_id NOT IN (SELECT id FROM events)`)
		s.db.ExecContext(ctx, `DELETE FROM event_images WHERE event_id NOT IN (SELECT id FROM events)`)
	}
	return int(n), nil
}

// EventStats summarizes the catalog for the admin status endpoint.
type EventStats struct {
	Events        int            `json:"events"`
	Playables     int            `json:"playables"`
	Upcoming      int            `json:"upcoming"`
	ByService     map[string]int `json:"by_service"`
	BySport       map[string]int `json:"by_sport"`
	EarliestStart string         `json:"earliest_start,omitempty"`
	LatestEnd     string         `json:"latest_end,omitempty"`
}

// Stats computes catalog counts.
func (s *Store) Stats(ctx context.Context, now time.Time) (*EventStats, error) {
	st := &EventStats{ByService: map[string]int{}, BySport: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&st.Events); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM playables`).Scan(&st.Playables); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE end_ms > ?`, now.UnixMilli()).Scan(&st.Upcoming); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT logical_service, COUNT(*) FROM playables GROUP BY logical_service`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var svc string
		var n int
		if err := rows.Scan(&svc, &n); err != nil {
			return nil, err
		}
		st.ByService[svc] = n
	}
	grows, err := s.db.QueryContext(ctx, `SELECT genres FROM events WHERE end_ms > ?`, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer grows.Close()
	for grows.Next() {
		var raw string
		if err := grows.Scan(&raw); err != nil {
			return nil, err
		}
		var genres []string
		if json.Unmarshal([]byte(raw), &genres) == nil {
			for _, g := range genres {
				st.BySport[g]++
			}
		}
	}
	var earliest, latest sql.NullString
	s.db.QueryRowContext(ctx, `SELECT MIN(start_utc), MAX(end_utc) FROM events`).Scan(&earliest, &latest)
	st.EarliestStart, st.LatestEnd = earliest.String, latest.String
	return st, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

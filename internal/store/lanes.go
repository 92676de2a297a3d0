package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lane is one virtual channel in the generic pool.
type Lane struct {
	ID            int    `json:"lane_id"`
	DisplayName   string `json:"display_name"`
	LogicalNumber int    `json:"logical_number"`
}

// LaneSlot is one scheduled block on a lane: a real event or a placeholder.
// Chosen* freeze the deeplink decision made at scheduling time so the guide
// and the resolver agree.
type LaneSlot struct {
	LaneID               int    `json:"lane_id"`
	EventID              string `json:"event_id"` // "" for placeholders
	StartUTC             string `json:"start_utc"`
	EndUTC               string `json:"end_utc"`
	StartMS              int64  `json:"start_ms"`
	EndMS                int64  `json:"end_ms"`
	IsPlaceholder        bool   `json:"is_placeholder"`
	ChosenPlayableID     string `json:"chosen_playable_id,omitempty"`
	ChosenProvider       string `json:"chosen_provider,omitempty"`
	ChosenLogicalService string `json:"chosen_logical_service,omitempty"`
	ChosenDeeplink       string `json:"chosen_deeplink,omitempty"`
}

// ADBSlot is one scheduled block on a provider-scoped lane.
type ADBSlot struct {
	ProviderCode string `json:"provider_code"`
	LaneNumber   int    `json:"lane_number"`
	ChannelID    string `json:"channel_id"`
	EventID      string `json:"event_id"`
	StartUTC     string `json:"start_utc"`
	StopUTC      string `json:"stop_utc"`
	StartMS      int64  `json:"start_ms"`
	EndMS        int64  `json:"end_ms"`
}

// ReplaceLanePlan truncates the generic lane tables and writes the new plan
// in one transaction. Plans are regenerated from scratch each refresh; there
// is no incremental reconciliation.
func (s *Store) ReplaceLanePlan(ctx context.Context, lanes []Lane, slots []LaneSlot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lane plan: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM lane_events`); err != nil {
		return fmt.Errorf("truncate lane_events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lanes`); err != nil {
		return fmt.Errorf("truncate lanes: %w", err)
	}
	for _, l := range lanes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lanes (lane_id, display_name, logical_number) VALUES (?,?,?)`,
			l.ID, l.DisplayName, l.LogicalNumber); err != nil {
			return fmt.Errorf("insert lane %d: %w", l.ID, err)
		}
	}
	for _, sl := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lane_events (lane_id, event_id, start_utc, end_utc,
				start_ms, end_ms, is_placeholder, chosen_playable_id,
				chosen_provider, chosen_logical_service, chosen_deeplink)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			sl.LaneID, sl.EventID, sl.StartUTC, sl.EndUTC, sl.StartMS, sl.EndMS,
			boolInt(sl.IsPlaceholder), sl.ChosenPlayableID, sl.ChosenProvider,
			sl.ChosenLogicalService, sl.ChosenDeeplink); err != nil {
			return fmt.Errorf("insert lane slot lane=%d start=%s: %w", sl.LaneID, sl.StartUTC, err)
		}
	}
	return tx.Commit()
}

// Lanes returns the lane rows ordered by logical number.
func (s *Store) Lanes(ctx context.Context) ([]Lane, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lane_id, display_name, logical_number FROM lanes ORDER BY logical_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Lane
	for rows.Next() {
		var l Lane
		if err := rows.Scan(&l.ID, &l.DisplayName, &l.LogicalNumber); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LaneSlots returns a lane's slots in start order, or all lanes' slots when
// laneID is 0.
func (s *Store) LaneSlots(ctx context.Context, laneID int) ([]LaneSlot, error) {
	q := `SELECT lane_id, event_id, start_utc, end_utc, start_ms, end_ms,
		is_placeholder, chosen_playable_id, chosen_provider,
		chosen_logical_service, chosen_deeplink FROM lane_events`
	var args []any
	if laneID != 0 {
		q += ` WHERE lane_id = ?`
		args = append(args, laneID)
	}
	q += ` ORDER BY lane_id, start_ms`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LaneSlot
	for rows.Next() {
		sl, err := scanLaneSlot(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *sl)
	}
	return out, rows.Err()
}

func scanLaneSlot(scan func(...any) error) (*LaneSlot, error) {
	var sl LaneSlot
	var ph int
	err := scan(&sl.LaneID, &sl.EventID, &sl.StartUTC, &sl.EndUTC, &sl.StartMS,
		&sl.EndMS, &ph, &sl.ChosenPlayableID, &sl.ChosenProvider,
		&sl.ChosenLogicalService, &sl.ChosenDeeplink)
	if err != nil {
		return nil, err
	}
	sl.IsPlaceholder = ph != 0
	return &sl, nil
}

// CurrentLaneSlot returns the slot covering t on the lane (start <= t < end).
// By construction at most one row matches. ErrNotFound when the lane has no
// coverage at t.
func (s *Store) CurrentLaneSlot(ctx context.Context, laneID int, t time.Time) (*LaneSlot, error) {
	ms := t.UnixMilli()
	row := s.db.QueryRowContext(ctx, `
		SELECT lane_id, event_id, start_utc, end_utc, start_ms, end_ms,
			is_placeholder, chosen_playable_id, chosen_provider,
			chosen_logical_service, chosen_deeplink
		FROM lane_events
		WHERE lane_id = ? AND start_ms <= ? AND end_ms > ?
		ORDER BY is_placeholder, start_ms LIMIT 1`, laneID, ms, ms)
	sl, err := scanLaneSlot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sl, err
}

// PreviousRealSlot returns the most recent non-placeholder slot on the lane
// that ended at or before t. Used for the padding-window fallback deeplink.
func (s *Store) PreviousRealSlot(ctx context.Context, laneID int, t time.Time) (*LaneSlot, error) {
	ms := t.UnixMilli()
	row := s.db.QueryRowContext(ctx, `
		SELECT lane_id, event_id, start_utc, end_utc, start_ms, end_ms,
			is_placeholder, chosen_playable_id, chosen_provider,
			chosen_logical_service, chosen_deeplink
		FROM lane_events
		WHERE lane_id = ? AND is_placeholder = 0 AND end_ms <= ?
		ORDER BY end_ms DESC LIMIT 1`, laneID, ms)
	sl, err := scanLaneSlot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sl, err
}

// ReplaceADBLanes swaps one provider's rows in adb_lanes for the new packing.
func (s *Store) ReplaceADBLanes(ctx context.Context, providerCode string, slots []ADBSlot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin adb plan: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM adb_lanes WHERE provider_code = ?`, providerCode); err != nil {
		return fmt.Errorf("truncate adb_lanes %s: %w", providerCode, err)
	}
	for _, sl := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO adb_lanes (provider_code, lane_number, channel_id,
				event_id, start_utc, stop_utc, start_ms, end_ms)
			VALUES (?,?,?,?,?,?,?,?)`,
			sl.ProviderCode, sl.LaneNumber, sl.ChannelID, sl.EventID,
			sl.StartUTC, sl.StopUTC, sl.StartMS, sl.EndMS); err != nil {
			return fmt.Errorf("insert adb slot %s/%d: %w", providerCode, sl.LaneNumber, err)
		}
	}
	return tx.Commit()
}

// ADBSlots returns a provider's slots (all lanes) in lane/start order.
func (s *Store) ADBSlots(ctx context.Context, providerCode string) ([]ADBSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider_code, lane_number, channel_id, event_id, start_utc,
			stop_utc, start_ms, end_ms
		FROM adb_lanes WHERE provider_code = ?
		ORDER BY lane_number, start_ms`, providerCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ADBSlot
	for rows.Next() {
		var sl ADBSlot
		if err := rows.Scan(&sl.ProviderCode, &sl.LaneNumber, &sl.ChannelID,
			&sl.EventID, &sl.StartUTC, &sl.StopUTC, &sl.StartMS, &sl.EndMS); err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// CurrentADBSlot returns the slot covering t on a provider lane.
func (s *Store) CurrentADBSlot(ctx context.Context, providerCode string, laneNumber int, t time.Time) (*ADBSlot, error) {
	ms := t.UnixMilli()
	var sl ADBSlot
	err := s.db.QueryRowContext(ctx, `
		SELECT provider_code, lane_number, channel_id, event_id, start_utc,
			stop_utc, start_ms, end_ms
		FROM adb_lanes
		WHERE provider_code = ? AND lane_number = ? AND start_ms <= ? AND end_ms > ?
		ORDER BY start_ms LIMIT 1`, providerCode, laneNumber, ms, ms).
		Scan(&sl.ProviderCode, &sl.LaneNumber, &sl.ChannelID, &sl.EventID,
			&sl.StartUTC, &sl.StopUTC, &sl.StartMS, &sl.EndMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sl, nil
}

// ProviderLaneConfig is the admin row controlling per-provider packing.
type ProviderLaneConfig struct {
	ProviderCode string    `json:"provider_code"`
	ADBEnabled   bool      `json:"adb_enabled"`
	ADBLaneCount int       `json:"adb_lane_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProviderLanes lists the configured providers.
func (s *Store) ProviderLanes(ctx context.Context) ([]ProviderLaneConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_code, adb_enabled, adb_lane_count, updated_at FROM provider_lanes ORDER BY provider_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProviderLaneConfig
	for rows.Next() {
		var c ProviderLaneConfig
		var enabled int
		var updated string
		if err := rows.Scan(&c.ProviderCode, &enabled, &c.ADBLaneCount, &updated); err != nil {
			return nil, err
		}
		c.ADBEnabled = enabled != 0
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			c.UpdatedAt = t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetProviderLanes upserts one provider's lane config.
func (s *Store) SetProviderLanes(ctx context.Context, c ProviderLaneConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_lanes (provider_code, adb_enabled, adb_lane_count, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(provider_code) DO UPDATE SET
			adb_enabled=excluded.adb_enabled,
			adb_lane_count=excluded.adb_lane_count,
			updated_at=excluded.updated_at`,
		c.ProviderCode, boolInt(c.ADBEnabled), c.ADBLaneCount,
		time.Now().UTC().Format(time.RFC3339))
	return err
}
